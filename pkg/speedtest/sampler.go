package speedtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/stats"
	"fortio.org/fspeed/version"
)

// Reporter получает промежуточные значения этапа.
type Reporter interface {
	// Progress процент выполнения текущего этапа, 0-100.
	Progress(pct float64)
	// Speed мгновенная скорость в Mbps.
	Speed(mbps float64)
}

type nopReporter struct{}

func (nopReporter) Progress(float64) {}
func (nopReporter) Speed(float64)    {}

// Sample один замер передачи.
type Sample struct {
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"durationNs"`
	Mbps     float64       `json:"mbps"`
	// WarmUp прогревочный замер, не входит в среднее.
	WarmUp bool `json:"warmUp,omitempty"`
}

// PingResult результат этапа задержки, все значения в миллисекундах.
type PingResult struct {
	Samples []float64 `json:"samples"`
	Ping    float64   `json:"ping"`
	Jitter  float64   `json:"jitter"`
	Errors  int       `json:"errors,omitempty"`
}

// TransferResult результат этапа загрузки или выгрузки.
type TransferResult struct {
	Samples []Sample `json:"samples"`
	// Mbps среднее по не прогревочным замерам.
	Mbps   float64 `json:"mbps"`
	Errors int     `json:"errors,omitempty"`
}

// Sampler выполняет отдельные этапы измерений против одной цели.
type Sampler struct {
	o       *Options
	downURL *url.URL
	upURL   *url.URL
}

// NewSampler проверяет опции (вызывает Init) и создаёт Sampler.
func NewSampler(o *Options) (*Sampler, error) {
	if err := o.Init(); err != nil {
		return nil, err
	}
	base, err := url.Parse(o.BaseURL)
	if err != nil {
		return nil, err
	}
	return &Sampler{
		o:       o,
		downURL: base.JoinPath(o.DownPath),
		upURL:   base.JoinPath(o.UpPath),
	}, nil
}

// Options возвращает опции сэмплера.
func (s *Sampler) Options() *Options {
	return s.o
}

// DownURL возвращает URL загрузки bytes байт.
func (s *Sampler) DownURL(bytes int64) string {
	u := *s.downURL
	q := u.Query()
	q.Set("bytes", strconv.FormatInt(bytes, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// UpURL возвращает URL выгрузки.
func (s *Sampler) UpURL() string {
	return s.upURL.String()
}

// Mbps переводит байты за elapsed в мегабиты в секунду (десятичные), 0 для elapsed <= 0.
func Mbps(bytes int64, elapsed time.Duration) float64 {
	sec := elapsed.Seconds()
	if sec <= 0 {
		return 0
	}
	return float64(bytes) * 8 / (sec * 1e6)
}

// aborted возвращает ErrAborted, если ctx отменён.
func aborted(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrAborted
	}
	return nil
}

// pause ждёт d или отмены ctx.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return aborted(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ErrAborted
	case <-t.C:
		return nil
	}
}

// errStatus ответ с кодом не из OkCodes.
type errStatus int

func (e errStatus) Error() string {
	return fmt.Sprintf("unexpected status %d", int(e))
}

func (s *Sampler) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")
	ua := s.o.UserAgent
	if ua == "" {
		ua = "fortio.org/fspeed-" + version.Short()
	}
	req.Header.Set("User-Agent", ua)
	return req, nil
}

// do выполняет запрос; тело ответа закрывает вызывающий.
func (s *Sampler) do(req *http.Request) (*http.Response, error) {
	resp, err := s.o.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if !s.o.OkCodes.Has(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, errStatus(resp.StatusCode)
	}
	return resp, nil
}

func (s *Sampler) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.o.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.o.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// sampleFailed решает, прерывать ли этап после ошибки запроса: при отмене
// ctx возвращает ErrAborted, иначе логирует и замер пропускается.
func sampleFailed(ctx context.Context, stage string, i int, err error) error {
	if ctx.Err() != nil {
		return ErrAborted
	}
	var st errStatus
	if errors.As(err, &st) {
		log.Warnf("%s: замер %d пропущен, код ответа %d", stage, i, int(st))
	} else {
		log.Warnf("%s: замер %d пропущен: %v", stage, i, err)
	}
	return nil
}

// Ping выполняет PingCount последовательных запросов нулевого размера.
// Задержка из отсортированной выборки без минимума и максимума, джиттер это
// стандартное отклонение той же выборки.
func (s *Sampler) Ping(ctx context.Context, rep Reporter) (*PingResult, error) {
	if rep == nil {
		rep = nopReporter{}
	}
	n := s.o.PingCount
	res := &PingResult{Samples: make([]float64, 0, n)}
	u := s.DownURL(0)
	for i := range n {
		if err := aborted(ctx); err != nil {
			return res, err
		}
		rtt, err := s.pingOnce(ctx, u)
		if err != nil {
			if err = sampleFailed(ctx, "ping", i, err); err != nil {
				return res, err
			}
			res.Errors++
		} else {
			res.Samples = append(res.Samples, float64(rtt)/float64(time.Millisecond))
		}
		rep.Progress(float64(i+1) / float64(n) * 100)
		if err := pause(ctx, s.o.PingPause); err != nil {
			return res, err
		}
	}
	res.Ping, res.Jitter = stats.TrimmedMeanAndJitter(res.Samples)
	log.S(log.Info, "ping",
		log.Float64("ping_ms", res.Ping), log.Float64("jitter_ms", res.Jitter),
		log.Int("samples", len(res.Samples)), log.Int("errors", res.Errors))
	return res, nil
}

func (s *Sampler) pingOnce(ctx context.Context, u string) (time.Duration, error) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	req, err := s.newRequest(rctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := s.do(req)
	if err != nil {
		return 0, err
	}
	_, err = io.Copy(io.Discard, resp.Body)
	rtt := time.Since(start)
	resp.Body.Close()
	if err != nil {
		return 0, err
	}
	return rtt, nil
}
