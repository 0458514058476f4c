package speedtest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"slices"
	"time"

	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/stats"
	"fortio.org/safecast"
)

// Upload отправляет POST с нулевым телом каждого размера из UploadSizes.
// Время замеряется до получения ответа. Первый замер прогревочный.
func (s *Sampler) Upload(ctx context.Context, rep Reporter) (*TransferResult, error) {
	if rep == nil {
		rep = nopReporter{}
	}
	sizes := s.o.UploadSizes
	total := float64(len(sizes))
	res := &TransferResult{}
	var avg stats.Counter
	// один буфер на все размеры, тела берутся срезом
	payload := make([]byte, safecast.MustConv[int](slices.Max(sizes)))
	for i, size := range sizes {
		if err := aborted(ctx); err != nil {
			return res, err
		}
		elapsed, err := s.uploadOnce(ctx, payload[:size])
		if err != nil {
			if err = sampleFailed(ctx, "upload", i, err); err != nil {
				return res, err
			}
			res.Errors++
		} else if elapsed > 0 {
			smp := Sample{Bytes: size, Duration: elapsed, Mbps: Mbps(size, elapsed), WarmUp: i == 0}
			rep.Speed(smp.Mbps)
			res.Samples = append(res.Samples, smp)
			if !smp.WarmUp {
				avg.Record(smp.Mbps)
			}
			log.LogVf("upload %d: %d байт за %v, %.2f Mbps", i, size, elapsed, smp.Mbps)
		}
		rep.Progress(float64(i+1) / total * 100)
		if err := pause(ctx, s.o.TransferPause); err != nil {
			return res, err
		}
	}
	res.Mbps = avg.Avg()
	avg.Log("upload Mbps")
	log.S(log.Info, "upload", log.Float64("mbps", res.Mbps),
		log.Int("samples", len(res.Samples)), log.Int("errors", res.Errors))
	return res, nil
}

func (s *Sampler) uploadOnce(ctx context.Context, body []byte) (time.Duration, error) {
	rctx, cancel := s.requestContext(ctx)
	defer cancel()
	req, err := s.newRequest(rctx, http.MethodPost, s.UpURL(), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	start := time.Now()
	resp, err := s.do(req)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return elapsed, nil
}
