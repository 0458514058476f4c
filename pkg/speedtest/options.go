// Package speedtest измеряет задержку, скорость загрузки и выгрузки через
// HTTP эндпоинт в стиле speed.cloudflare.com (/__down?bytes=N и /__up).
//
// Этапы выполняются последовательно: ping -> download -> upload. Отмена
// кооперативная через context, состояние наблюдается через Runner.Snapshot
// и Runner.OnChange.
package speedtest // import "fortio.org/fspeed/pkg/speedtest"

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"fortio.org/fspeed/pkg/target"
	"fortio.org/sets"
)

const (
	// DefaultBaseURL публичная цель Cloudflare.
	DefaultBaseURL = "https://speed.cloudflare.com"
	// DefaultPingCount число замеров задержки.
	DefaultPingCount = 10
	// DefaultPingPause пауза между замерами задержки.
	DefaultPingPause = 100 * time.Millisecond
	// DefaultTransferPause пауза между файлами загрузки/выгрузки.
	DefaultTransferPause = 200 * time.Millisecond
	// DefaultStagePause пауза между этапами.
	DefaultStagePause = 500 * time.Millisecond
	// DefaultRequestTimeout таймаут одного запроса (включая чтение тела).
	DefaultRequestTimeout = 60 * time.Second
	// DefaultMaxSpeed шкала индикатора в Mbps.
	DefaultMaxSpeed = 300.
)

var (
	// ErrAborted возвращается когда тест остановлен (Stop или отмена context).
	ErrAborted = errors.New("speed test aborted")
	// ErrAlreadyRunning возвращается при попытке запустить второй тест.
	ErrAlreadyRunning = errors.New("speed test already running")
	// ErrNoSizes возвращается для пустого списка размеров.
	ErrNoSizes = errors.New("at least one transfer size is required")
)

// DefaultDownloadSizes размеры файлов загрузки, первый прогревочный.
func DefaultDownloadSizes() []int64 {
	return []int64{1_000_000, 5_000_000, 10_000_000, 25_000_000}
}

// DefaultUploadSizes размеры выгрузки, первый прогревочный.
func DefaultUploadSizes() []int64 {
	return []int64{500_000, 1_000_000, 2_000_000, 5_000_000}
}

// DefaultOkCodes коды ответа, при которых замер засчитывается.
func DefaultOkCodes() sets.Set[int] {
	return sets.New(http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent)
}

// Options параметры теста. Нулевые паузы означают "без паузы",
// остальные нулевые поля заполняются значениями по умолчанию в Init().
type Options struct {
	// BaseURL адрес цели, например https://speed.cloudflare.com.
	BaseURL string
	// Пути эндпоинтов относительно BaseURL.
	DownPath string
	UpPath   string

	PingCount     int
	DownloadSizes []int64
	UploadSizes   []int64

	PingPause     time.Duration
	TransferPause time.Duration
	StagePause    time.Duration
	// RequestTimeout ограничивает один запрос, 0 означает без ограничения.
	RequestTimeout time.Duration

	// OkCodes по умолчанию 200, 201, 202, 204.
	OkCodes sets.Set[int]
	// Client по умолчанию http.DefaultClient.
	Client    *http.Client
	UserAgent string
}

// DefaultOptions возвращает опции как у веб виджета.
func DefaultOptions() *Options {
	return &Options{
		BaseURL:        DefaultBaseURL,
		PingCount:      DefaultPingCount,
		DownloadSizes:  DefaultDownloadSizes(),
		UploadSizes:    DefaultUploadSizes(),
		PingPause:      DefaultPingPause,
		TransferPause:  DefaultTransferPause,
		StagePause:     DefaultStagePause,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Init заполняет пустые поля и проверяет опции.
func (o *Options) Init() error {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.DownPath == "" {
		o.DownPath = target.DownPath
	}
	if o.UpPath == "" {
		o.UpPath = target.UpPath
	}
	if o.PingCount <= 0 {
		o.PingCount = DefaultPingCount
	}
	if o.DownloadSizes == nil {
		o.DownloadSizes = DefaultDownloadSizes()
	}
	if o.UploadSizes == nil {
		o.UploadSizes = DefaultUploadSizes()
	}
	if len(o.DownloadSizes) == 0 || len(o.UploadSizes) == 0 {
		return ErrNoSizes
	}
	for _, s := range slices.Concat(o.DownloadSizes, o.UploadSizes) {
		if s <= 0 {
			return fmt.Errorf("invalid transfer size %d, must be > 0", s)
		}
	}
	if o.OkCodes == nil {
		o.OkCodes = DefaultOkCodes()
	}
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url %q: %w", o.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base url %q: scheme must be http or https", o.BaseURL)
	}
	return nil
}

// Clone возвращает копию опций (слайсы тоже копируются).
func (o *Options) Clone() *Options {
	c := *o
	c.DownloadSizes = slices.Clone(o.DownloadSizes)
	c.UploadSizes = slices.Clone(o.UploadSizes)
	return &c
}

// OptionFunc изменяет опции одного запуска.
type OptionFunc func(*Options)
