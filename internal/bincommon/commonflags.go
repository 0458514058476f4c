// Пакет bincommon содержит общий код и обработку флагов между командами
// fspeed (run, serve) и примерами. Флаги -> speedtest.Options.
package bincommon

import (
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fortio.org/dflag"
	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/speedtest"
	"fortio.org/safecast"
	"golang.org/x/net/http2"
)

// Config используется в cmd/ для кастомизации запуска, например логгера.
type Config struct {
	// LoggerSetup вызывается после разбора флагов.
	LoggerSetup func()
}

// maxTransferSize предел одного размера в -download-sizes/-upload-sizes (1GB).
const maxTransferSize = 1_000_000_000

var (
	// URLFlag адрес цели теста.
	URLFlag = flag.String("url", speedtest.DefaultBaseURL,
		"Базовый `URL` цели с эндпоинтами /__down и /__up (для run можно передать аргументом)")
	httpReqTimeoutFlag = flag.Duration("timeout", speedtest.DefaultRequestTimeout, "Таймаут одного запроса, включая чтение тела")
	h2Flag             = flag.Bool("h2", false, "Использовать HTTP/2 для TLS соединений (по умолчанию HTTP/1.1)")
	httpsInsecureFlag  = flag.Bool("k", false, "Не проверять сертификаты в HTTPS соединениях")
	httpsInsecureFlagL = flag.Bool("https-insecure", false, "Длинная форма флага -k")
	userAgentFlag      = flag.String("user-agent", "", "Заголовок User-Agent, по умолчанию fortio.org/fspeed-<версия>")
	// JSONFlag выводить итог run в JSON.
	JSONFlag = flag.Bool("json", false, "Вывести итоговый отчёт в JSON в stdout")
	// NoProgressFlag не выводить живой прогресс.
	NoProgressFlag = flag.Bool("no-progress", false, "Не выводить живой прогресс в stderr")

	// PingCount динамический флаг числа замеров задержки.
	PingCount = dflag.Flag("ping-count", dflag.New(int64(speedtest.DefaultPingCount),
		"Число замеров задержки (самый быстрый и самый медленный отбрасываются)").
		WithValidator(validatePingCount))
	// PingPause пауза между замерами задержки.
	PingPause = dflag.Flag("ping-pause", dflag.New(speedtest.DefaultPingPause, "Пауза между замерами задержки").
		WithValidator(validatePause))
	// TransferPause пауза между файлами загрузки и выгрузки.
	TransferPause = dflag.Flag("transfer-pause", dflag.New(speedtest.DefaultTransferPause,
		"Пауза между файлами загрузки/выгрузки").WithValidator(validatePause))
	// StagePause пауза между этапами.
	StagePause = dflag.Flag("stage-pause", dflag.New(speedtest.DefaultStagePause, "Пауза между этапами ping, download, upload").
		WithValidator(validatePause))
	// DownloadSizes размеры загрузки через запятую, первый прогревочный.
	DownloadSizes = dflag.Flag("download-sizes", dflag.New(FormatSizes(speedtest.DefaultDownloadSizes()),
		"Размеры файлов загрузки в байтах через запятую, первый прогревочный и не входит в среднее").
		WithValidator(ValidateSizes))
	// UploadSizes размеры выгрузки через запятую, первый прогревочный.
	UploadSizes = dflag.Flag("upload-sizes", dflag.New(FormatSizes(speedtest.DefaultUploadSizes()),
		"Размеры выгрузки в байтах через запятую, первый прогревочный и не входит в среднее").
		WithValidator(ValidateSizes))
	// MaxSpeed шкала индикатора в Mbps.
	MaxSpeed = dflag.Flag("max-speed", dflag.New(speedtest.DefaultMaxSpeed, "Максимум шкалы индикатора скорости в `Mbps`").
		WithValidator(validateMaxSpeed))
)

func validatePingCount(v int64) error {
	if v < 1 || v > 1000 {
		return fmt.Errorf("ping-count %d должен быть от 1 до 1000", v)
	}
	return nil
}

func validatePause(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("пауза %v не может быть отрицательной", d)
	}
	return nil
}

func validateMaxSpeed(v float64) error {
	if v <= 0 {
		return fmt.Errorf("max-speed %g должен быть > 0", v)
	}
	return nil
}

// ValidateSizes проверяет список размеров для dflag.
func ValidateSizes(s string) error {
	_, err := ParseSizes(s)
	return err
}

// ParseSizes разбирает "1000000,5000000" в список размеров. Пустой список это ошибка.
func ParseSizes(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	res := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("размер %q: %w", p, err)
		}
		if v <= 0 || v > maxTransferSize {
			return nil, fmt.Errorf("размер %d должен быть > 0 и <= %d", v, maxTransferSize)
		}
		res = append(res, v)
	}
	if len(res) == 0 {
		return nil, errors.New("список размеров не может быть пустым")
	}
	return res, nil
}

// FormatSizes обратная операция к ParseSizes.
func FormatSizes(sizes []int64) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.FormatInt(s, 10)
	}
	return strings.Join(parts, ",")
}

// TLSInsecure возвращает true, если был передан -k или -https-insecure.
func TLSInsecure() bool {
	insecure := *httpsInsecureFlag || *httpsInsecureFlagL
	if insecure {
		log.Infof("TLS сертификаты не будут проверяться, по запросу флага")
	} else {
		log.LogVf("Будут проверяться TLS сертификаты, используйте -k / -https-insecure для отключения")
	}
	return insecure
}

// NewHTTPClient создаёт клиент для измерений. Без h2 ALPN отключён и
// соединения идут по HTTP/1.1.
func NewHTTPClient(insecure, h2 bool) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // стандартный transport
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // по запросу флага -k
	}
	if h2 {
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, fmt.Errorf("h2: %w", err)
		}
	} else {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	// измерения не должны переживать сжатие
	tr.DisableCompression = true
	return &http.Client{Transport: tr}, nil
}

// SharedOptions переносит флаги в speedtest.Options для цели baseURL
// ("" означает -url).
func SharedOptions(baseURL string) (*speedtest.Options, error) {
	if baseURL == "" {
		baseURL = *URLFlag
	}
	o := &speedtest.Options{
		BaseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		RequestTimeout: *httpReqTimeoutFlag,
		UserAgent:      *userAgentFlag,
	}
	ApplyDynamic(o)
	var err error
	if o.Client, err = NewHTTPClient(TLSInsecure(), *h2Flag); err != nil {
		return nil, err
	}
	if err = o.Init(); err != nil {
		return nil, err
	}
	log.LogVf("Опции теста: %+v", o)
	return o, nil
}

// ApplyDynamic переносит текущие значения динамических флагов в o.
// Значения уже проверены валидаторами, поэтому ошибки разбора не ожидаются.
func ApplyDynamic(o *speedtest.Options) {
	o.PingCount = safecast.MustConv[int](PingCount.Get())
	o.PingPause = PingPause.Get()
	o.TransferPause = TransferPause.Get()
	o.StagePause = StagePause.Get()
	if sizes, err := ParseSizes(DownloadSizes.Get()); err == nil {
		o.DownloadSizes = sizes
	}
	if sizes, err := ParseSizes(UploadSizes.Get()); err == nil {
		o.UploadSizes = sizes
	}
}

// IsSet возвращает true, если флаг name был задан в командной строке.
func IsSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
