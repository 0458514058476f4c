// Package target реализует эндпоинты, совместимые с speed.cloudflare.com:
// /__down?bytes=N отдаёт N нулевых байт, /__up принимает и подсчитывает тело.
// Используется `fspeed serve` и echosrv как локальная цель и тестами как httptest сервер.
package target // import "fortio.org/fspeed/pkg/target"

import (
	"io"
	"net/http"
	"strconv"
	"sync/atomic"

	"fortio.org/fspeed/pkg/log"
	"fortio.org/safecast"
)

const (
	// DownPath путь эндпоинта загрузки.
	DownPath = "/__down"
	// UpPath путь эндпоинта выгрузки.
	UpPath = "/__up"
	// DefaultMaxDownloadBytes предел для ?bytes= по умолчанию (100MB).
	DefaultMaxDownloadBytes int64 = 100_000_000

	chunkSize = 64 * 1024
)

// zeros общий буфер для записи ответа.
var zeros = make([]byte, chunkSize)

// Handler обслуживает эндпоинты цели и считает переданные байты.
type Handler struct {
	// MaxDownloadBytes предел ?bytes=, 0 означает DefaultMaxDownloadBytes.
	MaxDownloadBytes int64
	// MaxUploadBytes предел тела /__up, 0 без ограничения.
	MaxUploadBytes int64

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	requests      atomic.Int64
}

// New создаёт Handler с пределами по умолчанию.
func New() *Handler {
	return &Handler{MaxDownloadBytes: DefaultMaxDownloadBytes}
}

// Register добавляет эндпоинты в mux под prefix ("" для корня).
func (h *Handler) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc(prefix+DownPath, h.Down)
	mux.HandleFunc(prefix+UpPath, h.Up)
}

// BytesSent возвращает общее число отданных байт.
func (h *Handler) BytesSent() int64 {
	return h.bytesSent.Load()
}

// BytesReceived возвращает общее число принятых байт.
func (h *Handler) BytesReceived() int64 {
	return h.bytesReceived.Load()
}

// Requests возвращает число обслуженных запросов.
func (h *Handler) Requests() int64 {
	return h.requests.Load()
}

func (h *Handler) maxDown() int64 {
	if h.MaxDownloadBytes <= 0 {
		return DefaultMaxDownloadBytes
	}
	return h.MaxDownloadBytes
}

// ParseBytes разбирает значение ?bytes=. Пустое значение означает 0.
func ParseBytes(s string, maxV int64) (int64, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 || n > maxV {
		return 0, false
	}
	return n, true
}

// Down отдаёт запрошенное число нулевых байт.
func (h *Handler) Down(w http.ResponseWriter, r *http.Request) {
	h.requests.Add(1)
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, ok := ParseBytes(r.URL.Query().Get("bytes"), h.maxDown())
	if !ok {
		log.Warnf("Неверный параметр bytes=%q от %s", r.URL.Query().Get("bytes"), r.RemoteAddr)
		http.Error(w, "invalid bytes parameter", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.FormatInt(n, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	remaining := n
	for remaining > 0 {
		sz := safecast.MustConv[int](min(remaining, int64(chunkSize)))
		written, err := w.Write(zeros[:sz])
		h.bytesSent.Add(int64(written))
		if err != nil {
			log.S(log.Verbose, "Клиент прервал загрузку", log.Str("remote", r.RemoteAddr),
				log.Int64("sent", n-remaining), log.Int64("size", n), log.Err(err))
			return
		}
		remaining -= int64(written)
	}
}

// Up читает тело запроса до конца и возвращает число принятых байт.
func (h *Handler) Up(w http.ResponseWriter, r *http.Request) {
	h.requests.Add(1)
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body := io.Reader(r.Body)
	if h.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	n, err := io.Copy(io.Discard, body)
	h.bytesReceived.Add(n)
	if err != nil {
		log.LogVf("Ошибка чтения выгрузки от %s после %d байт: %v", r.RemoteAddr, n, err)
		http.Error(w, "upload failed", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, strconv.FormatInt(n, 10))
}
