// Пакет jrpc облегчает JSON вызовы к HTTP API (в частности к `fspeed serve`),
// используя дженерики для сериализации/десериализации любого типа.
package jrpc // import "fortio.org/fspeed/internal/jrpc"

// Пакет не зависит от логгера: ошибки возвращаются вызывающему.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fortio.org/fspeed/version"
	"fortio.org/sets"
)

// DefaultTimeout таймаут вызова, если Destination.Timeout не задан.
const DefaultTimeout = 30 * time.Second

// UserAgent заголовок User-Agent клиентских вызовов.
var UserAgent = "fortio.org/fspeed-" + version.Short()

// FetchError ошибка вызова с кодом HTTP, если он был получен.
type FetchError struct {
	Message string
	// Код ответа HTTP, -1 для прочих ошибок.
	Code int
	// Исходная (обёрнутая) ошибка, если есть.
	Err error
	// Тело ответа, если есть.
	Bytes []byte
}

func (fe *FetchError) Error() string {
	return fmt.Sprintf("%s, code %d: %v (raw reply: %s)", fe.Message, fe.Code, fe.Err, DebugSummary(fe.Bytes, 256))
}

func (fe *FetchError) Unwrap() error {
	return fe.Err
}

// Destination URL и необязательные параметры вызова.
type Destination struct {
	URL string
	// Headers дополнительные заголовки, nil если не нужны.
	Headers http.Header
	// Timeout 0 означает DefaultTimeout.
	Timeout time.Duration
	// Method "" означает POST если есть тело, иначе GET.
	Method string
	// Context или context.Background(), если не задан.
	Context context.Context //nolint:containedctx // опционален, как в fortio jrpc
	// OkCodes по умолчанию 200, 201, 202.
	OkCodes sets.Set[int]
	// Client по умолчанию http.DefaultClient.
	Client *http.Client
}

// NewDestination возвращает Destination для url с параметрами по умолчанию.
func NewDestination(url string) *Destination {
	return &Destination{URL: url}
}

func (d *Destination) context() context.Context {
	if d.Context != nil {
		return d.Context
	}
	return context.Background()
}

func (d *Destination) ok(code int) bool {
	if d.OkCodes != nil {
		return d.OkCodes.Has(code)
	}
	return code >= http.StatusOK && code <= http.StatusAccepted
}

// Call отправляет payload как JSON (nil для GET) и десериализует ответ в Q.
func Call[Q any, T any](dest *Destination, payload *T) (*Q, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return Fetch[Q](dest, body)
}

// Get получает и десериализует JSON ответ без тела запроса.
// Метод может быть не GET, если задан dest.Method.
func Get[Q any](dest *Destination) (*Q, error) {
	return Fetch[Q](dest, nil)
}

// GetURL это Get без дополнительных параметров.
func GetURL[Q any](url string) (*Q, error) {
	return Get[Q](NewDestination(url))
}

// Deserialize десериализует JSON в новый объект; пустое тело даёт нулевой объект.
func Deserialize[Q any](b []byte) (*Q, error) {
	var result Q
	if len(b) == 0 {
		return &result, nil
	}
	err := json.Unmarshal(b, &result)
	return &result, err
}

// Fetch для уже сериализованного тела. Для кодов не из OkCodes возвращает
// десериализованный результат (если удалось) вместе с *FetchError.
func Fetch[Q any](dest *Destination, body []byte) (*Q, error) {
	code, reply, err := Send(dest, body)
	if err != nil {
		return nil, err
	}
	ok := dest.ok(code)
	result, err := Deserialize[Q](reply)
	if err != nil {
		if ok {
			return nil, err
		}
		return nil, &FetchError{"non ok http result and deserialization error", code, err, reply}
	}
	if !ok {
		return result, &FetchError{"non ok http result", code, nil, reply}
	}
	return result, nil
}

// Send выполняет запрос и возвращает код ответа (-1 при ошибках до ответа) и тело.
func Send(dest *Destination, jsonPayload []byte) (int, []byte, error) {
	timeout := dest.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(dest.context(), timeout)
	defer cancel()
	method := dest.Method
	var body io.Reader
	if len(jsonPayload) > 0 {
		body = bytes.NewReader(jsonPayload)
		if method == "" {
			method = http.MethodPost
		}
	} else if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, dest.URL, body)
	if err != nil {
		return -1, nil, &FetchError{"bad request", -1, err, nil}
	}
	if dest.Headers != nil {
		req.Header = dest.Headers.Clone()
	}
	if len(jsonPayload) > 0 {
		setHeaderIfMissing(req.Header, "Content-Type", "application/json; charset=utf-8")
	}
	setHeaderIfMissing(req.Header, "Accept", "application/json")
	setHeaderIfMissing(req.Header, "User-Agent", UserAgent)
	client := dest.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return -1, nil, &FetchError{"request failed", -1, err, nil}
	}
	defer resp.Body.Close()
	res, err := io.ReadAll(resp.Body)
	return resp.StatusCode, res, err
}

func setHeaderIfMissing(headers http.Header, name, value string) {
	if headers.Get(name) != "" {
		return
	}
	headers.Set(name, value)
}

// EscapeBytes возвращает печатную строку, как %q без кавычек.
func EscapeBytes(buf []byte) string {
	e := fmt.Sprintf("%q", buf)
	return e[1 : len(e)-1]
}

// DebugSummary возвращает размер и экранированные первые и последние maxV/2
// байт буфера (или весь буфер, если он достаточно мал).
func DebugSummary(buf []byte, maxV int) string {
	l := len(buf)
	if l <= maxV+3 {
		return EscapeBytes(buf)
	}
	maxV /= 2
	return fmt.Sprintf("%d: %s...%s", l, EscapeBytes(buf[:maxV]), EscapeBytes(buf[l-maxV:]))
}
