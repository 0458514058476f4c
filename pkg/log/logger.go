// Package log предоставляет логгер для fspeed на базе slog.
// API функций повторяет fortio.org/log (Infof, Errf, LogVf, S, ...), чтобы код
// измерений не зависел от того, какой handler выбран в main.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
)

// Level определяет уровень логирования (совместимость с fortio.org/log).
type Level int8

// Уровни логирования.
const (
	Debug    Level = iota // 0
	Verbose               // 1
	Info                  // 2
	Warning               // 3
	Error                 // 4
	Critical              // 5
	Fatal                 // 6
)

var (
	defaultLogger *Logger
	loggerMu      sync.RWMutex
	// defaultLevel общий для всех handler'ов созданных этим пакетом.
	defaultLevel = new(slog.LevelVar)
)

// Logger обёртка над slog.Logger с метаданными сервиса.
type Logger struct {
	*slog.Logger
	name        string
	release     string
	environment string
	level       Level
	output      io.Writer
}

// Option функция для настройки Logger.
type Option func(*Logger)

// WithName устанавливает имя логгера.
func WithName(name string) Option {
	return func(l *Logger) {
		l.name = name
	}
}

// WithRelease устанавливает версию релиза.
func WithRelease(release string) Option {
	return func(l *Logger) {
		l.release = release
	}
}

// WithEnvironment устанавливает окружение (local, dev, prod).
func WithEnvironment(env string) Option {
	return func(l *Logger) {
		l.environment = env
	}
}

// WithLevel устанавливает уровень логирования.
func WithLevel(level Level) Option {
	return func(l *Logger) {
		l.level = level
	}
}

// WithLevelString устанавливает уровень логирования из строки.
func WithLevelString(levelStr string) Option {
	return func(l *Logger) {
		l.level = ParseLevel(levelStr)
	}
}

// WithOutput устанавливает writer для вывода.
func WithOutput(w io.Writer) Option {
	return func(l *Logger) {
		l.output = w
	}
}

// ParseLevel парсит строку уровня логирования, по умолчанию Info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return Debug
	case "VERBOSE":
		return Verbose
	case "WARN", "WARNING":
		return Warning
	case "ERROR", "ERR":
		return Error
	case "CRITICAL":
		return Critical
	case "FATAL":
		return Fatal
	default:
		return Info
	}
}

// String возвращает имя уровня.
func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Verbose:
		return "VERBOSE"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	case Fatal:
		return "FATAL"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// New создаёт новый Logger с опциями.
//
// Пример:
//
//	logger := log.New(
//	    log.WithName("fspeed"),
//	    log.WithRelease("1.0.0"),
//	    log.WithLevelString("DEBUG"),
//	)
func New(opts ...Option) *Logger {
	l := &Logger{
		name:        "fspeed",
		release:     "0.0.0",
		environment: "local",
		level:       Info,
		output:      os.Stderr,
	}
	for _, opt := range opts {
		opt(l)
	}
	handler := slog.NewJSONHandler(l.output, &slog.HandlerOptions{
		Level: defaultLevel,
	})
	l.Logger = slog.New(handler).With(
		slog.String("name", l.name),
		slog.String("release", l.release),
		slog.String("environment", l.environment),
	)
	return l
}

// SetAsDefault устанавливает этот логгер как глобальный (и для slog тоже).
func (l *Logger) SetAsDefault() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = l
	defaultLevel.Set(levelToSlog(l.level))
	slog.SetDefault(l.Logger)
}

func init() { //nolint:gochecknoinits // логгер нужен до разбора флагов
	defaultLevel.Set(slog.LevelInfo)
	defaultLogger = New()
}

// Default возвращает глобальный slog.Logger.
func Default() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger.Logger
}

// SetLevel устанавливает уровень логирования.
func SetLevel(level Level) {
	defaultLevel.Set(levelToSlog(level))
}

// GetLevel возвращает текущий уровень логирования.
func GetLevel() Level {
	return slogToLevel(defaultLevel.Level())
}

func levelToSlog(level Level) slog.Level {
	switch level {
	case Debug, Verbose:
		return slog.LevelDebug
	case Warning:
		return slog.LevelWarn
	case Error, Critical, Fatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func slogToLevel(level slog.Level) Level {
	switch {
	case level <= slog.LevelDebug:
		return Debug
	case level <= slog.LevelInfo:
		return Info
	case level <= slog.LevelWarn:
		return Warning
	default:
		return Error
	}
}

// Log проверяет, включён ли указанный уровень: if log.Log(log.Verbose) { ... }.
func Log(level Level) bool {
	return GetLevel() <= level
}

// --- Функции логирования (совместимость с fortio.org/log) ---

// Debugf логирует сообщение на уровне Debug с форматированием.
func Debugf(format string, args ...any) {
	Default().Debug(fmt.Sprintf(format, args...))
}

// LogVf логирует на уровне Verbose (он же Debug для slog).
func LogVf(format string, args ...any) {
	Default().Debug(fmt.Sprintf(format, args...))
}

// Infof логирует сообщение на уровне Info с форматированием.
func Infof(format string, args ...any) {
	Default().Info(fmt.Sprintf(format, args...))
}

// Warnf логирует сообщение на уровне Warn с форматированием.
func Warnf(format string, args ...any) {
	Default().Warn(fmt.Sprintf(format, args...))
}

// Errf логирует сообщение на уровне Error с форматированием.
func Errf(format string, args ...any) {
	Default().Error(fmt.Sprintf(format, args...))
}

// FErrf логирует ошибку и возвращает код выхода 1, для return log.FErrf(...).
func FErrf(format string, args ...any) int {
	Default().Error(fmt.Sprintf(format, args...))
	return 1
}

// S логирует structured сообщение с атрибутами на указанном уровне.
// Пример: log.S(log.Info, "готово", log.Float64("download", 93.2))
func S(level Level, msg string, attrs ...slog.Attr) {
	if !Log(level) {
		return
	}
	Default().LogAttrs(context.Background(), levelToSlog(level), msg, attrs...)
}

// --- Хелперы для атрибутов ---

// Attr создаёт атрибут любого типа.
func Attr(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Str создаёт строковый атрибут.
func Str(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int создаёт целочисленный атрибут.
func Int(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

// Int64 создаёт int64 атрибут.
func Int64(key string, value int64) slog.Attr {
	return slog.Int64(key, value)
}

// Float64 создаёт float64 атрибут.
func Float64(key string, value float64) slog.Attr {
	return slog.Float64(key, value)
}

// Err создаёт атрибут ошибки.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}

// --- HTTP хелперы ---

// LogRequest логирует HTTP запрос.
func LogRequest(r *http.Request, msg string) {
	S(Info, msg, Str("method", r.Method), Str("path", r.URL.Path), Str("remote", r.RemoteAddr))
}

// LogAndCall оборачивает handler логированием запросов.
func LogAndCall(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		LogRequest(r, name)
		handler(w, r)
	}
}
