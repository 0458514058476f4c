// Пакет ui обслуживает HTTP API виджета теста скорости: запуск, остановку,
// состояние и поток событий, а также страницу состояния, флаги и метрики.
package ui

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"fortio.org/dflag/endpoint"
	"fortio.org/fspeed/metrics"
	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/speedtest"
	"fortio.org/fspeed/pkg/target"
	"fortio.org/fspeed/version"
)

// ServerConfig настройки fspeed serve.
type ServerConfig struct {
	// Port адрес прослушивания, например ":8080" или "8080".
	Port string
	// UIPath префикс API и страницы, должен заканчиваться на /.
	UIPath string
	// Target включает эндпоинты /__down и /__up на этом сервере.
	Target bool
	// MaxDownloadBytes предел одного ответа /__down (0 значение по умолчанию).
	MaxDownloadBytes int64
	MaxSpeed         float64
	Runner           *speedtest.Runner
	// Tune применяется к опциям каждого запуска через API, например текущие dflag значения.
	Tune speedtest.OptionFunc
	// CertFile и KeyFile включают TLS.
	CertFile, KeyFile string
}

// Running запущенный сервер.
type Running struct {
	Server *Server
	HTTP   *http.Server
	Addr   net.Addr
	Target *target.Handler
	done   chan error
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><title>fspeed {{.Version}}</title>
<meta http-equiv="refresh" content="2"></head>
<body>
<h1>{{.Status.Label}}</h1>
<p>{{printf "%.1f" .Status.DisplaySpeed}} Mbps ({{printf "%.0f" .Status.GaugePercent}}%)</p>
<p>Ping {{printf "%.0f" .Status.Results.Ping}} ms, Jitter {{printf "%.1f" .Status.Results.Jitter}} ms,
Download {{printf "%.1f" .Status.Results.Download}} Mbps, Upload {{printf "%.1f" .Status.Results.Upload}} Mbps</p>
{{with .Status.Quality}}<p>{{.Rating}}: {{.Advice}}</p>{{end}}
{{with .Status.LastError}}<p>Error: {{.}}</p>{{end}}
<form method="POST" action="{{.Prefix}}api/start"><button>Start</button></form>
<form method="POST" action="{{.Prefix}}api/stop"><button>Stop</button></form>
<p>Up {{.Uptime}}, <a href="{{.Prefix}}flags">flags</a>, <a href="{{.Prefix}}metrics">metrics</a></p>
</body></html>
`))

// Page отдаёт html страницу состояния.
func (s *Server) Page(prefix string, start time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := pageTemplate.Execute(w, map[string]any{
			"Version": version.Short(),
			"Status":  s.current(),
			"Prefix":  prefix,
			"Uptime":  time.Since(start).Round(time.Second),
		})
		if err != nil {
			log.Errf("Ошибка шаблона страницы: %v", err)
		}
	}
}

func normalizePort(port string) string {
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

// Handler собирает mux со всеми эндпоинтами сервера.
func Handler(cfg *ServerConfig) (*http.ServeMux, *Server, *target.Handler) {
	mux := http.NewServeMux()
	uiPath := cfg.UIPath
	if uiPath == "" {
		uiPath = "/"
	}
	if uiPath[len(uiPath)-1] != '/' {
		log.Warnf("Добавляем / в конец пути UI '%s'", uiPath)
		uiPath += "/"
	}
	var th *target.Handler
	if cfg.Target {
		th = target.New()
		if cfg.MaxDownloadBytes > 0 {
			th.MaxDownloadBytes = cfg.MaxDownloadBytes
		}
		th.Register(mux, "")
	}
	s := NewServer(cfg.Runner, cfg.MaxSpeed)
	s.tune = cfg.Tune
	s.Register(mux, uiPath)
	mux.HandleFunc(uiPath, log.LogAndCall("page", s.Page(uiPath, time.Now())))

	dflagsPath := uiPath + "flags"
	dflagSetURL := dflagsPath + "/set"
	dflagEndPt := endpoint.NewFlagsEndpoint(flag.CommandLine, dflagSetURL)
	mux.HandleFunc(dflagsPath, dflagEndPt.ListFlags)
	mux.HandleFunc(dflagSetURL, dflagEndPt.SetFlag)
	mux.HandleFunc(uiPath+"metrics", metrics.Exporter(cfg.Runner))
	return mux, s, th
}

// Serve запускает сервер и возвращается после начала прослушивания.
func Serve(cfg *ServerConfig) (*Running, error) {
	mux, s, th := Handler(cfg)
	ln, err := net.Listen("tcp", normalizePort(cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Port, err)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rs := &Running{Server: s, HTTP: srv, Addr: ln.Addr(), Target: th, done: make(chan error, 1)}
	tls := cfg.CertFile != "" && cfg.KeyFile != ""
	go func() {
		var err error
		if tls {
			err = srv.ServeTLS(ln, cfg.CertFile, cfg.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		rs.done <- err
	}()
	scheme := "http"
	if tls {
		scheme = "https"
	}
	log.S(log.Info, "Сервер fspeed запущен", log.Str("addr", ln.Addr().String()),
		log.Str("url", fmt.Sprintf("%s://%s%s", scheme, ln.Addr(), cfg.UIPath)), log.Attr("target", cfg.Target))
	return rs, nil
}

// Shutdown останавливает текущий тест и сервер.
func (rs *Running) Shutdown(ctx context.Context) error {
	rs.Server.Runner().Stop()
	err := rs.HTTP.Shutdown(ctx)
	rs.Server.Runner().Wait()
	if serr := <-rs.done; err == nil {
		err = serr
	}
	return err
}
