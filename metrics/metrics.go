// Пакет metrics предоставляет минимальный экспорт метрик fspeed в формате prometheus.
package metrics // import "fortio.org/fspeed/metrics"

import (
	"io"
	"net/http"
	"runtime"
	"strconv"

	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/speedtest"
	"fortio.org/scli"
)

// Source источник состояния, например *speedtest.Runner.
type Source interface {
	Snapshot() speedtest.State
	Runs() int64
}

func gauge(w io.Writer, name, help, typ, value string) {
	_, _ = io.WriteString(w, "# HELP "+name+" "+help+"\n# TYPE "+name+" "+typ+"\n"+name+" "+value+"\n")
}

func float(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Exporter возвращает обработчик, записывающий метрики src.
func Exporter(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.LogRequest(r, "metrics")
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		Write(w, src)
	}
}

// Write записывает метрики src в w.
func Write(w io.Writer, src Source) {
	st := src.Snapshot()
	running := "0"
	if st.IsRunning() {
		running = "1"
	}
	gauge(w, "fspeed_num_fd", "Количество открытых файловых дескрипторов", "gauge", strconv.Itoa(scli.NumFD()))
	gauge(w, "fspeed_running", "1 пока выполняется тест скорости", "gauge", running)
	gauge(w, "fspeed_runs_total", "Общее количество запусков", "counter", strconv.FormatInt(src.Runs(), 10))
	gauge(w, "fspeed_ping_ms", "Последняя задержка в мс", "gauge", float(st.Results.Ping))
	gauge(w, "fspeed_jitter_ms", "Последний джиттер в мс", "gauge", float(st.Results.Jitter))
	gauge(w, "fspeed_download_mbps", "Последняя скорость загрузки в Mbps", "gauge", float(st.Results.Download))
	gauge(w, "fspeed_upload_mbps", "Последняя скорость выгрузки в Mbps", "gauge", float(st.Results.Upload))
	gauge(w, "fspeed_goroutines", "Текущее количество горутин", "gauge", strconv.Itoa(runtime.NumGoroutine()))
}
