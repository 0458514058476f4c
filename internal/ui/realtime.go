package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"fortio.org/duration"
	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/speedtest"
)

// Пути API виджета относительно префикса.
const (
	StartPath  = "api/start"
	StopPath   = "api/stop"
	StatusPath = "api/status"
	EventsPath = "api/events"
)

// StatusReply состояние виджета в том виде, в каком его рисует клиент.
type StatusReply struct {
	RunID        string             `json:"runId,omitempty"`
	Phase        speedtest.Phase    `json:"phase"`
	Label        string             `json:"label"`
	Running      bool               `json:"running"`
	Progress     float64            `json:"progress"`
	CurrentSpeed float64            `json:"currentSpeed"`
	DisplaySpeed float64            `json:"displaySpeed"`
	GaugePercent float64            `json:"gaugePercent"`
	Results      speedtest.Results  `json:"results"`
	Quality      *speedtest.Quality `json:"quality,omitempty"`
	LastError    string             `json:"lastError,omitempty"`
}

// StartReply ответ на POST api/start.
type StartReply struct {
	RunID   string `json:"runId,omitempty"`
	Message string `json:"message"`
}

// Server отдаёт API виджета поверх одного speedtest.Runner.
type Server struct {
	runner   *speedtest.Runner
	maxSpeed float64
	// tune применяется к опциям каждого запуска до параметров запроса.
	tune speedtest.OptionFunc

	mu          sync.Mutex
	subscribers []chan StatusReply
}

// NewServer создаёт Server; maxSpeed шкала индикатора (<= 0 означает speedtest.DefaultMaxSpeed).
func NewServer(r *speedtest.Runner, maxSpeed float64) *Server {
	if maxSpeed <= 0 {
		maxSpeed = speedtest.DefaultMaxSpeed
	}
	s := &Server{runner: r, maxSpeed: maxSpeed}
	r.OnChange(s.notifySubscribers)
	return s
}

// Runner возвращает обслуживаемый Runner.
func (s *Server) Runner() *speedtest.Runner {
	return s.runner
}

// Reply переводит состояние Runner в ответ API.
func (s *Server) Reply(st speedtest.State, running bool) StatusReply {
	disp := st.DisplaySpeed()
	rep := StatusReply{
		RunID:        st.RunID,
		Phase:        st.Phase,
		Label:        st.Phase.Label(),
		Running:      running,
		Progress:     st.Progress,
		CurrentSpeed: st.CurrentSpeed,
		DisplaySpeed: disp,
		GaugePercent: speedtest.GaugePercent(disp, s.maxSpeed),
		Results:      st.Results,
		LastError:    st.LastError,
	}
	if st.Phase == speedtest.Complete {
		q := speedtest.Rate(st.Results.Download)
		rep.Quality = &q
	}
	return rep
}

func (s *Server) current() StatusReply {
	return s.Reply(s.runner.Snapshot(), s.runner.Running())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errf("Ошибка записи json ответа: %v", err)
	}
}

// Start обрабатывает POST api/start. Необязательный параметр stage-pause
// (например "250ms") переопределяет паузу между этапами для этого запуска.
func (s *Server) Start(w http.ResponseWriter, r *http.Request) {
	log.LogRequest(r, "api start")
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var mods []speedtest.OptionFunc
	if s.tune != nil {
		mods = append(mods, s.tune)
	}
	if sp := r.FormValue("stage-pause"); sp != "" {
		d, err := duration.Parse(sp)
		if err != nil || d < 0 {
			http.Error(w, fmt.Sprintf("invalid stage-pause %q", sp), http.StatusBadRequest)
			return
		}
		mods = append(mods, func(o *speedtest.Options) { o.StagePause = d })
	}
	// тест живёт дольше запроса, его отменяет только api/stop
	id, err := s.runner.Start(context.Background(), mods...)
	switch {
	case errors.Is(err, speedtest.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, StartReply{Message: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, StartReply{Message: err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, StartReply{RunID: id, Message: "started"})
	}
}

// Stop обрабатывает POST api/stop.
func (s *Server) Stop(w http.ResponseWriter, r *http.Request) {
	log.LogRequest(r, "api stop")
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	msg := "not running"
	if s.runner.Stop() {
		msg = "stopped"
	}
	writeJSON(w, http.StatusOK, StartReply{Message: msg})
}

// Status обрабатывает GET api/status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	log.LogVf("api status %v", r.URL)
	writeJSON(w, http.StatusOK, s.current())
}

func (s *Server) notifySubscribers(st speedtest.State) {
	rep := s.Reply(st, st.IsRunning())
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- rep:
			continue
		default:
		}
		if rep.Phase.Active() {
			// канал полон, промежуточное обновление можно пропустить
			continue
		}
		// конечное состояние должно дойти: вытесняем самое старое
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- rep:
		default:
		}
	}
}

func (s *Server) addSubscriber() chan StatusReply {
	ch := make(chan StatusReply, 10)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Server) removeSubscriber(ch chan StatusReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.subscribers {
		if c == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
}

// Subscribers число подключённых SSE клиентов.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Events обрабатывает GET api/events: поток Server-Sent Events с состоянием.
// Поток закрывается после завершения или остановки наблюдаемого теста.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.addSubscriber()
	defer s.removeSubscriber(ch)
	cur := s.current()
	sendEvent(w, flusher, cur)
	seenActive := cur.Phase.Active()
	log.LogVf("SSE клиент подключён %s", r.RemoteAddr)
	for {
		select {
		case rep := <-ch:
			sendEvent(w, flusher, rep)
			if rep.Phase.Active() {
				seenActive = true
				continue
			}
			if rep.Phase == speedtest.Complete || (seenActive && rep.Phase == speedtest.Idle) {
				log.LogVf("SSE закрыт, этап %s", rep.Phase)
				return
			}
		case <-r.Context().Done():
			log.LogVf("SSE клиент отключился %s", r.RemoteAddr)
			return
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, rep StatusReply) {
	data, err := json.Marshal(rep)
	if err != nil {
		log.Errf("Ошибка сериализации состояния: %v", err)
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// Register добавляет обработчики в mux под префиксом (например "/" или "/speed/").
func (s *Server) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc(prefix+StartPath, s.Start)
	mux.HandleFunc(prefix+StopPath, s.Stop)
	mux.HandleFunc(prefix+StatusPath, s.Status)
	mux.HandleFunc(prefix+EventsPath, s.Events)
}
