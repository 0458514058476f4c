package speedtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"fortio.org/fspeed/pkg/log"
	"github.com/google/uuid"
)

// State наблюдаемое состояние Runner.
type State struct {
	RunID string `json:"runId,omitempty"`
	Phase Phase  `json:"phase"`
	// Progress процент текущего этапа.
	Progress float64 `json:"progress"`
	// CurrentSpeed мгновенная скорость в Mbps.
	CurrentSpeed float64   `json:"currentSpeed"`
	Results      Results   `json:"results"`
	StartTime    time.Time `json:"startTime,omitzero"`
	// LastError последняя ошибка, кроме отмены.
	LastError string `json:"lastError,omitempty"`
}

// IsRunning true пока этап не idle и не complete.
func (s State) IsRunning() bool {
	return s.Phase.Active()
}

// DisplaySpeed значение для индикатора: итоговая загрузка после завершения,
// иначе мгновенная скорость.
func (s State) DisplaySpeed() float64 {
	if s.Phase == Complete {
		return s.Results.Download
	}
	return s.CurrentSpeed
}

// Report полный результат одного запуска.
type Report struct {
	RunID     string          `json:"runId"`
	Target    string          `json:"target"`
	StartTime time.Time       `json:"startTime"`
	Duration  time.Duration   `json:"durationNs"`
	Results   Results         `json:"results"`
	Quality   Quality         `json:"quality"`
	Ping      *PingResult     `json:"pingDetail,omitempty"`
	Download  *TransferResult `json:"downloadDetail,omitempty"`
	Upload    *TransferResult `json:"uploadDetail,omitempty"`
}

// Runner последовательно выполняет этапы теста и хранит состояние.
// Одновременно выполняется не больше одного теста.
type Runner struct {
	opts *Options

	// notifyMu упорядочивает изменения состояния и их доставку наблюдателям,
	// берётся до mu.
	notifyMu  sync.Mutex
	mu        sync.Mutex
	state     State
	running   bool
	gen       uint64
	cancel    context.CancelFunc
	observers []func(State)
	runs      int64
	last      *Report
	wg        sync.WaitGroup
}

// NewRunner создаёт Runner. Опции проверяются при каждом запуске.
func NewRunner(o *Options) *Runner {
	if o == nil {
		o = DefaultOptions()
	}
	return &Runner{opts: o}
}

// Options возвращает базовые опции.
func (r *Runner) Options() *Options {
	return r.opts
}

// OnChange добавляет наблюдателя, вызываемого с копией состояния при каждом изменении.
// Наблюдатели получают состояния строго в порядке изменений, поэтому не должны
// блокироваться надолго и не должны вызывать Start, Run или Stop.
func (r *Runner) OnChange(fn func(State)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Snapshot возвращает копию текущего состояния.
func (r *Runner) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Runs возвращает число запущенных тестов.
func (r *Runner) Runs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// Running возвращает true пока тест выполняется (до Stop или завершения).
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastReport возвращает отчёт последнего завершённого теста или nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

type run struct {
	ctx     context.Context //nolint:containedctx // живёт ровно один запуск
	cancel  context.CancelFunc
	gen     uint64
	id      string
	sampler *Sampler
	start   time.Time
}

// runReporter публикует прогресс этапа, пока запуск актуален.
type runReporter struct {
	r   *Runner
	gen uint64
}

func (rr runReporter) Progress(pct float64) {
	rr.r.update(rr.gen, func(s *State) { s.Progress = pct })
}

func (rr runReporter) Speed(mbps float64) {
	rr.r.update(rr.gen, func(s *State) { s.CurrentSpeed = mbps })
}

// update применяет fn к состоянию если gen это текущий запуск, затем уведомляет наблюдателей.
func (r *Runner) update(gen uint64, fn func(s *State)) bool {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.mu.Lock()
	if gen != r.gen || !r.running {
		r.mu.Unlock()
		return false
	}
	fn(&r.state)
	st := r.state
	obs := r.observers
	r.mu.Unlock()
	for _, o := range obs {
		o(st)
	}
	return true
}

func (r *Runner) notify() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.deliver()
}

// deliver отправляет текущее состояние наблюдателям, вызывается под notifyMu.
func (r *Runner) deliver() {
	r.mu.Lock()
	st := r.state
	obs := r.observers
	r.mu.Unlock()
	for _, o := range obs {
		o(st)
	}
}

func (r *Runner) begin(ctx context.Context, mods []OptionFunc) (*run, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o := r.opts.Clone()
	for _, m := range mods {
		m(o)
	}
	// Init только проверяет опции, без сети
	sampler, err := NewSampler(o)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	rctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.gen++
	r.runs++
	r.cancel = cancel
	ru := &run{ctx: rctx, cancel: cancel, gen: r.gen, id: uuid.NewString(), sampler: sampler, start: time.Now()}
	r.state = State{RunID: ru.id, Phase: Idle, StartTime: ru.start}
	r.mu.Unlock()
	r.notify()
	log.S(log.Info, "Запуск теста скорости", log.Str("run_id", ru.id), log.Str("target", o.BaseURL))
	return ru, nil
}

func (r *Runner) finish(ru *run) {
	ru.cancel()
	r.mu.Lock()
	if r.gen == ru.gen {
		r.running = false
		r.cancel = nil
	}
	r.mu.Unlock()
}

// Run выполняет тест до конца и возвращает отчёт. Stop() или отмена ctx
// прерывают тест с ErrAborted. Пока выполняется тест, Run возвращает ErrAlreadyRunning.
func (r *Runner) Run(ctx context.Context, mods ...OptionFunc) (*Report, error) {
	ru, err := r.begin(ctx, mods)
	if err != nil {
		return nil, err
	}
	return r.execute(ru)
}

// Start запускает тест в фоне и возвращает его идентификатор.
// Дождаться завершения можно через Wait.
func (r *Runner) Start(ctx context.Context, mods ...OptionFunc) (string, error) {
	ru, err := r.begin(ctx, mods)
	if err != nil {
		return "", err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.execute(ru)
	}()
	return ru.id, nil
}

// Wait ждёт завершения фоновых запусков.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop отменяет текущий тест и возвращает состояние в idle; уже полученные
// результаты сохраняются. Возвращает true, если тест выполнялся.
func (r *Runner) Stop() bool {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.mu.Lock()
	wasRunning := r.running
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.running = false
	// следующие обновления от прерванного запуска игнорируются
	r.gen++
	r.state.Phase = Idle
	r.state.Progress = 0
	r.state.CurrentSpeed = 0
	r.mu.Unlock()
	r.deliver()
	if wasRunning {
		log.Infof("Тест скорости остановлен")
	}
	return wasRunning
}

func (r *Runner) enterPhase(ru *run, p Phase) error {
	if !r.update(ru.gen, func(s *State) {
		s.Phase = p
		s.Progress = 0
	}) {
		return ErrAborted
	}
	return nil
}

func (r *Runner) execute(ru *run) (*Report, error) {
	defer r.finish(ru)
	ctx := ru.ctx
	rep := runReporter{r: r, gen: ru.gen}
	report := &Report{RunID: ru.id, Target: ru.sampler.Options().BaseURL, StartTime: ru.start}
	var err error

	if err = r.enterPhase(ru, Ping); err != nil {
		return r.abortOrFail(ru, report, err)
	}
	if report.Ping, err = ru.sampler.Ping(ctx, rep); err != nil {
		return r.abortOrFail(ru, report, err)
	}
	report.Results.Ping, report.Results.Jitter = report.Ping.Ping, report.Ping.Jitter
	r.update(ru.gen, func(s *State) {
		s.Results.Ping = report.Ping.Ping
		s.Results.Jitter = report.Ping.Jitter
	})
	if err = pause(ctx, ru.sampler.Options().StagePause); err != nil {
		return r.abortOrFail(ru, report, err)
	}

	if err = r.enterPhase(ru, Download); err != nil {
		return r.abortOrFail(ru, report, err)
	}
	if report.Download, err = ru.sampler.Download(ctx, rep); err != nil {
		return r.abortOrFail(ru, report, err)
	}
	report.Results.Download = report.Download.Mbps
	r.update(ru.gen, func(s *State) { s.Results.Download = report.Download.Mbps })
	if err = pause(ctx, ru.sampler.Options().StagePause); err != nil {
		return r.abortOrFail(ru, report, err)
	}

	if err = r.enterPhase(ru, Upload); err != nil {
		return r.abortOrFail(ru, report, err)
	}
	if report.Upload, err = ru.sampler.Upload(ctx, rep); err != nil {
		return r.abortOrFail(ru, report, err)
	}
	report.Results.Upload = report.Upload.Mbps
	report.Quality = Rate(report.Results.Download)
	report.Duration = time.Since(ru.start)
	ok := r.update(ru.gen, func(s *State) {
		s.CurrentSpeed = report.Upload.Mbps
		s.Results.Upload = report.Upload.Mbps
		s.Phase = Complete
		s.Progress = 100
	})
	if !ok {
		return r.abortOrFail(ru, report, ErrAborted)
	}
	r.mu.Lock()
	r.last = report
	r.mu.Unlock()
	log.S(log.Info, "Тест скорости завершён", log.Str("run_id", ru.id),
		log.Float64("ping_ms", report.Results.Ping), log.Float64("jitter_ms", report.Results.Jitter),
		log.Float64("download_mbps", report.Results.Download), log.Float64("upload_mbps", report.Results.Upload),
		log.Str("quality", report.Quality.Rating))
	return report, nil
}

// abortOrFail завершает запуск: отмена (Stop или ctx) приводит к idle без
// логирования, прочие ошибки логируются и сохраняются в LastError.
func (r *Runner) abortOrFail(ru *run, report *Report, err error) (*Report, error) {
	report.Duration = time.Since(ru.start)
	if errors.Is(err, ErrAborted) || ru.ctx.Err() != nil {
		// отмена внешнего ctx выглядит так же как Stop()
		r.update(ru.gen, func(s *State) {
			s.Phase = Idle
			s.Progress = 0
			s.CurrentSpeed = 0
		})
		return report, ErrAborted
	}
	log.S(log.Error, "Ошибка теста скорости", log.Str("run_id", ru.id), log.Err(err))
	r.update(ru.gen, func(s *State) {
		s.Phase = Idle
		s.Progress = 0
		s.CurrentSpeed = 0
		s.LastError = err.Error()
	})
	return report, err
}
