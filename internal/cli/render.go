package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"fortio.org/fspeed/pkg/speedtest"
)

// Renderer выводит прогресс теста текстом: строка на каждый этап и
// не чаще MinInterval внутри этапа.
type Renderer struct {
	MinInterval time.Duration
	// Width ширина полосы индикатора в символах.
	Width int

	out      io.Writer
	maxSpeed float64
	mu       sync.Mutex
	phase    speedtest.Phase
	last     time.Time
}

// NewRenderer создаёт Renderer для шкалы maxSpeed Mbps.
func NewRenderer(out io.Writer, maxSpeed float64) *Renderer {
	return &Renderer{MinInterval: 250 * time.Millisecond, Width: 30, out: out, maxSpeed: maxSpeed}
}

// Attach подписывает Renderer на изменения состояния r.
func (p *Renderer) Attach(r *speedtest.Runner) {
	r.OnChange(p.Update)
}

// Bar рисует полосу заполненную на pct процентов.
func Bar(pct float64, width int) string {
	pct = min(max(pct, 0), 100)
	n := int(pct / 100 * float64(width))
	return "[" + strings.Repeat("#", n) + strings.Repeat(".", width-n) + "]"
}

// Line форматирует одну строку прогресса.
func (p *Renderer) Line(st speedtest.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-18s %s %3.0f%%", st.Phase.Label(), Bar(st.Progress, p.Width), st.Progress)
	switch st.Phase { //nolint:exhaustive // остальные этапы без скорости
	case speedtest.Ping:
		if st.Results.Ping > 0 {
			fmt.Fprintf(&sb, "  %.0f ms", st.Results.Ping)
		}
	case speedtest.Download, speedtest.Upload:
		fmt.Fprintf(&sb, "  %6.1f Mbps (%.0f%% of %g)", st.CurrentSpeed,
			speedtest.GaugePercent(st.CurrentSpeed, p.maxSpeed), p.maxSpeed)
	case speedtest.Complete:
		fmt.Fprintf(&sb, "  %s", st.Results)
	}
	return sb.String()
}

// Update наблюдатель состояния.
func (p *Renderer) Update(st speedtest.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	changed := st.Phase != p.phase
	if !changed && now.Sub(p.last) < p.MinInterval {
		return
	}
	p.phase = st.Phase
	p.last = now
	if st.Phase == speedtest.Idle {
		return
	}
	_, _ = fmt.Fprintln(p.out, p.Line(st))
}
