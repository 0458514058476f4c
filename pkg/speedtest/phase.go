package speedtest

import (
	"fmt"
	"strings"
)

// Phase этап теста.
type Phase int

const (
	// Idle тест не запущен (или остановлен).
	Idle Phase = iota
	// Ping измерение задержки и джиттера.
	Ping
	// Download измерение скорости загрузки.
	Download
	// Upload измерение скорости выгрузки.
	Upload
	// Complete все этапы завершены.
	Complete
)

var phaseNames = [...]string{"idle", "ping", "download", "upload", "complete"}

var phaseLabels = [...]string{
	"Ready to Test",
	"Testing Latency...",
	"Download Speed",
	"Upload Speed",
	"Test Complete",
}

func (p Phase) valid() bool {
	return p >= Idle && p <= Complete
}

func (p Phase) String() string {
	if !p.valid() {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Label возвращает подпись этапа для индикатора.
func (p Phase) Label() string {
	if !p.valid() {
		return phaseLabels[Idle]
	}
	return phaseLabels[p]
}

// Active возвращает true для этапов, на которых идут измерения.
func (p Phase) Active() bool {
	return p != Idle && p != Complete
}

// MarshalText для JSON (фаза сериализуется именем).
func (p Phase) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText обратная операция к MarshalText.
func (p *Phase) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for i, n := range phaseNames {
		if n == s {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", s)
}
