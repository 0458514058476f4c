package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"fortio.org/fspeed/internal/bincommon"
	"fortio.org/fspeed/pkg/log"
	"fortio.org/fspeed/pkg/stats"
)

// LatencySummary результат команды stats.
type LatencySummary struct {
	Samples int     `json:"samples"`
	Used    int     `json:"used"`
	Ping    float64 `json:"ping"`
	Jitter  float64 `json:"jitter"`
}

// ReadSamples читает числа (через пробелы или по строкам) из in.
func ReadSamples(in io.Reader) ([]float64, error) {
	var res []float64
	scanner := bufio.NewScanner(in)
	linenum := 0
	for scanner.Scan() {
		linenum++
		for _, f := range strings.Fields(scanner.Text()) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("строка %d: %w", linenum, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("строка %d: значение %q не является конечным числом", linenum, f)
			}
			res = append(res, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения: %w", err)
	}
	return res, nil
}

// Summarize считает ping и jitter так же, как этап ping теста,
// значения округлены до 4 знаков.
func Summarize(samples []float64) LatencySummary {
	ping, jitter := stats.TrimmedMeanAndJitter(samples)
	return LatencySummary{
		Samples: len(samples),
		Used:    len(stats.TrimExtremes(samples)),
		Ping:    stats.Round(ping),
		Jitter:  stats.Round(jitter),
	}
}

func statsCmd(in io.Reader, out io.Writer) int {
	samples, err := ReadSamples(in)
	if err != nil {
		return log.FErrf("Не удалось прочитать замеры: %v", err)
	}
	s := Summarize(samples)
	if *bincommon.JSONFlag {
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return log.FErrf("Не удалось создать json: %v", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return 0
	}
	_, _ = fmt.Fprintf(out, "Ping %.0f ms, Jitter %.1f ms (%d samples, %d used)\n", s.Ping, s.Jitter, s.Samples, s.Used)
	c := stats.FromSlice(stats.TrimExtremes(samples))
	c.Print(out, "trimmed ms")
	return 0
}
