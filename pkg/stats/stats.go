// Package stats содержит агрегаторы выборок измерений: Counter (среднее и
// стандартное отклонение за один проход) и отсечение крайних значений для
// выборок задержки.
package stats // import "fortio.org/fspeed/pkg/stats"

import (
	"fmt"
	"io"
	"math"
	"slices"

	"fortio.org/fspeed/pkg/log"
)

// Counter записывает значения и вычисляет статистику
// (количество, среднее, минимум, максимум и стандартное отклонение).
type Counter struct {
	Count        int64
	Min          float64
	Max          float64
	Sum          float64
	sumOfSquares float64
}

// Record записывает одно значение.
func (c *Counter) Record(v float64) {
	isFirst := (c.Count == 0)
	c.Count++
	switch {
	case isFirst:
		c.Min = v
		c.Max = v
	case v < c.Min:
		c.Min = v
	case v > c.Max:
		c.Max = v
	}
	c.Sum += v
	c.sumOfSquares += v * v
}

// Avg возвращает среднее значение, 0 без данных.
func (c *Counter) Avg() float64 {
	if c.Count == 0 {
		return 0.
	}
	return c.Sum / float64(c.Count)
}

// StdDev возвращает стандартное отклонение генеральной совокупности (деление на N).
func (c *Counter) StdDev() float64 {
	if c.Count == 0 {
		return 0.
	}
	fC := float64(c.Count)
	sigma := (c.sumOfSquares - c.Sum*c.Sum/fC) / fC
	// ошибки округления для почти одинаковых значений
	if sigma < 0 {
		if sigma < -1e-9*c.sumOfSquares {
			log.Warnf("Неожиданная отрицательная дисперсия для %+v: %g", c, sigma)
		}
		return 0
	}
	return math.Sqrt(sigma)
}

// Print выводит статистику в out.
func (c *Counter) Print(out io.Writer, msg string) {
	_, _ = fmt.Fprintf(out, "%s : count %d avg %.8g +/- %.4g min %g max %g sum %.9g\n",
		msg, c.Count, c.Avg(), c.StdDev(), c.Min, c.Max, c.Sum)
}

// Log выводит статистику в логгер.
func (c *Counter) Log(msg string) {
	log.LogVf("%s : count %d avg %.8g +/- %.4g min %g max %g sum %.9g",
		msg, c.Count, c.Avg(), c.StdDev(), c.Min, c.Max, c.Sum)
}

// TrimExtremes возвращает отсортированную копию samples без одного наименьшего
// и одного наибольшего значения. Для менее чем 3 значений результат пуст.
// Исходный слайс не меняется.
func TrimExtremes(samples []float64) []float64 {
	if len(samples) < 3 {
		return []float64{}
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	return sorted[1 : len(sorted)-1]
}

// FromSlice возвращает Counter по всем значениям v.
func FromSlice(v []float64) Counter {
	var c Counter
	for _, x := range v {
		c.Record(x)
	}
	return c
}

// TrimmedMeanAndJitter вычисляет среднее и стандартное отклонение выборки
// после отсечения крайних значений (см. TrimExtremes). Джиттер 0, если
// осталось меньше 2 значений; оба 0, если не осталось ничего.
func TrimmedMeanAndJitter(samples []float64) (mean, jitter float64) {
	c := FromSlice(TrimExtremes(samples))
	if c.Count == 0 {
		return 0, 0
	}
	if c.Count > 1 {
		jitter = c.StdDev()
	}
	return c.Avg(), jitter
}

// RoundToDigits округляет v до digits знаков после запятой.
// Последняя цифра отрицательных чисел округляется неверно.
func RoundToDigits(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Floor(v*p+0.5) / p
}

// Round округляет до 4 знаков после запятой.
func Round(v float64) float64 {
	return RoundToDigits(v, 4)
}
