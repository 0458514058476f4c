package stats

import (
	"bytes"
	"math"
	"testing"

	"fortio.org/assert"
)

func TestCounter(t *testing.T) {
	c := Counter{}
	var b bytes.Buffer
	c.Print(&b, "empty")
	assert.Equal(t, "empty : count 0 avg 0 +/- 0 min 0 max 0 sum 0\n", b.String())
	b.Reset()
	c.Record(10)
	c.Record(20)
	c.Record(30)
	assert.Equal(t, int64(3), c.Count)
	assert.Equal(t, 20., c.Avg())
	assert.Equal(t, 10., c.Min)
	assert.Equal(t, 30., c.Max)
	// sqrt(200/3)
	assert.True(t, math.Abs(c.StdDev()-8.16496580927726) < 1e-9, "stddev")
	c.Print(&b, "test1")
	assert.Equal(t, "test1 : count 3 avg 20 +/- 8.165 min 10 max 30 sum 60\n", b.String())
	assert.Equal(t, 0., FromSlice([]float64{5, 5, 5}).StdDev())
}

func TestTrimExtremes(t *testing.T) {
	in := []float64{30, 5, 10, 100, 20}
	out := TrimExtremes(in)
	assert.Equal(t, []float64{10, 20, 30}, out)
	// исходный порядок сохранен
	assert.Equal(t, []float64{30, 5, 10, 100, 20}, in)
	assert.Equal(t, 0, len(TrimExtremes([]float64{1, 2})))
	assert.Equal(t, 0, len(TrimExtremes(nil)))
	assert.Equal(t, []float64{2}, TrimExtremes([]float64{3, 1, 2}))
}

func TestTrimmedMeanAndJitter(t *testing.T) {
	tests := []struct {
		name   string
		in     []float64
		mean   float64
		jitter float64
	}{
		{"none", nil, 0, 0},
		{"two", []float64{10, 20}, 0, 0},
		{"three", []float64{10, 20, 30}, 20, 0},
		{"equal", []float64{15, 15, 15, 15}, 15, 0},
		{"spread", []float64{30, 5, 10, 100, 20}, 20, 8.165},
	}
	for _, tst := range tests {
		mean, jitter := TrimmedMeanAndJitter(tst.in)
		assert.Equal(t, tst.mean, mean, tst.name)
		assert.Equal(t, tst.jitter, RoundToDigits(jitter, 3), tst.name)
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.2346, Round(1.23456))
	assert.Equal(t, 8.2, RoundToDigits(8.16496, 1))
	assert.Equal(t, 100., RoundToDigits(99.96, 1))
}
