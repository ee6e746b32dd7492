package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/san-kum/railsim/internal/dynamo"
	"github.com/san-kum/railsim/internal/storage"
)

// Quantum is the resolution at which extrema are considered distinct.
const Quantum = 1e-5

// Branch is the post-transient motion of one simulation.
type Branch struct {
	Sim    int
	Speed  float64
	Radius float64
	Cant   float64
	Code   dynamo.Code

	// Extrema are the distinct local extrema of the tail, ascending. A
	// settled point has one.
	Extrema   []float64
	Amplitude float64
	Frequency float64
}

// Hunting reports whether the branch keeps oscillating above threshold.
func (b Branch) Hunting(threshold float64) bool {
	return b.Amplitude > threshold
}

// Bifurcation evaluates column over the trailing fraction of every point of
// a run. Points without samples are skipped.
func Bifurcation(meta *storage.RunMetadata, samples *storage.Samples, column string, fraction float64) ([]Branch, error) {
	if samples.Column(column) < 0 {
		return nil, fmt.Errorf("analysis: run %s has no column %q", meta.ID, column)
	}
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("analysis: tail fraction %g outside (0, 1]", fraction)
	}

	var out []Branch
	for _, p := range meta.Points {
		if p.Sim < 0 {
			continue
		}
		ts := samples.Series("t", p.Sim)
		ys := samples.Series(column, p.Sim)
		if len(ys) < 2 {
			continue
		}

		start := int(float64(len(ys)) * (1 - fraction))
		start = min(start, len(ys)-2)
		tail, tt := ys[start:], ts[start:]

		lo, hi := tail[0], tail[0]
		for _, v := range tail {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		dt := (tt[len(tt)-1] - tt[0]) / float64(len(tt)-1)

		out = append(out, Branch{
			Sim:       p.Sim,
			Speed:     p.Speed,
			Radius:    p.Radius,
			Cant:      p.Cant,
			Code:      p.Code,
			Extrema:   extrema(tail),
			Amplitude: (hi - lo) / 2,
			Frequency: DominantFrequency(tail, dt),
		})
	}
	return out, nil
}

// extrema returns the distinct local extrema of data, or its last value
// when it has none.
func extrema(data []float64) []float64 {
	seen := make(map[int64]bool)
	var values []float64
	add := func(v float64) {
		key := int64(math.Round(v / Quantum))
		if !seen[key] {
			seen[key] = true
			values = append(values, v)
		}
	}
	for i := 1; i+1 < len(data); i++ {
		prev, v, next := data[i-1], data[i], data[i+1]
		if (v >= prev && v > next) || (v <= prev && v < next) {
			add(v)
		}
	}
	if len(values) == 0 {
		add(data[len(data)-1])
	}
	sort.Float64s(values)
	return values
}

// CriticalSpeed is the lowest speed of a successful hunting branch. ok is
// false when no branch hunts.
func CriticalSpeed(branches []Branch, threshold float64) (speed float64, ok bool) {
	speed = math.Inf(1)
	for _, b := range branches {
		if b.Code == dynamo.CodeSuccess && b.Hunting(threshold) && b.Speed < speed {
			speed, ok = b.Speed, true
		}
	}
	if !ok {
		return 0, false
	}
	return speed, true
}

// DiagramToASCII plots the extrema of every branch against its speed.
func DiagramToASCII(branches []Branch, width, height int) string {
	if len(branches) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	minV, maxV := math.Inf(1), math.Inf(-1)
	minS, maxS := math.Inf(1), math.Inf(-1)
	for _, b := range branches {
		minS = math.Min(minS, b.Speed)
		maxS = math.Max(maxS, b.Speed)
		for _, v := range b.Extrema {
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
	}
	if math.IsInf(minV, 1) {
		return ""
	}
	if maxV == minV {
		maxV = minV + 1
	}
	if maxS == minS {
		maxS = minS + 1
	}

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}
	for _, b := range branches {
		col := int((b.Speed - minS) / (maxS - minS) * float64(width-1))
		for _, v := range b.Extrema {
			row := height - 1 - int((v-minV)/(maxV-minV)*float64(height-1))
			canvas[row][col] = '•'
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteString("\n")
	}
	return sb.String()
}
