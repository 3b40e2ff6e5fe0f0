package candles

import (
	"errors"
	"math"
	"sort"

	"supertrend-bot/internal/types"
)

// DefaultCapacity is the number of bars kept by a live session.
const DefaultCapacity = 100

var ErrInvalidSample = errors.New("invalid sample")

// Window is a bounded, time-ordered series of bars of one interval.
// It is not safe for concurrent use; a session owns exactly one.
type Window struct {
	interval Interval
	capacity int
	bars     []types.Bar
}

func NewWindow(interval Interval, capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{interval: interval, capacity: capacity}
}

// Seed replaces the window contents with historical bars.
// Bars are aligned to the interval, merged per bucket and truncated to capacity.
func (w *Window) Seed(history []types.Bar) error {
	w.bars = w.bars[:0]
	sorted := append([]types.Bar(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	for _, b := range sorted {
		if err := w.Update(b); err != nil {
			return err
		}
	}
	return nil
}

// Update folds a sample into the window.
//
// A sample in the same bucket as the last bar extends it (high/low widen,
// close is replaced, volume accumulates). Any other sample becomes a new bar.
// The result is kept sorted by time and truncated to the newest capacity bars.
func (w *Window) Update(sample types.Bar) error {
	if !validSample(sample) {
		return ErrInvalidSample
	}
	sample.Time = w.interval.Align(sample.Time)

	// Late samples land in their own bucket so timestamps stay unique.
	for i := len(w.bars) - 1; i >= 0 && !w.bars[i].Time.Before(sample.Time); i-- {
		if w.bars[i].Time.Equal(sample.Time) {
			merge(&w.bars[i], sample)
			return nil
		}
	}

	w.bars = append(w.bars, sample)
	if n := len(w.bars); n > 1 && w.bars[n-1].Time.Before(w.bars[n-2].Time) {
		sort.SliceStable(w.bars, func(i, j int) bool { return w.bars[i].Time.Before(w.bars[j].Time) })
	}
	if extra := len(w.bars) - w.capacity; extra > 0 {
		w.bars = append(w.bars[:0], w.bars[extra:]...)
	}
	return nil
}

// Bars returns a copy of the window contents, oldest first.
func (w *Window) Bars() []types.Bar {
	return append([]types.Bar(nil), w.bars...)
}

func (w *Window) Len() int { return len(w.bars) }

func (w *Window) Capacity() int { return w.capacity }

func (w *Window) Interval() Interval { return w.interval }

// Last returns the newest bar.
func (w *Window) Last() (types.Bar, bool) {
	if len(w.bars) == 0 {
		return types.Bar{}, false
	}
	return w.bars[len(w.bars)-1], true
}

func merge(dst *types.Bar, sample types.Bar) {
	dst.High = math.Max(dst.High, sample.High)
	dst.Low = math.Min(dst.Low, sample.Low)
	dst.Close = sample.Close
	dst.Volume += sample.Volume
}

func validSample(b types.Bar) bool {
	if b.Time.IsZero() {
		return false
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	if b.Volume < 0 || math.IsNaN(b.Volume) {
		return false
	}
	return b.High >= b.Low
}
