package series

import (
	"fmt"
	"sort"
	"time"
)

// MaxGridPoints caps the length of a regularized series.
const MaxGridPoints = 100_000

// Regularize resamples raw onto a grid running from the earliest to the latest
// timestamp in increments of step.
//
// A grid point with an input at exactly that instant keeps the input as is.
// Any other grid point carries the last known value forward, unit included,
// with QualityUncertain. The input need not be sorted; it is not modified.
// Fewer than two inputs yield a copy of the input. A span that needs more
// than MaxGridPoints grid points fails with ErrSpanTooLarge.
func Regularize(raw []ProcessValue, step time.Duration) ([]ProcessValue, error) {
	if step <= 0 {
		return nil, ErrInvalidStep
	}
	if len(raw) == 0 {
		return nil, nil
	}

	sorted := make([]ProcessValue, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if len(sorted) == 1 {
		return sorted, nil
	}

	first := sorted[0].Timestamp
	last := sorted[len(sorted)-1].Timestamp
	n, err := gridPoints(first, last, step)
	if err != nil {
		return nil, err
	}
	out := make([]ProcessValue, 0, n)

	var (
		next  int // index of the first input not yet consumed
		known *ProcessValue
	)
	for ts := first; !ts.After(last); ts = ts.Add(step) {
		var exact *ProcessValue
		for next < len(sorted) && !sorted[next].Timestamp.After(ts) {
			v := sorted[next]
			known = &v
			if v.Timestamp.Equal(ts) {
				exact = &v
			}
			next++
		}

		switch {
		case exact != nil:
			out = append(out, *exact)
		case known != nil:
			out = append(out, ProcessValue{
				Quantity:  known.Quantity,
				Quality:   QualityUncertain,
				Timestamp: ts,
			})
		default:
			out = append(out, ProcessValue{Quality: QualityBad, Timestamp: ts})
		}
	}
	return out, nil
}

// gridPoints counts the grid instants in [first, last]. Sub saturates on
// extreme spans, so those are rejected before any conversion to int.
func gridPoints(first, last time.Time, step time.Duration) (int, error) {
	span := last.Sub(first)
	if !first.Add(span).Equal(last) || span/step >= MaxGridPoints {
		return 0, fmt.Errorf("%w: %s at %s", ErrSpanTooLarge, span, step)
	}
	return int(span/step) + 1, nil
}
