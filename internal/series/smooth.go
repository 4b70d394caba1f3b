package series

import (
	"fmt"
	"math"
)

// Smoother suppresses measurement noise in a same-unit, constant-cadence
// series. Implementations keep timestamps and unit and never report a
// better quality than the worst input inside the window.
type Smoother interface {
	Smooth(values []ProcessValue) ([]ProcessValue, error)
}

// ─── Moving average ───────────────────────────────────────────────────────────

// MovingAverage is the arithmetic mean over a centered window of Window points.
type MovingAverage struct {
	Window int
}

// Smooth implements Smoother.
func (m MovingAverage) Smooth(values []ProcessValue) ([]ProcessValue, error) {
	half, err := halfWidth(m.Window)
	if err != nil {
		return nil, fmt.Errorf("moving average: %w", err)
	}
	weights := make([]float64, 2*half+1)
	for i := range weights {
		weights[i] = 1
	}
	return convolve(values, weights)
}

// ─── Gaussian ─────────────────────────────────────────────────────────────────

// Gaussian is a normalized Gaussian convolution over Window points.
type Gaussian struct {
	Window int
	Sigma  float64
}

// Smooth implements Smoother.
func (g Gaussian) Smooth(values []ProcessValue) ([]ProcessValue, error) {
	kernel, err := GaussianKernel(g.Window, g.Sigma)
	if err != nil {
		return nil, err
	}
	return convolve(values, kernel)
}

// GaussianKernel returns weights exp(-k²/(2σ²)) for k in [-⌊w/2⌋, ⌊w/2⌋],
// normalized to sum to 1. Even widths are widened by one.
func GaussianKernel(window int, sigma float64) ([]float64, error) {
	half, err := halfWidth(window)
	if err != nil {
		return nil, fmt.Errorf("gaussian: %w", err)
	}
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("gaussian: sigma must be positive, got %g", sigma)
	}

	kernel := make([]float64, 2*half+1)
	var sum float64
	for i := range kernel {
		k := float64(i - half)
		kernel[i] = math.Exp(-(k * k) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel, nil
}

// ─── Convolution ──────────────────────────────────────────────────────────────

// convolve applies a centered kernel, re-normalizing by the weights that fall
// inside the series so the edges are not biased towards zero.
func convolve(values []ProcessValue, kernel []float64) ([]ProcessValue, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if err := checkUnits(values); err != nil {
		return nil, err
	}

	half := len(kernel) / 2
	out := make([]ProcessValue, len(values))
	for i, v := range values {
		var sum, used float64
		quality := v.Quality
		for k := -half; k <= half; k++ {
			j := i + k
			if j < 0 || j >= len(values) {
				continue
			}
			w := kernel[k+half]
			sum += w * values[j].Quantity.Value
			used += w
			quality = Worst(quality, values[j].Quality)
		}
		out[i] = ProcessValue{
			Quantity:  Quantity{Value: sum / used, Unit: v.Quantity.Unit},
			Quality:   quality,
			Timestamp: v.Timestamp,
		}
	}
	return out, nil
}

func halfWidth(window int) (int, error) {
	if window < 1 {
		return 0, fmt.Errorf("window must be >= 1, got %d", window)
	}
	return window / 2, nil
}
