package series

// Nowcast extrapolates one grid step past the latest value with single-step
// exponential smoothing: alpha*latest + (1-alpha)*secondLatest.
//
// The grid step is the spacing of the two most recent values. ok is false
// with fewer than two values, alpha outside [0, 1] or a non-positive step.
func Nowcast(values []ProcessValue, alpha float64) (ProcessValue, bool) {
	if len(values) < 2 || !(alpha >= 0 && alpha <= 1) {
		return ProcessValue{}, false
	}
	latest := values[len(values)-1]
	previous := values[len(values)-2]

	step := latest.Timestamp.Sub(previous.Timestamp)
	if step <= 0 {
		return ProcessValue{}, false
	}

	value := alpha*latest.Quantity.Value + (1-alpha)*previous.Quantity.Value
	return ProcessValue{
		Quantity:  Quantity{Value: value, Unit: latest.Quantity.Unit},
		Quality:   QualityUncertain,
		Timestamp: latest.Timestamp.Add(step),
	}, true
}
