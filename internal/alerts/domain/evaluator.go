package alerts

// CriticalDistance is the distance below which a breach escalates to
// critical, in the same units as sensor readings.
const CriticalDistance = 25

// Verdict is the outcome of evaluating one reading against a threshold.
type Verdict struct {
	Breach   bool
	Severity string
}

// Evaluate applies the breach rule to a single reading. A reading breaches
// only when the measured distance is strictly below the threshold; a distance
// equal to the threshold is normal. Breaches strictly below CriticalDistance
// are critical, all other breaches are high.
func Evaluate(distance, threshold float64) Verdict {
	if distance >= threshold {
		return Verdict{}
	}
	if distance < CriticalDistance {
		return Verdict{Breach: true, Severity: SeverityCritical}
	}
	return Verdict{Breach: true, Severity: SeverityHigh}
}
