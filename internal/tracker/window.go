package tracker

// stepWindow holds observe results of the step in progress.
type stepWindow struct {
	responseTimes []float64
	successes     int
	failures      int

	// step is the 1-based index of the step being collected
	step int
}

// windowSnapshot is a drained step window.
type windowSnapshot struct {
	step          int
	responseTimes []float64
	successes     int
	failures      int
}

func newStepWindow() stepWindow {
	return stepWindow{step: 1}
}

func (w *stepWindow) success(ms float64) {
	w.successes++
	w.responseTimes = append(w.responseTimes, ms)
}

func (w *stepWindow) failure() {
	w.failures++
}

// drain returns the collected step and starts the next one.
func (w *stepWindow) drain() windowSnapshot {
	snap := windowSnapshot{
		step:          w.step,
		responseTimes: w.responseTimes,
		successes:     w.successes,
		failures:      w.failures,
	}
	w.responseTimes = nil
	w.successes = 0
	w.failures = 0
	w.step++
	return snap
}

func (s windowSnapshot) total() int {
	return s.successes + s.failures
}

// failRate is the failure percentage, 0 without observations.
func (s windowSnapshot) failRate() float64 {
	if s.total() == 0 {
		return 0
	}
	return float64(s.failures) / float64(s.total()) * 100
}
