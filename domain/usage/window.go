package usage

import "time"

// Prune drops entries older than retention relative to now.
// Entries are kept in arrival order, so the cut is a prefix.
func Prune(window []WindowEntry, now time.Time, retention time.Duration) []WindowEntry {
	cutoff := now.Add(-retention)
	i := 0
	for i < len(window) && window[i].Timestamp.Before(cutoff) {
		i++
	}
	return window[i:]
}

// ErrorRate returns errors/total over the window, 0 for an empty window.
func ErrorRate(window []WindowEntry) float64 {
	if len(window) == 0 {
		return 0
	}
	var errs int
	for _, e := range window {
		if !e.Success {
			errs++
		}
	}
	return float64(errs) / float64(len(window))
}

// MeanLatencyMs returns the mean latency over the window, 0 for an empty window.
func MeanLatencyMs(window []WindowEntry) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum int64
	for _, e := range window {
		sum += e.LatencyMs
	}
	return float64(sum) / float64(len(window))
}
