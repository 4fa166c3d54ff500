package observers

import "github.com/itsneelabh/selfheal/pkg/ports"

// Severity is the hang watchdog's escalation level (spec.md §4.5).
type Severity string

const (
	Suspicious Severity = "suspicious"
	LikelyHang Severity = "likely_hang"
	High       Severity = "high"
)

// WatchdogEvent is emitted by End when an attempt's resource usage tripped
// one of the watchdog's thresholds.
type WatchdogEvent struct {
	AttemptKey       string   `json:"attempt_key"`
	Severity         Severity `json:"severity"`
	ConsecutiveCount int      `json:"consecutive_count"`
	Reason           string   `json:"reason"`
}

// Aggregate summarizes watchdog activity across a session (spec.md §4.9
// "watchdog aggregation"), surfaced in process_attempt's Extras.
type Aggregate struct {
	TotalTriggered  int      `json:"total_triggered"`
	HighestSeverity Severity `json:"highest_severity,omitempty"`
}

// WatchdogConfig configures the trigger thresholds (spec.md §6).
type WatchdogConfig struct {
	WallThresholdMS    int64
	CPUThresholdPercent int64
}

// DefaultWatchdogConfig returns the policy defaults from spec.md §6.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{WallThresholdMS: 5000, CPUThresholdPercent: 90}
}

// Watchdog tracks consecutive resource/time anomalies across the attempts
// of a single session and escalates severity the longer they persist
// (spec.md §4.5).
type Watchdog struct {
	cfg             WatchdogConfig
	consecutive     int
	totalTriggered  int
	highestSeverity Severity
	open            map[string]struct{}
}

// NewWatchdog creates a Watchdog with the given config.
func NewWatchdog(cfg WatchdogConfig) *Watchdog {
	return &Watchdog{cfg: cfg, open: make(map[string]struct{})}
}

// Begin marks attemptKey as in flight. The watchdog itself doesn't measure
// wall time directly — the sandbox port reports observed resource usage,
// which End evaluates against the configured thresholds — so Begin only
// records attemptKey as open, and End removes it; mismatched pairs are not
// checked.
func (w *Watchdog) Begin(attemptKey string) {
	w.open[attemptKey] = struct{}{}
}

// End evaluates the sandbox result for attemptKey against the watchdog's
// thresholds, returning a WatchdogEvent when triggered (nil otherwise), and
// escalating the consecutive-trigger severity per spec.md §4.5.
func (w *Watchdog) End(attemptKey string, result ports.SandboxResult) *WatchdogEvent {
	delete(w.open, attemptKey)

	observed := result.ResourceUsage.Observed
	triggered := observed.WallMS > w.cfg.WallThresholdMS ||
		observed.CPUPercent >= w.cfg.CPUThresholdPercent ||
		observed.LimitsHit.Time || observed.LimitsHit.Memory || observed.LimitsHit.CPU

	if !triggered {
		w.consecutive = 0
		return nil
	}

	w.consecutive++
	w.totalTriggered++

	var severity Severity
	switch {
	case w.consecutive >= 3:
		severity = High
	case w.consecutive == 2:
		severity = LikelyHang
	default:
		severity = Suspicious
	}
	if severityRank(severity) > severityRank(w.highestSeverity) {
		w.highestSeverity = severity
	}

	return &WatchdogEvent{
		AttemptKey:       attemptKey,
		Severity:         severity,
		ConsecutiveCount: w.consecutive,
		Reason:           "resource_or_time_threshold_exceeded",
	}
}

func severityRank(s Severity) int {
	switch s {
	case High:
		return 3
	case LikelyHang:
		return 2
	case Suspicious:
		return 1
	default:
		return 0
	}
}

// Summary returns the aggregated watchdog activity for the session so far.
func (w *Watchdog) Summary() Aggregate {
	return Aggregate{TotalTriggered: w.totalTriggered, HighestSeverity: w.highestSeverity}
}

// ConsecutiveCount exposes the current consecutive-trigger streak; any
// attempt that does not trigger resets it to 0.
func (w *Watchdog) ConsecutiveCount() int {
	return w.consecutive
}
