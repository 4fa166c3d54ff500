// Package confidence implements the Confidence Scorer (spec.md §4.1): it
// turns raw advisor logits plus historical signals into a calibrated
// ConfidenceScore, optionally refined by a beta-calibration ring once enough
// samples have accumulated.
package confidence

import (
	"math"
	"sync"

	"github.com/itsneelabh/selfheal/internal/errs"
	"github.com/itsneelabh/selfheal/pkg/errclass"
)

// Method names the calibration approach used to produce a score.
type Method string

const (
	MethodTemperature Method = "temperature"
	MethodBeta        Method = "beta"
)

// Score is the calibrated confidence for one attempt (spec.md §3
// ConfidenceScore).
type Score struct {
	Overall           float64 `json:"overall"`
	Syntax            float64 `json:"syntax"`
	Logic             float64 `json:"logic"`
	Risk              float64 `json:"risk"`
	CalibrationMethod Method  `json:"calibration_method"`
}

// HistoryHint supplies the component factors the raw softmax confidence is
// multiplied by. A nil hint is treated as fully neutral (every factor 1.0)
// so an attempt with no prior signal is judged purely on the logits.
type HistoryHint struct {
	HistoricalSuccessRate float64
	PatternSimilarity     float64
	Complexity            float64
	TestCoverage          float64
}

func (h *HistoryHint) normalized() (successRate, similarity, complexityPenalty, coverageBoost float64) {
	if h == nil {
		return 1, 1, 1, 1
	}
	successRate = clamp01(h.HistoricalSuccessRate)
	similarity = clamp01(h.PatternSimilarity)
	complexity := h.Complexity
	if complexity <= 0 {
		complexity = 1
	}
	complexityPenalty = math.Max(0.1, 1-0.1*(complexity-1))
	coverageBoost = 0.5 + 0.5*clamp01(h.TestCoverage)
	return
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// calibrationSample is one (confidence, correct) pair recorded after an
// attempt resolves, used to drive beta calibration.
type calibrationSample struct {
	confidence float64
	correct    bool
}

const (
	ringCap           = 1000
	betaMinSamples    = 10
	defaultTemperature = 1.0
)

// Scorer computes calibrated confidence and maintains a per-class bounded
// ring of past (confidence, correct) outcomes for beta calibration
// (spec.md §4.1).
type Scorer struct {
	mu          sync.Mutex
	temperature float64
	rings       map[errclass.Class][]calibrationSample
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTemperature overrides the default temperature-scaling constant T.
func WithTemperature(t float64) Option {
	return func(s *Scorer) {
		if t > 0 {
			s.temperature = t
		}
	}
}

// NewScorer creates a Scorer with default temperature T=1.0.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		temperature: defaultTemperature,
		rings:       make(map[errclass.Class][]calibrationSample),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes a calibrated ConfidenceScore from raw advisor logits and
// historical signals (spec.md §4.1). Empty logits fail with ErrInvalidInput;
// non-finite logit values are treated as zero.
func (s *Scorer) Score(logits []float64, class errclass.Class, history *HistoryHint) (Score, error) {
	if len(logits) == 0 {
		return Score{}, errs.New("confidence.Score", "invalid_input", errs.ErrEmptyLogits)
	}

	pMax := softmaxMax(logits, s.temperature)

	syntaxRaw := pMax
	if class == errclass.Syntax {
		syntaxRaw = math.Min(1.0, 1.2*pMax)
	}

	logicRaw := pMax
	if class == errclass.Logic || class == errclass.Runtime {
		logicRaw = 0.9 * pMax
	}

	successRate, similarity, complexityPenalty, coverageBoost := history.normalized()
	factor := successRate * similarity * complexityPenalty * coverageBoost

	syntaxConf := clamp01(syntaxRaw * factor)
	logicConf := clamp01(logicRaw * factor)

	var base float64
	switch class {
	case errclass.Syntax:
		base = syntaxConf
	case errclass.Logic, errclass.Runtime:
		base = logicConf
	default:
		base = (syntaxConf + logicConf) / 2
	}

	method := MethodTemperature
	overall := clamp01(base)

	s.mu.Lock()
	ring := s.rings[class]
	s.mu.Unlock()
	if len(ring) >= betaMinSamples {
		empirical := empiricalSuccessRate(ring)
		overall = clamp01(0.7*base + 0.3*empirical)
		method = MethodBeta
	}

	return Score{
		Overall:           overall,
		Syntax:            syntaxConf,
		Logic:             logicConf,
		Risk:              clamp01(1 - overall),
		CalibrationMethod: method,
	}, nil
}

// RecordOutcome appends a (confidence, correct) sample to the class's
// calibration ring, evicting the oldest sample once the ring exceeds its
// 1000-entry cap.
func (s *Scorer) RecordOutcome(class errclass.Class, confidence float64, correct bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring := s.rings[class]
	ring = append(ring, calibrationSample{confidence: clamp01(confidence), correct: correct})
	if len(ring) > ringCap {
		ring = ring[len(ring)-ringCap:]
	}
	s.rings[class] = ring
}

func empiricalSuccessRate(ring []calibrationSample) float64 {
	if len(ring) == 0 {
		return 0
	}
	var correct int
	for _, sample := range ring {
		if sample.correct {
			correct++
		}
	}
	return float64(correct) / float64(len(ring))
}

// softmaxMax applies temperature scaling then softmax to logits and returns
// the maximum resulting probability. Non-finite logits are treated as zero.
func softmaxMax(logits []float64, temperature float64) float64 {
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	scaled := make([]float64, len(logits))
	maxScaled := math.Inf(-1)
	for i, l := range logits {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			l = 0
		}
		z := l / temperature
		scaled[i] = z
		if z > maxScaled {
			maxScaled = z
		}
	}

	var sum float64
	exps := make([]float64, len(scaled))
	for i, z := range scaled {
		e := math.Exp(z - maxScaled) // shift for numerical stability
		exps[i] = e
		sum += e
	}

	if sum == 0 {
		return 0
	}

	var pMax float64
	for _, e := range exps {
		p := e / sum
		if p > pMax {
			pMax = p
		}
	}
	return pMax
}

// ShouldAttempt applies the class-specific confidence floor (spec.md §4.1
// "should-attempt floor"): the attempt proceeds when confidence is at or
// above the floor, and is stopped strictly below it.
func ShouldAttempt(score Score, class errclass.Class, syntaxFloor, logicFloor float64) bool {
	floor := logicFloor
	if class == errclass.Syntax {
		floor = syntaxFloor
	}
	var relevant float64
	if class == errclass.Syntax {
		relevant = score.Syntax
	} else {
		relevant = score.Logic
	}
	return relevant >= floor
}
