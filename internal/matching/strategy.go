package matching

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"dispatch/internal/domain"
)

// ScoringStrategy turns courier features into a score in [0,1].
type ScoringStrategy interface {
	Name() string
	Score(c domain.CourierProfile, f Features) float64
}

// Weights are the rule-based feature weights. They sum to 1.
type Weights struct {
	Proximity    float64
	Performance  float64
	Availability float64
	Vehicle      float64
	Priority     float64
}

// DefaultWeights favour proximity.
var DefaultWeights = Weights{
	Proximity:    0.35,
	Performance:  0.25,
	Availability: 0.15,
	Vehicle:      0.15,
	Priority:     0.10,
}

// RuleBased scores with a fixed weighted sum.
type RuleBased struct {
	Weights Weights
}

// NewRuleBased creates a RuleBased strategy with DefaultWeights.
func NewRuleBased() *RuleBased { return &RuleBased{Weights: DefaultWeights} }

func (r *RuleBased) Name() string { return "rule_based" }

func (r *RuleBased) Score(_ domain.CourierProfile, f Features) float64 {
	w := r.Weights
	return clamp01(w.Proximity*f.Proximity +
		w.Performance*f.Performance +
		w.Availability*f.Availability +
		w.Vehicle*f.Vehicle +
		w.Priority*f.Priority)
}

// Learned scores with a logistic model over the same features.
type Learned struct {
	weights *mat.VecDense
	bias    float64
}

const featureCount = 5

// NewLearned creates a Learned strategy from trained coefficients.
func NewLearned(weights []float64, bias float64) (*Learned, error) {
	if len(weights) != featureCount {
		return nil, fmt.Errorf("learned model needs %d weights, got %d", featureCount, len(weights))
	}
	w := make([]float64, featureCount)
	copy(w, weights)
	return &Learned{weights: mat.NewVecDense(featureCount, w), bias: bias}, nil
}

type modelFile struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// LoadLearned reads a {"weights": [...], "bias": x} model file.
func LoadLearned(path string) (*Learned, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m modelFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return NewLearned(m.Weights, m.Bias)
}

func (l *Learned) Name() string { return "learned" }

func (l *Learned) Score(_ domain.CourierProfile, f Features) float64 {
	x := mat.NewVecDense(featureCount, f.Vector())
	z := mat.Dot(l.weights, x) + l.bias
	return 1 / (1 + math.Exp(-z))
}

// SelectStrategy returns the learned model when one is loaded and the
// rule-based strategy otherwise.
func SelectStrategy(learned *Learned) ScoringStrategy {
	if learned != nil {
		return learned
	}
	return NewRuleBased()
}
