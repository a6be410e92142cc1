// Package matching scores eligible couriers for a request and, when the
// best one is good enough, reserves it automatically.
package matching

import (
	"context"
	"sort"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/eta"
	"dispatch/internal/geo"
	"dispatch/internal/logger"
)

// DefaultMinAcceptScore is the lowest score accepted for automatic assignment.
const DefaultMinAcceptScore = 0.55

// Registry is the part of the courier registry matching needs.
type Registry interface {
	FindEligible(ctx context.Context, req domain.DeliveryRequest) []domain.CourierProfile
	TryReserve(courierID, requestID string) bool
}

// Candidate is a scored courier.
type Candidate struct {
	Courier    domain.CourierProfile `json:"courier"`
	Score      float64               `json:"score"`
	Features   Features              `json:"features"`
	DistanceKm float64               `json:"distance_km"`
	ETA        eta.Estimate          `json:"eta"`
}

// Assignment is an automatic match whose courier is already reserved.
type Assignment struct {
	CourierID string       `json:"courier_id"`
	Score     float64      `json:"score"`
	ETA       eta.Estimate `json:"eta"`
	Strategy  string       `json:"strategy"`
}

// MatchResult holds the ranked candidates and the automatic assignment,
// if one was made.
type MatchResult struct {
	Automatic *Assignment `json:"automatic,omitempty"`
	Ranked    []Candidate `json:"ranked"`
}

// Engine ranks couriers.
type Engine struct {
	registry       Registry
	strategy       ScoringStrategy
	estimator      *eta.Estimator
	minAcceptScore float64
	radiusKm       float64
	log            logger.Logger
}

// Config tunes the Engine.
type Config struct {
	MinAcceptScore float64
	SearchRadiusKm float64
}

// NewEngine creates an Engine. A nil strategy uses the rule-based one.
func NewEngine(reg Registry, strategy ScoringStrategy, estimator *eta.Estimator, cfg Config, log logger.Logger) *Engine {
	if strategy == nil {
		strategy = NewRuleBased()
	}
	if estimator == nil {
		estimator = eta.NewEstimator(0)
	}
	if cfg.MinAcceptScore <= 0 {
		cfg.MinAcceptScore = DefaultMinAcceptScore
	}
	if cfg.SearchRadiusKm <= 0 {
		cfg.SearchRadiusKm = 5
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Engine{
		registry:       reg,
		strategy:       strategy,
		estimator:      estimator,
		minAcceptScore: cfg.MinAcceptScore,
		radiusKm:       cfg.SearchRadiusKm,
		log:            log,
	}
}

// Strategy returns the name of the active scoring strategy.
func (e *Engine) Strategy() string { return e.strategy.Name() }

type matchOptions struct {
	conditions eta.Conditions
	quote      *domain.PricingQuote
	exclude    map[string]bool
	autoAssign bool
}

// Option adjusts a single FindMatch call.
type Option func(*matchOptions)

// WithConditions supplies live conditions for candidate ETAs.
func WithConditions(c eta.Conditions) Option {
	return func(o *matchOptions) { o.conditions = c }
}

// WithQuote drops couriers whose minimum fee exceeds the quoted price.
func WithQuote(q domain.PricingQuote) Option {
	return func(o *matchOptions) { o.quote = &q }
}

// WithExclude skips the given couriers, e.g. the one being replaced.
func WithExclude(courierIDs ...string) Option {
	return func(o *matchOptions) {
		for _, id := range courierIDs {
			o.exclude[id] = true
		}
	}
}

// RankOnly ranks candidates without reserving anyone.
func RankOnly() Option {
	return func(o *matchOptions) { o.autoAssign = false }
}

// FindMatch ranks eligible couriers and reserves the best acceptable one.
// A failed reservation falls through to the next candidate. When nobody
// scores high enough the result has no Automatic assignment and the
// caller is expected to open bidding.
func (e *Engine) FindMatch(ctx context.Context, req domain.DeliveryRequest, opts ...Option) (MatchResult, error) {
	o := matchOptions{
		conditions: eta.Conditions{Traffic: domain.NeutralTraffic(), Weather: domain.NeutralWeather(), Now: time.Now()},
		exclude:    make(map[string]bool),
		autoAssign: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	found := e.registry.FindEligible(ctx, req)
	excluded, feeFiltered := 0, 0
	ranked := make([]Candidate, 0, len(found))
	for _, c := range found {
		if o.exclude[c.ID] {
			excluded++
			continue
		}
		if o.quote != nil && c.Preferences.MinFee > o.quote.FinalPrice {
			feeFiltered++
			continue
		}
		ranked = append(ranked, e.candidate(req, c, o.conditions))
	}

	if len(ranked) == 0 {
		return MatchResult{}, &MatchError{
			RequestID: req.ID,
			Reason:    "no courier within radius passed the filters",
			Factors: map[string]any{
				"found":        len(found),
				"excluded":     excluded,
				"below_minfee": feeFiltered,
				"radius_km":    e.radiusKm,
				"priority":     string(req.Priority),
			},
		}
	}

	Rank(ranked)
	result := MatchResult{Ranked: ranked}
	if !o.autoAssign {
		return result, nil
	}

	for _, c := range ranked {
		if c.Score < e.minAcceptScore {
			break
		}
		if !e.registry.TryReserve(c.Courier.ID, req.ID) {
			e.log.Debugw("reservation lost, trying next candidate",
				map[string]any{"request_id": req.ID, "courier_id": c.Courier.ID})
			continue
		}
		result.Automatic = &Assignment{
			CourierID: c.Courier.ID,
			Score:     c.Score,
			ETA:       c.ETA,
			Strategy:  e.strategy.Name(),
		}
		e.log.Infof("request %s matched to courier %s (score %.3f)", req.ID, c.Courier.ID, c.Score)
		return result, nil
	}

	e.log.Debugw("no automatic match", map[string]any{"request_id": req.ID, "top_score": ranked[0].Score})
	return result, nil
}

func (e *Engine) candidate(req domain.DeliveryRequest, c domain.CourierProfile, cond eta.Conditions) Candidate {
	f := Extract(req, c, e.radiusKm)
	return Candidate{
		Courier:    c,
		Score:      e.strategy.Score(c, f),
		Features:   f,
		DistanceKm: geo.HaversineKm(c.Location, req.Pickup.Location),
		ETA:        e.estimator.Estimate(req, &c, cond),
	}
}

// Rank orders candidates by score, then rating, then the most recent
// location fix, then ID.
func Rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Courier.Stats.Rating != b.Courier.Stats.Rating {
			return a.Courier.Stats.Rating > b.Courier.Stats.Rating
		}
		if !a.Courier.LastUpdate.Equal(b.Courier.LastUpdate) {
			return a.Courier.LastUpdate.After(b.Courier.LastUpdate)
		}
		return a.Courier.ID < b.Courier.ID
	})
}
