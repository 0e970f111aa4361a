package engine

import (
	"mercator-hq/arbiter/pkg/audit/logger"
	"mercator-hq/arbiter/pkg/decision/cache"
)

// Statistics is a point-in-time view of engine counters since start.
type Statistics struct {
	Evaluations         int64            `json:"evaluations"`
	Decisions           map[string]int64 `json:"decisions"`
	PreCheckDenials     int64            `json:"precheck_denials"`
	EvaluatorFailures   int64            `json:"evaluator_failures"`
	Cancelled           int64            `json:"cancelled"`
	ValidationErrors    int64            `json:"validation_errors"`
	LogFailures         int64            `json:"log_failures"`
	AverageEvaluationMs float64          `json:"average_evaluation_ms"`
	CacheEnabled        bool             `json:"cache_enabled"`
	Cache               cache.Stats      `json:"cache"`
	Logger              logger.Stats     `json:"logger"`
	LoadedPolicies      []string         `json:"loaded_policies"`
}

// GetStatistics returns decision, cache and logger counters.
func (e *Engine) GetStatistics() Statistics {
	s := Statistics{
		Evaluations: e.stats.evaluations.Load(),
		Decisions: map[string]int64{
			"allow":       e.stats.allow.Load(),
			"deny":        e.stats.deny.Load(),
			"conditional": e.stats.conditional.Load(),
		},
		PreCheckDenials:   e.stats.preCheckDenials.Load(),
		EvaluatorFailures: e.stats.evaluatorFailures.Load(),
		Cancelled:         e.stats.cancelled.Load(),
		ValidationErrors:  e.stats.validationErrors.Load(),
		LogFailures:       e.stats.logFailures.Load(),
		CacheEnabled:      e.cache != nil,
		Logger:            e.logger.Stats(),
		LoadedPolicies:    e.LoadedPolicies(),
	}
	if s.Evaluations > 0 {
		s.AverageEvaluationMs = float64(e.stats.totalEvalNanos.Load()) / float64(s.Evaluations) / 1e6
	}
	if e.cache != nil {
		s.Cache = e.cache.Stats()
	}
	return s
}
