// Package normalize applies per-source field rules to raw records before they
// are written to the curated zone. Rules are registered by source name, so a
// new source adds a rule without touching existing ones.
package normalize

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/lakeingest/internal/metrics"
	"github.com/JakeFAU/lakeingest/internal/pipeline"
)

// ReasonInvalidField labels records dropped because a rule rejected them.
const ReasonInvalidField = "invalid_field"

// Rule rewrites one record. Implementations must not mutate their input.
type Rule interface {
	Normalize(r pipeline.Record) (pipeline.Record, error)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(r pipeline.Record) (pipeline.Record, error)

// Normalize calls f(r).
func (f RuleFunc) Normalize(r pipeline.Record) (pipeline.Record, error) {
	return f(r)
}

// SchemaRule is a Rule that also declares the fields it guarantees.
type SchemaRule interface {
	Rule
	Schema() pipeline.Schema
}

// Registry maps source names to rules and implements pipeline.Normalizer.
type Registry struct {
	mu     sync.RWMutex
	rules  map[string]Rule
	logger *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{rules: make(map[string]Rule), logger: logger}
}

// Register installs rule for source, replacing any previous rule.
func (r *Registry) Register(source string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[source] = rule
}

// Sources lists the sources with a registered rule.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) rule(source string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[source]
	return rule, ok
}

// SchemaFor returns the declared schema for source, or nil when its rule
// declares none.
func (r *Registry) SchemaFor(source string) pipeline.Schema {
	rule, ok := r.rule(source)
	if !ok {
		return nil
	}
	if sr, ok := rule.(SchemaRule); ok {
		return sr.Schema()
	}
	return nil
}

// Normalize applies the source's rule to every record. Sources without a
// rule pass through unchanged. A record the rule rejects with
// pipeline.ErrInvalidField is dropped and counted; any other error, or a
// result that breaks the declared schema, fails the batch.
func (r *Registry) Normalize(source string, records []pipeline.Record) ([]pipeline.Record, error) {
	rule, ok := r.rule(source)
	if !ok {
		return records, nil
	}
	schema := r.SchemaFor(source)

	out := make([]pipeline.Record, 0, len(records))
	dropped := 0
	for i, rec := range records {
		normalized, err := rule.Normalize(rec)
		if errors.Is(err, pipeline.ErrInvalidField) {
			dropped++
			r.logger.Warn("Dropping record that failed normalization",
				zap.String("source", source),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("normalize %s record %d: %w", source, i, err)
		}
		if err := schema.Check(normalized); err != nil {
			return nil, fmt.Errorf("normalize %s record %d: %w", source, i, err)
		}
		out = append(out, normalized)
	}
	metrics.ObserveRecordsRejected(source, ReasonInvalidField, dropped)
	return out, nil
}
