package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/config"
	"github.com/rfranks/ai-chat-ehr/internal/logger"
	"github.com/rfranks/ai-chat-ehr/internal/phi"
)

// FieldRule is a compiled policy entry: which field path it matches and which
// transformation pipeline applies there.
type FieldRule struct {
	Path       []string
	Strategy   StrategyKind
	DatePolicy DatePolicy
	Labels     []phi.Label
}

// Engine walks patient record trees and applies the configured field rules.
// All transformations are deterministic functions of the two configured
// secrets, so the same input record always produces the same sanitized
// output across calls and processes.
type Engine struct {
	rules    []FieldRule
	registry *SurrogateRegistry
	pseudo   *Pseudonymizer
	detector phi.Detector
	refNow   time.Time // zero means wall clock
	logger   *logger.Logger
}

// New compiles the privacy policy into an engine. Any configuration problem
// (bad secret, malformed rule path, unknown strategy) fails here, before the
// first record is accepted.
func New(cfg config.PrivacyConfig, detector phi.Detector, log *logger.Logger) (*Engine, error) {
	if detector == nil {
		return nil, fmt.Errorf("engine requires a detector")
	}
	if cfg.HashSecret == cfg.FallbackSecret {
		return nil, fmt.Errorf("hash_secret and fallback_secret must differ")
	}

	registry, err := NewSurrogateRegistry(cfg.HashSecret, cfg.HashPrefix, cfg.HashLength)
	if err != nil {
		return nil, fmt.Errorf("invalid surrogate configuration: %w", err)
	}
	pseudo, err := NewPseudonymizer(cfg.FallbackSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid pseudonymizer configuration: %w", err)
	}

	var refNow time.Time
	if cfg.ReferenceNow != "" {
		refNow, err = time.Parse(time.RFC3339, cfg.ReferenceNow)
		if err != nil {
			return nil, fmt.Errorf("invalid reference_now: %w", err)
		}
	}

	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		rules:    rules,
		registry: registry,
		pseudo:   pseudo,
		detector: detector,
		refNow:   refNow,
		logger:   log.WithComponent("engine"),
	}
	engine.logger.Info("Anonymization engine initialized",
		zap.Int("rules", len(rules)),
		zap.Bool("fixed_reference_time", !refNow.IsZero()),
	)
	return engine, nil
}

func compileRules(raw []config.FieldRuleRaw) ([]FieldRule, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("privacy rule table is empty")
	}
	rules := make([]FieldRule, 0, len(raw))
	for i, entry := range raw {
		segments := strings.Split(entry.Path, ".")
		for _, segment := range segments {
			if segment == "" {
				return nil, fmt.Errorf("rule %d: empty segment in path %q", i, entry.Path)
			}
		}

		rule := FieldRule{Path: segments}
		switch StrategyKind(entry.Strategy) {
		case StrategyPassThrough, StrategyDetectAndHash, StrategyGeneralizeAddress, StrategyFallbackPseudonymize:
			rule.Strategy = StrategyKind(entry.Strategy)
		case StrategyGeneralizeDate:
			rule.Strategy = StrategyGeneralizeDate
			switch DatePolicy(entry.DatePolicy) {
			case DatePolicyBirth, DatePolicyEffective:
				rule.DatePolicy = DatePolicy(entry.DatePolicy)
			default:
				return nil, fmt.Errorf("rule %d (%s): unknown date policy %q", i, entry.Path, entry.DatePolicy)
			}
		default:
			return nil, fmt.Errorf("rule %d (%s): unknown strategy %q", i, entry.Path, entry.Strategy)
		}

		for _, label := range entry.Labels {
			rule.Labels = append(rule.Labels, phi.Label(label))
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// now returns the reference time used for age computation.
func (e *Engine) now() time.Time {
	if !e.refNow.IsZero() {
		return e.refNow
	}
	return time.Now()
}

// Anonymize transforms a record per the compiled rule table and returns the
// sanitized copy plus the audit summary. The input tree is never modified.
// A detector failure aborts the whole call: no partially transformed record
// is ever returned.
func (e *Engine) Anonymize(ctx context.Context, record *Value) (*Value, *AuditSummary, error) {
	if record == nil {
		return nil, nil, fmt.Errorf("nil record")
	}

	sanitized := record.Clone()
	audit := NewAggregator()
	// The surrogate memo lives for this call only.
	memo := newSurrogateMemo(e.registry)

	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("anonymization aborted: %w", err)
		}
		if err := e.applyRule(ctx, sanitized, rule, rule.Path, "", audit, memo); err != nil {
			return nil, nil, err
		}
	}

	return sanitized, audit.Finalize(), nil
}

// applyRule resolves the rule's remaining path segments against node,
// descending through objects by key and fanning out over `*` wildcards.
func (e *Engine) applyRule(ctx context.Context, node *Value, rule FieldRule, segments []string, path string, audit *Aggregator, memo *surrogateMemo) error {
	if node == nil || node.IsNull() {
		// Absence is not a transformation.
		return nil
	}
	if len(segments) == 0 {
		return e.transform(ctx, node, rule, path, audit, memo)
	}

	segment := segments[0]
	rest := segments[1:]

	if segment == "*" {
		switch node.Kind() {
		case KindArray:
			for i, item := range node.Items() {
				if err := e.applyRule(ctx, item, rule, rest, joinPath(path, strconv.Itoa(i)), audit, memo); err != nil {
					return err
				}
			}
		case KindObject:
			for _, key := range node.Keys() {
				member, _ := node.Field(key)
				if err := e.applyRule(ctx, member, rule, rest, joinPath(path, key), audit, memo); err != nil {
					return err
				}
			}
		}
		return nil
	}

	member, ok := node.Field(segment)
	if !ok {
		return nil
	}
	return e.applyRule(ctx, member, rule, rest, joinPath(path, segment), audit, memo)
}

func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

// transform applies the rule's strategy to a resolved leaf (or, for address
// rules, sub-object).
func (e *Engine) transform(ctx context.Context, node *Value, rule FieldRule, path string, audit *Aggregator, memo *surrogateMemo) error {
	switch rule.Strategy {
	case StrategyPassThrough:
		return nil
	case StrategyDetectAndHash:
		_, err := e.detectAndHash(ctx, node, rule, path, audit, memo)
		return err
	case StrategyGeneralizeDate:
		return e.generalizeDate(node, rule, path, audit)
	case StrategyGeneralizeAddress:
		return e.generalizeAddress(node, path, audit, memo)
	case StrategyFallbackPseudonymize:
		changed, err := e.detectAndHash(ctx, node, rule, path, audit, memo)
		if err != nil {
			return err
		}
		if !changed {
			e.pseudonymize(node, rule, path, audit)
		}
		return nil
	}
	return fmt.Errorf("unhandled strategy %q at %s", rule.Strategy, path)
}
