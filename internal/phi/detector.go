package phi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/rfranks/ai-chat-ehr/internal/config"
	"github.com/rfranks/ai-chat-ehr/internal/logger"
	"go.uber.org/zap"
)

// PatternDetector recognizes PHI entities with a regex rule table, optionally
// augmented by a model-based NER backend. It implements Detector.
type PatternDetector struct {
	rules    []DetectionRule
	enabled  map[Label]bool
	minScore float64
	backend  NERBackend
	cache    ResultCache
	logger   *logger.Logger
}

// New creates a new PHI detector instance
func New(cfg config.DetectorConfig, log *logger.Logger) (*PatternDetector, error) {
	detector := &PatternDetector{
		rules:    GetDefaultRules(),
		enabled:  make(map[Label]bool),
		minScore: cfg.MinScore,
		logger:   log,
	}

	if err := detector.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	if cfg.ModelPath != "" {
		if backend := NewNERBackend(log.Logger, cfg.ModelPath); backend != nil && backend.Ready() {
			detector.backend = backend
		} else {
			log.Warn("NER model configured but backend unavailable, using pattern rules only",
				zap.String("model_path", cfg.ModelPath))
		}
	}

	log.Info("PHI detector initialized",
		zap.Int("total_rules", len(detector.rules)),
		zap.Int("enabled_rules", detector.countEnabledRules()),
		zap.Bool("ner_backend", detector.backend != nil),
	)

	return detector, nil
}

// WithCache attaches an optional cross-request detection result cache.
func (d *PatternDetector) WithCache(cache ResultCache) *PatternDetector {
	d.cache = cache
	return d
}

// configureDetectors enables/disables recognizers based on configuration
func (d *PatternDetector) configureDetectors(detectors []string) error {
	for _, rule := range d.rules {
		d.enabled[rule.Label] = false
	}

	for _, name := range detectors {
		if name == "all" {
			for _, rule := range d.rules {
				d.enabled[rule.Label] = true
			}
			continue
		}

		found := false
		for _, rule := range d.rules {
			if string(rule.Label) == name {
				d.enabled[rule.Label] = true
				found = true
				break
			}
		}

		if !found {
			return fmt.Errorf("unknown detector: %s", name)
		}
	}

	return nil
}

// Detect scans text with every enabled recognizer and returns the spans whose
// label is in the allowed set (all labels when the set is empty). The full
// scan result is cached by text digest when a cache is attached; cached
// entries hold offsets and labels only, never the text.
func (d *PatternDetector) Detect(ctx context.Context, text string, allowed []Label) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	if text == "" {
		return nil, nil
	}

	digest := textDigest(text)
	if d.cache != nil {
		if spans, ok := d.cache.Get(ctx, digest); ok {
			return filterEntities(inflate(text, spans), allowed), nil
		}
	}

	entities := d.scan(text)

	if d.backend != nil {
		recognized, err := d.backend.Recognize(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: ner backend: %v", ErrDetectionUnavailable, err)
		}
		entities = append(entities, recognized...)
	}

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].End > entities[j].End
	})

	if d.cache != nil {
		spans := make([]SpanRef, len(entities))
		for i, e := range entities {
			spans[i] = SpanRef{Label: e.Label, Start: e.Start, End: e.End, Score: e.Score}
		}
		if err := d.cache.Store(ctx, digest, spans); err != nil {
			d.logger.Debug("Failed to cache detection spans", zap.Error(err))
		}
	}

	return filterEntities(entities, allowed), nil
}

// scan runs every enabled pattern rule over text
func (d *PatternDetector) scan(text string) []Entity {
	var entities []Entity
	for _, rule := range d.rules {
		if !d.enabled[rule.Label] || rule.Score < d.minScore {
			continue
		}
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			entities = append(entities, Entity{
				Label: rule.Label,
				Start: loc[0],
				End:   loc[1],
				Text:  text[loc[0]:loc[1]],
				Score: rule.Score,
			})
		}
	}
	return entities
}

// countEnabledRules returns the number of enabled detection rules
func (d *PatternDetector) countEnabledRules() int {
	count := 0
	for _, enabled := range d.enabled {
		if enabled {
			count++
		}
	}
	return count
}

// EnabledLabels returns the labels of the enabled recognizers
func (d *PatternDetector) EnabledLabels() []Label {
	var labels []Label
	for label, enabled := range d.enabled {
		if enabled {
			labels = append(labels, label)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

func filterEntities(entities []Entity, allowed []Label) []Entity {
	if len(allowed) == 0 {
		return entities
	}
	allowedSet := make(map[Label]bool, len(allowed))
	for _, label := range allowed {
		allowedSet[label] = true
	}
	filtered := entities[:0:0]
	for _, e := range entities {
		if allowedSet[e.Label] {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func inflate(text string, spans []SpanRef) []Entity {
	entities := make([]Entity, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			continue
		}
		entities = append(entities, Entity{
			Label: s.Label,
			Start: s.Start,
			End:   s.End,
			Text:  text[s.Start:s.End],
			Score: s.Score,
		})
	}
	return entities
}

func textDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
