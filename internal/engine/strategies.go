package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/logger"
	"github.com/rfranks/ai-chat-ehr/internal/phi"
)

// Audit entity names for schema-known transformations. Detection-driven
// events use the detector's label instead.
const (
	entityDateOfBirth   = "DATE_OF_BIRTH"
	entityEffectiveDate = "EFFECTIVE_DATE"
	entityAddrStreet    = "ADDRESS_STREET"
	entityAddrCity      = "ADDRESS_CITY"
	entityAddrState     = "ADDRESS_STATE"
	entityAddrPostal    = "ADDRESS_POSTAL_CODE"
	entityIdentifier    = "IDENTIFIER"
)

// detectAndHash runs the detector over a string leaf and replaces every
// allowed entity span with its surrogate token. Returns whether the value
// changed. Detector failure is atomic for the whole Anonymize call.
func (e *Engine) detectAndHash(ctx context.Context, node *Value, rule FieldRule, path string, audit *Aggregator, memo *surrogateMemo) (bool, error) {
	text, ok := node.StringValue()
	if !ok || text == "" {
		return false, nil
	}

	entities, err := e.detector.Detect(ctx, text, rule.Labels)
	if err != nil {
		return false, fmt.Errorf("detect %s: %w", path, err)
	}
	if len(entities) == 0 {
		return false, nil
	}

	kept, discarded := resolveOverlaps(entities)
	for _, entity := range discarded {
		audit.Record(TransformationEvent{
			Entity:    string(entity.Label),
			Action:    ActionOverlapDiscard,
			FieldPath: path,
		})
	}

	// Replace from highest offset to lowest so earlier replacements never
	// invalidate later span offsets.
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start > kept[j].Start })
	result := text
	for _, entity := range kept {
		if entity.Start < 0 || entity.End > len(result) || entity.Start >= entity.End {
			continue
		}
		surrogate := memo.surrogateFor(string(entity.Label), result[entity.Start:entity.End])
		result = result[:entity.Start] + surrogate + result[entity.End:]
		audit.Record(TransformationEvent{
			Entity:    string(entity.Label),
			Action:    ActionHash,
			FieldPath: path,
		})
	}

	if result == text {
		return false, nil
	}
	node.SetString(result)
	e.logger.Debug("Masked detected entities",
		zap.String("field", path),
		logger.ValueCount("spans", len(kept)),
	)
	return true, nil
}

// resolveOverlaps keeps the highest-confidence entity among any overlapping
// group and reports the rest for audit visibility. Ties break toward the
// earlier, longer span so resolution stays deterministic.
func resolveOverlaps(entities []phi.Entity) (kept, discarded []phi.Entity) {
	byConfidence := make([]phi.Entity, len(entities))
	copy(byConfidence, entities)
	sort.SliceStable(byConfidence, func(i, j int) bool {
		a, b := byConfidence[i], byConfidence[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End > b.End
	})

	for _, candidate := range byConfidence {
		overlaps := false
		for _, winner := range kept {
			if candidate.Start < winner.End && winner.Start < candidate.End {
				overlaps = true
				break
			}
		}
		if overlaps {
			discarded = append(discarded, candidate)
		} else {
			kept = append(kept, candidate)
		}
	}
	return kept, discarded
}

// generalizeDate applies the rule's date policy to a string leaf. Unparsable
// input drops the field with a distinct event instead of passing through.
func (e *Engine) generalizeDate(node *Value, rule FieldRule, path string, audit *Aggregator) error {
	value, ok := node.StringValue()
	if !ok || value == "" {
		return nil
	}

	entity := entityEffectiveDate
	var generalized string
	var action Action
	var err error
	if rule.DatePolicy == DatePolicyBirth {
		entity = entityDateOfBirth
		generalized, action, err = generalizeBirthDate(value, e.now())
	} else {
		generalized, action, err = generalizeEffectiveDate(value)
	}

	if err != nil {
		node.SetNull()
		audit.Record(TransformationEvent{Entity: entity, Action: ActionDrop, FieldPath: path})
		e.logger.Warn("Dropped unparsable date field",
			zap.String("field", path),
			logger.ValueLen("value", value),
		)
		return nil
	}

	if action == ActionRedact {
		node.SetNull()
	} else {
		node.SetString(generalized)
	}
	audit.Record(TransformationEvent{Entity: entity, Action: action, FieldPath: path})
	return nil
}

// generalizeAddress synthesizes street, city, and postal code replacements
// from keyed hashes of the respective originals. Two-letter states are
// uppercased and kept, anything else is hashed. Country passes through.
func (e *Engine) generalizeAddress(node *Value, path string, audit *Aggregator, memo *surrogateMemo) error {
	if node.Kind() != KindObject {
		return nil
	}

	record := func(entity string, field string) {
		audit.Record(TransformationEvent{Entity: entity, Action: ActionGeneralize, FieldPath: joinPath(path, field)})
	}

	state, _ := stringField(node, "state")
	street, _ := stringField(node, "street")
	city, _ := stringField(node, "city")
	postal, _ := stringField(node, "postalCode")

	stateAbbr := ""
	if state != "" {
		trimmed := strings.TrimSpace(state)
		if twoLetterState.MatchString(trimmed) {
			stateAbbr = strings.ToUpper(trimmed)
			if stateAbbr != state {
				setStringField(node, "state", stateAbbr)
			}
		} else {
			setStringField(node, "state", memo.surrogateFor(string(phi.LabelLocation), state))
			record(entityAddrState, "state")
		}
	}

	if street != "" {
		seed := e.registry.Seed(entityAddrStreet, street)
		setStringField(node, "street", synthesizeStreet(seed, street))
		record(entityAddrStreet, "street")
	}
	if city != "" {
		seed := e.registry.Seed(entityAddrCity, city)
		setStringField(node, "city", synthesizeCity(seed, city))
		record(entityAddrCity, "city")
	}
	if postal != "" {
		seed := e.registry.Seed(entityAddrPostal, postal)
		setStringField(node, "postalCode", synthesizePostalCode(seed, postal, stateAbbr))
		record(entityAddrPostal, "postalCode")
	}
	// country is country-level geography, not a restricted identifier.

	e.logger.Debug("Generalized address",
		zap.String("field", path),
		logger.Present("street", street),
		logger.Present("city", city),
		logger.Present("state", state),
		logger.Present("postal_code", postal),
	)
	return nil
}

// pseudonymize replaces an identifier the detector produced no entities for.
func (e *Engine) pseudonymize(node *Value, rule FieldRule, path string, audit *Aggregator) {
	value, ok := node.StringValue()
	if !ok || value == "" {
		return
	}

	entity := entityIdentifier
	if len(rule.Labels) > 0 {
		entity = string(rule.Labels[0])
	}
	node.SetString(e.pseudo.Pseudonym(strings.Join(rule.Path, "."), value))
	audit.Record(TransformationEvent{Entity: entity, Action: ActionPseudonymize, FieldPath: path})
}

func stringField(node *Value, key string) (string, bool) {
	member, ok := node.Field(key)
	if !ok || member == nil {
		return "", false
	}
	return member.StringValue()
}

func setStringField(node *Value, key string, value string) {
	if member, ok := node.Field(key); ok && member != nil {
		member.SetString(value)
	}
}
