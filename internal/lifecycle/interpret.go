package lifecycle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/model"
	"github.com/sells-group/studio-suggest/internal/pattern"
)

// signalTypes maps upstream signal types to the suggestion they propose.
var signalTypes = map[string]model.SuggestionType{
	model.SignalSenderDomainMatch: model.TypeLinkCreation,
	model.SignalProjectMention:    model.TypeLinkCreation,
	model.SignalActionItem:        model.TypeTaskCreation,
	model.SignalNewContact:        model.TypeContactCreation,
	model.SignalFeeMention:        model.TypeFeeChange,
	model.SignalStatusUpdate:      model.TypeStatusChange,
	model.SignalFYI:               model.TypeInformational,
}

// draft is a suggestion interpreted from a signal, before confidence
// blending and dedup.
type draft struct {
	s       *model.Suggestion
	payload map[string]any
	shape   model.PatternShape
	// target is the code the signal itself points at, if any.
	target string
}

func validateSignal(sig model.Signal) error {
	var missing []string
	if strings.TrimSpace(sig.SourceType) == "" {
		missing = append(missing, "source_type")
	}
	if strings.TrimSpace(sig.SourceID) == "" {
		missing = append(missing, "source_id")
	}
	if strings.TrimSpace(sig.SignalType) == "" {
		missing = append(missing, "signal_type")
	}
	if len(missing) > 0 {
		return apperr.MissingData(missing...)
	}
	if sig.RawConfidence < 0 || sig.RawConfidence > 1 {
		return apperr.Invalid("raw_confidence %v outside [0,1]", sig.RawConfidence)
	}
	return nil
}

// suggestionType picks the suggestion type for sig. A payload
// "suggestion_type" overrides the signal type mapping.
func suggestionType(sig model.Signal) (model.SuggestionType, error) {
	if v := sig.PayloadString("suggestion_type"); v != "" {
		t := model.SuggestionType(v)
		if !t.Valid() {
			return "", apperr.Invalid("unknown suggestion_type %q", v)
		}
		return t, nil
	}
	t, ok := signalTypes[sig.SignalType]
	if !ok {
		return "", apperr.Invalid("unknown signal_type %q", sig.SignalType)
	}
	return t, nil
}

// interpret turns a validated signal into a draft suggestion.
func (e *Engine) interpret(sig model.Signal) (*draft, error) {
	typ, err := suggestionType(sig)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(sig.Payload))
	for k, v := range sig.Payload {
		payload[k] = v
	}

	d := &draft{payload: payload, shape: shapeOf(sig.SignalType, payload)}
	d.target = targetCode(d.shape.TargetType, payload)

	s := &model.Suggestion{
		Type:        typ,
		Status:      model.StatusPending,
		SourceType:  sig.SourceType,
		SourceID:    sig.SourceID,
		TargetTable: e.targets.TableFor(typ),
		Title:       firstString(payload, "title", "summary"),
		Description: firstString(payload, "description", "text", "excerpt"),
		PatternType: d.shape.PatternType,
		PatternKey:  d.shape.PatternKey,
	}
	if id := firstString(payload, "target_id"); id != "" {
		s.TargetID = &id
	}
	d.s = s
	return d, nil
}

// finish fills the fields that depend on the resolved target and blended
// confidence.
func (e *Engine) finish(d *draft, confidence float64) error {
	s := d.s
	if d.target != "" && d.shape.TargetType == pattern.TargetProject {
		if firstString(d.payload, "project_code", "project") == "" {
			d.payload["project_code"] = d.target
		}
	}
	if d.shape.TargetType == pattern.TargetCompany && d.target != "" {
		if firstString(d.payload, "company") == "" {
			d.payload["company"] = d.target
		}
	}
	s.RelatedEntityCode = firstString(d.payload, "project_code", "project", "related_entity_code")

	raw, err := json.Marshal(d.payload)
	if err != nil {
		return apperr.Invalid("encode payload: %v", err)
	}
	s.Payload = raw

	s.ConfidenceScore = confidence
	s.Priority = model.PriorityFor(confidence)
	if p := model.Priority(firstString(d.payload, "priority")); p == model.PriorityLow || p == model.PriorityNormal || p == model.PriorityHigh {
		s.Priority = p
	}
	if s.Title == "" {
		s.Title = defaultTitle(s)
	}
	s.DedupTarget = dedupTarget(s, d.payload)

	if e.cfg.TTL > 0 {
		exp := e.now().Add(e.cfg.TTL)
		s.ExpiresAt = &exp
	}
	return nil
}

// shapeOf extracts the reusable signal shape a pattern can be keyed on.
func shapeOf(signalType string, payload map[string]any) model.PatternShape {
	switch signalType {
	case model.SignalProjectMention:
		if k := pattern.NormalizeKey(firstString(payload, "mention", "text", "phrase")); k != "" {
			return model.PatternShape{PatternType: pattern.TypeProjectMention, PatternKey: k, TargetType: pattern.TargetProject}
		}
	case model.SignalNewContact:
		if email := firstString(payload, "email", "contact_email"); strings.Contains(email, "@") {
			return model.PatternShape{PatternType: pattern.TypeContactDomain, PatternKey: pattern.NormalizeDomain(email), TargetType: pattern.TargetCompany}
		}
		return model.PatternShape{}
	}
	if k := pattern.NormalizeDomain(firstString(payload, "domain", "sender_domain", "sender", "from")); k != "" {
		return model.PatternShape{PatternType: pattern.TypeSenderDomain, PatternKey: k, TargetType: pattern.TargetProject}
	}
	return model.PatternShape{}
}

// shapeOfSuggestion rebuilds the shape recorded on a suggestion.
func shapeOfSuggestion(s *model.Suggestion) model.PatternShape {
	shape := model.PatternShape{PatternType: s.PatternType, PatternKey: s.PatternKey}
	switch s.PatternType {
	case pattern.TypeContactDomain:
		shape.TargetType = pattern.TargetCompany
	case "":
	default:
		shape.TargetType = pattern.TargetProject
	}
	return shape
}

// targetCode returns the code a payload points at for a target type.
func targetCode(targetType string, payload map[string]any) string {
	switch targetType {
	case pattern.TargetProject:
		return firstString(payload, "project_code", "project")
	case pattern.TargetCompany:
		return firstString(payload, "company")
	}
	return ""
}

// suggestionTarget returns the target code a suggestion currently proposes.
func suggestionTarget(s *model.Suggestion, shape model.PatternShape) string {
	if shape.TargetType == pattern.TargetProject && s.RelatedEntityCode != "" {
		return s.RelatedEntityCode
	}
	return targetCode(shape.TargetType, s.PayloadMap())
}

// dedupTarget is the target id when known. Otherwise it is whatever
// identifies the record the suggestion would create or change: the contact
// email, the task's title within its project, or the related entity.
func dedupTarget(s *model.Suggestion, payload map[string]any) string {
	if s.TargetID != nil && *s.TargetID != "" {
		return *s.TargetID
	}
	switch s.Type {
	case model.TypeContactCreation:
		return strings.ToLower(firstString(payload, "email", "contact_email"))
	case model.TypeTaskCreation:
		return strings.ToLower(s.RelatedEntityCode) + "|" + pattern.NormalizeKey(s.Title)
	}
	return strings.ToLower(s.RelatedEntityCode)
}

func defaultTitle(s *model.Suggestion) string {
	label := strings.ReplaceAll(string(s.Type), "_", " ")
	if s.RelatedEntityCode != "" {
		return fmt.Sprintf("%s for %s", label, s.RelatedEntityCode)
	}
	return fmt.Sprintf("%s from %s %s", label, s.SourceType, s.SourceID)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func sameTarget(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
