package privacy

import (
	"context"
	"time"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/privacy"
)

func (e *engine) GeneralizeRecords(ctx context.Context, records []privacy.Record, rules []GeneralizeRule) ([]privacy.Record, error) {
	if len(rules) == 0 {
		return nil, errors.NewValidationError("MISSING_RULES", "at least one generalization rule is required")
	}
	for _, rule := range rules {
		if rule.Field == "" {
			return nil, errors.NewValidationError("MISSING_FIELD", "generalization rule needs a field")
		}
	}

	out := make([]privacy.Record, len(records))
	for i, record := range records {
		generalized := record.Clone()
		for _, rule := range rules {
			value, ok := generalized[rule.Field]
			if !ok || value == nil {
				continue
			}
			replaced, err := applyRule(value, rule)
			if err != nil {
				return nil, err
			}
			generalized[rule.Field] = replaced
		}
		out[i] = generalized
	}
	return out, nil
}

func applyRule(value interface{}, rule GeneralizeRule) (interface{}, error) {
	switch rule.Kind {
	case GeneralizeCoordinate:
		coord, ok := asFloat(value)
		if !ok {
			return nil, errors.NewValidationError("INVALID_VALUE",
				"field "+rule.Field+" is not numeric")
		}
		return privacy.GeneralizeCoordinate(coord, rule.Precision)

	case GeneralizeDate:
		raw, ok := value.(string)
		if !ok {
			return nil, errors.NewValidationError("INVALID_VALUE",
				"field "+rule.Field+" is not a date string")
		}
		parsed, err := parseDate(raw)
		if err != nil {
			return nil, errors.NewValidationError("INVALID_VALUE",
				"field "+rule.Field+" is not a parsable date: "+raw)
		}
		truncated, err := privacy.TruncateDate(parsed, rule.Granularity)
		if err != nil {
			return nil, err
		}
		if rule.Granularity == privacy.DateYear {
			return truncated.Format("2006"), nil
		}
		return truncated.Format("2006-01-02"), nil

	case GeneralizeAge:
		age, ok := asFloat(value)
		if !ok {
			return nil, errors.NewValidationError("INVALID_VALUE",
				"field "+rule.Field+" is not numeric")
		}
		return privacy.BucketAge(int(age), rule.BucketWidth)

	default:
		return nil, errors.NewValidationError("INVALID_RULE_KIND",
			"unknown generalization kind: "+string(rule.Kind))
	}
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.NewValidationError("INVALID_DATE", "unparsable date: "+raw)
}
