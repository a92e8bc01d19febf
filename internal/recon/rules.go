package recon

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"pharmacy-reconciliation-service/internal/fuzzy"
	"pharmacy-reconciliation-service/internal/models"
	"pharmacy-reconciliation-service/pkg/errors"
)

// Op is a rule condition operator. The set is closed: Validate rejects
// anything outside it, so evaluation never needs an open-ended fallthrough.
type Op string

const (
	// OpEquals requires the field to agree exactly between the two records.
	OpEquals Op = "equals"

	// OpContains requires the condition value to appear in the field of
	// both records.
	OpContains Op = "contains"

	// OpRange requires the field values to be within the condition's
	// tolerance of each other. Amounts compare by percentage, dates by
	// calendar days.
	OpRange Op = "range"

	// OpPattern requires the condition's regular expression to match the
	// field on both records.
	OpPattern Op = "pattern"
)

// Field names a record attribute a condition can target. Closed set.
type Field string

const (
	FieldAmount       Field = "amount"
	FieldDate         Field = "date"
	FieldIdentifier   Field = "identifier"
	FieldPaymentType  Field = "paymentType"
	FieldOriginalText Field = "originalText"
)

// Condition is one field-level test applied to both candidate records of a
// pair. Conditions are data: rules are configured, not coded.
type Condition struct {
	Field Field  `json:"field"`
	Op    Op     `json:"op"`
	Value string `json:"value,omitempty"`

	// Tolerance parameterizes OpRange: percent of the larger magnitude for
	// amounts, whole days for dates.
	Tolerance float64 `json:"tolerance,omitempty"`

	pattern *regexp.Regexp
}

// Rule is a named group of conditions. Each satisfied condition contributes a
// fixed confidence bonus; rules never short-circuit each other.
type Rule struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`

	// FlagMismatches registers a high-severity discrepancy for each
	// condition the pair fails, letting a rule mark disagreements it cares
	// about even when the pair still matches.
	FlagMismatches bool `json:"flag_mismatches,omitempty"`

	Conditions []Condition `json:"conditions"`
}

var validFields = map[Field]bool{
	FieldAmount:       true,
	FieldDate:         true,
	FieldIdentifier:   true,
	FieldPaymentType:  true,
	FieldOriginalText: true,
}

// Validate checks the rule definition and compiles any patterns. A malformed
// rule fails the whole run up front rather than silently evaluating to false.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.RuleError("(unnamed)", "rule name is required")
	}
	if len(r.Conditions) == 0 {
		return errors.RuleError(r.Name, "rule has no conditions")
	}

	for i := range r.Conditions {
		cond := &r.Conditions[i]

		if !validFields[cond.Field] {
			return errors.RuleError(r.Name, fmt.Sprintf("unknown field %q", cond.Field))
		}

		switch cond.Op {
		case OpEquals:
			// No parameters.
		case OpContains:
			if cond.Value == "" {
				return errors.RuleError(r.Name, "contains condition requires a value")
			}
		case OpRange:
			if cond.Field != FieldAmount && cond.Field != FieldDate {
				return errors.RuleError(r.Name, fmt.Sprintf("range condition cannot target %q", cond.Field))
			}
			if cond.Tolerance <= 0 {
				return errors.RuleError(r.Name, "range condition requires a positive tolerance")
			}
		case OpPattern:
			if cond.Value == "" {
				return errors.RuleError(r.Name, "pattern condition requires a value")
			}
			pattern, err := regexp.Compile(cond.Value)
			if err != nil {
				return errors.RuleError(r.Name, fmt.Sprintf("invalid pattern %q: %v", cond.Value, err))
			}
			cond.pattern = pattern
		default:
			return errors.RuleError(r.Name, fmt.Sprintf("unknown operator %q", cond.Op))
		}
	}

	return nil
}

// satisfied evaluates the condition against both records. Only called after
// Validate, so every operator and field combination here is well-formed.
func (c *Condition) satisfied(a, b *models.Record) bool {
	switch c.Op {
	case OpEquals:
		return c.fieldsEqual(a, b)
	case OpContains:
		needle := strings.ToLower(c.Value)
		return strings.Contains(strings.ToLower(c.fieldText(a)), needle) &&
			strings.Contains(strings.ToLower(c.fieldText(b)), needle)
	case OpRange:
		if c.Field == FieldDate {
			return models.DaysApart(a.Date, b.Date) <= int(c.Tolerance)
		}
		return fuzzy.WithinTolerance(a.AbsAmount(), b.AbsAmount(), c.Tolerance)
	case OpPattern:
		return c.pattern.MatchString(c.fieldText(a)) && c.pattern.MatchString(c.fieldText(b))
	}
	return false
}

func (c *Condition) fieldsEqual(a, b *models.Record) bool {
	switch c.Field {
	case FieldAmount:
		return a.AbsAmount().Equal(b.AbsAmount())
	case FieldDate:
		return models.SameDay(a.Date, b.Date)
	case FieldIdentifier:
		return a.Identifier != "" && a.Identifier == b.Identifier
	case FieldPaymentType:
		return a.PaymentType != "" && a.PaymentType == b.PaymentType
	case FieldOriginalText:
		return strings.EqualFold(a.OriginalText, b.OriginalText)
	}
	return false
}

func (c *Condition) fieldText(r *models.Record) string {
	switch c.Field {
	case FieldAmount:
		return r.AbsAmount().StringFixed(2)
	case FieldDate:
		return r.Date.Format("2006-01-02")
	case FieldIdentifier:
		return r.Identifier
	case FieldPaymentType:
		return r.PaymentType
	case FieldOriginalText:
		return r.OriginalText
	}
	return ""
}

// ruleOutcome is the contribution of the rule set to one scored pair.
type ruleOutcome struct {
	bonus         decimal.Decimal
	satisfied     []string
	discrepancies []*models.Discrepancy
}

// applyRules evaluates every rule against the pair in descending priority
// order. Rules are independent: each satisfied condition adds its bonus
// whether or not other rules matched.
func applyRules(rules []*Rule, a, b *models.Record) ruleOutcome {
	ordered := make([]*Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	outcome := ruleOutcome{bonus: decimal.Zero}
	for _, rule := range ordered {
		for i := range rule.Conditions {
			cond := &rule.Conditions[i]
			if cond.satisfied(a, b) {
				outcome.bonus = outcome.bonus.Add(bonusRuleCondition)
				outcome.satisfied = append(outcome.satisfied, rule.Name)
				continue
			}
			if rule.FlagMismatches {
				outcome.discrepancies = append(outcome.discrepancies, &models.Discrepancy{
					Field: string(cond.Field),
					ValuesBySource: map[string]string{
						a.SourceID: cond.fieldText(a),
						b.SourceID: cond.fieldText(b),
					},
					Severity: models.SeverityHigh,
					Reason:   fmt.Sprintf("rule %q: %s condition on %s not satisfied", rule.Name, cond.Op, cond.Field),
				})
			}
		}
	}
	return outcome
}
