package automation

import (
	"fmt"
	"strings"

	"coachkit/internal/features/client"
)

// EvaluateConditions reports whether every condition holds for the client.
// An empty condition list matches everything (vacuous AND). It is pure and
// total: malformed conditions and type mismatches evaluate to false so a bad
// rule silently excludes clients instead of crashing the batch.
func EvaluateConditions(conditions []Condition, cc client.ClientContext) bool {
	for _, cond := range conditions {
		actual := fieldValue(cc, cond.Field)
		if !evaluateCondition(actual, cond.Operator, cond.Value) {
			return false
		}
	}
	return true
}

// fieldValue resolves a condition field against the context. Nullable fields
// resolve to nil, which fails numeric comparisons safely.
func fieldValue(cc client.ClientContext, field ConditionField) interface{} {
	switch field {
	case FieldRiskTier:
		if cc.RiskTier == nil {
			return nil
		}
		return *cc.RiskTier
	case FieldRiskScore:
		if cc.RiskScore == nil {
			return nil
		}
		return *cc.RiskScore
	case FieldSubscriptionStatus:
		if cc.SubscriptionStatus == nil {
			return nil
		}
		return *cc.SubscriptionStatus
	case FieldDaysSinceActivity:
		if cc.DaysSinceActivity == nil {
			return nil
		}
		return float64(*cc.DaysSinceActivity)
	case FieldStatus:
		return string(cc.Status)
	default:
		return nil
	}
}

func evaluateCondition(actual interface{}, operator ConditionOperator, expected interface{}) bool {
	switch operator {
	case OperatorEq:
		return equal(actual, expected)
	case OperatorNeq:
		return !equal(actual, expected)
	case OperatorGt:
		a, e, ok := bothNumbers(actual, expected)
		return ok && a > e
	case OperatorLt:
		a, e, ok := bothNumbers(actual, expected)
		return ok && a < e
	case OperatorGte:
		a, e, ok := bothNumbers(actual, expected)
		return ok && a >= e
	case OperatorLte:
		a, e, ok := bothNumbers(actual, expected)
		return ok && a <= e
	case OperatorIn:
		list, ok := expected.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if equal(actual, item) {
				return true
			}
		}
		return false
	case OperatorContains:
		a, aok := actual.(string)
		e, eok := expected.(string)
		return aok && eok && strings.Contains(a, e)
	default:
		// Unknown operator from legacy rule config: exclude, don't crash.
		return false
	}
}

func equal(actual, expected interface{}) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	if a, e, ok := bothNumbers(actual, expected); ok {
		return a == e
	}
	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

// bothNumbers normalizes the numeric types BSON and JSON decoding produce.
func bothNumbers(a, b interface{}) (float64, float64, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return af, bf, aok && bok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
