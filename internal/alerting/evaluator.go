// internal/alerting/evaluator.go
package alerting

import (
	"log"

	"bms-dashboard/internal/config"
	"bms-dashboard/internal/model"
)

// Evaluator checks one reading set against the configured threshold rules and
// decides which alerts to raise. Rules are independent: several may fire in
// the same cycle for the same device, each producing its own alert record.
//
// There is no de-duplication against already-open alerts; every cycle where a
// condition holds creates a new alert row, matching the system's historical
// behavior.
type Evaluator struct {
	rules []config.RuleConfig
}

func NewEvaluator(rules []config.RuleConfig) *Evaluator {
	return &Evaluator{rules: rules}
}

// Check returns one active alert per violated rule. A rule only fires for a
// metric present in the reading set; absent metrics are skipped.
func (e *Evaluator) Check(readings map[string]float64) []model.Alert {
	var alerts []model.Alert
	for _, rule := range e.rules {
		value, ok := readings[rule.Metric]
		if !ok {
			continue
		}
		if !violates(value, rule) {
			continue
		}
		alerts = append(alerts, model.Alert{
			Rule: model.Rule{
				Metric:    rule.Metric,
				Threshold: rule.Threshold,
				Operator:  rule.Operator,
			},
			Status: model.AlertActive,
		})
	}
	return alerts
}

func violates(value float64, rule config.RuleConfig) bool {
	switch rule.Operator {
	case ">":
		return value > rule.Threshold
	case ">=":
		return value >= rule.Threshold
	case "<":
		return value < rule.Threshold
	case "<=":
		return value <= rule.Threshold
	default:
		log.Printf("Unknown alert operator %q for metric %s, skipping rule", rule.Operator, rule.Metric)
		return false
	}
}
