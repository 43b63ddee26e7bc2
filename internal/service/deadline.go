package service

import (
	"time"

	"github.com/cptrack/cptrack-api/internal/models"
)

// DeadlineCalculator maps (template, start time) to a deadline. MaxDays is
// fractional so the product can run review windows shorter than 24 hours.
type DeadlineCalculator struct {
	defaultDays float64
}

// NewDeadlineCalculator constructs the calculator. defaultDays is the
// window applied when a stage has no matching template.
func NewDeadlineCalculator(defaultDays float64) *DeadlineCalculator {
	if defaultDays <= 0 {
		defaultDays = 1
	}
	return &DeadlineCalculator{defaultDays: defaultDays}
}

// ForTemplate computes start + template.MaxDays at sub-day precision.
func (c *DeadlineCalculator) ForTemplate(tpl *models.StageTemplate, start time.Time) time.Time {
	days := c.defaultDays
	if tpl != nil && tpl.MaxDays > 0 {
		days = tpl.MaxDays
	}
	return start.Add(durationFromDays(days))
}

// ForStageName resolves the template by name in the snapshot. An unknown
// name falls back to the default window rather than raising.
func (c *DeadlineCalculator) ForStageName(snapshot *TemplateSnapshot, stageName string, start time.Time) time.Time {
	if snapshot == nil {
		return start.Add(durationFromDays(c.defaultDays))
	}
	return c.ForTemplate(snapshot.ByName(stageName), start)
}

func durationFromDays(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}
