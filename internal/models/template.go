package models

import "time"

// SkipCondition is a tagged variant naming the predicate that decides
// whether a template is materialized for a given paper.
type SkipCondition string

const (
	// SkipConditionNone never skips the template.
	SkipConditionNone SkipCondition = ""
	// SkipConditionNoStudents skips the template when the paper involves
	// no students (e.g. the SPS review step).
	SkipConditionNoStudents SkipCondition = "NO_STUDENTS_INVOLVED"
)

// Skip evaluates the condition against the paper context.
func (c SkipCondition) Skip(ctx PaperContext) bool {
	switch c {
	case SkipConditionNoStudents:
		return !ctx.StudentsInvolved
	default:
		return false
	}
}

// Reason describes why the condition skipped a stage, for audit metadata.
func (c SkipCondition) Reason() string {
	switch c {
	case SkipConditionNoStudents:
		return "paper does not involve students"
	default:
		return ""
	}
}

// StageTemplate is the configured definition of one stage slot. Templates
// are configuration: mutating MaxDays never changes deadlines of stages
// that already started.
type StageTemplate struct {
	ID            string        `db:"id" json:"id"`
	StageOrder    int           `db:"stage_order" json:"stage_order"`
	Name          string        `db:"name" json:"name"`
	Role          UserRole      `db:"role" json:"role"`
	MaxDays       float64       `db:"max_days" json:"max_days"`
	SkipCondition SkipCondition `db:"skip_condition" json:"skip_condition"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}
