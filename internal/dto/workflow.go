package dto

// AdvanceStageRequest completes the current stage and opens the next one.
type AdvanceStageRequest struct {
	Remarks string `json:"remarks" validate:"max=2000"`
}

// ReturnStageRequest sends the current stage back to its predecessor.
// Remarks are mandatory: the requisitioner must know why it came back.
type ReturnStageRequest struct {
	Remarks string `json:"remarks" validate:"required,max=2000"`
}

// RejectStageRequest terminally rejects the paper at the current stage.
type RejectStageRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// ReassignStageRequest hands a non-terminal stage to another user.
type ReassignStageRequest struct {
	NewUserID string `json:"newUserId" validate:"required,uuid4"`
}

// UpdateTemplateMaxDaysRequest changes a template's time budget. Stages
// that already started keep their snapshotted deadlines.
type UpdateTemplateMaxDaysRequest struct {
	MaxDays float64 `json:"maxDays" validate:"required,gt=0"`
}

// ScanReport summarizes a single overdue sweep.
type ScanReport struct {
	StagesScanned   int `json:"stagesScanned"`
	PapersScanned   int `json:"papersScanned"`
	StagesNotified  int `json:"stagesNotified"`
	PapersNotified  int `json:"papersNotified"`
	AlreadyNotified int `json:"alreadyNotified"`
	DispatchErrors  int `json:"dispatchErrors"`
}
