package dto

// DeactivateUserRequest carries the reassignment map required when the
// target user still owns non-terminal stages. Keys are stage IDs, values
// are replacement user IDs. The map must cover every affected stage.
type DeactivateUserRequest struct {
	Reassignments map[string]string `json:"reassignments"`
}
