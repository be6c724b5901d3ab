package errors

// Error codes for standardized error responses.
const (
	// Authentication
	ErrCodeAuthenticationRequired = "authentication_required"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeForbidden              = "forbidden"

	// Validation
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"

	// Resources
	ErrCodeGroupNotFound    = "group_not_found"
	ErrCodeQuestionNotFound = "question_not_found"
	ErrCodePlayerNotFound   = "player_not_found"

	// Quiz lifecycle
	ErrCodeInvalidState = "invalid_state"
	ErrCodeGroupNotOpen = "group_not_open"
	ErrCodePlanLimit    = "plan_limit_reached"
	ErrCodeJoinFailed   = "join_failed"
	ErrCodeSubmitFailed = "submit_failed"

	// Server
	ErrCodeInternalError  = "internal_error"
	ErrCodeStorageFailure = "storage_failure"
)
