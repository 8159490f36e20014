package apiErrors

import "fmt"

type ErrorCode string

const (
	ValidationError     ErrorCode = "VALIDATION_ERROR"
	RadarLimitExceeded  ErrorCode = "RADAR_LIMIT_EXCEEDED"
	RepoLimitExceeded   ErrorCode = "REPO_LIMIT_EXCEEDED"
	TotalLimitExceeded  ErrorCode = "TOTAL_REPO_LIMIT_EXCEEDED"
	DuplicateMembership ErrorCode = "DUPLICATE_MEMBERSHIP"
	NotFound            ErrorCode = "NOT_FOUND"
	AuthRequired        ErrorCode = "AUTH_REQUIRED"
	InternalError       ErrorCode = "INTERNAL_ERROR"
)

type APIError struct {
	Code    ErrorCode
	Message string
	// Limit carries the numeric capacity for the *_LIMIT_EXCEEDED codes so
	// callers can render the exact number; zero for every other code.
	Limit int
}

func (e APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e APIError) IsLimit() bool {
	switch e.Code {
	case RadarLimitExceeded, RepoLimitExceeded, TotalLimitExceeded:
		return true
	default:
		return false
	}
}
