// Package businessflow contains the core business logic and use cases for randomization workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Roster-related errors
	ErrClassNotFound   = errors.New("class not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrTeamNotFound    = errors.New("team not found")
	ErrStudentNotFound = errors.New("student not found")

	// Scope-related errors
	ErrScopeKindInvalid  = errors.New("scope kind is invalid")
	ErrScopeOutsideClass = errors.New("scope target does not belong to the class")

	// Participant set errors
	ErrEmptyParticipantSet  = errors.New("participant set is empty")
	ErrTooManyParticipants  = errors.New("participant set exceeds the supported size")
	ErrDuplicateParticipant = errors.New("participant set contains duplicates")

	// Shuffler errors
	ErrRunNotFound      = errors.New("shuffle run not found")
	ErrStudentNotInRun  = errors.New("student is not part of the run")
	ErrRunResultsBroken = errors.New("run results are unreadable")

	// Picker errors
	ErrInstanceNotFound     = errors.New("picker instance not found")
	ErrInstanceNameRequired = errors.New("instance name is required")
	ErrRoundNotFound        = errors.New("picker round not found")
	ErrRoundExhausted       = errors.New("every participant has been picked this round")
	ErrInstanceUpdateEmpty  = errors.New("at least one field must be provided for update")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")

	ErrCacheNotAvailable = errors.New("cache not available")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsClassNotFound(err error) bool {
	return errors.Is(err, ErrClassNotFound)
}

func IsGroupNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound)
}

func IsTeamNotFound(err error) bool {
	return errors.Is(err, ErrTeamNotFound)
}

func IsStudentNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound)
}

func IsScopeKindInvalid(err error) bool {
	return errors.Is(err, ErrScopeKindInvalid)
}

func IsScopeOutsideClass(err error) bool {
	return errors.Is(err, ErrScopeOutsideClass)
}

func IsEmptyParticipantSet(err error) bool {
	return errors.Is(err, ErrEmptyParticipantSet)
}

func IsTooManyParticipants(err error) bool {
	return errors.Is(err, ErrTooManyParticipants)
}

func IsDuplicateParticipant(err error) bool {
	return errors.Is(err, ErrDuplicateParticipant)
}

func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

func IsStudentNotInRun(err error) bool {
	return errors.Is(err, ErrStudentNotInRun)
}

func IsRunResultsBroken(err error) bool {
	return errors.Is(err, ErrRunResultsBroken)
}

func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

func IsInstanceNameRequired(err error) bool {
	return errors.Is(err, ErrInstanceNameRequired)
}

func IsRoundNotFound(err error) bool {
	return errors.Is(err, ErrRoundNotFound)
}

func IsRoundExhausted(err error) bool {
	return errors.Is(err, ErrRoundExhausted)
}

func IsInstanceUpdateEmpty(err error) bool {
	return errors.Is(err, ErrInstanceUpdateEmpty)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

func IsCacheNotAvailable(err error) bool {
	return errors.Is(err, ErrCacheNotAvailable)
}
