package assessment

import "errors"

var (
	ErrNoAssessment      = errors.New("assessment not found")
	ErrNoPracticeBank    = errors.New("practice bank not found")
	ErrNoSession         = errors.New("no attempt in progress")
	ErrNoPracticeSession = errors.New("practice session not found")
	ErrSessionClosed     = errors.New("practice session already submitted")
	ErrAttemptNotAllowed = errors.New("attempt not allowed")
	ErrPracticeRequired  = errors.New("remedial practice required before retaking")
	ErrPinned            = errors.New("student is in an assessment attempt")
	ErrDeadlinePassed    = errors.New("attempt time limit has passed")
	ErrUnconfirmed       = errors.New("submission outcome could not be confirmed")
	ErrInvalidSubmission = errors.New("invalid submission")
)
