package pipeline

import (
	"errors"
	"strings"
)

var (
	// ErrNotReady is returned by Convert when no file can be converted yet.
	ErrNotReady = errors.New("files are not ready for conversion")
	// ErrQuotaExceeded is returned by Convert when the usage gate denies the run.
	ErrQuotaExceeded = errors.New("conversion limit reached")
)

// UserError carries a message safe to show to users and the underlying cause.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string { return e.Msg }

func (e *UserError) Unwrap() error { return e.Err }

// UserMessage returns the text a user should see for err. UserErrors yield
// their message; other errors are shown verbatim with step prefixes removed.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Msg
	}
	var se *StepError
	if errors.As(err, &se) && se.Err != nil {
		return UserMessage(se.Err)
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return MsgUnknownFailure
	}
	return msg
}
