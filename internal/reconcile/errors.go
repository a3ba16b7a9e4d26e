package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrRemote is matched by errors.Is for every *RemoteFailure.
var ErrRemote = errors.New("remote reconciliation failed")

// Op names the remote call that failed.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// RemoteFailure is a terminal failure for one file: a non-success status on
// create or update, or a transport error.
type RemoteFailure struct {
	Op        Op
	Status    int
	Body      []byte
	RequestID string
	Err       error
}

func (e *RemoteFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Op, e.Status, strings.TrimSpace(string(e.Body)))
}

func (e *RemoteFailure) Unwrap() error { return e.Err }

func (e *RemoteFailure) Is(target error) bool { return target == ErrRemote }

// Message returns a short human readable reason. JSON bodies are searched
// for the usual error message fields; anything else is returned verbatim.
func (e *RemoteFailure) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if gjson.ValidBytes(e.Body) {
		for _, path := range []string{"message", "errors.0.message", "error"} {
			if res := gjson.GetBytes(e.Body, path); res.Exists() && res.String() != "" {
				return res.String()
			}
		}
	}
	return strings.TrimSpace(string(e.Body))
}
