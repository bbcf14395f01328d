package ledger

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carehub/ledger/internal/platform/auth"
)

var ErrNotFound = errors.New("not found")

// ValidationError is a local invariant violation. No remote I/O happens
// before it is returned.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Entity, e.Field, e.Reason)
}

// TransitionError means the target status is not reachable from the current one.
type TransitionError struct {
	Entity string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition from %q to %q", e.Entity, e.From, e.To)
}

// RemoteProcedureError is a failed atomic procedure call. The update protocol
// recovers from it by falling back to a direct row update.
type RemoteProcedureError struct {
	Procedure string
	Err       error
}

func (e *RemoteProcedureError) Error() string {
	return fmt.Sprintf("remote procedure %s: %v", e.Procedure, e.Err)
}

func (e *RemoteProcedureError) Unwrap() error { return e.Err }

// NotAppliedError means a write reported success but changed no rows.
type NotAppliedError struct {
	Entity string
	ID     string
	Path   Path
}

func (e *NotAppliedError) Error() string {
	return fmt.Sprintf("%s %s: update not applied (0 rows affected via %s)", e.Entity, e.ID, e.Path)
}

// WriteError is returned when both the procedure and the fallback update failed.
type WriteError struct {
	Entity    string
	ID        string
	Procedure error
	Fallback  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: write failed: %v; fallback: %v", e.Entity, e.ID, e.Procedure, e.Fallback)
}

func (e *WriteError) Unwrap() []error {
	var errs []error
	if e.Procedure != nil {
		errs = append(errs, e.Procedure)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// AuditWriteError is a failed best-effort audit write. It is logged and
// counted by the audit queue and never returned to callers.
type AuditWriteError struct {
	Entity string
	ID     string
	Task   string
	Err    error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit %s for %s %s: %v", e.Task, e.Entity, e.ID, e.Err)
}

func (e *AuditWriteError) Unwrap() error { return e.Err }

// StatusCode maps a ledger error to the HTTP status surfaced to the admin UI.
func StatusCode(err error) int {
	var (
		validation *ValidationError
		transition *TransitionError
		notApplied *NotAppliedError
		write      *WriteError
		procedure  *RemoteProcedureError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transition), errors.As(err, &notApplied):
		return http.StatusConflict
	case errors.As(err, &write), errors.As(err, &procedure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err for an echo handler.
func HTTPError(err error) error {
	return echo.NewHTTPError(StatusCode(err), err.Error())
}
