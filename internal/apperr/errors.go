package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned when a customer, ledger or session does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNothingToUndo is returned by undo on an empty history.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrConnectivity aborts a send session before anyone is contacted.
	ErrConnectivity = errors.New("no internet connection")
	// ErrFileLocked means the workbook is open in another program.
	ErrFileLocked = errors.New("file is locked")
	// ErrCorruptFile marks a workbook whose header does not match the expected schema.
	ErrCorruptFile = errors.New("file schema is corrupt")
	// ErrSessionRunning is returned when a second send session is started for the same month.
	ErrSessionRunning = errors.New("a send session is already running")
	// ErrAlreadySent is returned when a customer already has a sent record for the month.
	ErrAlreadySent = errors.New("bill already sent for this month")
	// ErrInvalidTransition protects the send-status state machine.
	ErrInvalidTransition = errors.New("invalid send status transition")
)

// ValidationError is bad user input. The operation that returned it made no changes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// FromValidator converts validator.ValidationErrors into a ValidationError on the first failing field.
func FromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return Validation(field, "is required")
	case "len":
		return Validation(field, "must be exactly %s digits", fe.Param())
	case "numeric", "number":
		return Validation(field, "must contain digits only")
	case "min":
		return Validation(field, "must be at least %s characters", fe.Param())
	default:
		return Validation(field, "failed %s check", fe.Tag())
	}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IOError is a failure to read or write a workbook. Path names the offending file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IO wraps err with the operation and path. Nil stays nil.
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// DeliveryError is a per-customer send failure. Reason is already shortened for display.
type DeliveryError struct {
	CustomerID string
	Reason     string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %s", e.CustomerID, e.Reason)
}

// ShortReason keeps the first three words of a failure message.
func ShortReason(msg string) string {
	words := strings.Fields(msg)
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

// HTTPStatus maps the taxonomy onto response codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNothingToUndo), errors.Is(err, ErrSessionRunning), errors.Is(err, ErrAlreadySent):
		return http.StatusConflict
	case errors.Is(err, ErrFileLocked):
		return http.StatusLocked
	case errors.Is(err, ErrConnectivity):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
