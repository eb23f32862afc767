package errs

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies an application error for HTTP mapping and logging.
type Kind int

const (
	KindNotFound Kind = iota
	KindPreconditionFailed
	KindValidationFailed
	KindForbidden
	KindExternalService
	KindConflict
)

// Error is the structured application error returned by the service layer.
// Message carries enough detail for the caller to act on (required vs actual
// state, missing/extra keys).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing entity.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// PreconditionFailed reports an operation attempted in the wrong state.
func PreconditionFailed(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: fmt.Sprintf(format, args...)}
}

// ValidationFailed reports a structural mismatch in the request payload.
func ValidationFailed(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidationFailed, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports an authorization, role, or assignment mismatch.
func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// ExternalService wraps a failed payment-processor or storage call.
func ExternalService(message string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: message, Err: err}
}

// Conflict reports a tripped idempotency guard, e.g. a duplicate charge.
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error to the status code the API reports for it.
// Precondition and validation failures surface as 400 to match the
// processor-facing API contract.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindNotFound:
			return fiber.StatusNotFound
		case KindForbidden:
			return fiber.StatusForbidden
		case KindConflict:
			return fiber.StatusConflict
		case KindExternalService:
			return fiber.StatusBadGateway
		default:
			return fiber.StatusBadRequest
		}
	}
	return fiber.StatusInternalServerError
}

// Respond writes err as the standard JSON error envelope.
func Respond(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("ERROR unhandled: %v", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
