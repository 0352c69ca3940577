// Package apperr defines the tagged error type shared by every stockcast component.
//
// Components return *Error values carrying a Kind so that boundary layers (CLI, MCP) can map
// failures to their own status codes without the core knowing about transports.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInsufficientData
	KindForecast
	KindModelTraining
	KindOptimization
	KindCache
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInsufficientData:
		return "insufficient_data"
	case KindForecast:
		return "forecast"
	case KindModelTraining:
		return "model_training"
	case KindOptimization:
		return "optimization"
	case KindCache:
		return "cache"
	default:
		return "internal"
	}
}

// Code returns the stable machine-readable code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "DATA_VALIDATION_ERROR"
	case KindNotFound:
		return "INVALID_PRODUCT"
	case KindInsufficientData:
		return "INSUFFICIENT_DATA"
	case KindForecast:
		return "FORECAST_ERROR"
	case KindModelTraining:
		return "MODEL_TRAINING_ERROR"
	case KindOptimization:
		return "OPTIMIZATION_ERROR"
	case KindCache:
		return "CACHE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is the error value returned across package boundaries.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	ProductID string

	// Validation context.
	Field string
	Value any

	// InsufficientData context.
	Required int
	Actual   int

	Err error
}

func (e *Error) Error() string {
	if e.Kind == KindInternal {
		// Internal causes stay out of the message; they are reachable through Unwrap for logs.
		if e.Op != "" {
			return e.Op + ": internal error"
		}
		return "internal error"
	}

	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the stable code of the error's kind.
func (e *Error) Code() string { return e.Kind.Code() }

// Details returns the structured context a caller can act on. Internal errors expose nothing.
func (e *Error) Details() map[string]any {
	d := map[string]any{}
	switch e.Kind {
	case KindInternal:
		return d
	case KindValidation:
		d["field"] = e.Field
		if e.Value != nil {
			d["value"] = fmt.Sprint(e.Value)
		}
	case KindInsufficientData:
		d["min_required"] = e.Required
		d["actual"] = e.Actual
	}
	if e.ProductID != "" {
		d["product_id"] = e.ProductID
	}
	return d
}

// Validation reports a bad caller-supplied parameter.
func Validation(op, field string, value any, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Value: value, Message: msg}
}

// NotFound reports an unknown product.
func NotFound(op, productID string) *Error {
	return &Error{
		Kind:      KindNotFound,
		Op:        op,
		ProductID: productID,
		Message:   fmt.Sprintf("product %q not found", productID),
	}
}

// InsufficientData reports a series that is too short to model.
func InsufficientData(op string, required, actual int) *Error {
	return &Error{
		Kind:     KindInsufficientData,
		Op:       op,
		Required: required,
		Actual:   actual,
		Message:  fmt.Sprintf("insufficient data: %d points (minimum %d required)", actual, required),
	}
}

// Forecast reports a business-rule failure while forecasting.
func Forecast(op, productID, msg string) *Error {
	return &Error{Kind: KindForecast, Op: op, ProductID: productID, Message: msg}
}

// ModelTraining reports a series that cannot support a model.
func ModelTraining(op, msg string, err error) *Error {
	return &Error{Kind: KindModelTraining, Op: op, Message: msg, Err: err}
}

// Optimization reports degenerate optimizer input.
func Optimization(op, productID, msg string) *Error {
	return &Error{Kind: KindOptimization, Op: op, ProductID: productID, Message: msg}
}

// Cache wraps a non-fatal cache-tier failure.
func Cache(op string, err error) *Error {
	return &Error{Kind: KindCache, Op: op, Err: err}
}

// Internal masks an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsUserError reports whether err is something the caller can fix or should be told about,
// as opposed to a technical failure.
func IsUserError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindInsufficientData, KindForecast, KindModelTraining, KindOptimization:
		return true
	default:
		return false
	}
}
