package forecastapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies every failure the dashboard can surface to an operator.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindHTTP       Kind = "http"
	KindParse      Kind = "parse"
	KindValidation Kind = "validation"
	KindAborted    Kind = "aborted"
)

// Error is the single error type returned by the client. Op names the
// logical operation ("predict", "upload", ...), not the URL.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindHTTP && e.Detail != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Detail)
	case e.Kind == KindHTTP:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the French banner text shown to operators. Technical details
// stay in Error() for the logs.
func (e *Error) Message() string {
	switch e.Kind {
	case KindNetwork:
		return "Impossible de joindre le service. Vérifiez votre connexion et réessayez."
	case KindHTTP:
		if e.Detail != "" {
			return e.Detail
		}
		if e.Status >= 500 {
			return fmt.Sprintf("Le service a rencontré une erreur (code %d). Veuillez réessayer.", e.Status)
		}
		return fmt.Sprintf("La requête a été refusée par le service (code %d).", e.Status)
	case KindParse:
		return "Réponse inattendue du service. Veuillez réessayer plus tard."
	case KindValidation:
		if e.Detail != "" {
			return e.Detail
		}
		return "Le formulaire contient des valeurs invalides."
	case KindAborted:
		return "Requête annulée."
	}
	return "Une erreur inconnue est survenue."
}

// MarshalJSON exposes the banner view of the error to the browser.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    Kind   `json:"kind"`
		Status  int    `json:"status,omitempty"`
		Message string `json:"message"`
	}{e.Kind, e.Status, e.Message()})
}

// KindOf returns the kind of err, or "" for a nil error. Errors that did not
// come from the client are classified by their context cause.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindAborted
	}
	return KindNetwork
}

// IsAborted reports whether err is a cancellation.
func IsAborted(err error) bool {
	return KindOf(err) == KindAborted
}

// AsError returns err as an *Error, wrapping foreign errors.
func AsError(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// ValidationError builds a client-side validation failure.
func ValidationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Detail: message}
}

func parseError(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

func parseErrorf(op, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Op: op, Err: fmt.Errorf(format, args...)}
}

func transportError(op string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindAborted, Op: op, Err: err}
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}
