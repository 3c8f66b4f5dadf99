package helpers

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error Taxonomy
// -----------------------------------------------------------------------------

// AuthErrorKind classifies authentication failures.
type AuthErrorKind int

const (
	AuthNoTokenInResponse AuthErrorKind = iota
	AuthAllFormatsRejected
	AuthTimeout
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthNoTokenInResponse:
		return "no token in response"
	case AuthAllFormatsRejected:
		return "all credential formats rejected"
	default:
		return "authentication timed out"
	}
}

// AuthError is returned by the session manager when a token could not
// be acquired.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("auth: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("auth: %s", msg)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------

// FetchErrorKind classifies data fetch failures.
type FetchErrorKind int

const (
	FetchAuthRejected FetchErrorKind = iota
	FetchUnavailable
	FetchMalformedResponse
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchAuthRejected:
		return "auth rejected"
	case FetchUnavailable:
		return "upstream unavailable"
	default:
		return "malformed response"
	}
}

// FetchError is returned by the upstream client when a snapshot could
// not be fetched.
type FetchError struct {
	Kind    FetchErrorKind
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("fetch: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("fetch: %s", msg)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------
// Classification helpers
// -----------------------------------------------------------------------------

// IsAuthKind reports whether err is an AuthError of the given kind.
func IsAuthKind(err error, kind AuthErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}

// IsFetchKind reports whether err is a FetchError of the given kind.
func IsFetchKind(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
