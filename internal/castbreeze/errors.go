package castbreeze

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the failure class of a connector operation. Kinds are
// stable strings so route handlers and logs can switch on them.
type ErrorKind string

const (
	KindMissingCredential      ErrorKind = "MISSING_CREDENTIAL"
	KindTokenExchangeFailed    ErrorKind = "TOKEN_EXCHANGE_FAILED"
	KindRefreshFailed          ErrorKind = "REFRESH_FAILED"
	KindMalformedTokenResponse ErrorKind = "MALFORMED_TOKEN_RESPONSE"
	KindAuthTestFailed         ErrorKind = "AUTH_TEST_FAILED"
	KindNotAuthenticated       ErrorKind = "NOT_AUTHENTICATED"
	KindHouseholdFetchFailed   ErrorKind = "HOUSEHOLD_FETCH_FAILED"
	KindNoHouseholds           ErrorKind = "NO_HOUSEHOLDS"
	KindGroupFetchFailed       ErrorKind = "GROUP_FETCH_FAILED"
	KindMissingFile            ErrorKind = "MISSING_FILE"
	KindPlaybackFailed         ErrorKind = "PLAYBACK_FAILED"
	KindAudioClipFailed        ErrorKind = "AUDIO_CLIP_FAILED"
	KindRecoverableAuthFailure ErrorKind = "RECOVERABLE_AUTH_FAILURE"
	KindTerminalAuthFailure    ErrorKind = "TERMINAL_AUTH_FAILURE"
	KindPermissionDenied       ErrorKind = "PERMISSION_DENIED"
	KindGenericAPIError        ErrorKind = "GENERIC_API_ERROR"
)

// Error is the connector's domain error. Status and Body carry the remote
// response when the failure came off the wire.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int
	Body    string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a domain error with no remote context.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func newRemoteError(kind ErrorKind, message string, resp *Response) *Error {
	e := &Error{Kind: kind, Message: message}
	if resp != nil {
		e.Status = resp.Status
		e.Body = string(resp.RawBody)
	}
	return e
}

// IsKind reports whether err is a connector Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var cbErr *Error
	return errors.As(err, &cbErr) && cbErr.Kind == kind
}

// KindOf returns the kind of a connector Error, or "" for any other error.
func KindOf(err error) ErrorKind {
	var cbErr *Error
	if errors.As(err, &cbErr) {
		return cbErr.Kind
	}
	return ""
}

// isAuthFlowError reports whether err is one of the classifier-produced kinds
// that must propagate untouched so the retry layer can see them.
func isAuthFlowError(err error) bool {
	switch KindOf(err) {
	case KindRecoverableAuthFailure, KindTerminalAuthFailure, KindPermissionDenied:
		return true
	}
	return false
}

// wrapComponent converts a gateway failure into a component-specific kind,
// letting auth-flow kinds pass through untouched.
func wrapComponent(err error, resp *Response, kind ErrorKind, message string) error {
	if isAuthFlowError(err) {
		return err
	}
	if resp != nil && resp.Status >= 400 {
		return newRemoteError(kind, message+": "+remoteDescription(resp), resp)
	}
	if err != nil {
		return &Error{Kind: kind, Message: fmt.Sprintf("%s: %v", message, err)}
	}
	return newRemoteError(kind, message, resp)
}
