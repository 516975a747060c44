package apperrors

// ErrorCode identifies a failure condition in a machine-readable way.
type ErrorCode string

const (
	ErrorCodeInternalError   ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden       ErrorCode = "FORBIDDEN"

	// Connector surface (device pairing) auth.
	ErrorCodeAuthPairingExpired ErrorCode = "AUTH_PAIRING_EXPIRED"
	ErrorCodeAuthPairingInvalid ErrorCode = "AUTH_PAIRING_INVALID"
	ErrorCodeAuthTokenExpired   ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid   ErrorCode = "AUTH_TOKEN_INVALID"

	// CastBreeze cloud operations.
	ErrorCodeMissingCredential      ErrorCode = "MISSING_CREDENTIAL"
	ErrorCodeTokenExchangeFailed    ErrorCode = "TOKEN_EXCHANGE_FAILED"
	ErrorCodeRefreshFailed          ErrorCode = "REFRESH_FAILED"
	ErrorCodeMalformedTokenResponse ErrorCode = "MALFORMED_TOKEN_RESPONSE"
	ErrorCodeAuthTestFailed         ErrorCode = "AUTH_TEST_FAILED"
	ErrorCodeNotAuthenticated       ErrorCode = "NOT_AUTHENTICATED"
	ErrorCodeHouseholdFetchFailed   ErrorCode = "HOUSEHOLD_FETCH_FAILED"
	ErrorCodeNoHouseholds           ErrorCode = "NO_HOUSEHOLDS"
	ErrorCodeGroupFetchFailed       ErrorCode = "GROUP_FETCH_FAILED"
	ErrorCodeMissingFile            ErrorCode = "MISSING_FILE"
	ErrorCodePlaybackFailed         ErrorCode = "PLAYBACK_FAILED"
	ErrorCodeAudioClipFailed        ErrorCode = "AUDIO_CLIP_FAILED"
	ErrorCodeRecoverableAuthFailure ErrorCode = "RECOVERABLE_AUTH_FAILURE"
	ErrorCodeTerminalAuthFailure    ErrorCode = "TERMINAL_AUTH_FAILURE"
	ErrorCodePermissionDenied       ErrorCode = "PERMISSION_DENIED"
	ErrorCodeGenericAPIError        ErrorCode = "GENERIC_API_ERROR"
)

// Remediation provides guidance on how to fix an error.
type Remediation struct {
	Action     string `json:"action"`
	Endpoint   string `json:"endpoint,omitempty"`
	UserAction string `json:"user_action,omitempty"`
}

// ErrorType categorizes errors following Stripe API conventions.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates invalid parameters, missing required fields, etc.
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAPIError indicates an internal API error.
	ErrorTypeAPIError ErrorType = "api_error"
	// ErrorTypeAuthError indicates authentication or authorization failure.
	ErrorTypeAuthError ErrorType = "authentication_error"
)

// StripeErrorBody is the serialized error payload.
// Format: {"type": "invalid_request_error", "code": "NOT_FOUND", "message": "..."}
type StripeErrorBody struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// AppError is the base error type for HTTP responses.
type AppError struct {
	Code        ErrorCode
	Message     string
	StatusCode  int
	Details     map[string]any
	Remediation *Remediation
}

func (err *AppError) Error() string {
	return err.Message
}

// StripeErrorBody returns the error in Stripe API format.
func (err *AppError) StripeErrorBody() StripeErrorBody {
	errType := ErrorTypeAPIError
	switch {
	case err.StatusCode == 401 || err.StatusCode == 403:
		errType = ErrorTypeAuthError
	case err.StatusCode >= 400 && err.StatusCode < 500:
		errType = ErrorTypeInvalidRequest
	}

	return StripeErrorBody{
		Type:    errType,
		Code:    string(err.Code),
		Message: err.Message,
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any, remediation *Remediation) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		Details:     details,
		Remediation: remediation,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details, nil)
}

func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, 401, nil, nil)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrorCodeForbidden, message, 403, nil, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details, nil)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil, nil)
}

// EnsureAppError converts an arbitrary error into an AppError.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError("Internal server error")
}
