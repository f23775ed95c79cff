package httputil

// Machine-readable error codes returned in ErrorResponse.Code
const (
	// Request
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeCooldownActive     = "COOLDOWN_ACTIVE"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeNotFound           = "NOT_FOUND"

	// Authentication
	CodeMissingAuth          = "MISSING_AUTH"
	CodeInvalidAuthHeader    = "INVALID_AUTH_HEADER"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeInvalidTokenUserID   = "INVALID_TOKEN_USER_ID"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeNotVerified          = "NOT_VERIFIED"
	CodeRefreshTokenRequired = "REFRESH_TOKEN_REQUIRED"
	CodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"

	// Registration and OTP
	CodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"
	CodeEmailRequired      = "EMAIL_REQUIRED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInvalidOrExpired   = "INVALID_OR_EXPIRED_OTP"
	CodeNotificationFailed = "NOTIFICATION_FAILED"
	CodeTooManyAttempts    = "TOO_MANY_OTP_ATTEMPTS"

	// Documents and stamps
	CodeActionNotPermitted = "ACTION_NOT_PERMITTED"
	CodeDuplicateSerial    = "DUPLICATE_SERIAL"
	CodeInvalidSerial      = "INVALID_SERIAL"
	CodeInvalidFileKey     = "INVALID_FILE_KEY"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)
