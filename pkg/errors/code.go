package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Authentication errors
// 12000-12999: Challenge data errors
// 13000-13999: Execution, grading & attempt errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Authentication Errors (11000-11999) ==========

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// ========== Challenge Data Errors (12000-12999) ==========

	ChallengeNotFound    ErrorCode = 12000
	ChallengeFetchFailed ErrorCode = 12001
	TestCaseInvalid      ErrorCode = 12102

	// ========== Execution, Grading & Attempt Errors (13000-13999) ==========

	// Submission recording (13000-13099)
	SubmissionRecordFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003

	// Remote execution (13100-13199)
	ExecutionTransportFailed ErrorCode = 13100
	ExecutionTimeout         ErrorCode = 13101
	ExecutionRejected        ErrorCode = 13102

	// Attempt lifecycle (13200-13299)
	AttemptNotFound        ErrorCode = 13200
	InvalidStateTransition ErrorCode = 13201
	SourceArchiveFailed    ErrorCode = 13202
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Authentication
	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	// Challenge data
	ChallengeNotFound:    "Challenge not found",
	ChallengeFetchFailed: "Failed to load challenge data",
	TestCaseInvalid:      "Invalid test case format",

	// Submission recording
	SubmissionRecordFailed: "Failed to record submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",

	// Remote execution
	ExecutionTransportFailed: "Execution service request failed",
	ExecutionTimeout:         "Execution timed out",
	ExecutionRejected:        "Execution service rejected the request",

	// Attempt lifecycle
	AttemptNotFound:        "Attempt not found",
	InvalidStateTransition: "Action is not allowed in the current state",
	SourceArchiveFailed:    "Failed to archive source code",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == ChallengeNotFound, c == AttemptNotFound:
		return 404
	case c == InvalidStateTransition:
		return 409
	case c == TooManyRequests:
		return 429
	case c == ExecutionTransportFailed, c == ChallengeFetchFailed, c == SubmissionRecordFailed:
		return 502
	case c == ServiceUnavailable:
		return 503
	case c == ExecutionTimeout, c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge, c == TestCaseInvalid:
		return 400
	default:
		return 500
	}
}
