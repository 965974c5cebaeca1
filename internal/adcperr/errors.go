// Package adcperr centralizes the literal wire error-code strings returned
// to AdCP callers and the envelope-level Error type they are
// carried in.
package adcperr

import "fmt"

// Wire error codes. These strings are part of the external contract and must
// never be renamed.
const (
	CodeValidation           = "validation_error"
	CodeInvalidDatetime      = "invalid_datetime"
	CodeInvalidBudget        = "invalid_budget"
	CodeAuthentication       = "authentication_error"
	CodeInvalidAuthToken     = "INVALID_AUTH_TOKEN"
	CodePolicyViolation      = "POLICY_VIOLATION"
	CodePricingError         = "PRICING_ERROR"
	CodeCurrencyNotSupported = "currency_not_supported"
	CodeBudgetLimitExceeded  = "budget_limit_exceeded"
	CodeFormatValidation     = "FORMAT_VALIDATION_ERROR"
	CodeCreativesNotFound    = "CREATIVES_NOT_FOUND"
	CodeInvalidConfiguration = "invalid_configuration"
	CodeMediaBuyCreation     = "MEDIA_BUY_CREATION_ERROR"
	CodeAdapterTimeout       = "ADAPTER_TIMEOUT"
	CodeDeprecated           = "DEPRECATED"
	CodeSetupIncomplete      = "setup_incomplete"
	CodeToolError            = "TOOL_ERROR"
	CodePermission           = "permission_error"
	CodeNotFound             = "not_found"
)

// Error is the structured error shape carried in a tool response's
// errors: [{code, message, details?}] array.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error for the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of e carrying the supplied details string.
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

// Validation, Pricing, Policy, Adapter and Permission are convenience
// constructors for the codes exercised most often by the pipeline.
func Validation(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

func Pricing(format string, args ...any) *Error {
	return Newf(CodePricingError, format, args...)
}

func Policy(format string, args ...any) *Error {
	return Newf(CodePolicyViolation, format, args...)
}

func Adapter(format string, args ...any) *Error {
	return Newf(CodeMediaBuyCreation, format, args...)
}

func Timeout(format string, args ...any) *Error {
	return Newf(CodeAdapterTimeout, format, args...)
}

func Permission(format string, args ...any) *Error {
	return Newf(CodePermission, format, args...)
}

func Auth(format string, args ...any) *Error {
	return Newf(CodeInvalidAuthToken, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

func SetupIncomplete(missing []string) *Error {
	return &Error{
		Code:    CodeSetupIncomplete,
		Message: "tenant setup is incomplete",
		Details: fmt.Sprintf("missing: %v", missing),
	}
}
