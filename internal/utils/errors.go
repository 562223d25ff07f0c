package utils

import (
	"errors"
	"net/http"
)

// Error categories returned to callers. Every refusal maps to exactly one.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeBadRequest         = "BAD_REQUEST"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError is a structured refusal. Code is the category, Reason the
// machine-readable cause and Message the human-readable text shown to users.
type AppError struct {
	Code    string
	Reason  string
	Message string
	Details []string
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches on Reason so that copies produced by WithMessage/WithDetails
// still compare equal to the sentinel they came from.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// WithMessage returns a copy of e with a different message.
func (e *AppError) WithMessage(msg string) *AppError {
	cp := *e
	cp.Message = msg
	return &cp
}

// WithDetails returns a copy of e carrying details.
func (e *AppError) WithDetails(details []string) *AppError {
	cp := *e
	cp.Details = append([]string(nil), details...)
	return &cp
}

// HTTPStatus maps the error category to an HTTP status code.
func (e *AppError) HTTPStatus() int {
	return StatusForCode(e.Code)
}

// StatusForCode maps an error category to an HTTP status code.
func StatusForCode(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func newErr(code, reason, msg string) *AppError {
	return &AppError{Code: code, Reason: reason, Message: msg}
}

// AsAppError extracts an *AppError from err.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Common application errors used across services.
var (
	ErrInvalidToken       = newErr(CodeUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
	ErrInvalidCredentials = newErr(CodeUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	ErrAccountInactive    = newErr(CodeForbidden, "ACCOUNT_INACTIVE", "Account is inactive")
	ErrRoleNotAllowed     = newErr(CodeForbidden, "ROLE_NOT_ALLOWED", "Your role cannot perform this action")
	ErrInvalidRequest     = newErr(CodeBadRequest, "INVALID_REQUEST", "Invalid request body")
	ErrEmailTaken         = newErr(CodeConflict, "EMAIL_TAKEN", "Email is already registered")

	ErrUserNotFound         = newErr(CodeNotFound, "USER_NOT_FOUND", "User not found")
	ErrServiceTypeNotFound  = newErr(CodeNotFound, "SERVICE_TYPE_NOT_FOUND", "Service type not found")
	ErrPackageNotFound      = newErr(CodeNotFound, "PACKAGE_NOT_FOUND", "Package not found")
	ErrRequestNotFound      = newErr(CodeNotFound, "REQUEST_NOT_FOUND", "Request not found")
	ErrSubscriptionNotFound = newErr(CodeNotFound, "SUBSCRIPTION_NOT_FOUND", "Subscription not found")
	ErrPaymentNotFound      = newErr(CodeNotFound, "PAYMENT_NOT_FOUND", "Payment not found")

	ErrNoActiveSubscription = newErr(CodePreconditionFailed, "NO_ACTIVE_SUBSCRIPTION", "You have no active subscription. Subscribe to a package to continue")
	ErrInsufficientCredits  = newErr(CodePreconditionFailed, "INSUFFICIENT_CREDITS", "Insufficient credits. Buy more credits to continue")
	ErrServiceNotInPlan     = newErr(CodeForbidden, "SERVICE_NOT_IN_PLAN", "Your plan does not include this service. Upgrade your package to use it")
	ErrInvalidAttributes    = newErr(CodeBadRequest, "INVALID_ATTRIBUTES", "Invalid attribute responses")
	ErrInvalidPriority      = newErr(CodeBadRequest, "INVALID_PRIORITY", "Priority must be 1 (low), 2 (medium) or 3 (high)")

	ErrInvalidStatus        = newErr(CodePreconditionFailed, "INVALID_STATUS", "Request is not in a state that allows this action")
	ErrNotRequestOwner      = newErr(CodeForbidden, "NOT_REQUEST_OWNER", "You do not own this request")
	ErrNotAssignedProvider  = newErr(CodeForbidden, "NOT_ASSIGNED_PROVIDER", "You are not assigned to this request")
	ErrProviderNotQualified = newErr(CodeForbidden, "PROVIDER_NOT_QUALIFIED", "You do not provide this service")
	ErrAlreadyClaimed       = newErr(CodeConflict, "ALREADY_CLAIMED", "Request has already been claimed")
	ErrAlreadyRated         = newErr(CodeConflict, "ALREADY_RATED", "Request has already been rated")
	ErrInvalidRating        = newErr(CodeBadRequest, "INVALID_RATING", "Rating must be between 1 and 5")
	ErrDuplicateSubmission  = newErr(CodeConflict, "DUPLICATE_SUBMISSION", "A request with this idempotency key is still being processed")

	ErrFreePackage             = newErr(CodePreconditionFailed, "FREE_PACKAGE", "The free package cannot be subscribed to or deleted")
	ErrPackageInactive         = newErr(CodePreconditionFailed, "PACKAGE_INACTIVE", "Package is not available")
	ErrPendingSubscription     = newErr(CodeConflict, "PENDING_SUBSCRIPTION_EXISTS", "You already have a subscription awaiting payment verification")
	ErrSubscriptionNotPending  = newErr(CodePreconditionFailed, "SUBSCRIPTION_NOT_PENDING", "Subscription is not awaiting payment")
	ErrProofExists             = newErr(CodeConflict, "PROOF_EXISTS", "Payment proof has already been submitted")
	ErrPaymentNotPending       = newErr(CodeConflict, "PAYMENT_NOT_PENDING", "Payment has already been reviewed")
	ErrServiceTypeNameTaken    = newErr(CodeConflict, "SERVICE_TYPE_NAME_TAKEN", "A service type with this name already exists")
	ErrInvalidServiceType      = newErr(CodeBadRequest, "INVALID_SERVICE_TYPE", "Invalid service type definition")
	ErrInvalidPackage          = newErr(CodeBadRequest, "INVALID_PACKAGE", "Invalid package definition")
	ErrProofStorageUnavailable = newErr(CodePreconditionFailed, "PROOF_STORAGE_UNAVAILABLE", "Payment proof upload is not available")
)
