package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CallbackErrorBadInput           = "CALLBACK_BAD_INPUT"
	CallbackErrorNotFound           = "CALLBACK_NOT_FOUND"
	CallbackErrorVerificationFailed = "CALLBACK_VERIFICATION_FAILED"
	CallbackErrorDuplicateDelivery  = "CALLBACK_DUPLICATE_DELIVERY"
	CallbackErrorDeliveryTransient  = "CALLBACK_DELIVERY_TRANSIENT"
	CallbackErrorDeliveryPermanent  = "CALLBACK_DELIVERY_PERMANENT"
	CallbackErrorRetryExhausted     = "CALLBACK_RETRY_EXHAUSTED"
	CallbackErrorLeaseConflict      = "CALLBACK_LEASE_CONFLICT"
	CallbackErrorInternal           = "CALLBACK_INTERNAL_ERROR"
)

func callbackErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureCallbackErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newCallbackError(err.Error(), goerrors.CategoryAuth, CallbackErrorVerificationFailed)
	case strings.Contains(msg, "not found"):
		return newCallbackError(err.Error(), goerrors.CategoryNotFound, CallbackErrorNotFound)
	case strings.Contains(msg, "lease"), strings.Contains(msg, "already claimed"):
		return newCallbackError(err.Error(), goerrors.CategoryConflict, CallbackErrorLeaseConflict)
	case strings.Contains(msg, "terminal"):
		return newCallbackError(err.Error(), goerrors.CategoryConflict, CallbackErrorRetryExhausted)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newCallbackError(err.Error(), goerrors.CategoryBadInput, CallbackErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureCallbackErrorEnvelope(mapped)
}

func newCallbackError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureCallbackErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureCallbackErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = callbackHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultCallbackTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultCallbackTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return CallbackErrorBadInput
	case goerrors.CategoryNotFound:
		return CallbackErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return CallbackErrorVerificationFailed
	case goerrors.CategoryConflict:
		return CallbackErrorLeaseConflict
	case goerrors.CategoryExternal:
		return CallbackErrorDeliveryTransient
	default:
		return CallbackErrorInternal
	}
}

func callbackHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
