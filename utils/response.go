package utils

import (
	"errors"
	"net/http"
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type OkResponse[T any] struct {
	Payload T `json:"payload"`
}

func CreateOkResponse[T any](obj T) (int, OkResponse[T]) {
	return http.StatusOK, OkResponse[T]{Payload: obj}
}

func CreateCreatedResponse[T any](obj T) (int, OkResponse[T]) {
	return http.StatusCreated, OkResponse[T]{Payload: obj}
}

func CreateErrorResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, ErrorInvalidName),
		errors.Is(err, ErrorNameAllocation),
		errors.Is(err, ErrorNameTaken),
		errors.Is(err, ErrorInvalidChannelToken),
		errors.Is(err, ErrorInvalidCredentials),
		errors.Is(err, ErrorExpiryCapExceeded),
		errors.Is(err, ErrorMintAlreadyDone),
		errors.Is(err, ErrorMissingVmWallet),
		errors.Is(err, ErrorInstanceNotRunning),
		errors.Is(err, ErrorValidationError):
		return http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()}
	case errors.Is(err, ErrorUnauthorized),
		errors.Is(err, ErrorTokenInvalid):
		return http.StatusUnauthorized, ErrorResponse{Code: 401, Message: err.Error()}
	case errors.Is(err, ErrorForbidden):
		return http.StatusForbidden, ErrorResponse{Code: 403, Message: err.Error()}
	case errors.Is(err, ErrorInstanceNotFound):
		return http.StatusNotFound, ErrorResponse{Code: 404, Message: err.Error()}
	case errors.Is(err, ErrorMintInProgress):
		return http.StatusConflict, ErrorResponse{Code: 409, Message: err.Error()}
	case errors.Is(err, ErrorVmProvider),
		errors.Is(err, ErrorVmCapacity),
		errors.Is(err, ErrorSessionFailed):
		return http.StatusBadGateway, ErrorResponse{Code: 502, Message: err.Error()}
	case errors.Is(err, ErrorUpstreamUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Code: 503, Message: err.Error()}
	case errors.Is(err, ErrorDatabaseError):
		return http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()}
	}

	return http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()}
}

func CreateValidationError(err error) (int, ErrorResponse) {
	return http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()}
}
