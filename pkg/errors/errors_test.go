package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestCodeMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     ErrorCode
		httpCode int
		grpcCode codes.Code
	}{
		{"validation", InvalidInput("qty", "must be positive"), ErrCodeValidation, http.StatusBadRequest, codes.InvalidArgument},
		{"not found", NotFound("contract", "c-1"), ErrCodeNotFound, http.StatusNotFound, codes.NotFound},
		{"transition", IllegalTransition("contract", "active", "activate"), ErrCodeIllegalTransition, http.StatusConflict, codes.FailedPrecondition},
		{"concurrency", ConcurrencyConflict("contract", "c-1", 3), ErrCodeConcurrency, http.StatusConflict, codes.Aborted},
		{"conflict", New(ErrCodeConflict, "duplicate"), ErrCodeConflict, http.StatusConflict, codes.AlreadyExists},
		{"foreign", stderrors.New("boom"), ErrCodeInternal, http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.code {
				t.Errorf("CodeOf = %s, want %s", got, tt.code)
			}
			if got := HTTPStatus(tt.err); got != tt.httpCode {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.httpCode)
			}
			if got := GRPCCode(tt.err); got != tt.grpcCode {
				t.Errorf("GRPCCode = %s, want %s", got, tt.grpcCode)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeInternal, "failed to load contract")

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped error to unwrap to cause")
	}
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Error("expected Wrap(nil) to be nil")
	}
}

func TestIsCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("approve: %w", IllegalTransition("amendment", "approved", "cancel"))
	if !IsCode(err, ErrCodeIllegalTransition) {
		t.Error("expected IsCode to see through fmt wrapping")
	}
	if IsCode(err, ErrCodeValidation) {
		t.Error("unexpected validation code")
	}
}
