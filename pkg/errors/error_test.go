package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "codearena/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{InvalidParams, "Invalid parameters"},
		{LanguageNotSupported, "Programming language not supported"},
		{InvalidStateTransition, "Action is not allowed in the current state"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{ValidationFailed, 400},
		{LanguageNotSupported, 400},
		{Unauthorized, 401},
		{TokenExpired, 401},
		{AttemptNotFound, 404},
		{InvalidStateTransition, 409},
		{ExecutionTransportFailed, 502},
		{ChallengeFetchFailed, 502},
		{ServiceUnavailable, 503},
		{ExecutionTimeout, 504},
		{InternalServerError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(AttemptNotFound, "attempt %s not found", "a-1")
	if err.Error() != "attempt a-1 not found" {
		t.Errorf("Error() = %v", err.Error())
	}
	if err.Code != AttemptNotFound {
		t.Errorf("Code = %v, want %v", err.Code, AttemptNotFound)
	}
}

func TestWrapForeignError(t *testing.T) {
	original := errors.New("connection refused")
	err := Wrap(original, ExecutionTransportFailed)

	if err.Code != ExecutionTransportFailed {
		t.Errorf("Code = %v, want %v", err.Code, ExecutionTransportFailed)
	}
	if !errors.Is(err, original) {
		t.Error("errors.Is should find the original error")
	}
	if Wrap(nil, InternalServerError) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapDoesNotMutateExisting(t *testing.T) {
	inner := New(ExecutionTimeout).WithDetail("attempts", 10)
	outer := Wrap(inner, ServiceUnavailable)

	if inner.Code != ExecutionTimeout {
		t.Errorf("inner code changed to %v", inner.Code)
	}
	if outer.Code != ServiceUnavailable {
		t.Errorf("outer code = %v", outer.Code)
	}
	outer.WithDetail("extra", true)
	if _, ok := inner.Details["extra"]; ok {
		t.Error("details map should not be shared")
	}
}

func TestGetCodeThroughFmtWrap(t *testing.T) {
	base := New(LanguageNotSupported)
	wrapped := fmt.Errorf("grade: %w", base)

	if got := GetCode(wrapped); got != LanguageNotSupported {
		t.Errorf("GetCode() = %v, want %v", got, LanguageNotSupported)
	}
	if !Is(wrapped, LanguageNotSupported) {
		t.Error("Is() should see through fmt wrapping")
	}
	if GetCode(nil) != Success {
		t.Error("GetCode(nil) should be Success")
	}
	if GetCode(errors.New("plain")) != InternalServerError {
		t.Error("plain errors should map to InternalServerError")
	}
}

func TestGetError(t *testing.T) {
	if GetError(nil) != nil {
		t.Fatal("GetError(nil) should be nil")
	}
	e := GetError(errors.New("boom"))
	if e.Code != InternalServerError || e.Error() != "boom" {
		t.Errorf("unexpected error %+v", e)
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("source", "must not be blank")
	if err.Code != ValidationFailed {
		t.Errorf("Code = %v", err.Code)
	}
	if err.Details["field"] != "source" || err.Details["reason"] != "must not be blank" {
		t.Errorf("Details = %v", err.Details)
	}
	if err.Error() != "source: must not be blank" {
		t.Errorf("Error() = %v", err.Error())
	}
}
