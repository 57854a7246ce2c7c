package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrValidation,
		Message: "question is required",
	}

	expected := "validation_error: question is required"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrNotFound,
		Message: "audio clip not found",
		Code:    "audio_not_found",
	}

	expected := "not_found_error: audio clip not found (code: audio_not_found)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestWrap_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(ErrTranscription, "transcribe audio", cause)

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is(err, cause) = false, want true")
	}
	want := "transcription_error: transcribe audio: dial tcp: refused"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIsType_FollowsWrapChain(t *testing.T) {
	err := fmt.Errorf("append turn: %w", NewValidationError("answer is required", "answer"))

	if !IsType(err, ErrValidation) {
		t.Fatal("IsType(validation) = false, want true")
	}
	if IsType(err, ErrNotFound) {
		t.Fatal("IsType(not_found) = true, want false")
	}
	if IsType(nil, ErrValidation) {
		t.Fatal("IsType(nil) = true, want false")
	}
	if got := TypeOf(errors.New("plain")); got != "" {
		t.Fatalf("TypeOf(plain) = %q, want empty", got)
	}
}

func TestNewValidationError_CarriesParam(t *testing.T) {
	err := NewValidationError("concept is required", "concept")
	if err.Type != ErrValidation {
		t.Errorf("Type = %v, want %v", err.Type, ErrValidation)
	}
	if err.Param != "concept" {
		t.Errorf("Param = %q, want concept", err.Param)
	}
}

func TestIsStageFailure(t *testing.T) {
	tests := []struct {
		typ  ErrorType
		want bool
	}{
		{ErrCaptureDenied, true},
		{ErrTranscription, true},
		{ErrAnswerGeneration, true},
		{ErrSynthesis, true},
		{ErrPersistence, false},
		{ErrValidation, false},
		{ErrNotFound, false},
	}
	for _, tc := range tests {
		if got := IsStageFailure(tc.typ); got != tc.want {
			t.Errorf("IsStageFailure(%q) = %v, want %v", tc.typ, got, tc.want)
		}
	}
}
