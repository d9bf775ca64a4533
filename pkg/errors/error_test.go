package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "pmcharness/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{CountMismatch, "Counter count mismatch"},
		{UsageFailure, "Invalid usage"},
		{RealtimeDenied, "Failed to escalate to real-time scheduling"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_ExitCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		wantExit int
	}{
		{Success, 0},
		{InvalidFlags, 2},
		{PrivilegeRequired, 2},
		{SetupFailure, 3},
		{TooManyCounters, 3},
		{CountMismatch, 4},
		{AffinityFailed, 5},
		{ExecFailed, 6},
		{InternalError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.ExitCode(); got != tt.wantExit {
				t.Errorf("ExitCode() = %v, want %v", got, tt.wantExit)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CountMismatch, "read %d counters, expected %d", 3, 4)

	want := "read 3 counters, expected 4"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrapf(t *testing.T) {
	originalErr := errors.New("permission denied")
	wrappedErr := Wrapf(originalErr, SetupFailure, "open /dev/cpu/%d/msr", 2)

	if wrappedErr.Code != SetupFailure {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, SetupFailure)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if got := wrappedErr.Error(); got != "open /dev/cpu/2/msr: permission denied" {
		t.Errorf("Error() = %q", got)
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(ExecFailed), want: ExecFailed},
		{name: "fmt wrapped", err: fmt.Errorf("repetition 3: %w", New(CountMismatch)), want: CountMismatch},
		{name: "standard error", err: errors.New("standard error"), want: InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMatchesCategory(t *testing.T) {
	err := New(CountMismatch)

	if !Is(err, CountMismatch) {
		t.Error("Is() should return true for matching code")
	}
	if !Is(err, IOFailure) {
		t.Error("Is() should return true for the taxonomy category")
	}
	if Is(err, SetupFailure) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, IOFailure) {
		t.Error("Is() should return false for nil error")
	}
}

func TestExitCodeOfPlainError(t *testing.T) {
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Fatalf("ExitCode() = %d, want 1", got)
	}
	if got := ExitCode(ProcessError(errors.New("fork"), "start victim")); got != 6 {
		t.Fatalf("ExitCode() = %d, want 6", got)
	}
}
