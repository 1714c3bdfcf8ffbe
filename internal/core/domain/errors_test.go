package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	e := NewDomainError("OM-CKPT-4001", "checkpoint schema version mismatch")
	if e.Error() != "[OM-CKPT-4001] checkpoint schema version mismatch" {
		t.Fatalf("Error() = %q", e.Error())
	}

	withDetails := e.WithDetails("file 3, reader 2")
	if withDetails.Error() != "[OM-CKPT-4001] checkpoint schema version mismatch: file 3, reader 2" {
		t.Fatalf("Error() with details = %q", withDetails.Error())
	}
}

func TestDomainError_Is(t *testing.T) {
	err := fmt.Errorf("load: %w", ErrSchemaVersion.WithDetails("file 3"))

	if !errors.Is(err, ErrSchemaVersion) {
		t.Fatal("errors.Is should match by code through wrapping")
	}
	if errors.Is(err, ErrEnergyModeMismatch) {
		t.Fatal("errors.Is should not match a different code")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrNotCheckpoint.WithCause(cause)

	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable via errors.Is")
	}
}

func TestIsDomainError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrBatchCursor)

	if !IsDomainError(err, "") {
		t.Fatal("IsDomainError with empty code should match any DomainError")
	}
	if !IsDomainError(err, "OM-CKPT-4003") {
		t.Fatal("IsDomainError should match the cursor code")
	}
	if IsDomainError(errors.New("plain"), "") {
		t.Fatal("IsDomainError should not match a plain error")
	}
	if GetErrorCode(err) != "OM-CKPT-4003" {
		t.Fatalf("GetErrorCode = %q", GetErrorCode(err))
	}
}
