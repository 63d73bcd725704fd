package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeAndCause(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeDeploymentFailure, cause, "部署失败", WithMetadata("contract", "UserEscrow"))

	wrapped := fmt.Errorf("outer: %w", err)
	if CodeOf(wrapped) != CodeDeploymentFailure {
		t.Fatalf("unexpected code %s", CodeOf(wrapped))
	}
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if !HasCode(wrapped, CodeDeploymentFailure) {
		t.Fatalf("expected HasCode to match")
	}
	if HasCode(wrapped, CodeNotArmed) {
		t.Fatalf("unexpected code match")
	}
	if got := err.Metadata()["contract"]; got != "UserEscrow" {
		t.Fatalf("unexpected metadata %q", got)
	}
	if SeverityOf(wrapped) != SeverityCritical {
		t.Fatalf("unexpected severity %s", SeverityOf(wrapped))
	}
}

func TestUnregisteredCodeFallsBackToUnknown(t *testing.T) {
	err := New(Code("NOPE"), "")
	if err.Message() != AttributesOf(CodeUnknown).Message {
		t.Fatalf("unexpected message %q", err.Message())
	}
	if RetryableError(err) {
		t.Fatalf("unknown errors must not be retryable")
	}

	Register(Code("NOPE"), Attributes{Message: "nope", Severity: SeverityInfo, Retryable: true})
	if !RetryableError(New(Code("NOPE"), "")) {
		t.Fatalf("registered attributes should apply")
	}
}
