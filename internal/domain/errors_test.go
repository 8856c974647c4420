package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindMatching(t *testing.T) {
	err := Errf(ErrInsufficientFunds, "ACCOUNT", "available %d, required %d", 50, 100)

	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected errors.Is to match the kind sentinel")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("kind must not match a different sentinel")
	}
}

func TestKindMatchingThroughWrapping(t *testing.T) {
	inner := Errf(ErrAccountClosed, "ACCOUNT", "account abc is closed")
	wrapped := fmt.Errorf("settle transfer: %w", inner)

	if !errors.Is(wrapped, ErrAccountClosed) {
		t.Fatalf("expected kind to survive %%w wrapping")
	}
	if KindOf(wrapped) != ErrAccountClosed {
		t.Fatalf("KindOf should unwrap to the inner kind")
	}
}

func TestDetailsPayload(t *testing.T) {
	err := Errf(ErrValidation, "TRANSFER", "amount must be positive").
		WithDetails(map[string]any{"field": "amount", "value": -5})

	if err.Details["field"] != "amount" {
		t.Fatalf("details payload lost: %+v", err.Details)
	}
}

func TestKindOfNonDomainError(t *testing.T) {
	if KindOf(errors.New("plain")) != nil {
		t.Fatalf("plain errors have no kind")
	}
}
