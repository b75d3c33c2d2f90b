package cart

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStoreErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *StoreError
		want string
	}{
		{
			name: "op with id and cause",
			err:  &StoreError{Op: "store.persist", Kind: "snapshot", ID: "groupkart-storage", Err: ErrConnectionFailed},
			want: "store.persist [groupkart-storage]: connection failed",
		},
		{
			name: "op with cause only",
			err:  &StoreError{Op: "store.rehydrate", Kind: "snapshot", Err: ErrSnapshotNotFound},
			want: "store.rehydrate: snapshot not found",
		},
		{
			name: "message only",
			err:  &StoreError{Kind: "config", Message: "service name is required"},
			want: "service name is required",
		},
		{
			name: "kind fallback",
			err:  &StoreError{Kind: "config"},
			want: "config error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStoreErrorUnwrapping(t *testing.T) {
	inner := fmt.Errorf("dial tcp: %w", ErrConnectionFailed)
	err := NewStoreError("store.persist", "snapshot", inner)

	if !errors.Is(err, ErrConnectionFailed) {
		t.Error("errors.Is failed to find the sentinel through the chain")
	}

	var storeErr *StoreError
	if !errors.As(error(err), &storeErr) {
		t.Fatal("errors.As failed to extract *StoreError")
	}
	if storeErr.Op != "store.persist" || storeErr.Kind != "snapshot" {
		t.Errorf("extracted StoreError = %+v", storeErr)
	}
}

func TestErrorClassifiers(t *testing.T) {
	notFound := []error{
		ErrCartNotFound,
		ErrItemNotFound,
		ErrSnapshotNotFound,
		fmt.Errorf("wrapped: %w", ErrSnapshotNotFound),
		NewStoreError("store.rehydrate", "snapshot", ErrSnapshotNotFound),
	}
	for _, err := range notFound {
		if !IsNotFound(err) {
			t.Errorf("IsNotFound(%v) = false, want true", err)
		}
	}

	config := []error{
		ErrInvalidConfiguration,
		ErrMissingConfiguration,
		fmt.Errorf("wrapped: %w", ErrInvalidConfiguration),
	}
	for _, err := range config {
		if !IsConfigurationError(err) {
			t.Errorf("IsConfigurationError(%v) = false, want true", err)
		}
	}

	for _, err := range []error{ErrConnectionFailed, errors.New("other")} {
		if IsNotFound(err) || IsConfigurationError(err) {
			t.Errorf("classifier matched unrelated error %v", err)
		}
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if id == "" {
			t.Fatal("NewID() returned empty string")
		}
		if strings.TrimSpace(id) != id {
			t.Fatalf("NewID() returned padded id %q", id)
		}
		if seen[id] {
			t.Fatalf("NewID() returned duplicate id %q", id)
		}
		seen[id] = true
	}
}
