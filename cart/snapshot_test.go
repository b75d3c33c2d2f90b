package cart

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStateEncodeDecode(t *testing.T) {
	alice := User{ID: "u1", Name: "Alice", Allergies: []string{"Peanuts"}}
	state := State{
		Carts: map[string]Cart{
			"c1": {
				ID:              "c1",
				Name:            "Groceries",
				Users:           []User{alice},
				CategoryBudgets: map[string]float64{"Snacks": 100},
				Items: []CartItem{{
					ID:            "i1",
					Name:          "Chips",
					Price:         120,
					Category:      "Snacks",
					Ingredients:   []string{"potato"},
					AddedBy:       "u1",
					SuggestedSwap: &SuggestedSwap{Name: "Store Brand", Price: 84, Reason: "cheaper"},
				}},
				TotalSavings:       36,
				SmartSwapsAccepted: 1,
			},
		},
		CurrentUser: &alice,
	}

	data, err := EncodeState(state)
	if err != nil {
		t.Fatalf("EncodeState() error = %v", err)
	}

	decoded, err := DecodeState(data)
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if decoded.Version != snapshotVersion {
		t.Errorf("decoded version = %d, want %d", decoded.Version, snapshotVersion)
	}
	if decoded.SavedAt.IsZero() {
		t.Error("SavedAt not stamped during encode")
	}
	if decoded.SavedAt.After(time.Now()) {
		t.Errorf("SavedAt = %v is in the future", decoded.SavedAt)
	}

	// Compare payload fields; Version/SavedAt belong to the envelope
	decoded.Version = 0
	decoded.SavedAt = time.Time{}
	if diff := cmp.Diff(state, decoded); diff != "" {
		t.Errorf("round trip mismatch (-original +decoded):\n%s", diff)
	}
}

func TestDecodeStateErrors(t *testing.T) {
	t.Run("malformed payload", func(t *testing.T) {
		if _, err := DecodeState([]byte("{broken")); err == nil {
			t.Error("DecodeState(malformed) returned nil error")
		}
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := DecodeState([]byte(`{"version": 99, "carts": {}}`))
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("error = %v, want ErrInvalidConfiguration in chain", err)
		}
	})

	t.Run("missing version", func(t *testing.T) {
		if _, err := DecodeState([]byte(`{"carts": {}}`)); err == nil {
			t.Error("DecodeState without version returned nil error")
		}
	})
}

func TestDecodeStateNormalizesNilCarts(t *testing.T) {
	state, err := DecodeState([]byte(`{"version": 1}`))
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if state.Carts == nil {
		t.Error("decoded Carts map is nil, want empty map")
	}
}
