package telemetry

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/groupkart/groupkart/cart"
)

// silenceStdout routes os.Stdout to /dev/null for the test so the pretty
// printed spans from the stdout exporter do not pollute test output.
func silenceStdout(t *testing.T) {
	t.Helper()

	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open %s: %v", os.DevNull, err)
	}
	orig := os.Stdout
	os.Stdout = devNull
	t.Cleanup(func() {
		os.Stdout = orig
		_ = devNull.Close()
	})
}

func newTestProvider(t *testing.T) *OTelProvider {
	t.Helper()
	silenceStdout(t)

	provider, err := NewStdoutProvider("groupkart-test")
	if err != nil {
		t.Fatalf("NewStdoutProvider() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	})
	return provider
}

// The service-name attributes must carry the same schema URL as the SDK's
// default resource or the merge fails and no provider can be built.
func TestResourceMergesWithSDKDefaults(t *testing.T) {
	if _, err := newResource("groupkart-test"); err != nil {
		t.Fatalf("newResource() error = %v", err)
	}

	silenceStdout(t)
	provider, err := NewStdoutProvider("groupkart-test")
	if err != nil {
		t.Fatalf("NewStdoutProvider() error = %v", err)
	}
	_ = provider.Shutdown(context.Background())
}

func TestStdoutProviderSpanLifecycle(t *testing.T) {
	provider := newTestProvider(t)

	ctx, span := provider.StartSpan(context.Background(), "cart.create")
	if ctx == nil {
		t.Fatal("StartSpan() returned nil context")
	}
	if span == nil {
		t.Fatal("StartSpan() returned nil span")
	}

	span.SetAttribute("cart_id", "abc")
	span.SetAttribute("item_count", 3)
	span.SetAttribute("total", 123.45)
	span.SetAttribute("persisted", true)
	span.SetAttribute("anything", struct{ X int }{1})
	span.RecordError(errors.New("snapshot medium down"))
	span.End()

	// Nested spans share the parent context
	childCtx, child := provider.StartSpan(ctx, "cart.persist")
	if childCtx == nil || child == nil {
		t.Fatal("nested StartSpan() returned nil")
	}
	child.End()
}

func TestRecordMetric(t *testing.T) {
	provider := newTestProvider(t)

	provider.RecordMetric("cart.swaps_accepted", 1, map[string]string{"cart_id": "abc"})
	provider.RecordMetric("cart.swaps_accepted", 1, map[string]string{"cart_id": "abc"})
	provider.RecordMetric("cart.swap_savings", 36.5, nil)

	// Counter instances are cached per metric name
	first, err := provider.counter("cart.swaps_accepted")
	if err != nil {
		t.Fatalf("counter() error = %v", err)
	}
	second, err := provider.counter("cart.swaps_accepted")
	if err != nil {
		t.Fatalf("counter() second call error = %v", err)
	}
	if first != second {
		t.Error("counter() returned a new instance for a cached name")
	}
}

func TestProviderSatisfiesEngineInterface(t *testing.T) {
	provider := newTestProvider(t)

	var tel cart.Telemetry = provider
	ctx := context.Background()

	store, err := cart.NewStore(ctx, cart.WithTelemetryProvider(tel))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	alice := cart.User{ID: cart.NewID(), Name: "Alice"}
	cartID, err := store.CreateCart(ctx, "Groceries", []cart.User{alice}, nil)
	if err != nil {
		t.Fatalf("CreateCart() error = %v", err)
	}
	if err := store.AddItemToCart(ctx, cartID, cart.ItemInput{
		Name: "Chips", Price: 100, Category: "Snacks", AddedBy: alice.ID,
		SuggestedSwap: &cart.SuggestedSwap{Name: "Store Brand", Price: 80},
	}); err != nil {
		t.Fatalf("AddItemToCart() error = %v", err)
	}
	got, _ := store.GetCart(cartID)
	if err := store.AcceptSwap(ctx, cartID, got.Items[0].ID); err != nil {
		t.Fatalf("AcceptSwap() error = %v", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	silenceStdout(t)

	provider, err := NewStdoutProvider("groupkart-test")
	if err != nil {
		t.Fatalf("NewStdoutProvider() error = %v", err)
	}

	ctx := context.Background()
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	// A second shutdown must not panic; the SDK may return an error
	_ = provider.Shutdown(ctx)
}
