// Package cart implements the GroupKart cart state engine: an in-process,
// dependency-injected state container for shared shopping carts.
//
// The engine owns a keyed collection of Cart records and a process-wide
// current-user pointer. Commands (CreateCart, AddItemToCart,
// RemoveItemFromCart, AcceptSwap, AddUserToCart, SetCurrentUser) mutate
// state by atomic record replacement; queries (GetCart, GetCategorySpent,
// GetUserContribution, GetTotalSavings, CheckAllergyConflicts, and the
// derived budget views) recompute figures from current state so they can
// never drift. Missing ids degrade to silent no-ops and neutral zero
// values rather than errors.
//
// After every command the full state is serialized as a JSON snapshot to a
// pluggable SnapshotStore (in-memory, Redis, or SQLite via the cart/sqlite
// package) under a fixed storage key, and rehydrated at construction, so
// state is durable across process restarts without a storage-format
// contract.
package cart
