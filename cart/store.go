package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Store is the cart state engine: a process-wide state container owning
// the keyed cart collection and the current-user pointer. It is explicitly
// constructed and dependency-injected; there is no package-level instance.
//
// Commands mutate by building a new Cart value and replacing the map entry
// atomically, and queries hand out deep copies, so readers always observe
// a consistent snapshot and never a structure mutated in place.
//
// Commands never report missing-id or failed-precondition conditions;
// those degrade to silent no-ops. The error return carries snapshot
// persistence failures only. Queries return neutral zero/empty values for
// unknown carts.
type Store struct {
	mu          sync.RWMutex
	carts       map[string]Cart
	currentUser *User

	storageKey string
	snapshots  SnapshotStore
	logger     Logger
	telemetry  Telemetry
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithLogger sets the logger for store operations.
func WithLogger(logger Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTelemetryProvider sets the telemetry provider for store operations.
func WithTelemetryProvider(telemetry Telemetry) StoreOption {
	return func(s *Store) {
		if telemetry != nil {
			s.telemetry = telemetry
		}
	}
}

// WithSnapshots sets the durable snapshot slot. Without one the store is
// ephemeral and state lives for the process lifetime only.
func WithSnapshots(snapshots SnapshotStore) StoreOption {
	return func(s *Store) {
		s.snapshots = snapshots
	}
}

// WithSnapshotKey overrides the storage key the snapshot is saved under.
func WithSnapshotKey(key string) StoreOption {
	return func(s *Store) {
		if strings.TrimSpace(key) != "" {
			s.storageKey = key
		}
	}
}

// NewStore creates a cart store and, when a snapshot slot is configured,
// rehydrates state from the last persisted snapshot.
func NewStore(ctx context.Context, opts ...StoreOption) (*Store, error) {
	s := &Store{
		carts:      make(map[string]Cart),
		storageKey: DefaultStorageKey,
		logger:     &NoOpLogger{},
		telemetry:  &NoOpTelemetry{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.snapshots != nil {
		if err := s.rehydrate(ctx); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// NewStoreFromConfig creates a cart store wired per the configuration:
// logger, storage key and the memory or redis snapshot provider. The
// sqlite provider and the OpenTelemetry provider live in separate packages
// and are injected by the composition root via WithSnapshots and
// WithTelemetryProvider.
func NewStoreFromConfig(ctx context.Context, cfg *Config, opts ...StoreOption) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required: %w", ErrMissingConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := NewProductionLogger(cfg.Logging, cfg.ServiceName)

	base := []StoreOption{
		WithLogger(logger),
		WithSnapshotKey(cfg.StorageKey),
	}

	switch cfg.Persistence.Provider {
	case PersistenceNone:
	case PersistenceMemory:
		base = append(base, WithSnapshots(NewMemorySnapshotStore()))
	case PersistenceRedis:
		snapshots, err := NewRedisSnapshotStoreWithNamespace(cfg.Persistence.RedisURL, cfg.Persistence.Namespace)
		if err != nil {
			return nil, err
		}
		snapshots.SetLogger(logger)
		base = append(base, WithSnapshots(snapshots))
	default:
		return nil, fmt.Errorf("unknown persistence provider %q: %w", cfg.Persistence.Provider, ErrInvalidConfiguration)
	}

	return NewStore(ctx, append(base, opts...)...)
}

// Close releases the snapshot slot, if any.
func (s *Store) Close() error {
	if s == nil || s.snapshots == nil {
		return nil
	}
	return s.snapshots.Close()
}

// --- Commands ---

// CreateCart creates a cart with the given display name, initial users and
// per-category budget limits (0 or absent = unlimited), and returns its
// fresh unique id. Duplicate names are permitted; ids are unique, names
// are not.
func (s *Store) CreateCart(ctx context.Context, name string, users []User, categoryBudgets map[string]float64) (string, error) {
	ctx, span := s.telemetry.StartSpan(ctx, "cart.create_cart")
	defer span.End()

	cart := Cart{
		ID:                 NewID(),
		Name:               name,
		Users:              cloneUsers(users),
		CategoryBudgets:    cloneBudgets(categoryBudgets),
		Items:              []CartItem{},
		TotalSavings:       0,
		SmartSwapsAccepted: 0,
	}
	span.SetAttribute("cart_id", cart.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.carts[cart.ID] = cart

	s.logger.Info("Cart created", map[string]interface{}{
		"cart_id":    cart.ID,
		"cart_name":  cart.Name,
		"user_count": len(cart.Users),
	})

	if err := s.persistLocked(ctx); err != nil {
		span.RecordError(err)
		return cart.ID, err
	}
	return cart.ID, nil
}

// AddItemToCart appends an item with a fresh unique id to the cart's item
// list, preserving insertion order. Unknown cart ids are a silent no-op.
// Allergy and budget evaluation is a caller responsibility; the store
// never blocks or warns on add.
func (s *Store) AddItemToCart(ctx context.Context, cartID string, input ItemInput) error {
	ctx, span := s.telemetry.StartSpan(ctx, "cart.add_item")
	defer span.End()
	span.SetAttribute("cart_id", cartID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		s.logger.Debug("Add item skipped, cart not found", map[string]interface{}{
			"cart_id": cartID,
		})
		return nil
	}

	item := CartItem{
		ID:            NewID(),
		Name:          input.Name,
		Price:         input.Price,
		Category:      input.Category,
		Ingredients:   cloneStrings(input.Ingredients),
		AddedBy:       input.AddedBy,
		SuggestedSwap: cloneSwap(input.SuggestedSwap),
	}
	span.SetAttribute("item_id", item.ID)

	next := cloneCart(cart)
	next.Items = append(next.Items, item)
	s.carts[cartID] = next

	s.logger.Info("Item added to cart", map[string]interface{}{
		"cart_id":   cartID,
		"item_id":   item.ID,
		"item_name": item.Name,
		"category":  item.Category,
		"price":     item.Price,
		"added_by":  item.AddedBy,
		"has_swap":  item.HasPendingSwap(),
	})

	if err := s.persistLocked(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// RemoveItemFromCart removes the item with the matching id from the cart's
// item list. Unknown cart or item ids are tolerated as silent no-ops. The
// removal is permanent, with no tombstone: accumulators reflect historical
// events and are not decremented.
func (s *Store) RemoveItemFromCart(ctx context.Context, cartID, itemID string) error {
	ctx, span := s.telemetry.StartSpan(ctx, "cart.remove_item")
	defer span.End()
	span.SetAttribute("cart_id", cartID)
	span.SetAttribute("item_id", itemID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		s.logger.Debug("Remove item skipped, cart not found", map[string]interface{}{
			"cart_id": cartID,
			"item_id": itemID,
		})
		return nil
	}

	found := false
	items := make([]CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		items = append(items, cloneItem(item))
	}
	if !found {
		s.logger.Debug("Remove item skipped, item not found", map[string]interface{}{
			"cart_id": cartID,
			"item_id": itemID,
		})
		return nil
	}

	next := cloneCart(cart)
	next.Items = items
	s.carts[cartID] = next

	s.logger.Info("Item removed from cart", map[string]interface{}{
		"cart_id": cartID,
		"item_id": itemID,
	})

	if err := s.persistLocked(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// AcceptSwap applies a pending swap suggestion on an item: the item takes
// the swap's name and price, the suggestion is cleared, the cart's swap
// counter increments and the savings accumulator grows by (pre-swap price
// - swap price), computed from the item's state before the mutation.
//
// If the cart or item is missing, or the item carries no pending swap, the
// call is a silent no-op. The cleared suggestion doubles as an idempotence
// guard: a second call on the same item finds no pending swap and changes
// nothing.
func (s *Store) AcceptSwap(ctx context.Context, cartID, itemID string) error {
	ctx, span := s.telemetry.StartSpan(ctx, "cart.accept_swap")
	defer span.End()
	span.SetAttribute("cart_id", cartID)
	span.SetAttribute("item_id", itemID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		s.logger.Debug("Accept swap skipped, cart not found", map[string]interface{}{
			"cart_id": cartID,
			"item_id": itemID,
		})
		return nil
	}

	index := -1
	for i, item := range cart.Items {
		if item.ID == itemID {
			index = i
			break
		}
	}
	if index < 0 {
		s.logger.Debug("Accept swap skipped, item not found", map[string]interface{}{
			"cart_id": cartID,
			"item_id": itemID,
		})
		return nil
	}

	original := cart.Items[index]
	if original.SuggestedSwap == nil {
		s.logger.Debug("Accept swap skipped, no pending swap", map[string]interface{}{
			"cart_id": cartID,
			"item_id": itemID,
		})
		return nil
	}

	// Savings are computed from the pre-swap snapshot, never from mutated
	// state, so a replayed call cannot double-count.
	swap := *original.SuggestedSwap
	savings := original.Price - swap.Price

	next := cloneCart(cart)
	swapped := cloneItem(original)
	swapped.Name = swap.Name
	swapped.Price = swap.Price
	swapped.SuggestedSwap = nil
	next.Items[index] = swapped
	next.SmartSwapsAccepted = cart.SmartSwapsAccepted + 1
	next.TotalSavings = cart.TotalSavings + savings
	s.carts[cartID] = next

	s.logger.Info("Swap accepted", map[string]interface{}{
		"cart_id":        cartID,
		"item_id":        itemID,
		"swap_name":      swap.Name,
		"original_price": original.Price,
		"swap_price":     swap.Price,
		"savings":        savings,
	})

	s.telemetry.RecordMetric("cart.swaps_accepted", 1, map[string]string{"cart_id": cartID})
	s.telemetry.RecordMetric("cart.swap_savings", savings, map[string]string{"cart_id": cartID})

	if err := s.persistLocked(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// AddUserToCart appends the user to the cart's user list unless a user
// with the same id is already present, in which case the call is a silent
// no-op. Existing user order is preserved; the new user goes at the end.
func (s *Store) AddUserToCart(ctx context.Context, cartID string, user User) error {
	ctx, span := s.telemetry.StartSpan(ctx, "cart.add_user")
	defer span.End()
	span.SetAttribute("cart_id", cartID)
	span.SetAttribute("user_id", user.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		s.logger.Debug("Add user skipped, cart not found", map[string]interface{}{
			"cart_id": cartID,
			"user_id": user.ID,
		})
		return nil
	}

	for _, existing := range cart.Users {
		if existing.ID == user.ID {
			s.logger.Debug("Add user skipped, user already in cart", map[string]interface{}{
				"cart_id": cartID,
				"user_id": user.ID,
			})
			return nil
		}
	}

	next := cloneCart(cart)
	next.Users = append(next.Users, cloneUser(user))
	s.carts[cartID] = next

	s.logger.Info("User added to cart", map[string]interface{}{
		"cart_id":   cartID,
		"user_id":   user.ID,
		"user_name": user.Name,
	})

	if err := s.persistLocked(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// SetCurrentUser replaces the process-wide current-user pointer. The
// pointer lives outside the cart collection and is not validated against
// existing carts; nil clears it.
func (s *Store) SetCurrentUser(ctx context.Context, user *User) error {
	ctx, span := s.telemetry.StartSpan(ctx, "cart.set_current_user")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if user == nil {
		s.currentUser = nil
		s.logger.Info("Current user cleared", nil)
	} else {
		copied := cloneUser(*user)
		s.currentUser = &copied
		span.SetAttribute("user_id", user.ID)
		s.logger.Info("Current user set", map[string]interface{}{
			"user_id":   user.ID,
			"user_name": user.Name,
		})
	}

	if err := s.persistLocked(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// --- Queries ---

// GetCart returns a copy of the cart with the given id. The second return
// value reports whether the cart exists.
func (s *Store) GetCart(cartID string) (Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return Cart{}, false
	}
	return cloneCart(cart), true
}

// ListCarts returns copies of every cart, ordered by id for stable output.
func (s *Store) ListCarts() []Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()

	carts := make([]Cart, 0, len(s.carts))
	for _, cart := range s.carts {
		carts = append(carts, cloneCart(cart))
	}
	sort.Slice(carts, func(i, j int) bool { return carts[i].ID < carts[j].ID })
	return carts
}

// GetCategorySpent returns the sum of current item prices in the cart for
// the given category. Post-swap prices count, not original prices. Returns
// 0 for an unknown cart.
func (s *Store) GetCategorySpent(cartID, category string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return 0
	}

	var sum float64
	for _, item := range cart.Items {
		if item.Category == category {
			sum += item.Price
		}
	}
	return sum
}

// GetUserContribution returns the sum of current prices over items the
// given user added to the cart. Returns 0 for an unknown cart.
func (s *Store) GetUserContribution(cartID, userID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return 0
	}

	var sum float64
	for _, item := range cart.Items {
		if item.AddedBy == userID {
			sum += item.Price
		}
	}
	return sum
}

// GetTotalSpent returns the sum of current prices over every item in the
// cart. Returns 0 for an unknown cart.
func (s *Store) GetTotalSpent(cartID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return 0
	}

	var sum float64
	for _, item := range cart.Items {
		sum += item.Price
	}
	return sum
}

// GetTotalBudget returns the sum of all configured category budget limits
// on the cart. Returns 0 for an unknown cart.
func (s *Store) GetTotalBudget(cartID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return 0
	}

	var sum float64
	for _, budget := range cart.CategoryBudgets {
		sum += budget
	}
	return sum
}

// GetTotalSavings returns the cart's savings accumulator, or 0 for an
// unknown cart.
func (s *Store) GetTotalSavings(cartID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return 0
	}
	return cart.TotalSavings
}

// CategoryBudgets returns the per-category budget view for every category
// with a configured (>0) limit, sorted by category name. Spend is
// recomputed from current item prices on every call; it is never stored,
// so it cannot drift.
func (s *Store) CategoryBudgets(cartID string) []CategoryBudget {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return nil
	}

	spent := make(map[string]float64)
	for _, item := range cart.Items {
		spent[item.Category] += item.Price
	}

	budgets := make([]CategoryBudget, 0, len(cart.CategoryBudgets))
	for category, budget := range cart.CategoryBudgets {
		if budget <= 0 {
			continue
		}
		budgets = append(budgets, CategoryBudget{
			Category: category,
			Budget:   budget,
			Spent:    spent[category],
		})
	}
	sort.Slice(budgets, func(i, j int) bool { return budgets[i].Category < budgets[j].Category })
	return budgets
}

// WouldExceedBudget reports whether adding an item at the given price to
// the category would push spend past the configured limit, and by how
// much. Categories with no limit (0) never exceed. This is the pre-add
// check callers run to surface a warning; the store itself never blocks
// the add.
func (s *Store) WouldExceedBudget(cartID, category string, price float64) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return 0, false
	}

	budget := cart.CategoryBudgets[category]
	if budget <= 0 {
		return 0, false
	}

	var spent float64
	for _, item := range cart.Items {
		if item.Category == category {
			spent += item.Price
		}
	}

	projected := spent + price
	if projected <= budget {
		return 0, false
	}
	return projected - budget, true
}

// CheckAllergyConflicts returns every user in the cart with at least one
// allergy that appears, case-insensitively, as a substring of at least one
// of the given ingredient strings. Returned users follow cart user order.
// Returns nil for an unknown cart.
//
// The matching direction is ingredient-contains-allergy: allergy "peanut"
// matches ingredient "peanut oil", but allergy "Milk/Dairy" never matches
// ingredient "milk". The asymmetry is intentional; see the regression
// tests before changing it.
func (s *Store) CheckAllergyConflicts(cartID string, ingredients []string) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return nil
	}

	lowered := make([]string, len(ingredients))
	for i, ingredient := range ingredients {
		lowered[i] = strings.ToLower(ingredient)
	}

	var conflicted []User
	for _, user := range cart.Users {
		if userHasConflict(user, lowered) {
			conflicted = append(conflicted, cloneUser(user))
		}
	}
	return conflicted
}

func userHasConflict(user User, loweredIngredients []string) bool {
	for _, allergy := range user.Allergies {
		needle := strings.ToLower(allergy)
		for _, ingredient := range loweredIngredients {
			if strings.Contains(ingredient, needle) {
				return true
			}
		}
	}
	return false
}

// CurrentUser returns a copy of the process-wide current user, or nil when
// none is set.
func (s *Store) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.currentUser == nil {
		return nil
	}
	copied := cloneUser(*s.currentUser)
	return &copied
}

// --- Persistence ---

// rehydrate loads the last persisted snapshot. A missing snapshot is a
// normal first run.
func (s *Store) rehydrate(ctx context.Context) error {
	data, err := s.snapshots.Load(ctx, s.storageKey)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			s.logger.Info("No snapshot found, starting with empty state", map[string]interface{}{
				"storage_key": s.storageKey,
			})
			return nil
		}
		s.logger.Error("Failed to load snapshot", map[string]interface{}{
			"error":       err,
			"error_type":  fmt.Sprintf("%T", err),
			"storage_key": s.storageKey,
		})
		return &StoreError{Op: "store.rehydrate", Kind: "snapshot", ID: s.storageKey, Err: err}
	}

	state, err := DecodeState(data)
	if err != nil {
		s.logger.Error("Failed to decode snapshot", map[string]interface{}{
			"error":       err,
			"error_type":  fmt.Sprintf("%T", err),
			"storage_key": s.storageKey,
			"data_size":   len(data),
		})
		return &StoreError{Op: "store.rehydrate", Kind: "snapshot", ID: s.storageKey, Err: err}
	}

	s.carts = state.Carts
	s.currentUser = state.CurrentUser

	s.logger.Info("State rehydrated from snapshot", map[string]interface{}{
		"storage_key": s.storageKey,
		"cart_count":  len(s.carts),
	})
	return nil
}

// persistLocked writes the current state snapshot to the durable slot.
// Callers must hold the write lock. The in-memory mutation has already
// been applied when this runs; a failed save leaves memory authoritative
// and the store degrades to ephemeral until the medium recovers.
func (s *Store) persistLocked(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	state := State{
		Carts:       s.carts,
		CurrentUser: s.currentUser,
	}
	data, err := EncodeState(state)
	if err != nil {
		s.logger.Error("Failed to encode snapshot", map[string]interface{}{
			"error":       err,
			"error_type":  fmt.Sprintf("%T", err),
			"storage_key": s.storageKey,
		})
		return &StoreError{Op: "store.persist", Kind: "snapshot", ID: s.storageKey, Err: err}
	}

	if err := s.snapshots.Save(ctx, s.storageKey, data); err != nil {
		s.logger.Error("Failed to save snapshot", map[string]interface{}{
			"error":       err,
			"error_type":  fmt.Sprintf("%T", err),
			"storage_key": s.storageKey,
			"data_size":   len(data),
		})
		return &StoreError{Op: "store.persist", Kind: "snapshot", ID: s.storageKey, Err: err}
	}

	s.logger.Debug("Snapshot saved", map[string]interface{}{
		"storage_key": s.storageKey,
		"cart_count":  len(s.carts),
		"data_size":   len(data),
	})
	return nil
}

// --- Copy helpers ---

func cloneCart(cart Cart) Cart {
	next := cart
	next.Users = cloneUsers(cart.Users)
	next.CategoryBudgets = cloneBudgets(cart.CategoryBudgets)
	next.Items = make([]CartItem, len(cart.Items))
	for i, item := range cart.Items {
		next.Items[i] = cloneItem(item)
	}
	return next
}

func cloneItem(item CartItem) CartItem {
	next := item
	next.Ingredients = cloneStrings(item.Ingredients)
	next.SuggestedSwap = cloneSwap(item.SuggestedSwap)
	return next
}

func cloneUser(user User) User {
	next := user
	next.Allergies = cloneStrings(user.Allergies)
	return next
}

func cloneUsers(users []User) []User {
	next := make([]User, len(users))
	for i, user := range users {
		next[i] = cloneUser(user)
	}
	return next
}

func cloneBudgets(budgets map[string]float64) map[string]float64 {
	next := make(map[string]float64, len(budgets))
	for category, budget := range budgets {
		next[category] = budget
	}
	return next
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	next := make([]string, len(values))
	copy(next, values)
	return next
}

func cloneSwap(swap *SuggestedSwap) *SuggestedSwap {
	if swap == nil {
		return nil
	}
	copied := *swap
	return &copied
}
