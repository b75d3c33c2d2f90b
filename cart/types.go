package cart

// User is a participant in one or more carts. Identity is an opaque,
// locally generated token that is unique within the process. Users are
// immutable once created; there is no edit operation.
type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Allergies []string `json:"allergies"`
}

// SuggestedSwap is a pending cheaper-alternative suggestion attached to a
// cart item. A nil *SuggestedSwap on an item means no swap is pending.
// AcceptSwap clears the pointer exactly once.
type SuggestedSwap struct {
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Reason string  `json:"reason"`
}

// CartItem is a single entry in a cart's item list. AddedBy references a
// User present in the owning cart's user list; the store trusts the caller
// on this and does not enforce it by lookup.
type CartItem struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Price         float64        `json:"price"`
	Category      string         `json:"category"`
	Ingredients   []string       `json:"ingredients"`
	AddedBy       string         `json:"added_by"`
	SuggestedSwap *SuggestedSwap `json:"suggested_swap,omitempty"`
}

// HasPendingSwap reports whether the item still carries an unaccepted swap
// suggestion.
func (i CartItem) HasPendingSwap() bool {
	return i.SuggestedSwap != nil
}

// Cart is a shared or personal shopping list. Users, Items and the two
// accumulators are mutated only through Store commands; callers receive
// copies and never a live reference into store state.
//
// TotalSavings is the sum of (original price - swap price) over every item
// whose swap was ever accepted on this cart, and SmartSwapsAccepted counts
// those accept events. Both are monotonically non-decreasing and reflect
// historical events, not current cart composition: removing a swapped item
// later does not roll them back.
type Cart struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Users              []User             `json:"users"`
	CategoryBudgets    map[string]float64 `json:"category_budgets"`
	Items              []CartItem         `json:"items"`
	TotalSavings       float64            `json:"total_savings"`
	SmartSwapsAccepted int                `json:"smart_swaps_accepted"`
}

// ItemInput is the caller-supplied portion of a new cart item. The store
// assigns the item ID.
type ItemInput struct {
	Name          string
	Price         float64
	Category      string
	Ingredients   []string
	AddedBy       string
	SuggestedSwap *SuggestedSwap
}

// CategoryBudget is a derived per-category budget view: the configured
// limit alongside the current spend in that category.
type CategoryBudget struct {
	Category string  `json:"category"`
	Budget   float64 `json:"budget"`
	Spent    float64 `json:"spent"`
}

// Over reports how far the category is over its configured limit.
// Zero when the category is within budget or has no limit set.
func (b CategoryBudget) Over() float64 {
	if b.Budget <= 0 || b.Spent <= b.Budget {
		return 0
	}
	return b.Spent - b.Budget
}

// CommonAllergies lists the allergy presets offered when a user profile is
// created.
var CommonAllergies = []string{
	"Peanuts",
	"Tree Nuts",
	"Milk/Dairy",
	"Eggs",
	"Soy",
	"Wheat/Gluten",
	"Fish",
	"Shellfish",
	"Sesame",
}

// ProductCategories lists the product categories items can be tagged with.
// Category budgets are keyed by these names, but the store accepts any
// category string.
var ProductCategories = []string{
	"Snacks",
	"Beverages",
	"Dairy",
	"Meat & Seafood",
	"Fruits & Vegetables",
	"Bakery",
	"Frozen Foods",
	"Household",
	"Personal Care",
}
