package ports

import "context"

// WalletUpdate represents a single currency change for a user.
type WalletUpdate struct {
	UserID   string
	Amount   int64
	Metadata map[string]interface{}
}

// EconomyPort defines the interface for managing purse gold.
type EconomyPort interface {
	// GetBalance retrieves the current purse balance for a user. The match
	// handler checks it against the worst-case stake loss before a game
	// starts.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// UpdateBalances applies multiple wallet changes.
	// This is used at the end of a game to settle all stakes.
	UpdateBalances(ctx context.Context, updates []WalletUpdate) error
}
