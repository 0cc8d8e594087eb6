package ports

import "context"

// WelcomePursePort grants the welcome purse at most once per user.
type WelcomePursePort interface {
	// GrantWelcomePurseOnce attempts to grant a one-time welcome purse.
	// Returns granted=false when the purse was already granted.
	GrantWelcomePurseOnce(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) (bool, error)
}
