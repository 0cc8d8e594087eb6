package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nobledynasty/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	welcomePurseCollection = "onboarding"
	welcomePurseKey        = "welcome_purse_v1"
)

// NakamaWelcomePurseAdapter grants a welcome purse using Nakama storage + wallet updates.
type NakamaWelcomePurseAdapter struct {
	nk runtime.NakamaModule
}

// NewNakamaWelcomePurseAdapter creates a new welcome purse adapter.
func NewNakamaWelcomePurseAdapter(nk runtime.NakamaModule) *NakamaWelcomePurseAdapter {
	return &NakamaWelcomePurseAdapter{nk: nk}
}

// GrantWelcomePurseOnce grants a welcome purse and records a marker atomically.
func (a *NakamaWelcomePurseAdapter) GrantWelcomePurseOnce(ctx context.Context, userID string, amount int64, metadata map[string]interface{}) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID is required")
	}
	if amount <= 0 {
		return false, fmt.Errorf("amount must be positive")
	}

	marker := map[string]interface{}{
		"amount":     amount,
		"granted_at": time.Now().UTC().Format(time.RFC3339),
	}
	value, err := json.Marshal(marker)
	if err != nil {
		return false, fmt.Errorf("failed to marshal welcome purse marker: %w", err)
	}

	storageWrites := []*runtime.StorageWrite{
		{
			Collection:      welcomePurseCollection,
			Key:             welcomePurseKey,
			UserID:          userID,
			Value:           string(value),
			Version:         "*",
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	}

	walletUpdates := []*runtime.WalletUpdate{
		{
			UserID:    userID,
			Changeset: map[string]int64{walletGoldKey: amount},
			Metadata:  metadata,
		},
	}

	_, _, err = a.nk.MultiUpdate(ctx, nil, storageWrites, nil, walletUpdates, true)
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return false, nil
		}
		return false, fmt.Errorf("failed to grant welcome purse: %w", err)
	}

	return true, nil
}

var _ ports.WelcomePursePort = (*NakamaWelcomePurseAdapter)(nil)
