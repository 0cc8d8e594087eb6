package nakama

import (
	"context"
	"encoding/json"
	"fmt"

	"nobledynasty/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// walletGoldKey is the wallet currency the welcome purse, buy-in checks and
// stake settlements all operate on.
const walletGoldKey = "gold"

// NakamaEconomyAdapter implements ports.EconomyPort on Nakama wallets. The
// match handler uses it twice per game: a buy-in check before the first round
// and the stake settlement after the last.
type NakamaEconomyAdapter struct {
	nk runtime.NakamaModule
}

func NewNakamaEconomyAdapter(nk runtime.NakamaModule) *NakamaEconomyAdapter {
	return &NakamaEconomyAdapter{nk: nk}
}

// GetBalance reads a user's purse gold. A wallet without the gold key reads
// as zero, which fails the buy-in check rather than erroring.
func (a *NakamaEconomyAdapter) GetBalance(ctx context.Context, userID string) (int64, error) {
	account, err := a.nk.AccountGetId(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get account %s: %w", userID, err)
	}

	var wallet map[string]int64
	if err := json.Unmarshal([]byte(account.Wallet), &wallet); err != nil {
		return 0, fmt.Errorf("failed to unmarshal wallet for %s: %w", userID, err)
	}

	return wallet[walletGoldKey], nil
}

// UpdateBalances applies the settlement's per-user gold deltas. Zero deltas
// (the break-even middle rank at five players) are skipped so the wallet
// ledger only records real transfers.
func (a *NakamaEconomyAdapter) UpdateBalances(ctx context.Context, updates []ports.WalletUpdate) error {
	for _, update := range updates {
		if update.Amount == 0 {
			continue
		}

		changes := map[string]int64{walletGoldKey: update.Amount}
		if _, _, err := a.nk.WalletUpdate(ctx, update.UserID, changes, update.Metadata, true); err != nil {
			return fmt.Errorf("failed to settle stake for user %s: %w", update.UserID, err)
		}
	}
	return nil
}

var _ ports.EconomyPort = (*NakamaEconomyAdapter)(nil)
