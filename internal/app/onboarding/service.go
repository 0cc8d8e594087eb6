package onboarding

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"nobledynasty/internal/ports"
)

const (
	defaultWelcomePurseGold = 10000
)

// Result captures non-fatal onboarding outcomes.
type Result struct {
	// ProfileUpdateErr is set when the profile update failed but onboarding continued.
	ProfileUpdateErr error
	// WelcomePurseGranted is false when the purse was already granted earlier.
	WelcomePurseGranted bool
}

// Service handles post-auth onboarding for new users.
type Service struct {
	accounts ports.AccountPort
	purses   ports.WelcomePursePort
	rng      *rand.Rand
}

// NewService constructs an onboarding service with required ports.
// accounts/purses must be non-nil; rng may be nil to use a time-seeded default.
func NewService(accounts ports.AccountPort, purses ports.WelcomePursePort, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		accounts: accounts,
		purses:   purses,
		rng:      rng,
	}
}

// OnboardNewUser initializes profile and wallet for a newly created account.
// Returns a Result with any non-fatal issues and an error if the welcome
// purse cannot be granted. The profile update is best-effort.
func (s *Service) OnboardNewUser(ctx context.Context, userID string) (Result, error) {
	if s.accounts == nil || s.purses == nil {
		return Result{}, fmt.Errorf("onboarding service not configured")
	}

	result := Result{}
	displayName := s.generateNobleName()
	if err := s.accounts.UpdateProfile(ctx, userID, displayName, displayName); err != nil {
		result.ProfileUpdateErr = err
	}

	granted, err := s.purses.GrantWelcomePurseOnce(ctx, userID, defaultWelcomePurseGold, map[string]interface{}{
		"reason": "welcome_purse",
	})
	if err != nil {
		return result, fmt.Errorf("failed to grant welcome purse: %w", err)
	}
	result.WelcomePurseGranted = granted

	return result, nil
}

func (s *Service) generateNobleName() string {
	titles := []string{"Lord", "Lady", "Baron", "Duchess", "Count", "Dame", "Earl", "Margrave", "Viscount", "Regent"}
	houses := []string{"Ashford", "Blackwell", "Crowhurst", "Davenmoor", "Everhart", "Fairwind", "Greythorn", "Hollowbrook", "Ironvale", "Kingsmere"}

	title := titles[s.rng.Intn(len(titles))]
	house := houses[s.rng.Intn(len(houses))]
	num := s.rng.Intn(9000) + 1000

	return fmt.Sprintf("%s%s%d", title, house, num)
}
