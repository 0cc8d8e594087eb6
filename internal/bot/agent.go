package bot

import (
	"math/rand"
	"time"

	"nobledynasty/internal/domain"
)

// ActionKind identifies what a bot wants to do on its turn.
type ActionKind string

const (
	ActionStartingChoice  ActionKind = "starting_choice"
	ActionCastVote        ActionKind = "cast_vote"
	ActionConfirmElection ActionKind = "confirm_election"
	ActionSelectRole      ActionKind = "select_role"
	ActionApplyPolicy     ActionKind = "apply_policy"
	ActionPlaceServant    ActionKind = "place_servant"
	ActionEndTurn         ActionKind = "end_turn"
)

// Action is a single decision produced by an agent.
type Action struct {
	Kind          ActionKind
	ChoiceID      string
	CandidateSeat int
	RoleID        string
	PolicyID      string
	LocationID    string
	SlotIndex     int
}

// Agent is a heuristic player filling a seat when no human holds it. It never
// simulates ahead; it reacts to the visible state the way a casual player
// would, so its pacing and choices stay plausible at the table.
type Agent struct {
	userID string
	rng    *rand.Rand
}

// NewAgent creates an agent for the given bot user id. rng may be nil to use
// a time-seeded default.
func NewAgent(userID string, rng *rand.Rand) *Agent {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Agent{userID: userID, rng: rng}
}

// Act returns the agent's next action for its seat, or false when the game is
// not waiting on that seat.
func (a *Agent) Act(g *domain.Game, seat int) (Action, bool) {
	switch g.Phase {
	case domain.PhaseStartingChoices:
		if g.StartingCursor != seat {
			return Action{}, false
		}
		return a.pickStartingChoice(), true

	case domain.PhaseElection:
		switch g.ElectionStage {
		case domain.ElectionVoting:
			if g.VoterCursor != seat {
				return Action{}, false
			}
			return Action{Kind: ActionCastVote, CandidateSeat: a.pickCandidate(g, seat)}, true
		case domain.ElectionResults:
			if g.MayorSeat != seat {
				return Action{}, false
			}
			return Action{Kind: ActionConfirmElection}, true
		}

	case domain.PhaseRoleSelection:
		if g.DraftCursor >= len(g.DraftOrder) || g.DraftOrder[g.DraftCursor] != seat {
			return Action{}, false
		}
		return Action{Kind: ActionSelectRole, RoleID: a.pickRole(g)}, true

	case domain.PhasePolicySelection:
		if g.MayorSeat != seat {
			return Action{}, false
		}
		return Action{Kind: ActionApplyPolicy, PolicyID: a.pickPolicy()}, true

	case domain.PhaseActionPlacement:
		if g.CurrentSeat != seat {
			return Action{}, false
		}
		if g.Players[seat].ServantsAvailable > 0 {
			if location, slot, ok := a.pickSlot(g); ok {
				return Action{Kind: ActionPlaceServant, LocationID: location, SlotIndex: slot}, true
			}
		}
		return Action{Kind: ActionEndTurn}, true
	}

	return Action{}, false
}

func (a *Agent) pickStartingChoice() Action {
	choices := domain.StartingChoices()
	choice := choices[a.rng.Intn(len(choices))]
	return Action{Kind: ActionStartingChoice, ChoiceID: choice.ID}
}

// pickCandidate backs the most influential seat, voting for itself on ties.
func (a *Agent) pickCandidate(g *domain.Game, seat int) int {
	best := seat
	bestInfluence := g.Players[seat].PoliticalInfluence
	for _, p := range g.Players {
		if p.PoliticalInfluence > bestInfluence {
			best = p.Seat
			bestInfluence = p.PoliticalInfluence
		}
	}
	return best
}

// pickRole prefers the recruiter for the servant bonus, then the first open
// role in catalogue order.
func (a *Agent) pickRole(g *domain.Game) string {
	if !g.RoleTaken(domain.RoleRecruiter) {
		return domain.RoleRecruiter
	}
	for _, role := range domain.Roles() {
		if role.ID == domain.RoleMayor {
			continue
		}
		if !g.RoleTaken(role.ID) {
			return role.ID
		}
	}
	return ""
}

func (a *Agent) pickPolicy() string {
	policies := domain.Policies()
	return policies[a.rng.Intn(len(policies))].ID
}

// pickSlot finds the first open slot of the first open location.
func (a *Agent) pickSlot(g *domain.Game) (string, int, bool) {
	for _, location := range domain.Locations() {
		if g.Board.IsClosed(location.ID) {
			continue
		}
		for slot := 0; slot < g.Board.SlotsPerLocation; slot++ {
			if g.Board.SlotOccupant(location.ID, slot) == domain.EmptySlot {
				return location.ID, slot, true
			}
		}
	}
	return "", 0, false
}
