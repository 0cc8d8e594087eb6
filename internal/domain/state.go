package domain

import (
	"fmt"
	"time"
)

// Phase represents the lifecycle stage of a Noble Dynasty game.
type Phase string

const (
	// PhaseLobby is the pre-game state where players can join.
	PhaseLobby Phase = "lobby"
	// PhaseStartingChoices is the sequential background draft before round 1.
	PhaseStartingChoices Phase = "starting_choices"
	// PhaseElection is the influence-weighted mayor vote at the top of a round.
	PhaseElection Phase = "election"
	// PhaseRoleSelection is the counter-clockwise role draft.
	PhaseRoleSelection Phase = "role_selection"
	// PhasePolicySelection is the mayor's policy enactment step.
	PhasePolicySelection Phase = "policy_selection"
	// PhaseActionPlacement is the servant worker-placement phase.
	PhaseActionPlacement Phase = "action_placement"
	// PhaseFinished is the terminal state after the last round.
	PhaseFinished Phase = "finished"
)

// ElectionStage distinguishes the voting sub-state from the results display.
type ElectionStage string

const (
	// ElectionVoting means ballots are still being cast seat by seat.
	ElectionVoting ElectionStage = "voting"
	// ElectionResults means the tally ran and awaits confirmation.
	ElectionResults ElectionStage = "results"
)

// DefaultMaxRounds is the fixed game length.
const DefaultMaxRounds = 12

// Player holds the per-seat state for a participant.
type Player struct {
	Seat               int            `json:"seat"`
	UserID             string         `json:"user_id"`
	Name               string         `json:"name"`
	Gold               int            `json:"gold"`
	Goods              map[string]int `json:"goods"`
	PoliticalInfluence int            `json:"political_influence"`
	ServantsAvailable  int            `json:"servants_available"`
	ServantsTotal      int            `json:"servants_total"`
	ExtraServants      int            `json:"extra_servants"`
	VictoryPoints      int            `json:"victory_points"`
	Role               string         `json:"role"` // "" when no role held
	Buildings          []string       `json:"buildings"`
	HenchmanCards      []string       `json:"henchman_cards"`
	NewsCards          []string       `json:"news_cards"`
}

// NewPlayer creates a seat's player record with game-start defaults.
func NewPlayer(seat int, userID, name string) *Player {
	return &Player{
		Seat:               seat,
		UserID:             userID,
		Name:               name,
		Gold:               5,
		Goods:              map[string]int{},
		PoliticalInfluence: 1,
		ServantsAvailable:  2,
		ServantsTotal:      2,
		VictoryPoints:      0,
		Role:               "",
		Buildings:          []string{},
		HenchmanCards:      []string{},
		NewsCards:          []string{},
	}
}

// VoteResult accumulates one candidate's election standing for a round.
type VoteResult struct {
	Votes  int      `json:"votes"`
	Voters []string `json:"voters"`
}

// Game is the authoritative aggregate for a single running game.
type Game struct {
	Phase     Phase `json:"phase"`
	Round     int   `json:"round"`
	MaxRounds int   `json:"max_rounds"`

	Players []*Player `json:"players"`
	Board   *Board    `json:"board"`

	MayorSeat   int `json:"mayor_seat"`
	CurrentSeat int `json:"current_seat"` // placement cursor

	CurrentPolicy string `json:"current_policy"` // "" when none active

	StartingCursor int `json:"starting_cursor"`

	ElectionStage ElectionStage       `json:"election_stage"`
	VoterCursor   int                 `json:"voter_cursor"`
	VotingResults map[int]*VoteResult `json:"voting_results"` // seat -> result

	DraftOrder    []int          `json:"draft_order"`
	DraftCursor   int            `json:"draft_cursor"`
	SelectedRoles map[int]string `json:"selected_roles"` // seat -> role id

	Log []string `json:"log"`
}

// NewGame creates the aggregate for the given seated players and enters the
// starting-choice draft. Seat 0 holds the mayorship until the first election.
func NewGame(players []*Player, maxRounds int) *Game {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Game{
		Phase:         PhaseStartingChoices,
		Round:         1,
		MaxRounds:     maxRounds,
		Players:       players,
		Board:         NewBoard(len(players)),
		MayorSeat:     0,
		SelectedRoles: map[int]string{},
		VotingResults: map[int]*VoteResult{},
	}
}

// PlayerCount returns the fixed number of seats in the game.
func (g *Game) PlayerCount() int { return len(g.Players) }

// Mayor returns the incumbent mayor's player record.
func (g *Game) Mayor() *Player { return g.Players[g.MayorSeat] }

// CurrentPlayer returns the player whose placement turn it is.
func (g *Game) CurrentPlayer() *Player { return g.Players[g.CurrentSeat] }

// PlayerAt returns the player at the seat, or nil for an invalid seat.
func (g *Game) PlayerAt(seat int) *Player {
	if seat < 0 || seat >= len(g.Players) {
		return nil
	}
	return g.Players[seat]
}

// AppendLog records a timestamped human-readable event line.
func (g *Game) AppendLog(now time.Time, message string) {
	g.Log = append(g.Log, fmt.Sprintf("[%s] %s", now.Format("15:04:05"), message))
}

// LogTail returns the most recent n log entries.
func (g *Game) LogTail(n int) []string {
	if n <= 0 || len(g.Log) == 0 {
		return nil
	}
	if len(g.Log) <= n {
		return g.Log
	}
	return g.Log[len(g.Log)-n:]
}

// ResetElection rebuilds an all-zero tally and rewinds the voter cursor.
func (g *Game) ResetElection() {
	g.ElectionStage = ElectionVoting
	g.VoterCursor = 0
	g.VotingResults = make(map[int]*VoteResult, len(g.Players))
	for _, p := range g.Players {
		g.VotingResults[p.Seat] = &VoteResult{Votes: 0, Voters: []string{}}
	}
}

// RoleTaken reports whether the role is already held this round.
func (g *Game) RoleTaken(roleID string) bool {
	for _, held := range g.SelectedRoles {
		if held == roleID {
			return true
		}
	}
	return false
}
