package app

// EventKind identifies emitted game events for transport dispatch.
type EventKind string

const (
	EventGameStarted           EventKind = "game_started"
	EventStartingChoiceApplied EventKind = "starting_choice_applied"
	EventElectionStarted       EventKind = "election_started"
	EventVoteCast              EventKind = "vote_cast"
	EventMayorElected          EventKind = "mayor_elected"
	EventRoleSelected          EventKind = "role_selected"
	EventPolicyEnacted         EventKind = "policy_enacted"
	EventServantPlaced         EventKind = "servant_placed"
	EventLocationResolved      EventKind = "location_resolved"
	EventTurnEnded             EventKind = "turn_ended"
	EventRoundEnded            EventKind = "round_ended"
	EventGameEnded             EventKind = "game_ended"
)

// Event is a game event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // user IDs; empty means broadcast
}

type GameStartedPayload struct {
	PlayerCount      int    `json:"player_count"`
	MaxRounds        int    `json:"max_rounds"`
	SlotsPerLocation int    `json:"slots_per_location"`
	FirstChooserSeat int    `json:"first_chooser_seat"`
	Phase            string `json:"phase"`
}

type StartingChoiceAppliedPayload struct {
	Seat            int    `json:"seat"`
	ChoiceID        string `json:"choice_id"`
	NextChooserSeat int    `json:"next_chooser_seat"` // -1 once all seats chose
}

type ElectionStartedPayload struct {
	Round          int `json:"round"`
	FirstVoterSeat int `json:"first_voter_seat"`
}

type VoteCastPayload struct {
	VoterSeat     int    `json:"voter_seat"`
	CandidateSeat int    `json:"candidate_seat"`
	Weight        int    `json:"weight"`
	NextVoterSeat int    `json:"next_voter_seat"` // -1 once all ballots are in
	VoterName     string `json:"voter_name"`
}

type MayorElectedPayload struct {
	MayorSeat int         `json:"mayor_seat"`
	Round     int         `json:"round"`
	Tally     map[int]int `json:"tally"` // seat -> accumulated votes
}

type RoleSelectedPayload struct {
	Seat          int    `json:"seat"`
	RoleID        string `json:"role_id"`
	NextSeat      int    `json:"next_seat"` // -1 once the draft is complete
	ExtraServants int    `json:"extra_servants"`
}

type PolicyEnactedPayload struct {
	PolicyID        string   `json:"policy_id"`
	MayorSeat       int      `json:"mayor_seat"`
	ClosedLocations []string `json:"closed_locations"`
}

type ServantPlacedPayload struct {
	Seat              int    `json:"seat"`
	LocationID        string `json:"location_id"`
	SlotIndex         int    `json:"slot_index"`
	ServantsRemaining int    `json:"servants_remaining"`
}

type LocationResolvedPayload struct {
	Seat       int    `json:"seat"`
	LocationID string `json:"location_id"`
	Detail     string `json:"detail"`
}

type TurnEndedPayload struct {
	Seat     int `json:"seat"`
	NextSeat int `json:"next_seat"`
}

type RoundEndedPayload struct {
	CompletedRound int  `json:"completed_round"`
	NextRound      int  `json:"next_round"`
	GameOver       bool `json:"game_over"`
}

type GameEndedPayload struct {
	RankingSeats   []int            `json:"ranking_seats"`
	WinnerSeat     int              `json:"winner_seat"`
	BalanceChanges map[string]int64 `json:"balance_changes"`
}
