package ports

import (
	"context"
	"errors"
)

// Game store failure modes surfaced to the user-facing layer.
var (
	ErrGameNotFound    = errors.New("game not found")
	ErrGameFull        = errors.New("game is full")
	ErrGameStarted     = errors.New("game already started")
	ErrVersionConflict = errors.New("game record version conflict")
)

// GameRecord mirrors the game-level aggregate for lobby listings and
// reconnecting clients. Players live in separate sub-records keyed by a
// stable identifier; PlayerOrder recovers seat order.
type GameRecord struct {
	GameID      string   `json:"game_id"`
	Status      string   `json:"status"` // lobby, in_progress, finished
	Phase       string   `json:"phase"`
	Round       int      `json:"round"`
	MaxRounds   int      `json:"max_rounds"`
	MayorSeat   int      `json:"mayor_seat"`
	CurrentSeat int      `json:"current_seat"`
	Policy      string   `json:"policy"`
	BoardJSON   string   `json:"board_json"`
	PlayerOrder []string `json:"player_order"` // player record IDs in seat order
	BaseStake   int64    `json:"base_stake"`
	Log         []string `json:"log"`
	CreatedAt   int64    `json:"created_at"` // unix seconds
	UpdatedAt   int64    `json:"updated_at"`
}

// PlayerRecord is the persisted per-seat state. ID is stable and distinct
// from the seat index.
type PlayerRecord struct {
	ID                 string         `json:"id"`
	GameID             string         `json:"game_id"`
	UserID             string         `json:"user_id"`
	Seat               int            `json:"seat"`
	Name               string         `json:"name"`
	Gold               int            `json:"gold"`
	Goods              map[string]int `json:"goods"`
	PoliticalInfluence int            `json:"political_influence"`
	ServantsAvailable  int            `json:"servants_available"`
	ServantsTotal      int            `json:"servants_total"`
	ExtraServants      int            `json:"extra_servants"`
	VictoryPoints      int            `json:"victory_points"`
	Role               string         `json:"role"`
	Buildings          []string       `json:"buildings"`
	HenchmanCards      []string       `json:"henchman_cards"`
	NewsCards          []string       `json:"news_cards"`
}

// GameWithPlayers is the composite read result, players in seat order.
type GameWithPlayers struct {
	Game    GameRecord
	Players []PlayerRecord
}

// GamePatch is a partial update of a game record. Nil fields are untouched.
type GamePatch struct {
	Status      *string
	Phase       *string
	Round       *int
	MayorSeat   *int
	CurrentSeat *int
	Policy      *string
	BoardJSON   *string
	PlayerOrder []string
}

// PlayerPatch is a partial update of a player record. Nil fields are untouched.
type PlayerPatch struct {
	Gold               *int
	Goods              map[string]int
	PoliticalInfluence *int
	ServantsAvailable  *int
	ServantsTotal      *int
	ExtraServants      *int
	VictoryPoints      *int
	Role               *string
	Buildings          []string
	HenchmanCards      []string
	NewsCards          []string
}

// GameStorePort persists game and player records and notifies subscribers of
// changes. Writes must be serialized per game instance by the caller (the
// match loop is the single writer); the store additionally rejects stale
// writes with ErrVersionConflict when its backend detects a lost race.
type GameStorePort interface {
	// CreateGame stores a new game with its player sub-records. Fails if
	// the game id already exists.
	CreateGame(ctx context.Context, game GameRecord, players []PlayerRecord) error

	// GetGame loads the composite record for the game id.
	GetGame(ctx context.Context, gameID string) (GameWithPlayers, error)

	// UpdateGame applies a partial patch to the game record.
	UpdateGame(ctx context.Context, gameID string, patch GamePatch) error

	// UpdatePlayer applies a partial patch to one player sub-record.
	UpdatePlayer(ctx context.Context, gameID, playerID string, patch PlayerPatch) error

	// AppendLog appends entries to the game's event log.
	AppendLog(ctx context.Context, gameID string, entries ...string) error

	// DeleteGame removes the game and its player sub-records.
	DeleteGame(ctx context.Context, gameID string) error

	// Subscribe registers a callback invoked with the refreshed composite
	// record after any change to the game or its players. The returned
	// cancel func removes the registration.
	Subscribe(gameID string, fn func(GameWithPlayers)) (cancel func())
}
