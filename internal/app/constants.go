package app

// MinPlayersToStartGame and MaxPlayersPerGame bound the seat count a game can
// start with. Kept centralized so tests or local runs can adjust the rule
// without touching multiple call sites.
const (
	MinPlayersToStartGame = 3
	MaxPlayersPerGame     = 5
)
