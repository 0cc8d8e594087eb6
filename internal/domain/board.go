package domain

// EmptySlot marks an unoccupied action slot.
const EmptySlot = -1

// Board holds the per-game mutable side of the location registry: the action
// slot table and the per-round closed flags. Each game gets its own copy so
// concurrent games never share closed state.
type Board struct {
	// Slots maps location id -> slice of length SlotsPerLocation, each entry
	// either EmptySlot or the seat index of the occupying player.
	Slots map[string][]int `json:"slots"`

	// Closed maps location id -> whether the location refuses placements for
	// the remainder of the round.
	Closed map[string]bool `json:"closed"`

	// SlotsPerLocation is fixed for the game: 2 with 3 players, else 3.
	SlotsPerLocation int `json:"slots_per_location"`
}

// SlotsForPlayerCount returns the per-location capacity for a player count.
func SlotsForPlayerCount(playerCount int) int {
	if playerCount == 3 {
		return 2
	}
	return 3
}

// NewBoard builds an all-empty, all-open board sized for the player count.
func NewBoard(playerCount int) *Board {
	capacity := SlotsForPlayerCount(playerCount)
	b := &Board{
		Slots:            make(map[string][]int, len(locationCatalog)),
		Closed:           make(map[string]bool, len(locationCatalog)),
		SlotsPerLocation: capacity,
	}
	for _, loc := range locationCatalog {
		slots := make([]int, capacity)
		for i := range slots {
			slots[i] = EmptySlot
		}
		b.Slots[loc.ID] = slots
		b.Closed[loc.ID] = false
	}
	return b
}

// IsClosed reports whether the location refuses placements this round.
func (b *Board) IsClosed(locationID string) bool {
	return b.Closed[locationID]
}

// Close marks a location closed for the remainder of the round.
func (b *Board) Close(locationID string) {
	b.Closed[locationID] = true
}

// SlotOccupant returns the seat occupying the slot, or EmptySlot.
func (b *Board) SlotOccupant(locationID string, slotIndex int) int {
	slots, ok := b.Slots[locationID]
	if !ok || slotIndex < 0 || slotIndex >= len(slots) {
		return EmptySlot
	}
	return slots[slotIndex]
}

// Occupies reports whether the seat holds at least one slot at the location.
func (b *Board) Occupies(locationID string, seat int) bool {
	for _, occupant := range b.Slots[locationID] {
		if occupant == seat {
			return true
		}
	}
	return false
}

// Place records the seat in the slot. Callers validate occupancy and closure.
func (b *Board) Place(locationID string, slotIndex, seat int) {
	b.Slots[locationID][slotIndex] = seat
}

// ResetRound empties every slot and reopens every location.
func (b *Board) ResetRound() {
	for id, slots := range b.Slots {
		for i := range slots {
			slots[i] = EmptySlot
		}
		b.Closed[id] = false
	}
}
