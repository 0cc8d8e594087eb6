package domain

// TallyVotes resolves an election and returns the winning seat.
//
// The maximum is taken over candidates with more than zero votes. A single
// max-holder wins outright. On a tie the incumbent mayor retains the seat if
// tied; otherwise the tied winner closest to the mayor clockwise wins, with a
// distance of zero remapped to a full lap so it ranks furthest, ties in
// distance going to the first-seen winner. An all-zero tally keeps the
// incumbent.
func TallyVotes(results map[int]*VoteResult, mayorSeat, playerCount int) int {
	maxVotes := 0
	var winners []int
	for seat := 0; seat < playerCount; seat++ {
		result, ok := results[seat]
		if !ok {
			continue
		}
		if result.Votes > maxVotes {
			maxVotes = result.Votes
			winners = []int{seat}
		} else if result.Votes == maxVotes && result.Votes > 0 {
			winners = append(winners, seat)
		}
	}

	switch len(winners) {
	case 0:
		return mayorSeat
	case 1:
		return winners[0]
	}

	for _, seat := range winners {
		if seat == mayorSeat {
			return mayorSeat
		}
	}

	closestDistance := playerCount + 1
	newMayor := winners[0]
	for _, seat := range winners {
		distance := (seat - mayorSeat + playerCount) % playerCount
		if distance == 0 {
			distance = playerCount
		}
		if distance < closestDistance {
			closestDistance = distance
			newMayor = seat
		}
	}
	return newMayor
}

// RoleDraftOrder lists the seats visited during the role draft:
// counter-clockwise starting one seat before the mayor, excluding the mayor.
func RoleDraftOrder(mayorSeat, playerCount int) []int {
	order := make([]int, 0, playerCount-1)
	for i := 1; i < playerCount; i++ {
		order = append(order, (mayorSeat-i+playerCount)%playerCount)
	}
	return order
}
