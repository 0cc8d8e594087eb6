package domain

// FinalRanking returns seats ordered from best to worst victory-point total.
// Equal totals keep seat order, so the first maximal seat wins.
func FinalRanking(players []*Player) []int {
	ranking := make([]int, 0, len(players))
	for _, p := range players {
		ranking = append(ranking, p.Seat)
	}
	// Insertion sort keeps the ordering stable for tied totals.
	for i := 1; i < len(ranking); i++ {
		for j := i; j > 0; j-- {
			if players[ranking[j]].VictoryPoints > players[ranking[j-1]].VictoryPoints {
				ranking[j], ranking[j-1] = ranking[j-1], ranking[j]
			} else {
				break
			}
		}
	}
	return ranking
}

// WinnerSeat returns the seat of the game's winner.
func WinnerSeat(players []*Player) int {
	return FinalRanking(players)[0]
}

// stakeMultipliers maps player count to the zero-sum stake distribution by
// final rank: winners collect from the bottom finishers.
var stakeMultipliers = map[int][]int64{
	2: {1, -1},
	3: {3, -1, -2},
	4: {2, 1, -1, -2},
	5: {2, 1, 0, -1, -2},
}

// WorstCaseStake returns the largest loss the settlement can assign for a
// table of the given size. Used to verify buy-ins before a game starts.
func WorstCaseStake(playerCount int, baseStake int64) int64 {
	multipliers, ok := stakeMultipliers[playerCount]
	if !ok {
		return 0
	}
	var worst int64
	for _, m := range multipliers {
		if m < worst {
			worst = m
		}
	}
	return -worst * baseStake
}

// Settlement carries the end-of-game currency changes keyed by user id.
type Settlement struct {
	BalanceChanges map[string]int64
}

// CalculateSettlement distributes the per-game stake across the final
// ranking. Unknown player counts settle to no changes.
func CalculateSettlement(players []*Player, ranking []int, baseStake int64) Settlement {
	settlement := Settlement{BalanceChanges: make(map[string]int64, len(players))}
	multipliers, ok := stakeMultipliers[len(ranking)]
	if !ok {
		return settlement
	}
	for rank, seat := range ranking {
		p := players[seat]
		settlement.BalanceChanges[p.UserID] = multipliers[rank] * baseStake
	}
	return settlement
}
