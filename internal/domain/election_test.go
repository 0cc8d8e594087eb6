package domain

import (
	"reflect"
	"testing"
)

func tally(votes map[int]int) map[int]*VoteResult {
	results := make(map[int]*VoteResult, len(votes))
	for seat, count := range votes {
		results[seat] = &VoteResult{Votes: count}
	}
	return results
}

func TestTallyVotes(t *testing.T) {
	tests := []struct {
		name        string
		votes       map[int]int
		mayorSeat   int
		playerCount int
		want        int
	}{
		{
			name:        "OutrightWinner",
			votes:       map[int]int{0: 1, 1: 4, 2: 2},
			mayorSeat:   0,
			playerCount: 3,
			want:        1,
		},
		{
			name:        "AllZeroKeepsIncumbent",
			votes:       map[int]int{0: 0, 1: 0, 2: 0},
			mayorSeat:   2,
			playerCount: 3,
			want:        2,
		},
		{
			name:        "TiedIncumbentRetains",
			votes:       map[int]int{0: 3, 1: 3, 2: 1},
			mayorSeat:   1,
			playerCount: 3,
			want:        1,
		},
		{
			name:        "TieGoesToClosestClockwise",
			votes:       map[int]int{0: 0, 1: 2, 2: 2, 3: 0},
			mayorSeat:   0,
			playerCount: 4,
			want:        1,
		},
		{
			name:        "TieWrapsAroundTable",
			votes:       map[int]int{0: 2, 1: 0, 2: 0, 3: 2},
			mayorSeat:   2,
			playerCount: 4,
			want:        3,
		},
		{
			name:        "TieFromLastSeatWraps",
			votes:       map[int]int{0: 2, 2: 2},
			mayorSeat:   3,
			playerCount: 4,
			want:        0,
		},
		{
			name:        "MissingSeatsIgnored",
			votes:       map[int]int{2: 1},
			mayorSeat:   0,
			playerCount: 5,
			want:        2,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			got := TallyVotes(tally(test.votes), test.mayorSeat, test.playerCount)
			if got != test.want {
				t.Fatalf("TallyVotes() = %d, want %d", got, test.want)
			}
		})
	}
}

func TestRoleDraftOrder(t *testing.T) {
	tests := []struct {
		name        string
		mayorSeat   int
		playerCount int
		want        []int
	}{
		{name: "ThreeSeatsMayorZero", mayorSeat: 0, playerCount: 3, want: []int{2, 1}},
		{name: "ThreeSeatsMayorOne", mayorSeat: 1, playerCount: 3, want: []int{0, 2}},
		{name: "FourSeatsMayorTwo", mayorSeat: 2, playerCount: 4, want: []int{1, 0, 3}},
		{name: "FiveSeatsMayorZero", mayorSeat: 0, playerCount: 5, want: []int{4, 3, 2, 1}},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			got := RoleDraftOrder(test.mayorSeat, test.playerCount)
			if !reflect.DeepEqual(got, test.want) {
				t.Fatalf("RoleDraftOrder() = %v, want %v", got, test.want)
			}
		})
	}
}
