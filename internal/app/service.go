package app

import (
	"errors"
	"fmt"
	"time"

	"nobledynasty/internal/domain"
)

// Rejection reasons surfaced by the service. Every public operation validates
// its preconditions up front and returns one of these without mutating state,
// so transports never need to pre-filter on the engine's behalf.
var (
	ErrWrongPhase       = errors.New("operation not valid in current phase")
	ErrPlayerCount      = errors.New("player count must be between 3 and 5")
	ErrUnknownSeat      = errors.New("seat not found")
	ErrOutOfTurn        = errors.New("not this seat's turn to act")
	ErrUnknownChoice    = errors.New("starting choice not found")
	ErrUnknownCandidate = errors.New("vote candidate not found")
	ErrElectionPending  = errors.New("election results not ready")
	ErrUnknownRole      = errors.New("role not found")
	ErrMayorRole        = errors.New("mayor role is never drafted")
	ErrRoleTaken        = errors.New("role already taken this round")
	ErrNotMayor         = errors.New("only the mayor may do this")
	ErrUnknownPolicy    = errors.New("policy not found")
	ErrUnknownLocation  = errors.New("location not found")
	ErrLocationClosed   = errors.New("location is closed this round")
	ErrBadSlot          = errors.New("slot index out of range")
	ErrSlotOccupied     = errors.New("slot is already occupied")
	ErrNoServants       = errors.New("no servants available")
	ErrNoServantThere   = errors.New("no servant placed at that location")
)

// Service contains the Noble Dynasty use-cases operating on the game
// aggregate. All operations run to completion synchronously; the caller owns
// serialization per game instance.
type Service struct {
	now func() time.Time
}

// NewService constructs a Service. now may be nil to use the wall clock.
func NewService(now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{now: now}
}

func (s *Service) log(g *domain.Game, format string, args ...any) {
	g.AppendLog(s.now(), fmt.Sprintf(format, args...))
}

// StartGame creates the aggregate for the seated players and opens the
// starting-choice draft. userIDs and names are parallel, in seat order, with
// empty entries skipped.
func (s *Service) StartGame(userIDs, names []string, maxRounds int) (*domain.Game, []Event, error) {
	players := make([]*domain.Player, 0, len(userIDs))
	for i, userID := range userIDs {
		if userID == "" {
			continue
		}
		name := userID
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		players = append(players, domain.NewPlayer(len(players), userID, name))
	}

	if len(players) < MinPlayersToStartGame || len(players) > MaxPlayersPerGame {
		return nil, nil, ErrPlayerCount
	}

	game := domain.NewGame(players, maxRounds)
	s.log(game, "Game started with %d players!", len(players))

	events := []Event{{
		Kind: EventGameStarted,
		Payload: GameStartedPayload{
			PlayerCount:      len(players),
			MaxRounds:        game.MaxRounds,
			SlotsPerLocation: game.Board.SlotsPerLocation,
			FirstChooserSeat: 0,
			Phase:            string(game.Phase),
		},
	}}
	return game, events, nil
}

// ApplyStartingChoice confirms the current seat's background selection and
// advances the draft. The last confirmation opens the round-1 election.
func (s *Service) ApplyStartingChoice(g *domain.Game, seat int, choiceID string) ([]Event, error) {
	if g.Phase != domain.PhaseStartingChoices {
		return nil, ErrWrongPhase
	}
	if seat != g.StartingCursor {
		return nil, ErrOutOfTurn
	}
	choice, ok := domain.StartingChoiceByID(choiceID)
	if !ok {
		return nil, ErrUnknownChoice
	}

	player := g.Players[seat]
	updated := domain.ApplyStartingRewards(*player, choice.Rewards)
	*player = updated
	s.log(g, "%s chose %s background", player.Name, choice.Name)

	g.StartingCursor++
	next := g.StartingCursor
	if next >= g.PlayerCount() {
		next = -1
	}

	events := []Event{{
		Kind: EventStartingChoiceApplied,
		Payload: StartingChoiceAppliedPayload{
			Seat:            seat,
			ChoiceID:        choiceID,
			NextChooserSeat: next,
		},
	}}

	if next == -1 {
		events = append(events, s.startElection(g)...)
	}
	return events, nil
}

// startElection rebuilds the tally and enters the voting sub-state.
func (s *Service) startElection(g *domain.Game) []Event {
	g.Phase = domain.PhaseElection
	g.ResetElection()
	s.log(g, "Starting Mayor Election for Round %d", g.Round)
	return []Event{{
		Kind:    EventElectionStarted,
		Payload: ElectionStartedPayload{Round: g.Round, FirstVoterSeat: 0},
	}}
}

// CastVote records the current voter's influence-weighted ballot. The last
// ballot triggers the tally and moves the election to its results stage.
func (s *Service) CastVote(g *domain.Game, voterSeat, candidateSeat int) ([]Event, error) {
	if g.Phase != domain.PhaseElection || g.ElectionStage != domain.ElectionVoting {
		return nil, ErrWrongPhase
	}
	if voterSeat != g.VoterCursor {
		return nil, ErrOutOfTurn
	}
	candidate := g.PlayerAt(candidateSeat)
	if candidate == nil {
		return nil, ErrUnknownCandidate
	}

	voter := g.Players[voterSeat]
	result := g.VotingResults[candidateSeat]
	result.Votes += voter.PoliticalInfluence
	result.Voters = append(result.Voters, voter.Name)
	s.log(g, "%s voted for %s (%d influence)", voter.Name, candidate.Name, voter.PoliticalInfluence)

	g.VoterCursor++
	next := g.VoterCursor
	if next >= g.PlayerCount() {
		next = -1
	}

	events := []Event{{
		Kind: EventVoteCast,
		Payload: VoteCastPayload{
			VoterSeat:     voterSeat,
			CandidateSeat: candidateSeat,
			Weight:        voter.PoliticalInfluence,
			NextVoterSeat: next,
			VoterName:     voter.Name,
		},
	}}

	if next == -1 {
		g.MayorSeat = domain.TallyVotes(g.VotingResults, g.MayorSeat, g.PlayerCount())
		g.ElectionStage = domain.ElectionResults
		s.log(g, "%s elected as Mayor for Round %d!", g.Mayor().Name, g.Round)

		tally := make(map[int]int, g.PlayerCount())
		for seat, r := range g.VotingResults {
			tally[seat] = r.Votes
		}
		events = append(events, Event{
			Kind:    EventMayorElected,
			Payload: MayorElectedPayload{MayorSeat: g.MayorSeat, Round: g.Round, Tally: tally},
		})
	}
	return events, nil
}

// ConfirmElection acknowledges the results and opens the role draft. The
// mayor role is force-assigned to the incumbent before any seat drafts.
func (s *Service) ConfirmElection(g *domain.Game) ([]Event, error) {
	if g.Phase != domain.PhaseElection || g.ElectionStage != domain.ElectionResults {
		return nil, ErrElectionPending
	}

	g.Phase = domain.PhaseRoleSelection
	g.DraftOrder = domain.RoleDraftOrder(g.MayorSeat, g.PlayerCount())
	g.DraftCursor = 0
	g.SelectedRoles = map[int]string{g.MayorSeat: domain.RoleMayor}
	g.Mayor().Role = domain.RoleMayor
	s.log(g, "Role selection begins...")

	return []Event{{
		Kind: EventRoleSelected,
		Payload: RoleSelectedPayload{
			Seat:     g.MayorSeat,
			RoleID:   domain.RoleMayor,
			NextSeat: g.DraftOrder[0],
		},
	}}, nil
}

// SelectRole confirms the drafting seat's role, applies role side effects and
// advances the draft. The final pick opens policy selection.
func (s *Service) SelectRole(g *domain.Game, seat int, roleID string) ([]Event, error) {
	if g.Phase != domain.PhaseRoleSelection {
		return nil, ErrWrongPhase
	}
	if seat != g.DraftOrder[g.DraftCursor] {
		return nil, ErrOutOfTurn
	}
	role, ok := domain.RoleByID(roleID)
	if !ok {
		return nil, ErrUnknownRole
	}
	if roleID == domain.RoleMayor {
		return nil, ErrMayorRole
	}
	if g.RoleTaken(roleID) {
		return nil, ErrRoleTaken
	}

	player := g.Players[seat]
	g.SelectedRoles[seat] = roleID
	player.Role = roleID
	s.applyRoleEffects(g, player, roleID)
	s.log(g, "%s selected %s", player.Name, role.Name)

	g.DraftCursor++
	next := -1
	if g.DraftCursor < len(g.DraftOrder) {
		next = g.DraftOrder[g.DraftCursor]
	}

	events := []Event{{
		Kind: EventRoleSelected,
		Payload: RoleSelectedPayload{
			Seat:          seat,
			RoleID:        roleID,
			NextSeat:      next,
			ExtraServants: player.ExtraServants,
		},
	}}

	if next == -1 {
		g.Phase = domain.PhasePolicySelection
		s.log(g, "All roles assigned. Mayor %s chooses a policy.", g.Mayor().Name)
	}
	return events, nil
}

func (s *Service) applyRoleEffects(g *domain.Game, player *domain.Player, roleID string) {
	switch roleID {
	case domain.RoleRecruiter:
		player.ExtraServants = 1
		s.log(g, "%s gains an extra servant this round", player.Name)
	case domain.RoleThievesGuildmaster:
		s.log(g, "%s can block one action space", player.Name)
	}
}

// ApplyPolicy enacts the mayor's chosen policy, applies its one-time effect
// and opens action placement with the mayor acting first.
func (s *Service) ApplyPolicy(g *domain.Game, seat int, policyID string) ([]Event, error) {
	if g.Phase != domain.PhasePolicySelection {
		return nil, ErrWrongPhase
	}
	if seat != g.MayorSeat {
		return nil, ErrNotMayor
	}
	policy, ok := domain.PolicyByID(policyID)
	if !ok {
		return nil, ErrUnknownPolicy
	}

	g.CurrentPolicy = policyID
	var closed []string
	switch policyID {
	case domain.PolicyMartialLaw:
		for _, p := range g.Players {
			if p.PoliticalInfluence > 0 {
				p.PoliticalInfluence--
			}
		}
		g.Board.Close(domain.LocationThievesGuild)
		closed = append(closed, domain.LocationThievesGuild)
		s.log(g, "All players lose 1 political influence. Thieves Guild closed.")
	case domain.PolicyCensorship:
		g.Board.Close(domain.LocationPrintingPress)
		closed = append(closed, domain.LocationPrintingPress)
		s.log(g, "Printing Press closed this round.")
	case domain.PolicyEmbargo:
		g.Board.Close(domain.LocationMarketplace)
		closed = append(closed, domain.LocationMarketplace)
		s.log(g, "Marketplace closed this round.")
	}
	s.log(g, "Mayor %s enacted %s policy", g.Mayor().Name, policy.Name)

	g.Phase = domain.PhaseActionPlacement
	g.CurrentSeat = g.MayorSeat
	s.log(g, "Action placement phase begins!")

	return []Event{{
		Kind: EventPolicyEnacted,
		Payload: PolicyEnactedPayload{
			PolicyID:        policyID,
			MayorSeat:       g.MayorSeat,
			ClosedLocations: closed,
		},
	}}, nil
}

// PlaceServant puts one of the acting seat's servants into an open slot of an
// open location.
func (s *Service) PlaceServant(g *domain.Game, seat int, locationID string, slotIndex int) ([]Event, error) {
	if g.Phase != domain.PhaseActionPlacement {
		return nil, ErrWrongPhase
	}
	if seat != g.CurrentSeat {
		return nil, ErrOutOfTurn
	}
	location, ok := domain.LocationByID(locationID)
	if !ok {
		return nil, ErrUnknownLocation
	}
	player := g.Players[seat]
	if player.ServantsAvailable <= 0 {
		s.log(g, "%s has no servants available!", player.Name)
		return nil, ErrNoServants
	}
	if g.Board.IsClosed(locationID) {
		return nil, ErrLocationClosed
	}
	if slotIndex < 0 || slotIndex >= g.Board.SlotsPerLocation {
		return nil, ErrBadSlot
	}
	if g.Board.SlotOccupant(locationID, slotIndex) != domain.EmptySlot {
		s.log(g, "That slot is already occupied!")
		return nil, ErrSlotOccupied
	}

	g.Board.Place(locationID, slotIndex, seat)
	player.ServantsAvailable--
	s.log(g, "%s placed a servant at %s", player.Name, location.Name)

	return []Event{{
		Kind: EventServantPlaced,
		Payload: ServantPlacedPayload{
			Seat:              seat,
			LocationID:        locationID,
			SlotIndex:         slotIndex,
			ServantsRemaining: player.ServantsAvailable,
		},
	}}, nil
}

// ResolveLocation runs the location's implemented effect for the acting seat.
// The seat must hold a servant there. Locations without mechanical effects
// resolve to nothing.
func (s *Service) ResolveLocation(g *domain.Game, seat int, locationID string) ([]Event, error) {
	if g.Phase != domain.PhaseActionPlacement {
		return nil, ErrWrongPhase
	}
	if seat != g.CurrentSeat {
		return nil, ErrOutOfTurn
	}
	if _, ok := domain.LocationByID(locationID); !ok {
		return nil, ErrUnknownLocation
	}
	if !g.Board.Occupies(locationID, seat) {
		return nil, ErrNoServantThere
	}

	player := g.Players[seat]
	detail, changed := domain.ExecuteLocationAction(player, locationID)
	if !changed {
		return nil, nil
	}
	s.log(g, "%s", detail)

	return []Event{{
		Kind: EventLocationResolved,
		Payload: LocationResolvedPayload{
			Seat:       seat,
			LocationID: locationID,
			Detail:     detail,
		},
	}}, nil
}

// EndTurn passes the placement turn to the next seat. Wrapping back around to
// the mayor completes the cycle and resolves the round.
func (s *Service) EndTurn(g *domain.Game, seat int) ([]Event, error) {
	if g.Phase != domain.PhaseActionPlacement {
		return nil, ErrWrongPhase
	}
	if seat != g.CurrentSeat {
		return nil, ErrOutOfTurn
	}

	g.CurrentSeat = (g.CurrentSeat + 1) % g.PlayerCount()
	events := []Event{{
		Kind:    EventTurnEnded,
		Payload: TurnEndedPayload{Seat: seat, NextSeat: g.CurrentSeat},
	}}

	if g.CurrentSeat == g.MayorSeat {
		events = append(events, s.endRound(g)...)
	} else {
		s.log(g, "%s's turn to place servants", g.CurrentPlayer().Name)
	}
	return events, nil
}

// endRound resettles servants, clears round state, and either starts the next
// election or finishes the game after the final round.
func (s *Service) endRound(g *domain.Game) []Event {
	completed := g.Round
	s.log(g, "Round %d completed!", completed)

	for _, p := range g.Players {
		p.ServantsAvailable = p.ServantsTotal + p.ExtraServants
		p.ExtraServants = 0
		p.Role = ""
	}
	g.Board.ResetRound()
	g.CurrentPolicy = ""
	g.SelectedRoles = map[int]string{}
	g.Round++

	gameOver := g.Round > g.MaxRounds
	events := []Event{{
		Kind: EventRoundEnded,
		Payload: RoundEndedPayload{
			CompletedRound: completed,
			NextRound:      g.Round,
			GameOver:       gameOver,
		},
	}}

	if gameOver {
		events = append(events, s.endGame(g)...)
	} else {
		events = append(events, s.startElection(g)...)
	}
	return events
}

func (s *Service) endGame(g *domain.Game) []Event {
	g.Phase = domain.PhaseFinished
	ranking := domain.FinalRanking(g.Players)
	winner := g.Players[ranking[0]]
	s.log(g, "Game finished!")
	s.log(g, "Winner: %s with %d victory points!", winner.Name, winner.VictoryPoints)

	return []Event{{
		Kind: EventGameEnded,
		Payload: GameEndedPayload{
			RankingSeats: ranking,
			WinnerSeat:   winner.Seat,
		},
	}}
}
