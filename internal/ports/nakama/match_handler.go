package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"nobledynasty/internal/app"
	"nobledynasty/internal/bot"
	"nobledynasty/internal/config"
	"nobledynasty/internal/domain"
	"nobledynasty/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

const maxSeats = 5

// Label is the match listing payload used by the quick-match query.
type Label struct {
	Open  bool   `json:"open"`
	Game  string `json:"game"`
	Phase string `json:"phase"`
}

// MatchState holds the authoritative runtime state for the Nakama match handler.
type MatchState struct {
	Seats     [maxSeats]string `json:"seats"`      // user IDs, empty string means seat is empty
	OwnerSeat int              `json:"owner_seat"` // seat index of the match owner
	Tick      int64            `json:"tick"`

	Presences map[string]runtime.Presence `json:"-"` // userID -> presence for targeted messaging
	App       *app.Service                `json:"-"`
	Game      *domain.Game                `json:"-"` // nil while in lobby

	GameID       string `json:"game_id"`
	BaseStake    int64  `json:"base_stake"`
	LogPersisted int    `json:"log_persisted"` // count of log entries already stored

	BotsEnabled          bool                  `json:"bots_enabled"`
	BotMinDelay          int                   `json:"bot_min_delay"`
	BotMaxDelay          int                   `json:"bot_max_delay"`
	BotAutoFillDelay     int                   `json:"bot_auto_fill_delay"`
	BotWaitUntil         int64                 `json:"bot_wait_until"`
	LastSinglePlayerTick int64                 `json:"last_single_player_tick"`
	Bots                 map[string]*bot.Agent `json:"-"`

	Economy ports.EconomyPort   `json:"-"`
	Store   ports.GameStorePort `json:"-"`
}

func (ms *MatchState) GetOpenSeatsCount() int {
	count := 0
	for _, seat := range ms.Seats {
		if seat == "" {
			count++
		}
	}
	return count
}

func (ms *MatchState) GetOccupiedSeatCount() int {
	return maxSeats - ms.GetOpenSeatsCount()
}

func (ms *MatchState) GetHumanPlayerCount() int {
	count := 0
	for _, seat := range ms.Seats {
		if seat != "" && !bot.IsBot(seat) {
			count++
		}
	}
	return count
}

// seatOf returns the seat index currently held by the user, or -1.
func (ms *MatchState) seatOf(userID string) int {
	for i, seatUserID := range ms.Seats {
		if seatUserID == userID {
			return i
		}
	}
	return -1
}

// gameSeatOf maps a match seat to the player's seat inside the running game,
// or -1 when the user is not seated in the game. Game seats are compacted at
// start, so they can differ from lobby seats when the lobby had gaps.
func (ms *MatchState) gameSeatOf(userID string) int {
	if ms.Game == nil {
		return -1
	}
	for _, p := range ms.Game.Players {
		if p.UserID == userID {
			return p.Seat
		}
	}
	return -1
}

// isHumanSeat reports whether the seat index belongs to a human player.
func isHumanSeat(seats []string, seatIndex int) bool {
	if seatIndex < 0 || seatIndex >= len(seats) {
		return false
	}
	userID := seats[seatIndex]
	return userID != "" && !bot.IsBot(userID)
}

// findFirstHumanSeat returns the first seat index with a human occupant or -1 if none exist.
func findFirstHumanSeat(seats []string) int {
	for i, userID := range seats {
		if userID != "" && !bot.IsBot(userID) {
			return i
		}
	}
	return -1
}

type matchHandler struct{}

func newMatchHandler() runtime.Match {
	return &matchHandler{}
}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	logger.Debug("MatchInit: Initializing match handler.")

	if err := bot.LoadIdentities("data/bot_identities.json"); err != nil {
		logger.Warn("MatchInit: Could not load bot identities: %v", err)
	}
	if err := config.LoadGameConfig("data/game_config.json"); err != nil {
		logger.Warn("MatchInit: Could not load game config: %v", err)
	}

	state := &MatchState{
		Tick:      time.Now().Unix(),
		Presences: make(map[string]runtime.Presence),
		App:       app.NewService(nil),
		OwnerSeat: -1,
		Bots:      make(map[string]*bot.Agent),
		Economy:   NewNakamaEconomyAdapter(nk),
		Store:     NewNakamaGameStoreAdapter(nk),
	}

	if matchID, ok := ctx.Value(runtime.RUNTIME_CTX_MATCH_ID).(string); ok {
		state.GameID = matchID
	}

	tier := ""
	if raw, ok := params["tier"].(string); ok {
		tier = raw
	}
	state.BaseStake = config.GetBaseStake(tier)

	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	if val, ok := env["nobledynasty_bots_enabled"]; ok {
		state.BotsEnabled = val == "true"
	}
	if val, ok := env["nobledynasty_bot_min_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotMinDelay = i
		}
	}
	if val, ok := env["nobledynasty_bot_max_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotMaxDelay = i
		}
	}
	if val, ok := env["nobledynasty_bot_auto_fill_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotAutoFillDelay = i
		}
	}

	if state.BotMinDelay == 0 {
		state.BotMinDelay = 1
	}
	if state.BotMaxDelay == 0 {
		state.BotMaxDelay = 3
	}
	if state.BotAutoFillDelay == 0 {
		state.BotAutoFillDelay = 5
		if cfg := config.GetGameConfig(); cfg != nil && cfg.BotAutoFillDelaySeconds > 0 {
			state.BotAutoFillDelay = cfg.BotAutoFillDelaySeconds
		}
	}

	labelBytes, err := json.Marshal(Label{Open: true, Game: "nobledynasty", Phase: "lobby"})
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}

	tickRate := 1
	return state, tickRate, string(labelBytes)
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	// Rejoins are always allowed so a disconnected player can resume.
	if matchState.seatOf(presence.GetUserId()) >= 0 {
		return state, true, ""
	}

	if matchState.Game != nil {
		return state, false, ports.ErrGameStarted.Error()
	}

	// Allow join if there is an empty seat or a bot to displace.
	if matchState.GetOpenSeatsCount() <= 0 {
		hasBot := false
		for _, seat := range matchState.Seats {
			if bot.IsBot(seat) {
				hasBot = true
				break
			}
		}
		if !hasBot {
			return state, false, ports.ErrGameFull.Error()
		}
	}

	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		matchState.Presences[p.GetUserId()] = p

		if seat := matchState.seatOf(p.GetUserId()); seat >= 0 {
			// Rejoin, seat retained.
			mh.broadcastSeatChange(matchState, dispatcher, logger, OpPlayerJoined, p.GetUserId(), seat)
			continue
		}

		assigned := -1
		for i, seatUserID := range matchState.Seats {
			if seatUserID == "" {
				matchState.Seats[i] = p.GetUserId()
				assigned = i
				break
			}
		}

		if assigned < 0 && matchState.Game == nil {
			for i, seatUserID := range matchState.Seats {
				if bot.IsBot(seatUserID) {
					logger.Info("MatchJoin: Replacing bot %s with human %s in seat %d", seatUserID, p.GetUserId(), i)
					delete(matchState.Bots, seatUserID)
					matchState.Seats[i] = p.GetUserId()
					assigned = i
					break
				}
			}
		}

		if assigned < 0 {
			logger.Warn("MatchJoin: User %s joined but no seat was available.", p.GetUserId())
			continue
		}
		mh.broadcastSeatChange(matchState, dispatcher, logger, OpPlayerJoined, p.GetUserId(), assigned)
	}

	if !isHumanSeat(matchState.Seats[:], matchState.OwnerSeat) {
		matchState.OwnerSeat = findFirstHumanSeat(matchState.Seats[:])
		if matchState.OwnerSeat >= 0 {
			logger.Debug("MatchJoin: Owner set to human seat %d.", matchState.OwnerSeat)
		}
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastSnapshot(matchState, dispatcher, logger, nil)

	return matchState
}

// MatchLeave is called when one or more players leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		delete(matchState.Presences, p.GetUserId())

		seat := matchState.seatOf(p.GetUserId())
		// A seat in a running game stays reserved for reconnects. Lobby
		// seats are freed immediately.
		if matchState.Game == nil && seat >= 0 {
			matchState.Seats[seat] = ""
			logger.Debug("MatchLeave: User %s left, seat %d freed.", p.GetUserId(), seat)
		}
		if seat >= 0 {
			mh.broadcastSeatChange(matchState, dispatcher, logger, OpPlayerLeft, p.GetUserId(), seat)
		}
	}

	newOwnerSeat := findFirstHumanSeat(matchState.Seats[:])
	if newOwnerSeat != matchState.OwnerSeat {
		matchState.OwnerSeat = newOwnerSeat
		if newOwnerSeat >= 0 {
			logger.Debug("MatchLeave: Owner set to human seat %d.", newOwnerSeat)
		}
	}

	if findFirstHumanSeat(matchState.Seats[:]) == -1 && len(matchState.Presences) == 0 {
		logger.Info("MatchLeave: Terminating match with no humans.")
		return nil
	}

	mh.updateLabel(matchState, dispatcher, logger)

	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick

	for _, msg := range messages {
		switch msg.GetOpCode() {
		case OpStartGame:
			mh.handleStartGame(ctx, matchState, dispatcher, logger, msg)
		case OpStartingChoice:
			mh.handleStartingChoice(ctx, matchState, dispatcher, logger, msg)
		case OpCastVote:
			mh.handleCastVote(ctx, matchState, dispatcher, logger, msg)
		case OpConfirmElection:
			mh.handleConfirmElection(ctx, matchState, dispatcher, logger, msg)
		case OpSelectRole:
			mh.handleSelectRole(ctx, matchState, dispatcher, logger, msg)
		case OpApplyPolicy:
			mh.handleApplyPolicy(ctx, matchState, dispatcher, logger, msg)
		case OpPlaceServant:
			mh.handlePlaceServant(ctx, matchState, dispatcher, logger, msg)
		case OpResolveLocation:
			mh.handleResolveLocation(ctx, matchState, dispatcher, logger, msg)
		case OpEndTurn:
			mh.handleEndTurn(ctx, matchState, dispatcher, logger, msg)
		case OpRequestSnapshot:
			mh.handleRequestSnapshot(matchState, dispatcher, logger, msg)
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}

	if matchState.BotsEnabled {
		mh.processBots(ctx, matchState, dispatcher, logger)
	}

	return matchState
}

// Client request payloads. All client messages are JSON.

type startingChoiceRequest struct {
	ChoiceID string `json:"choice_id"`
}

type castVoteRequest struct {
	CandidateSeat int `json:"candidate_seat"`
}

type selectRoleRequest struct {
	RoleID string `json:"role_id"`
}

type applyPolicyRequest struct {
	PolicyID string `json:"policy_id"`
}

type placeServantRequest struct {
	LocationID string `json:"location_id"`
	SlotIndex  int    `json:"slot_index"`
}

type resolveLocationRequest struct {
	LocationID string `json:"location_id"`
}

func (mh *matchHandler) handleStartGame(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	senderSeat := state.seatOf(senderID)

	logger.Info("StartGame: Request received from %s (seat=%d, owner_seat=%d, occupied=%d)", senderID, senderSeat, state.OwnerSeat, state.GetOccupiedSeatCount())

	if state.Game != nil {
		mh.sendError(state, dispatcher, logger, senderID, 409, ports.ErrGameStarted.Error())
		return
	}
	if senderSeat != state.OwnerSeat {
		logger.Warn("StartGame: User %s tried to start game but is not owner (owner_seat=%d)", senderID, state.OwnerSeat)
		return
	}

	activeCount := state.GetOccupiedSeatCount()
	if activeCount < app.MinPlayersToStartGame {
		logger.Warn("StartGame: Cannot start with %d players. Need at least %d.", activeCount, app.MinPlayersToStartGame)
		mh.sendError(state, dispatcher, logger, senderID, 400, "not enough players")
		return
	}

	if err := mh.checkBuyIns(ctx, state); err != nil {
		logger.Warn("StartGame: %v", err)
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}

	names := make([]string, maxSeats)
	for i, userID := range state.Seats {
		if userID == "" {
			continue
		}
		names[i] = mh.displayName(state, userID)
	}

	game, events, err := state.App.StartGame(state.Seats[:], names, config.GetMaxRounds())
	if err != nil {
		logger.Error("StartGame: Failed to start game: %v", err)
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}

	state.Game = game
	state.LogPersisted = 0

	mh.persistNewGame(ctx, state, logger)
	mh.updateLabel(state, dispatcher, logger)

	for _, ev := range events {
		mh.broadcastEvent(ctx, state, dispatcher, logger, ev)
	}

	logger.Info("StartGame: Game started with %d players.", game.PlayerCount())
}

// checkBuyIns verifies every human seat holds enough purse gold to cover the
// worst-case stake loss. Bots play without wallets and are skipped.
func (mh *matchHandler) checkBuyIns(ctx context.Context, state *MatchState) error {
	if state.Economy == nil {
		return nil
	}
	required := domain.WorstCaseStake(state.GetOccupiedSeatCount(), state.BaseStake)
	if required <= 0 {
		return nil
	}
	for _, userID := range state.Seats {
		if userID == "" || bot.IsBot(userID) {
			continue
		}
		balance, err := state.Economy.GetBalance(ctx, userID)
		if err != nil {
			return fmt.Errorf("balance check for %s: %w", userID, err)
		}
		if balance < required {
			return fmt.Errorf("%s cannot cover the %d gold stake", mh.displayName(state, userID), required)
		}
	}
	return nil
}

// handleGameOp runs one engine operation for the sender's seat and broadcasts
// the resulting events. All per-operation validation lives in the app service.
func (mh *matchHandler) handleGameOp(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData, op func(seat int) ([]app.Event, error)) {
	senderID := msg.GetUserId()

	if state.Game == nil {
		logger.Warn("MatchLoop: Op %d before game start from %s.", msg.GetOpCode(), senderID)
		mh.sendError(state, dispatcher, logger, senderID, 400, "game not started")
		return
	}

	seat := state.gameSeatOf(senderID)
	if seat < 0 {
		mh.sendError(state, dispatcher, logger, senderID, 403, "not seated in this game")
		return
	}

	events, err := op(seat)
	if err != nil {
		logger.Warn("MatchLoop: Op %d from %s (seat %d) rejected: %v", msg.GetOpCode(), senderID, seat, err)
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}

	mh.persistGame(ctx, state, logger)
	for _, ev := range events {
		mh.broadcastEvent(ctx, state, dispatcher, logger, ev)
	}
}

func (mh *matchHandler) handleStartingChoice(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	var req startingChoiceRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Warn("handleStartingChoice: bad payload from %s: %v", msg.GetUserId(), err)
		return
	}
	mh.handleGameOp(ctx, state, dispatcher, logger, msg, func(seat int) ([]app.Event, error) {
		return state.App.ApplyStartingChoice(state.Game, seat, req.ChoiceID)
	})
}

func (mh *matchHandler) handleCastVote(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	var req castVoteRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Warn("handleCastVote: bad payload from %s: %v", msg.GetUserId(), err)
		return
	}
	mh.handleGameOp(ctx, state, dispatcher, logger, msg, func(seat int) ([]app.Event, error) {
		return state.App.CastVote(state.Game, seat, req.CandidateSeat)
	})
}

func (mh *matchHandler) handleConfirmElection(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	mh.handleGameOp(ctx, state, dispatcher, logger, msg, func(seat int) ([]app.Event, error) {
		if state.Game.MayorSeat != seat {
			return nil, app.ErrNotMayor
		}
		return state.App.ConfirmElection(state.Game)
	})
}

func (mh *matchHandler) handleSelectRole(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	var req selectRoleRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Warn("handleSelectRole: bad payload from %s: %v", msg.GetUserId(), err)
		return
	}
	mh.handleGameOp(ctx, state, dispatcher, logger, msg, func(seat int) ([]app.Event, error) {
		return state.App.SelectRole(state.Game, seat, req.RoleID)
	})
}

func (mh *matchHandler) handleApplyPolicy(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	var req applyPolicyRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Warn("handleApplyPolicy: bad payload from %s: %v", msg.GetUserId(), err)
		return
	}
	mh.handleGameOp(ctx, state, dispatcher, logger, msg, func(seat int) ([]app.Event, error) {
		return state.App.ApplyPolicy(state.Game, seat, req.PolicyID)
	})
}

func (mh *matchHandler) handlePlaceServant(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	var req placeServantRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Warn("handlePlaceServant: bad payload from %s: %v", msg.GetUserId(), err)
		return
	}
	mh.handleGameOp(ctx, state, dispatcher, logger, msg, func(seat int) ([]app.Event, error) {
		return state.App.PlaceServant(state.Game, seat, req.LocationID, req.SlotIndex)
	})
}

func (mh *matchHandler) handleResolveLocation(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	var req resolveLocationRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		logger.Warn("handleResolveLocation: bad payload from %s: %v", msg.GetUserId(), err)
		return
	}
	mh.handleGameOp(ctx, state, dispatcher, logger, msg, func(seat int) ([]app.Event, error) {
		return state.App.ResolveLocation(state.Game, seat, req.LocationID)
	})
}

func (mh *matchHandler) handleEndTurn(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	mh.handleGameOp(ctx, state, dispatcher, logger, msg, func(seat int) ([]app.Event, error) {
		return state.App.EndTurn(state.Game, seat)
	})
}

func (mh *matchHandler) handleRequestSnapshot(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	presence, ok := state.Presences[msg.GetUserId()]
	if !ok {
		return
	}
	mh.broadcastSnapshot(state, dispatcher, logger, []runtime.Presence{presence})
}

func (mh *matchHandler) processBots(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	// Auto-fill the lobby when one human has been waiting alone.
	if state.Game == nil {
		humanCount := state.GetHumanPlayerCount()
		if humanCount == 1 {
			if state.LastSinglePlayerTick == 0 {
				state.LastSinglePlayerTick = state.Tick
				logger.Debug("processBots: Single player detected, starting auto-fill timer.")
			}

			if state.Tick-state.LastSinglePlayerTick >= int64(state.BotAutoFillDelay) {
				added := false
				for i, seat := range state.Seats {
					if seat != "" {
						continue
					}
					// Stop once a legal table is filled.
					if state.GetOccupiedSeatCount() >= app.MinPlayersToStartGame {
						break
					}
					identity := bot.GetBotIdentity(i)
					botID := identity.UserID
					state.Seats[i] = botID
					state.Bots[botID] = bot.NewAgent(botID, nil)
					logger.Info("processBots: Added bot %s (%s) to seat %d", identity.DisplayName, botID, i)
					added = true
				}
				if added {
					mh.updateLabel(state, dispatcher, logger)
					mh.broadcastSnapshot(state, dispatcher, logger, nil)
				}
				state.LastSinglePlayerTick = 0
			}
		} else {
			state.LastSinglePlayerTick = 0
		}
		return
	}

	// Let the bot whose seat the game is waiting on act after a short delay.
	botSeat, botUserID := mh.pendingBotSeat(state)
	if botSeat < 0 {
		state.BotWaitUntil = 0
		return
	}

	if state.BotWaitUntil == 0 {
		delay := rand.Intn(state.BotMaxDelay-state.BotMinDelay+1) + state.BotMinDelay
		state.BotWaitUntil = state.Tick + int64(delay)
		logger.Debug("processBots: Bot %s (seat %d) will act at tick %d (current %d)", botUserID, botSeat, state.BotWaitUntil, state.Tick)
		return
	}
	if state.Tick < state.BotWaitUntil {
		return
	}
	state.BotWaitUntil = 0

	agent, exists := state.Bots[botUserID]
	if !exists {
		agent = bot.NewAgent(botUserID, nil)
		state.Bots[botUserID] = agent
	}

	action, ok := agent.Act(state.Game, botSeat)
	if !ok {
		return
	}

	events, err := mh.applyBotAction(state, botSeat, action)
	if err != nil {
		logger.Error("processBots: Bot %s (seat %d) action %s rejected: %v", botUserID, botSeat, action.Kind, err)
		return
	}

	mh.persistGame(ctx, state, logger)
	for _, ev := range events {
		mh.broadcastEvent(ctx, state, dispatcher, logger, ev)
	}
}

// pendingBotSeat returns the bot seat the game is currently waiting on, or -1.
func (mh *matchHandler) pendingBotSeat(state *MatchState) (int, string) {
	g := state.Game
	if g == nil {
		return -1, ""
	}

	waitingSeat := -1
	switch g.Phase {
	case domain.PhaseStartingChoices:
		waitingSeat = g.StartingCursor
	case domain.PhaseElection:
		if g.ElectionStage == domain.ElectionVoting {
			waitingSeat = g.VoterCursor
		} else {
			waitingSeat = g.MayorSeat
		}
	case domain.PhaseRoleSelection:
		if g.DraftCursor < len(g.DraftOrder) {
			waitingSeat = g.DraftOrder[g.DraftCursor]
		}
	case domain.PhasePolicySelection:
		waitingSeat = g.MayorSeat
	case domain.PhaseActionPlacement:
		waitingSeat = g.CurrentSeat
	}

	if waitingSeat < 0 || waitingSeat >= g.PlayerCount() {
		return -1, ""
	}
	userID := g.Players[waitingSeat].UserID
	if !bot.IsBot(userID) {
		return -1, ""
	}
	return waitingSeat, userID
}

func (mh *matchHandler) applyBotAction(state *MatchState, seat int, action bot.Action) ([]app.Event, error) {
	switch action.Kind {
	case bot.ActionStartingChoice:
		return state.App.ApplyStartingChoice(state.Game, seat, action.ChoiceID)
	case bot.ActionCastVote:
		return state.App.CastVote(state.Game, seat, action.CandidateSeat)
	case bot.ActionConfirmElection:
		return state.App.ConfirmElection(state.Game)
	case bot.ActionSelectRole:
		return state.App.SelectRole(state.Game, seat, action.RoleID)
	case bot.ActionApplyPolicy:
		return state.App.ApplyPolicy(state.Game, seat, action.PolicyID)
	case bot.ActionPlaceServant:
		return state.App.PlaceServant(state.Game, seat, action.LocationID, action.SlotIndex)
	case bot.ActionEndTurn:
		return state.App.EndTurn(state.Game, seat)
	default:
		return nil, fmt.Errorf("unknown bot action %q", action.Kind)
	}
}

// seatChangePayload announces a player entering or leaving a seat.
type seatChangePayload struct {
	UserID      string `json:"user_id"`
	Seat        int    `json:"seat"`
	DisplayName string `json:"display_name"`
}

// playerSnapshot is the public view of one seat.
type playerSnapshot struct {
	UserID             string   `json:"user_id"`
	Seat               int      `json:"seat"`
	DisplayName        string   `json:"display_name"`
	IsOwner            bool     `json:"is_owner"`
	Gold               int      `json:"gold"`
	PoliticalInfluence int      `json:"political_influence"`
	ServantsAvailable  int      `json:"servants_available"`
	VictoryPoints      int      `json:"victory_points"`
	Role               string   `json:"role"`
	Buildings          []string `json:"buildings"`
}

// stateSnapshot is the full state view broadcast on joins and on request. It
// carries every cursor and mapping a reconnecting client needs to resume
// mid-phase without replaying missed events.
type stateSnapshot struct {
	Seats       []string         `json:"seats"`
	OwnerSeat   int              `json:"owner_seat"`
	Tick        int64            `json:"tick"`
	Phase       string           `json:"phase"`
	Round       int              `json:"round"`
	MayorSeat   int              `json:"mayor_seat"`
	CurrentSeat int              `json:"current_seat"`
	Policy      string           `json:"policy"`
	Board       *domain.Board    `json:"board,omitempty"`
	Players     []playerSnapshot `json:"players"`
	LogTail     []string         `json:"log_tail"`

	StartingCursor int                        `json:"starting_cursor"`
	ElectionStage  string                     `json:"election_stage,omitempty"`
	VoterCursor    int                        `json:"voter_cursor"`
	VotingResults  map[int]*domain.VoteResult `json:"voting_results,omitempty"`
	DraftOrder     []int                      `json:"draft_order,omitempty"`
	DraftCursor    int                        `json:"draft_cursor"`
	SelectedRoles  map[int]string             `json:"selected_roles,omitempty"`
}

func (mh *matchHandler) displayName(state *MatchState, userID string) string {
	if p, exists := state.Presences[userID]; exists {
		if name := p.GetUsername(); name != "" {
			return name
		}
	}
	if name := bot.GetBotDisplayName(userID); name != "" {
		return name
	}
	return userID
}

func (mh *matchHandler) broadcastSeatChange(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, opCode int64, userID string, seat int) {
	bytes, err := json.Marshal(seatChangePayload{
		UserID:      userID,
		Seat:        seat,
		DisplayName: mh.displayName(state, userID),
	})
	if err != nil {
		logger.Error("broadcastSeatChange: Failed to marshal: %v", err)
		return
	}
	dispatcher.BroadcastMessage(opCode, bytes, nil, nil, true)
}

func (mh *matchHandler) broadcastSnapshot(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, recipients []runtime.Presence) {
	snapshot := stateSnapshot{
		Seats:     state.Seats[:],
		OwnerSeat: state.OwnerSeat,
		Tick:      state.Tick,
		Phase:     "lobby",
	}

	if state.Game != nil {
		g := state.Game
		snapshot.Phase = string(g.Phase)
		snapshot.Round = g.Round
		snapshot.MayorSeat = g.MayorSeat
		snapshot.CurrentSeat = g.CurrentSeat
		snapshot.Policy = g.CurrentPolicy
		snapshot.Board = g.Board
		snapshot.LogTail = g.LogTail(10)
		snapshot.StartingCursor = g.StartingCursor
		snapshot.ElectionStage = string(g.ElectionStage)
		snapshot.VoterCursor = g.VoterCursor
		snapshot.VotingResults = g.VotingResults
		snapshot.DraftOrder = g.DraftOrder
		snapshot.DraftCursor = g.DraftCursor
		snapshot.SelectedRoles = g.SelectedRoles

		for _, p := range g.Players {
			snapshot.Players = append(snapshot.Players, playerSnapshot{
				UserID:             p.UserID,
				Seat:               p.Seat,
				DisplayName:        p.Name,
				IsOwner:            state.seatOf(p.UserID) == state.OwnerSeat,
				Gold:               p.Gold,
				PoliticalInfluence: p.PoliticalInfluence,
				ServantsAvailable:  p.ServantsAvailable,
				VictoryPoints:      p.VictoryPoints,
				Role:               p.Role,
				Buildings:          p.Buildings,
			})
		}
	} else {
		for i, userID := range state.Seats {
			if userID == "" {
				continue
			}
			snapshot.Players = append(snapshot.Players, playerSnapshot{
				UserID:      userID,
				Seat:        i,
				DisplayName: mh.displayName(state, userID),
				IsOwner:     i == state.OwnerSeat,
			})
		}
	}

	bytes, err := json.Marshal(snapshot)
	if err != nil {
		logger.Error("broadcastSnapshot: Failed to marshal: %v", err)
		return
	}
	dispatcher.BroadcastMessage(OpStateSnapshot, bytes, recipients, nil, true)
}

// broadcastEvent converts an app event to a wire message and dispatches it.
func (mh *matchHandler) broadcastEvent(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, ev app.Event) {
	var opCode int64
	payload := ev.Payload

	switch ev.Kind {
	case app.EventGameStarted:
		opCode = OpGameStarted
	case app.EventStartingChoiceApplied:
		opCode = OpStartingChoiceApplied
	case app.EventElectionStarted:
		opCode = OpElectionStarted
	case app.EventVoteCast:
		opCode = OpVoteCast
	case app.EventMayorElected:
		opCode = OpMayorElected
	case app.EventRoleSelected:
		opCode = OpRoleSelected
	case app.EventPolicyEnacted:
		opCode = OpPolicyEnacted
	case app.EventServantPlaced:
		opCode = OpServantPlaced
	case app.EventLocationResolved:
		opCode = OpLocationResolved
	case app.EventTurnEnded:
		opCode = OpTurnEnded
	case app.EventRoundEnded:
		opCode = OpRoundEnded
	case app.EventGameEnded:
		opCode = OpGameEnded
		p := ev.Payload.(app.GameEndedPayload)
		payload = mh.settleGame(ctx, state, logger, p)
		mh.updateLabel(state, dispatcher, logger)
	default:
		logger.Warn("Unknown event kind: %v", ev.Kind)
		return
	}

	bytes, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal event %v: %v", ev.Kind, err)
		return
	}

	var recipients []runtime.Presence
	if len(ev.Recipients) > 0 {
		for _, uid := range ev.Recipients {
			if p, ok := state.Presences[uid]; ok {
				recipients = append(recipients, p)
			}
		}
		// The intended recipients may all be offline or bots; in that
		// case the message must not fall back to a broadcast.
		if len(recipients) == 0 {
			return
		}
	}

	dispatcher.BroadcastMessage(opCode, bytes, recipients, nil, true)
}

// settleGame applies the stake settlement to wallets, persists the finished
// record, and returns the payload enriched with balance changes.
func (mh *matchHandler) settleGame(ctx context.Context, state *MatchState, logger runtime.Logger, p app.GameEndedPayload) app.GameEndedPayload {
	g := state.Game
	if g == nil {
		return p
	}

	settlement := domain.CalculateSettlement(g.Players, p.RankingSeats, state.BaseStake)
	p.BalanceChanges = settlement.BalanceChanges

	if state.Economy != nil {
		updates := make([]ports.WalletUpdate, 0, len(settlement.BalanceChanges))
		for userID, amount := range settlement.BalanceChanges {
			if bot.IsBot(userID) {
				continue
			}
			updates = append(updates, ports.WalletUpdate{
				UserID: userID,
				Amount: amount,
				Metadata: map[string]interface{}{
					"match_id": ctx.Value(runtime.RUNTIME_CTX_MATCH_ID),
					"reason":   "game_settlement",
				},
			})
		}
		if err := state.Economy.UpdateBalances(ctx, updates); err != nil {
			logger.Error("Failed to update balances: %v", err)
		}
	}

	mh.persistGame(ctx, state, logger)
	if state.Store != nil {
		status := "finished"
		if err := state.Store.UpdateGame(ctx, state.GameID, ports.GamePatch{Status: &status}); err != nil {
			logger.Error("Failed to mark game %s finished: %v", state.GameID, err)
		}
	}

	// Back to lobby for a rematch.
	state.Game = nil
	return p
}

// playerRecordID derives the stable persisted id for a seat, distinct from
// the seat index so reorderings cannot corrupt references.
func playerRecordID(gameID string, seat int) string {
	return fmt.Sprintf("%s-p%d", gameID, seat)
}

func (mh *matchHandler) persistNewGame(ctx context.Context, state *MatchState, logger runtime.Logger) {
	if state.Store == nil || state.Game == nil || state.GameID == "" {
		return
	}
	g := state.Game

	boardJSON, err := json.Marshal(g.Board)
	if err != nil {
		logger.Error("persistNewGame: Failed to marshal board: %v", err)
		return
	}

	now := time.Now().Unix()
	playerOrder := make([]string, 0, g.PlayerCount())
	players := make([]ports.PlayerRecord, 0, g.PlayerCount())
	for _, p := range g.Players {
		id := playerRecordID(state.GameID, p.Seat)
		playerOrder = append(playerOrder, id)
		players = append(players, ports.PlayerRecord{
			ID:                 id,
			GameID:             state.GameID,
			UserID:             p.UserID,
			Seat:               p.Seat,
			Name:               p.Name,
			Gold:               p.Gold,
			Goods:              p.Goods,
			PoliticalInfluence: p.PoliticalInfluence,
			ServantsAvailable:  p.ServantsAvailable,
			ServantsTotal:      p.ServantsTotal,
			ExtraServants:      p.ExtraServants,
			VictoryPoints:      p.VictoryPoints,
			Role:               p.Role,
			Buildings:          p.Buildings,
			HenchmanCards:      p.HenchmanCards,
			NewsCards:          p.NewsCards,
		})
	}

	record := ports.GameRecord{
		GameID:      state.GameID,
		Status:      "in_progress",
		Phase:       string(g.Phase),
		Round:       g.Round,
		MaxRounds:   g.MaxRounds,
		MayorSeat:   g.MayorSeat,
		CurrentSeat: g.CurrentSeat,
		Policy:      g.CurrentPolicy,
		BoardJSON:   string(boardJSON),
		PlayerOrder: playerOrder,
		BaseStake:   state.BaseStake,
		Log:         append([]string{}, g.Log...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := state.Store.CreateGame(ctx, record, players); err != nil {
		logger.Error("persistNewGame: Failed to store game %s: %v", state.GameID, err)
		return
	}
	state.LogPersisted = len(g.Log)
}

// persistGame mirrors the in-memory aggregate into storage after a mutation.
func (mh *matchHandler) persistGame(ctx context.Context, state *MatchState, logger runtime.Logger) {
	if state.Store == nil || state.Game == nil || state.GameID == "" {
		return
	}
	g := state.Game

	boardBytes, err := json.Marshal(g.Board)
	if err != nil {
		logger.Error("persistGame: Failed to marshal board: %v", err)
		return
	}

	phase := string(g.Phase)
	round := g.Round
	mayorSeat := g.MayorSeat
	currentSeat := g.CurrentSeat
	policy := g.CurrentPolicy
	boardJSON := string(boardBytes)

	if err := state.Store.UpdateGame(ctx, state.GameID, ports.GamePatch{
		Phase:       &phase,
		Round:       &round,
		MayorSeat:   &mayorSeat,
		CurrentSeat: &currentSeat,
		Policy:      &policy,
		BoardJSON:   &boardJSON,
	}); err != nil {
		logger.Error("persistGame: Failed to patch game %s: %v", state.GameID, err)
		return
	}

	for _, p := range g.Players {
		gold := p.Gold
		influence := p.PoliticalInfluence
		available := p.ServantsAvailable
		total := p.ServantsTotal
		extra := p.ExtraServants
		vp := p.VictoryPoints
		role := p.Role
		if err := state.Store.UpdatePlayer(ctx, state.GameID, playerRecordID(state.GameID, p.Seat), ports.PlayerPatch{
			Gold:               &gold,
			Goods:              p.Goods,
			PoliticalInfluence: &influence,
			ServantsAvailable:  &available,
			ServantsTotal:      &total,
			ExtraServants:      &extra,
			VictoryPoints:      &vp,
			Role:               &role,
			Buildings:          p.Buildings,
			HenchmanCards:      p.HenchmanCards,
			NewsCards:          p.NewsCards,
		}); err != nil {
			logger.Error("persistGame: Failed to patch player seat %d: %v", p.Seat, err)
		}
	}

	if len(g.Log) > state.LogPersisted {
		if err := state.Store.AppendLog(ctx, state.GameID, g.Log[state.LogPersisted:]...); err != nil {
			logger.Error("persistGame: Failed to append log for %s: %v", state.GameID, err)
			return
		}
		state.LogPersisted = len(g.Log)
	}
}

// sendError sends a game error message to a specific user.
func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, code int, message string) {
	bytes, err := json.Marshal(map[string]any{
		"code":    code,
		"message": message,
	})
	if err != nil {
		logger.Error("Failed to marshal game error: %v", err)
		return
	}

	presence, ok := state.Presences[userID]
	if !ok {
		logger.Warn("Cannot send error to %s: Presence not found", userID)
		return
	}

	dispatcher.BroadcastMessage(OpGameError, bytes, []runtime.Presence{presence}, nil, true)
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	phase := "lobby"
	if state.Game != nil {
		phase = string(state.Game.Phase)
	}

	labelBytes, err := json.Marshal(Label{
		Open:  state.Game == nil && state.GetOpenSeatsCount() > 0,
		Game:  "nobledynasty",
		Phase: phase,
	})
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(string(labelBytes)); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, reason int) interface{} {
	logger.Debug("MatchTerminate: Match terminated for reason %d", reason)
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}
