package nakama

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"nobledynasty/internal/app"
	"nobledynasty/internal/bot"
	"nobledynasty/internal/domain"
	"nobledynasty/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

// mockDispatcher records match dispatcher calls for assertions.
type mockDispatcher struct {
	broadcastCount int
	labelUpdates   int
	opCodes        []int64
	lastOpCode     int64
	lastData       []byte
	lastDataByOp   map[int64][]byte
	lastLabel      string
}

func (md *mockDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	md.broadcastCount++
	md.opCodes = append(md.opCodes, opCode)
	md.lastOpCode = opCode
	md.lastData = append([]byte(nil), data...)
	if md.lastDataByOp == nil {
		md.lastDataByOp = make(map[int64][]byte)
	}
	md.lastDataByOp[opCode] = md.lastData
	return nil
}

func (md *mockDispatcher) sawOpCode(opCode int64) bool {
	for _, code := range md.opCodes {
		if code == opCode {
			return true
		}
	}
	return false
}

func (md *mockDispatcher) BroadcastMessageDeferred(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	return nil
}

func (md *mockDispatcher) MatchKick(presences []runtime.Presence) error {
	return nil
}

func (md *mockDispatcher) MatchLabelUpdate(label string) error {
	md.labelUpdates++
	md.lastLabel = label
	return nil
}

type mockEconomy struct {
	balances map[string]int64
	updates  []ports.WalletUpdate
}

func (me *mockEconomy) GetBalance(ctx context.Context, userID string) (int64, error) {
	return me.balances[userID], nil
}

func (me *mockEconomy) UpdateBalances(ctx context.Context, updates []ports.WalletUpdate) error {
	me.updates = append(me.updates, updates...)
	return nil
}

// fakePresence is the minimal presence used for join and leave paths.
type fakePresence struct {
	userID   string
	username string
}

func (p fakePresence) GetUserId() string    { return p.userID }
func (p fakePresence) GetSessionId() string { return "session-" + p.userID }
func (p fakePresence) GetNodeId() string    { return "node" }
func (p fakePresence) GetHidden() bool      { return false }
func (p fakePresence) GetPersistence() bool { return true }
func (p fakePresence) GetUsername() string  { return p.username }
func (p fakePresence) GetStatus() string    { return "" }

func (p fakePresence) GetReason() runtime.PresenceReason { return runtime.PresenceReasonJoin }

// mockStore keeps records in memory and counts store traffic.
type mockStore struct {
	games       map[string]ports.GameRecord
	players     map[string]ports.PlayerRecord
	gamePatches int
	playerPatch int
	logAppends  int
	createCalls int
	subscribers []func(ports.GameWithPlayers)
}

func newMockStore() *mockStore {
	return &mockStore{
		games:   make(map[string]ports.GameRecord),
		players: make(map[string]ports.PlayerRecord),
	}
}

func (ms *mockStore) CreateGame(ctx context.Context, game ports.GameRecord, players []ports.PlayerRecord) error {
	ms.createCalls++
	ms.games[game.GameID] = game
	for _, p := range players {
		ms.players[p.ID] = p
	}
	return nil
}

func (ms *mockStore) GetGame(ctx context.Context, gameID string) (ports.GameWithPlayers, error) {
	game, ok := ms.games[gameID]
	if !ok {
		return ports.GameWithPlayers{}, ports.ErrGameNotFound
	}
	out := ports.GameWithPlayers{Game: game}
	for _, id := range game.PlayerOrder {
		out.Players = append(out.Players, ms.players[id])
	}
	return out, nil
}

func (ms *mockStore) UpdateGame(ctx context.Context, gameID string, patch ports.GamePatch) error {
	game, ok := ms.games[gameID]
	if !ok {
		return ports.ErrGameNotFound
	}
	ms.gamePatches++
	if patch.Status != nil {
		game.Status = *patch.Status
	}
	if patch.Phase != nil {
		game.Phase = *patch.Phase
	}
	if patch.Round != nil {
		game.Round = *patch.Round
	}
	if patch.MayorSeat != nil {
		game.MayorSeat = *patch.MayorSeat
	}
	if patch.CurrentSeat != nil {
		game.CurrentSeat = *patch.CurrentSeat
	}
	if patch.Policy != nil {
		game.Policy = *patch.Policy
	}
	if patch.BoardJSON != nil {
		game.BoardJSON = *patch.BoardJSON
	}
	ms.games[gameID] = game
	return nil
}

func (ms *mockStore) UpdatePlayer(ctx context.Context, gameID, playerID string, patch ports.PlayerPatch) error {
	record, ok := ms.players[playerID]
	if !ok {
		return ports.ErrGameNotFound
	}
	ms.playerPatch++
	if patch.Gold != nil {
		record.Gold = *patch.Gold
	}
	if patch.PoliticalInfluence != nil {
		record.PoliticalInfluence = *patch.PoliticalInfluence
	}
	if patch.ServantsAvailable != nil {
		record.ServantsAvailable = *patch.ServantsAvailable
	}
	if patch.VictoryPoints != nil {
		record.VictoryPoints = *patch.VictoryPoints
	}
	if patch.Role != nil {
		record.Role = *patch.Role
	}
	ms.players[playerID] = record
	return nil
}

func (ms *mockStore) AppendLog(ctx context.Context, gameID string, entries ...string) error {
	game, ok := ms.games[gameID]
	if !ok {
		return ports.ErrGameNotFound
	}
	ms.logAppends++
	game.Log = append(game.Log, entries...)
	ms.games[gameID] = game
	return nil
}

func (ms *mockStore) DeleteGame(ctx context.Context, gameID string) error {
	delete(ms.games, gameID)
	return nil
}

func (ms *mockStore) Subscribe(gameID string, fn func(ports.GameWithPlayers)) (cancel func()) {
	ms.subscribers = append(ms.subscribers, fn)
	return func() {}
}

func newGameState(t *testing.T, userIDs []string) *MatchState {
	t.Helper()
	svc := app.NewService(nil)
	game, _, err := svc.StartGame(userIDs, nil, domain.DefaultMaxRounds)
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	state := &MatchState{
		Presences: make(map[string]runtime.Presence),
		App:       svc,
		Game:      game,
		GameID:    "match-1",
		BaseStake: 100,
		Bots:      make(map[string]*bot.Agent),
		Economy:   &mockEconomy{},
		Store:     newMockStore(),
	}
	for i, id := range userIDs {
		state.Seats[i] = id
	}
	return state
}

func TestFindFirstHumanSeat(t *testing.T) {
	tests := []struct {
		name  string
		seats []string
		want  int
	}{
		{name: "FirstHumanAfterBot", seats: []string{"bot-0", "user-1", "", "", ""}, want: 1},
		{name: "AllBots", seats: []string{"bot-0", "bot-1", "", "", ""}, want: -1},
		{name: "AllEmpty", seats: []string{"", "", "", "", ""}, want: -1},
		{name: "FirstHumanIsSeatZero", seats: []string{"user-1", "bot-0", "user-2", "", ""}, want: 0},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			if got := findFirstHumanSeat(test.seats); got != test.want {
				t.Fatalf("findFirstHumanSeat() = %d, want %d", got, test.want)
			}
		})
	}
}

func TestLabelMarshal(t *testing.T) {
	payload, err := json.Marshal(Label{Open: true, Game: "nobledynasty", Phase: "lobby"})
	if err != nil {
		t.Fatalf("Failed to marshal label: %v", err)
	}
	want := `{"open":true,"game":"nobledynasty","phase":"lobby"}`
	if string(payload) != want {
		t.Fatalf("Got %s, want %s", payload, want)
	}
}

func TestProcessBots_AutoFillsSoloHumanToMinimumTable(t *testing.T) {
	handler := &matchHandler{}
	dispatcher := &mockDispatcher{}
	state := &MatchState{
		Seats:                [maxSeats]string{"user-1", "", "", "", ""},
		Presences:            make(map[string]runtime.Presence),
		Bots:                 make(map[string]*bot.Agent),
		BotsEnabled:          true,
		BotAutoFillDelay:     2,
		LastSinglePlayerTick: 8,
		Tick:                 10,
	}

	handler.processBots(context.Background(), state, dispatcher, noopLogger{})

	botCount := 0
	for _, seat := range state.Seats {
		if bot.IsBot(seat) {
			botCount++
		}
	}
	if botCount != app.MinPlayersToStartGame-1 {
		t.Fatalf("Expected %d bots, got %d", app.MinPlayersToStartGame-1, botCount)
	}
	if state.LastSinglePlayerTick != 0 {
		t.Fatalf("Expected auto-fill timer reset, got %d", state.LastSinglePlayerTick)
	}
	if dispatcher.broadcastCount == 0 || dispatcher.labelUpdates == 0 {
		t.Fatal("Expected snapshot broadcast and label update after auto-fill")
	}
}

func TestProcessBots_WaitsForConfiguredDelay(t *testing.T) {
	handler := &matchHandler{}
	dispatcher := &mockDispatcher{}
	state := &MatchState{
		Seats:            [maxSeats]string{"user-1", "", "", "", ""},
		Presences:        make(map[string]runtime.Presence),
		Bots:             make(map[string]*bot.Agent),
		BotsEnabled:      true,
		BotAutoFillDelay: 5,
		Tick:             10,
	}

	handler.processBots(context.Background(), state, dispatcher, noopLogger{})

	if state.LastSinglePlayerTick != 10 {
		t.Fatalf("Expected auto-fill timer to start at tick 10, got %d", state.LastSinglePlayerTick)
	}
	for _, seat := range state.Seats[1:] {
		if seat != "" {
			t.Fatal("Bot added before the auto-fill delay elapsed")
		}
	}
}

func TestPendingBotSeat(t *testing.T) {
	state := newGameState(t, []string{"user-1", "bot-1", "bot-2"})
	handler := &matchHandler{}

	// Starting-choice cursor sits on seat 0, a human.
	if seat, _ := handler.pendingBotSeat(state); seat != -1 {
		t.Fatalf("pendingBotSeat = %d, want -1 for human seat", seat)
	}

	state.Game.StartingCursor = 1
	seat, userID := handler.pendingBotSeat(state)
	if seat != 1 || userID != "bot-1" {
		t.Fatalf("pendingBotSeat = %d/%s, want 1/bot-1", seat, userID)
	}
}

func TestProcessBots_BotActsAfterDelay(t *testing.T) {
	handler := &matchHandler{}
	dispatcher := &mockDispatcher{}
	state := newGameState(t, []string{"bot-1", "user-1", "bot-2"})
	state.BotsEnabled = true
	state.BotMinDelay = 1
	state.BotMaxDelay = 1
	state.Tick = 100

	// First pass arms the delay only.
	handler.processBots(context.Background(), state, dispatcher, noopLogger{})
	if state.BotWaitUntil != 101 {
		t.Fatalf("BotWaitUntil = %d, want 101", state.BotWaitUntil)
	}
	if state.Game.StartingCursor != 0 {
		t.Fatal("bot acted before its delay elapsed")
	}

	// Second pass at the armed tick performs the starting choice.
	state.Tick = 101
	handler.processBots(context.Background(), state, dispatcher, noopLogger{})
	if state.Game.StartingCursor != 1 {
		t.Fatalf("StartingCursor = %d, want 1 after bot choice", state.Game.StartingCursor)
	}
	if dispatcher.broadcastCount == 0 {
		t.Fatal("Expected event broadcast after bot action")
	}
}

func TestPersistNewGameAndPatches(t *testing.T) {
	handler := &matchHandler{}
	state := newGameState(t, []string{"user-1", "user-2", "user-3"})
	store := state.Store.(*mockStore)

	handler.persistNewGame(context.Background(), state, noopLogger{})
	if store.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1", store.createCalls)
	}

	composite, err := store.GetGame(context.Background(), "match-1")
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if len(composite.Players) != 3 {
		t.Fatalf("persisted players = %d, want 3", len(composite.Players))
	}
	if len(composite.Game.PlayerOrder) != 3 {
		t.Fatalf("player_order = %v, want 3 entries", composite.Game.PlayerOrder)
	}
	for i, id := range composite.Game.PlayerOrder {
		if composite.Players[i].ID != id {
			t.Fatalf("players not in player_order order: %v vs %v", composite.Players[i].ID, id)
		}
		if composite.Players[i].Seat != i {
			t.Fatalf("player %s seat = %d, want %d", id, composite.Players[i].Seat, i)
		}
	}

	// A mutation then mirrors through patches and the log helper.
	svc := state.App
	if _, err := svc.ApplyStartingChoice(state.Game, 0, "noble_heritage"); err != nil {
		t.Fatalf("ApplyStartingChoice: %v", err)
	}
	handler.persistGame(context.Background(), state, noopLogger{})

	if store.gamePatches == 0 || store.playerPatch == 0 {
		t.Fatalf("expected game and player patches, got %d/%d", store.gamePatches, store.playerPatch)
	}
	if store.logAppends != 1 {
		t.Fatalf("logAppends = %d, want 1", store.logAppends)
	}
	refreshed, _ := store.GetGame(context.Background(), "match-1")
	if refreshed.Players[0].Gold != 8 {
		t.Fatalf("persisted gold = %d, want 8 after noble heritage", refreshed.Players[0].Gold)
	}
	if state.LogPersisted != len(state.Game.Log) {
		t.Fatalf("LogPersisted = %d, want %d", state.LogPersisted, len(state.Game.Log))
	}
}

func TestSettleGameAppliesStakesAndSkipsBots(t *testing.T) {
	handler := &matchHandler{}
	state := newGameState(t, []string{"user-1", "user-2", "bot-1"})
	economy := state.Economy.(*mockEconomy)
	handler.persistNewGame(context.Background(), state, noopLogger{})

	state.Game.Players[0].VictoryPoints = 10
	state.Game.Players[1].VictoryPoints = 5
	state.Game.Players[2].VictoryPoints = 1

	payload := handler.settleGame(context.Background(), state, noopLogger{}, app.GameEndedPayload{
		RankingSeats: []int{0, 1, 2},
		WinnerSeat:   0,
	})

	if payload.BalanceChanges["user-1"] != 300 {
		t.Fatalf("winner change = %d, want 300", payload.BalanceChanges["user-1"])
	}
	if payload.BalanceChanges["user-2"] != -100 {
		t.Fatalf("second change = %d, want -100", payload.BalanceChanges["user-2"])
	}
	if payload.BalanceChanges["bot-1"] != -200 {
		t.Fatalf("third change = %d, want -200", payload.BalanceChanges["bot-1"])
	}

	// Wallets only move for humans.
	if len(economy.updates) != 2 {
		t.Fatalf("wallet updates = %d, want 2", len(economy.updates))
	}
	for _, update := range economy.updates {
		if bot.IsBot(update.UserID) {
			t.Fatalf("bot wallet updated: %s", update.UserID)
		}
	}

	if state.Game != nil {
		t.Fatal("game state not cleared after settlement")
	}
	store := state.Store.(*mockStore)
	if store.games["match-1"].Status != "finished" {
		t.Fatalf("stored status = %q, want finished", store.games["match-1"].Status)
	}
}

func TestBroadcastSnapshotCarriesElectionAndDraftState(t *testing.T) {
	handler := &matchHandler{}
	dispatcher := &mockDispatcher{}
	state := newGameState(t, []string{"user-1", "user-2", "user-3"})
	svc := state.App

	for seat, choice := range []string{"noble_heritage", "merchant_background", "military_service"} {
		if _, err := svc.ApplyStartingChoice(state.Game, seat, choice); err != nil {
			t.Fatalf("ApplyStartingChoice: %v", err)
		}
	}
	// Seat 0 carries 3 influence after noble heritage.
	if _, err := svc.CastVote(state.Game, 0, 2); err != nil {
		t.Fatalf("CastVote: %v", err)
	}

	handler.broadcastSnapshot(state, dispatcher, noopLogger{}, nil)

	var snap stateSnapshot
	if err := json.Unmarshal(dispatcher.lastData, &snap); err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}
	if snap.Phase != string(domain.PhaseElection) {
		t.Fatalf("phase = %q, want election", snap.Phase)
	}
	if snap.StartingCursor != 3 {
		t.Fatalf("starting_cursor = %d, want 3 after all choices", snap.StartingCursor)
	}
	if snap.ElectionStage != string(domain.ElectionVoting) || snap.VoterCursor != 1 {
		t.Fatalf("election stage/cursor = %q/%d, want voting/1", snap.ElectionStage, snap.VoterCursor)
	}
	if snap.VotingResults[2] == nil || snap.VotingResults[2].Votes != 3 {
		t.Fatalf("voting_results = %+v, want 3 votes for seat 2", snap.VotingResults)
	}

	// Finish the election and confirm; the draft state must follow.
	if _, err := svc.CastVote(state.Game, 1, 2); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if _, err := svc.CastVote(state.Game, 2, 2); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if _, err := svc.ConfirmElection(state.Game); err != nil {
		t.Fatalf("ConfirmElection: %v", err)
	}

	handler.broadcastSnapshot(state, dispatcher, noopLogger{}, nil)
	if err := json.Unmarshal(dispatcher.lastData, &snap); err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}
	if snap.Phase != string(domain.PhaseRoleSelection) {
		t.Fatalf("phase = %q, want role selection", snap.Phase)
	}
	if len(snap.DraftOrder) != 2 || snap.DraftOrder[0] != 1 || snap.DraftOrder[1] != 0 {
		t.Fatalf("draft_order = %v, want [1 0] for mayor seat 2", snap.DraftOrder)
	}
	if snap.DraftCursor != 0 {
		t.Fatalf("draft_cursor = %d, want 0", snap.DraftCursor)
	}
	if snap.SelectedRoles[2] != domain.RoleMayor {
		t.Fatalf("selected_roles = %v, want mayor pre-assigned to seat 2", snap.SelectedRoles)
	}
}

func TestMatchJoinAttemptRejections(t *testing.T) {
	handler := &matchHandler{}
	ctx := context.Background()

	full := &MatchState{
		Seats:     [maxSeats]string{"u1", "u2", "u3", "u4", "u5"},
		Presences: make(map[string]runtime.Presence),
	}
	if _, allowed, reason := handler.MatchJoinAttempt(ctx, noopLogger{}, nil, nil, nil, 0, full, fakePresence{userID: "u6"}, nil); allowed || reason != ports.ErrGameFull.Error() {
		t.Fatalf("full table: allowed=%v reason=%q, want rejection %q", allowed, reason, ports.ErrGameFull)
	}

	started := newGameState(t, []string{"user-1", "user-2", "user-3"})
	if _, allowed, reason := handler.MatchJoinAttempt(ctx, noopLogger{}, nil, nil, nil, 0, started, fakePresence{userID: "u9"}, nil); allowed || reason != ports.ErrGameStarted.Error() {
		t.Fatalf("running game: allowed=%v reason=%q, want rejection %q", allowed, reason, ports.ErrGameStarted)
	}

	// A seated player always reconnects.
	if _, allowed, _ := handler.MatchJoinAttempt(ctx, noopLogger{}, nil, nil, nil, 0, started, fakePresence{userID: "user-2"}, nil); !allowed {
		t.Fatal("seated player should be allowed to rejoin a running game")
	}
}

func TestMatchJoinAndLeaveAnnounceSeatChanges(t *testing.T) {
	handler := &matchHandler{}
	dispatcher := &mockDispatcher{}
	ctx := context.Background()
	state := &MatchState{
		OwnerSeat: -1,
		Presences: make(map[string]runtime.Presence),
		Bots:      make(map[string]*bot.Agent),
	}

	handler.MatchJoin(ctx, noopLogger{}, nil, nil, dispatcher, 1, state, []runtime.Presence{fakePresence{userID: "user-9", username: "Duchess"}})

	if state.Seats[0] != "user-9" || state.OwnerSeat != 0 {
		t.Fatalf("seat/owner = %q/%d after join", state.Seats[0], state.OwnerSeat)
	}
	if !dispatcher.sawOpCode(OpPlayerJoined) {
		t.Fatalf("opcodes %v missing player-joined announcement", dispatcher.opCodes)
	}
	var joined seatChangePayload
	if err := json.Unmarshal(dispatcher.lastDataByOp[OpPlayerJoined], &joined); err != nil {
		t.Fatalf("Failed to unmarshal join payload: %v", err)
	}
	if joined.UserID != "user-9" || joined.Seat != 0 || joined.DisplayName != "Duchess" {
		t.Fatalf("join payload = %+v", joined)
	}

	result := handler.MatchLeave(ctx, noopLogger{}, nil, nil, dispatcher, 2, state, []runtime.Presence{fakePresence{userID: "user-9"}})

	if !dispatcher.sawOpCode(OpPlayerLeft) {
		t.Fatalf("opcodes %v missing player-left announcement", dispatcher.opCodes)
	}
	if state.Seats[0] != "" {
		t.Fatal("lobby seat should be freed on leave")
	}
	if result != nil {
		t.Fatal("match with no humans and no presences should terminate")
	}
}

func TestCheckBuyIns(t *testing.T) {
	handler := &matchHandler{}
	economy := &mockEconomy{balances: map[string]int64{"user-1": 500, "user-2": 199}}
	state := &MatchState{
		Seats:     [maxSeats]string{"user-1", "user-2", "bot-1"},
		Presences: make(map[string]runtime.Presence),
		BaseStake: 100,
		Economy:   economy,
	}

	// Worst case at three seats is twice the base stake.
	err := handler.checkBuyIns(context.Background(), state)
	if err == nil {
		t.Fatal("expected short purse to fail the buy-in check")
	}
	if !strings.Contains(err.Error(), "user-2") {
		t.Fatalf("error %q should name the short player", err)
	}

	economy.balances["user-2"] = 200
	if err := handler.checkBuyIns(context.Background(), state); err != nil {
		t.Fatalf("checkBuyIns: %v", err)
	}

	// Bots never hold wallets and must not block the start.
	if _, ok := economy.balances["bot-1"]; ok {
		t.Fatal("test setup should not fund bots")
	}
}

func TestApplyBotActionCoversAllKinds(t *testing.T) {
	handler := &matchHandler{}
	state := newGameState(t, []string{"bot-1", "bot-2", "bot-3"})
	agent := bot.NewAgent("bot-1", nil)

	// Drive the game through a full round using only agent decisions.
	for i := 0; i < 200; i++ {
		if state.Game.Round > 1 {
			return
		}
		seat, _ := handler.pendingBotSeat(state)
		if seat < 0 {
			t.Fatal("no pending seat in an all-bot game")
		}
		action, ok := agent.Act(state.Game, seat)
		if !ok {
			t.Fatalf("agent produced no action for seat %d in phase %s", seat, state.Game.Phase)
		}
		if _, err := handler.applyBotAction(state, seat, action); err != nil {
			t.Fatalf("action %s for seat %d rejected: %v", action.Kind, seat, err)
		}
	}
	t.Fatalf("round never completed; stuck in phase %s", state.Game.Phase)
}
