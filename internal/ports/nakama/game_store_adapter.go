package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"nobledynasty/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	gameRecordCollection = "game_records"
	gamePlayerCollection = "game_players"
)

// NakamaGameStoreAdapter implements ports.GameStorePort on Nakama storage.
// Every write is conditional on the version Nakama returned for the previous
// write of the same object, so a write racing an out-of-band mutation fails
// with ports.ErrVersionConflict instead of silently losing data. Change
// subscriptions are in-process: the match loop is the only writer for a game,
// and it notifies local subscribers after each successful write.
type NakamaGameStoreAdapter struct {
	nk runtime.NakamaModule

	mu          sync.Mutex
	versions    map[string]string // collection/key -> last seen storage version
	subscribers map[string]map[int]func(ports.GameWithPlayers)
	nextSubID   int
}

// NewNakamaGameStoreAdapter creates a new game store adapter.
func NewNakamaGameStoreAdapter(nk runtime.NakamaModule) *NakamaGameStoreAdapter {
	return &NakamaGameStoreAdapter{
		nk:          nk,
		versions:    make(map[string]string),
		subscribers: make(map[string]map[int]func(ports.GameWithPlayers)),
	}
}

func versionKey(collection, key string) string {
	return collection + "/" + key
}

func playerKey(gameID, playerID string) string {
	return gameID + ":" + playerID
}

// CreateGame stores a new game with its player sub-records.
func (a *NakamaGameStoreAdapter) CreateGame(ctx context.Context, game ports.GameRecord, players []ports.PlayerRecord) error {
	if game.GameID == "" {
		return fmt.Errorf("game id is required")
	}

	writes := make([]*runtime.StorageWrite, 0, len(players)+1)

	gameValue, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game record: %w", err)
	}
	writes = append(writes, &runtime.StorageWrite{
		Collection:      gameRecordCollection,
		Key:             game.GameID,
		Value:           string(gameValue),
		Version:         "*", // must not already exist
		PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	})

	for i := range players {
		playerValue, err := json.Marshal(players[i])
		if err != nil {
			return fmt.Errorf("failed to marshal player record: %w", err)
		}
		writes = append(writes, &runtime.StorageWrite{
			Collection:      gamePlayerCollection,
			Key:             playerKey(game.GameID, players[i].ID),
			Value:           string(playerValue),
			Version:         "*",
			PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		})
	}

	acks, err := a.nk.StorageWrite(ctx, writes)
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return ports.ErrVersionConflict
		}
		return fmt.Errorf("failed to create game %s: %w", game.GameID, err)
	}

	a.mu.Lock()
	for _, ack := range acks {
		a.versions[versionKey(ack.Collection, ack.Key)] = ack.Version
	}
	a.mu.Unlock()

	a.notify(ctx, game.GameID)
	return nil
}

// GetGame loads the composite record for the game id.
func (a *NakamaGameStoreAdapter) GetGame(ctx context.Context, gameID string) (ports.GameWithPlayers, error) {
	game, err := a.readGameRecord(ctx, gameID)
	if err != nil {
		return ports.GameWithPlayers{}, err
	}

	reads := make([]*runtime.StorageRead, 0, len(game.PlayerOrder))
	for _, playerID := range game.PlayerOrder {
		reads = append(reads, &runtime.StorageRead{
			Collection: gamePlayerCollection,
			Key:        playerKey(gameID, playerID),
		})
	}

	players := make([]ports.PlayerRecord, 0, len(game.PlayerOrder))
	if len(reads) > 0 {
		objects, err := a.nk.StorageRead(ctx, reads)
		if err != nil {
			return ports.GameWithPlayers{}, fmt.Errorf("failed to read players for game %s: %w", gameID, err)
		}
		byKey := make(map[string]ports.PlayerRecord, len(objects))
		a.mu.Lock()
		for _, obj := range objects {
			var record ports.PlayerRecord
			if err := json.Unmarshal([]byte(obj.Value), &record); err != nil {
				a.mu.Unlock()
				return ports.GameWithPlayers{}, fmt.Errorf("failed to unmarshal player record %s: %w", obj.Key, err)
			}
			a.versions[versionKey(gamePlayerCollection, obj.Key)] = obj.Version
			byKey[obj.Key] = record
		}
		a.mu.Unlock()

		// Preserve seat order from player_order.
		for _, playerID := range game.PlayerOrder {
			record, ok := byKey[playerKey(gameID, playerID)]
			if !ok {
				return ports.GameWithPlayers{}, fmt.Errorf("game %s is missing player record %s", gameID, playerID)
			}
			players = append(players, record)
		}
	}

	return ports.GameWithPlayers{Game: game, Players: players}, nil
}

// UpdateGame applies a partial patch to the game record.
func (a *NakamaGameStoreAdapter) UpdateGame(ctx context.Context, gameID string, patch ports.GamePatch) error {
	game, err := a.readGameRecord(ctx, gameID)
	if err != nil {
		return err
	}

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
	if patch.PlayerOrder != nil {
		game.PlayerOrder = patch.PlayerOrder
	}

	if err := a.writeGameRecord(ctx, game); err != nil {
		return err
	}
	a.notify(ctx, gameID)
	return nil
}

// UpdatePlayer applies a partial patch to one player sub-record.
func (a *NakamaGameStoreAdapter) UpdatePlayer(ctx context.Context, gameID, playerID string, patch ports.PlayerPatch) error {
	key := playerKey(gameID, playerID)
	objects, err := a.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: gamePlayerCollection,
		Key:        key,
	}})
	if err != nil {
		return fmt.Errorf("failed to read player %s: %w", playerID, err)
	}
	if len(objects) == 0 {
		return ports.ErrGameNotFound
	}

	var record ports.PlayerRecord
	if err := json.Unmarshal([]byte(objects[0].Value), &record); err != nil {
		return fmt.Errorf("failed to unmarshal player record %s: %w", playerID, err)
	}

	if patch.Gold != nil {
		record.Gold = *patch.Gold
	}
	if patch.Goods != nil {
		record.Goods = patch.Goods
	}
	if patch.PoliticalInfluence != nil {
		record.PoliticalInfluence = *patch.PoliticalInfluence
	}
	if patch.ServantsAvailable != nil {
		record.ServantsAvailable = *patch.ServantsAvailable
	}
	if patch.ServantsTotal != nil {
		record.ServantsTotal = *patch.ServantsTotal
	}
	if patch.ExtraServants != nil {
		record.ExtraServants = *patch.ExtraServants
	}
	if patch.VictoryPoints != nil {
		record.VictoryPoints = *patch.VictoryPoints
	}
	if patch.Role != nil {
		record.Role = *patch.Role
	}
	if patch.Buildings != nil {
		record.Buildings = patch.Buildings
	}
	if patch.HenchmanCards != nil {
		record.HenchmanCards = patch.HenchmanCards
	}
	if patch.NewsCards != nil {
		record.NewsCards = patch.NewsCards
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal player record %s: %w", playerID, err)
	}

	acks, err := a.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      gamePlayerCollection,
		Key:             key,
		Value:           string(value),
		Version:         objects[0].Version,
		PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return ports.ErrVersionConflict
		}
		return fmt.Errorf("failed to update player %s: %w", playerID, err)
	}

	a.mu.Lock()
	for _, ack := range acks {
		a.versions[versionKey(ack.Collection, ack.Key)] = ack.Version
	}
	a.mu.Unlock()

	a.notify(ctx, gameID)
	return nil
}

// AppendLog appends entries to the game's event log.
func (a *NakamaGameStoreAdapter) AppendLog(ctx context.Context, gameID string, entries ...string) error {
	if len(entries) == 0 {
		return nil
	}

	game, err := a.readGameRecord(ctx, gameID)
	if err != nil {
		return err
	}
	game.Log = append(game.Log, entries...)

	if err := a.writeGameRecord(ctx, game); err != nil {
		return err
	}
	a.notify(ctx, gameID)
	return nil
}

// DeleteGame removes the game and its player sub-records.
func (a *NakamaGameStoreAdapter) DeleteGame(ctx context.Context, gameID string) error {
	game, err := a.readGameRecord(ctx, gameID)
	if err != nil {
		if errors.Is(err, ports.ErrGameNotFound) {
			return nil
		}
		return err
	}

	deletes := make([]*runtime.StorageDelete, 0, len(game.PlayerOrder)+1)
	deletes = append(deletes, &runtime.StorageDelete{
		Collection: gameRecordCollection,
		Key:        gameID,
	})
	for _, playerID := range game.PlayerOrder {
		deletes = append(deletes, &runtime.StorageDelete{
			Collection: gamePlayerCollection,
			Key:        playerKey(gameID, playerID),
		})
	}

	if err := a.nk.StorageDelete(ctx, deletes); err != nil {
		return fmt.Errorf("failed to delete game %s: %w", gameID, err)
	}

	a.mu.Lock()
	delete(a.versions, versionKey(gameRecordCollection, gameID))
	for _, playerID := range game.PlayerOrder {
		delete(a.versions, versionKey(gamePlayerCollection, playerKey(gameID, playerID)))
	}
	delete(a.subscribers, gameID)
	a.mu.Unlock()

	return nil
}

// Subscribe registers a callback invoked with the refreshed composite record
// after any change to the game or its players.
func (a *NakamaGameStoreAdapter) Subscribe(gameID string, fn func(ports.GameWithPlayers)) (cancel func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.subscribers[gameID] == nil {
		a.subscribers[gameID] = make(map[int]func(ports.GameWithPlayers))
	}
	id := a.nextSubID
	a.nextSubID++
	a.subscribers[gameID][id] = fn

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if subs, ok := a.subscribers[gameID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(a.subscribers, gameID)
			}
		}
	}
}

func (a *NakamaGameStoreAdapter) readGameRecord(ctx context.Context, gameID string) (ports.GameRecord, error) {
	objects, err := a.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: gameRecordCollection,
		Key:        gameID,
	}})
	if err != nil {
		return ports.GameRecord{}, fmt.Errorf("failed to read game %s: %w", gameID, err)
	}
	if len(objects) == 0 {
		return ports.GameRecord{}, ports.ErrGameNotFound
	}

	var game ports.GameRecord
	if err := json.Unmarshal([]byte(objects[0].Value), &game); err != nil {
		return ports.GameRecord{}, fmt.Errorf("failed to unmarshal game record %s: %w", gameID, err)
	}

	a.mu.Lock()
	a.versions[versionKey(gameRecordCollection, gameID)] = objects[0].Version
	a.mu.Unlock()

	return game, nil
}

func (a *NakamaGameStoreAdapter) writeGameRecord(ctx context.Context, game ports.GameRecord) error {
	value, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game record %s: %w", game.GameID, err)
	}

	a.mu.Lock()
	version := a.versions[versionKey(gameRecordCollection, game.GameID)]
	a.mu.Unlock()

	acks, err := a.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      gameRecordCollection,
		Key:             game.GameID,
		Value:           string(value),
		Version:         version,
		PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return ports.ErrVersionConflict
		}
		return fmt.Errorf("failed to write game record %s: %w", game.GameID, err)
	}

	a.mu.Lock()
	for _, ack := range acks {
		a.versions[versionKey(ack.Collection, ack.Key)] = ack.Version
	}
	a.mu.Unlock()

	return nil
}

func (a *NakamaGameStoreAdapter) notify(ctx context.Context, gameID string) {
	a.mu.Lock()
	subs := make([]func(ports.GameWithPlayers), 0, len(a.subscribers[gameID]))
	for _, fn := range a.subscribers[gameID] {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	composite, err := a.GetGame(ctx, gameID)
	if err != nil {
		return
	}
	for _, fn := range subs {
		fn(composite)
	}
}

var _ ports.GameStorePort = (*NakamaGameStoreAdapter)(nil)
