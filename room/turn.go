package room

import (
	"math/rand"
	"slices"

	"github.com/wfunc/callout/logger"
	"github.com/wfunc/callout/network"
)

// StartGame deals the first turn to a random player. It runs once per room.
func (r *Room) StartGame(nickname string) error {
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if r.findLocked(nickname) == nil {
		r.mu.Unlock()
		return invalid("%q is not a player in room %s", nickname, r.code)
	}
	if r.started {
		r.mu.Unlock()
		return invalid("the game has already started")
	}
	if len(r.players) < r.settings.MinPlayers {
		r.mu.Unlock()
		return invalid("at least %d players are needed to start", r.settings.MinPlayers)
	}

	r.started = true
	r.turnIndex = rand.Intn(len(r.players))
	logger.Log.Infof("Room %s: game started by %s", r.code, nickname)
	r.announceTurnLocked()

	r.unlockAndFlush()
	return nil
}

// CurrentTurn returns the nickname whose turn it is, or "" before the game starts.
func (r *Room) CurrentTurn() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur := r.currentLocked(); cur != nil {
		return cur.Nickname
	}
	return ""
}

func (r *Room) currentLocked() *Player {
	if !r.started || len(r.players) == 0 {
		return nil
	}
	return r.players[r.turnIndex]
}

// advanceTurnLocked passes the turn to the next seat in join order.
func (r *Room) advanceTurnLocked() {
	if !r.started || len(r.players) == 0 {
		return
	}
	r.turnIndex = (r.turnIndex + 1) % len(r.players)
	r.announceTurnLocked()
}

func (r *Room) announceTurnLocked() {
	if cur := r.currentLocked(); cur != nil {
		r.emit(network.EventStartTurn, StartTurnPayload{CurrentTurn: cur.Nickname})
	}
}

// removeAtLocked deletes the seat at idx and keeps turnIndex on the same
// player, or on the successor if the current player was removed. It reports
// whether the removed player held the turn.
func (r *Room) removeAtLocked(idx int) bool {
	wasCurrent := r.started && idx == r.turnIndex
	r.players = slices.Delete(r.players, idx, idx+1)

	switch {
	case len(r.players) == 0:
		r.turnIndex = 0
	case idx < r.turnIndex:
		r.turnIndex--
	case r.turnIndex >= len(r.players):
		r.turnIndex = 0
	}
	return wasCurrent
}
