// room/room.go
package room

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/callout/cards"
	"github.com/wfunc/callout/logger"
	"github.com/wfunc/callout/models"
	"github.com/wfunc/callout/network"
)

const (
	maxNicknameLength = 32
	recordTimeout     = 5 * time.Second
)

// Settings are the per-room game rules.
type Settings struct {
	HandSize       int
	MinPlayers     int
	ScoreAward     int
	ResponseWindow time.Duration
	VotingWindow   time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		HandSize:       5,
		MinPlayers:     2,
		ScoreAward:     1,
		ResponseWindow: 30 * time.Second,
		VotingWindow:   20 * time.Second,
	}
}

// Deps are the collaborators shared by every room of a Manager.
type Deps struct {
	Catalog     *cards.Catalog
	Broadcaster Broadcaster
	Scheduler   Scheduler
	Recorder    Recorder
}

// Player is a seat in a room. It is removed, not tombstoned, on disconnect.
type Player struct {
	ConnID   string
	Nickname string
	Hand     []*cards.Card
}

type outbound struct {
	connID  string // empty for a room broadcast
	event   string
	payload any
}

// Room is one game session. Every field below mu is guarded by it; sendMu
// orders event delivery so clients see events in mutation order.
type Room struct {
	code      string
	createdAt time.Time
	settings  Settings
	deps      *Deps

	mu         sync.Mutex
	players    []*Player
	turnIndex  int
	started    bool
	active     *Challenge
	scores     map[string]int
	timers     map[int64]struct{}
	emptySince time.Time
	outbox     []outbound
	records    []models.ChallengeRecord

	sendMu sync.Mutex
	// closed and conns are read without mu so delivery never waits on it.
	closed  atomic.Bool
	conns   atomic.Pointer[[]string]
	pending *sync.WaitGroup
}

func newRoom(code string, settings Settings, deps *Deps, pending *sync.WaitGroup) *Room {
	now := time.Now()
	r := &Room{
		code:       code,
		createdAt:  now,
		settings:   settings,
		deps:       deps,
		pending:    pending,
		scores:     make(map[string]int),
		timers:     make(map[int64]struct{}),
		emptySince: now,
	}
	r.conns.Store(&[]string{})
	return r
}

// GetID returns the room code.
func (r *Room) GetID() string {
	return r.code
}

func (r *Room) Code() string {
	return r.code
}

// ConnectionIDs returns the connections currently seated in the room. It does
// not take the room lock.
func (r *Room) ConnectionIDs() []string {
	return slices.Clone(*r.conns.Load())
}

// JoinResult describes the outcome of a join.
type JoinResult struct {
	Nickname     string
	Hand         []*cards.Card
	Reconnected  bool
	PreviousConn string
}

// Join seats connID as nickname. A nickname already seated is rebound to the
// new connection without redealing; otherwise a fresh hand is drawn.
func (r *Room) Join(connID, nickname string) (JoinResult, error) {
	nickname = strings.TrimSpace(nickname)

	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return JoinResult{}, ErrRoomNotFound
	}
	if nickname == "" {
		r.mu.Unlock()
		return JoinResult{}, invalid("nickname is required")
	}
	if len(nickname) > maxNicknameLength {
		r.mu.Unlock()
		return JoinResult{}, invalid("nickname is longer than %d characters", maxNicknameLength)
	}

	res := JoinResult{Nickname: nickname}
	if p := r.findLocked(nickname); p != nil {
		res.Reconnected = true
		if p.ConnID != connID {
			res.PreviousConn = p.ConnID
			r.sendTo(p.ConnID, network.EventError, ErrorPayload{Message: "your seat was taken over by a new connection"})
			p.ConnID = connID
		}
		res.Hand = slices.Clone(p.Hand)
		logger.Log.Infof("Room %s: %s reconnected on %s", r.code, nickname, connID)
	} else {
		hand, err := r.deps.Catalog.Draw(r.settings.HandSize)
		if err != nil {
			r.mu.Unlock()
			return JoinResult{}, err
		}
		r.players = append(r.players, &Player{ConnID: connID, Nickname: nickname, Hand: hand})
		if _, ok := r.scores[nickname]; !ok {
			r.scores[nickname] = 0
		}
		res.Hand = slices.Clone(hand)
		logger.Log.Infof("Room %s: %s joined on %s (%d players)", r.code, nickname, connID, len(r.players))
	}
	r.emptySince = time.Time{}
	r.refreshConnsLocked()

	r.sendTo(connID, network.EventJoinedRoom, JoinedRoomPayload{
		Code:    r.code,
		Players: r.playerViewsLocked(),
		Hand:    slices.Clone(res.Hand),
	})
	r.emit(network.EventUpdatePlayerList, r.playerListLocked())
	if cur := r.currentLocked(); cur != nil {
		r.sendTo(connID, network.EventStartTurn, StartTurnPayload{CurrentTurn: cur.Nickname})
	}
	if c := r.active; c != nil {
		r.sendTo(connID, network.EventChallenge, c.payload())
	}

	r.unlockAndFlush()
	return res, nil
}

// Leave removes the player seated on connID. It reports whether a player was
// removed and whether the room is now empty. A connection whose seat was taken
// over is no longer seated, so its late disconnect changes nothing.
func (r *Room) Leave(connID string) (removed bool, empty bool) {
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return false, true
	}
	idx := slices.IndexFunc(r.players, func(p *Player) bool { return p.ConnID == connID })
	if idx < 0 {
		empty = len(r.players) == 0
		r.mu.Unlock()
		return false, empty
	}

	nickname := r.players[idx].Nickname
	wasCurrent := r.removeAtLocked(idx)
	logger.Log.Infof("Room %s: %s left (%d players)", r.code, nickname, len(r.players))

	if c := r.active; c != nil && c.involves(nickname) {
		r.abortLocked(c, nickname)
		if nickname == c.Challenged {
			r.advanceTurnLocked()
		} else {
			// The challenger held the turn; its successor now occupies the index.
			r.announceTurnLocked()
		}
	} else if c != nil {
		delete(c.Votes, nickname)
		if c.phase() == PhaseVotingOpen && r.allVotedLocked(c) {
			r.resolveLocked(c)
		}
	} else if wasCurrent {
		r.announceTurnLocked()
	}

	r.refreshConnsLocked()
	if len(r.players) == 0 {
		r.emptySince = time.Now()
	}
	r.emit(network.EventUpdatePlayerList, r.playerListLocked())
	empty = len(r.players) == 0

	r.unlockAndFlush()
	return true, empty
}

// Snapshot returns a copy of the room's state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Code:    r.code,
		Players: make([]string, len(r.players)),
		Hands:   make(map[string][]*cards.Card, len(r.players)),
		Started: r.started,
		Scores:  r.scoresLocked(),
	}
	for i, p := range r.players {
		s.Players[i] = p.Nickname
		s.Hands[p.Nickname] = slices.Clone(p.Hand)
	}
	if cur := r.currentLocked(); cur != nil {
		s.CurrentTurn = cur.Nickname
	}
	if c := r.active; c != nil {
		s.Phase = c.phase()
		s.Votes = make(map[string]bool, len(c.Votes))
		for k, v := range c.Votes {
			s.Votes[k] = v
		}
	}
	return s
}

func (r *Room) findLocked(nickname string) *Player {
	for _, p := range r.players {
		if p.Nickname == nickname {
			return p
		}
	}
	return nil
}

func (r *Room) refreshConnsLocked() {
	ids := make([]string, len(r.players))
	for i, p := range r.players {
		ids[i] = p.ConnID
	}
	r.conns.Store(&ids)
}

// closeIfEmpty tears the room down if nobody is seated.
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return true
	}
	if len(r.players) > 0 {
		return false
	}
	r.teardownLocked()
	return true
}

// closeIfIdle tears the room down if it has been empty for at least ttl.
func (r *Room) closeIfIdle(ttl time.Duration, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return true
	}
	if len(r.players) > 0 || r.emptySince.IsZero() || now.Sub(r.emptySince) < ttl {
		return false
	}
	r.teardownLocked()
	return true
}

func (r *Room) forceClose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed.Load() {
		r.teardownLocked()
	}
}

func (r *Room) isClosed() bool {
	return r.closed.Load()
}

func (r *Room) teardownLocked() {
	r.closed.Store(true)
	for id := range r.timers {
		r.deps.Scheduler.RemoveTimer(id)
	}
	clear(r.timers)
	r.active = nil
	r.outbox = nil
	r.conns.Store(&[]string{})
	logger.Log.Infof("Room %s: torn down", r.code)
}

// schedule runs fn under the room lock after delay, unless the room is torn
// down first. fn decides for itself whether the state it was armed for still holds.
func (r *Room) schedule(delay time.Duration, fn func()) int64 {
	var id int64
	id = r.deps.Scheduler.AddTimer(delay, 0, func() {
		r.mu.Lock()
		if _, pending := r.timers[id]; !pending || r.closed.Load() {
			r.mu.Unlock()
			return
		}
		delete(r.timers, id)
		fn()
		r.unlockAndFlush()
	})
	r.timers[id] = struct{}{}
	return id
}

func (r *Room) cancelTimerLocked(id int64) {
	if _, ok := r.timers[id]; !ok {
		return
	}
	delete(r.timers, id)
	r.deps.Scheduler.RemoveTimer(id)
}

func (r *Room) emit(event string, payload any) {
	r.outbox = append(r.outbox, outbound{event: event, payload: payload})
}

func (r *Room) sendTo(connID, event string, payload any) {
	r.outbox = append(r.outbox, outbound{connID: connID, event: event, payload: payload})
}

// unlockAndFlush releases mu and delivers everything queued while it was held.
// sendMu is taken before mu is released, so flushes happen in lock order.
func (r *Room) unlockAndFlush() {
	out := r.outbox
	recs := r.records
	r.outbox = nil
	r.records = nil
	if r.deps.Recorder != nil && len(recs) > 0 {
		// counted under mu so Manager.CloseAll orders it before WaitRecorded
		r.pending.Add(len(recs))
	}

	r.sendMu.Lock()
	r.mu.Unlock()
	defer r.sendMu.Unlock()

	b := r.deps.Broadcaster
	for _, o := range out {
		var err error
		if o.connID == "" {
			err = b.BroadcastToRoom(r.code, o.event, o.payload)
		} else {
			err = b.SendTo(o.connID, o.event, o.payload)
		}
		if err != nil {
			logger.Log.Debugf("Room %s: delivering %s failed: %v", r.code, o.event, err)
		}
	}

	if r.deps.Recorder == nil {
		return
	}
	for _, rec := range recs {
		go func(rec models.ChallengeRecord) {
			defer r.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()
			if err := r.deps.Recorder.RecordChallenge(ctx, rec); err != nil {
				logger.Log.Warnf("Room %s: recording challenge failed: %v", r.code, err)
			}
		}(rec)
	}
}
