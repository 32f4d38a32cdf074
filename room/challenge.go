package room

import (
	"slices"
	"time"

	"github.com/wfunc/callout/cards"
	"github.com/wfunc/callout/logger"
	"github.com/wfunc/callout/models"
	"github.com/wfunc/callout/network"
	"github.com/wfunc/callout/state"
)

// Challenge phases.
const (
	PhaseIssued                = "issued"
	PhaseResponseWindowExpired = "responseWindowExpired"
	PhaseVotingOpen            = "votingOpen"
	PhaseResolved              = "resolved"
)

// phaseState is a challenge phase with an optional entry hook. Hooks run under
// the room lock.
type phaseState struct {
	state.RoomStateBase
	enter func()
}

func (s *phaseState) OnEnter() {
	logger.Log.Debugf("Room %s: challenge entering %s", s.Room.GetID(), s.ID)
	if s.enter != nil {
		s.enter()
	}
}

// Challenge is the single in-flight challenge of a room.
type Challenge struct {
	Challenger string
	Challenged string
	Card       *cards.Card
	// Votes holds the first verdict of each voter; later ones are ignored.
	Votes    map[string]bool
	IssuedAt time.Time

	machine  *state.BaseStateMachine
	issued   *phaseState
	expired  *phaseState
	voting   *phaseState
	resolved *phaseState
	timerID  int64
}

// newChallengeLocked builds the phase machine and enters Issued, which
// announces the challenge and arms the response window.
func (r *Room) newChallengeLocked(challenger, challenged string, card *cards.Card) *Challenge {
	c := &Challenge{
		Challenger: challenger,
		Challenged: challenged,
		Card:       card,
		Votes:      make(map[string]bool),
		IssuedAt:   time.Now(),
	}
	phase := func(id string, enter func()) *phaseState {
		return &phaseState{RoomStateBase: state.RoomStateBase{ID: id, Room: r}, enter: enter}
	}

	c.issued = phase(PhaseIssued, func() {
		r.emit(network.EventChallenge, c.payload())
		c.timerID = r.schedule(r.settings.ResponseWindow, func() { r.onResponseWindowElapsed(c) })
	})
	c.expired = phase(PhaseResponseWindowExpired, nil)
	c.voting = phase(PhaseVotingOpen, func() {
		r.emit(network.EventVotingOpen, VotingOpenPayload{
			Challenger: c.Challenger,
			Challenged: c.Challenged,
			Voters:     r.eligibleVotersLocked(c),
			Seconds:    int(r.settings.VotingWindow.Round(time.Second) / time.Second),
		})
		c.timerID = r.schedule(r.settings.VotingWindow, func() { r.onVotingWindowElapsed(c) })
	})
	c.resolved = phase(PhaseResolved, func() {
		r.cancelTimerLocked(c.timerID)
	})

	c.machine = state.NewBaseStateMachine(c.issued)
	_ = c.machine.AddTransition(c.issued, c.expired, nil)
	_ = c.machine.AddTransition(c.expired, c.voting, nil)
	_ = c.machine.AddTransition(c.voting, c.resolved, nil)
	// Aborts: a principal can disconnect in any phase.
	_ = c.machine.AddTransition(c.issued, c.resolved, nil)
	_ = c.machine.AddTransition(c.expired, c.resolved, nil)
	return c
}

func (c *Challenge) phase() string {
	return c.machine.GetCurrentState().GetID()
}

func (c *Challenge) involves(nickname string) bool {
	return nickname == c.Challenger || nickname == c.Challenged
}

func (c *Challenge) payload() ChallengePayload {
	return ChallengePayload{Challenger: c.Challenger, Challenged: c.Challenged, Card: c.Card}
}

func (c *Challenge) tally() (yes, no int) {
	for _, v := range c.Votes {
		if v {
			yes++
		} else {
			no++
		}
	}
	return yes, no
}

// Challenge lets the current player challenge another player with a card from
// their hand. cardRef matches a card id or, as the browser client sends, its text.
// The card is consumed.
func (r *Room) Challenge(challenger, challenged, cardRef string) error {
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if err := r.checkChallengeLocked(challenger, challenged); err != nil {
		r.mu.Unlock()
		return err
	}

	p := r.findLocked(challenger)
	idx := slices.IndexFunc(p.Hand, func(card *cards.Card) bool {
		return card.ID == cardRef || card.Text == cardRef
	})
	if idx < 0 {
		r.mu.Unlock()
		return invalid("card %q is not in your hand", cardRef)
	}
	card := p.Hand[idx]
	p.Hand = slices.Delete(p.Hand, idx, idx+1)

	r.active = r.newChallengeLocked(challenger, challenged, card)
	logger.Log.Infof("Room %s: %s challenged %s with %s", r.code, challenger, challenged, card.ID)

	r.unlockAndFlush()
	return nil
}

func (r *Room) checkChallengeLocked(challenger, challenged string) error {
	if !r.started {
		return invalid("the game has not started")
	}
	if r.active != nil {
		return invalid("a challenge is already in progress")
	}
	if r.findLocked(challenger) == nil {
		return invalid("%q is not a player in room %s", challenger, r.code)
	}
	if cur := r.currentLocked(); cur == nil || cur.Nickname != challenger {
		return invalid("it is not your turn")
	}
	if challenged == challenger {
		return invalid("you cannot challenge yourself")
	}
	if r.findLocked(challenged) == nil {
		return invalid("%q is not a player in room %s", challenged, r.code)
	}
	return nil
}

// Vote records voter's verdict on the active challenge. A repeat vote is
// ignored and reported as recorded=false with no error.
func (r *Room) Vote(voter string, verdict bool) (recorded bool, err error) {
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return false, ErrRoomNotFound
	}
	c := r.active
	switch {
	case c == nil:
		err = invalid("there is no challenge to vote on")
	case c.phase() != PhaseVotingOpen:
		err = invalid("voting is not open")
	case r.findLocked(voter) == nil:
		err = invalid("%q is not a player in room %s", voter, r.code)
	case voter == c.Challenged:
		err = invalid("you cannot vote on your own challenge")
	}
	if err != nil {
		r.mu.Unlock()
		return false, err
	}

	if _, dup := c.Votes[voter]; dup {
		r.mu.Unlock()
		return false, nil
	}
	c.Votes[voter] = verdict
	logger.Log.Debugf("Room %s: %s voted %t", r.code, voter, verdict)

	if r.allVotedLocked(c) {
		r.resolveLocked(c)
	}
	r.unlockAndFlush()
	return true, nil
}

// eligibleVotersLocked lists every seated player except the challenged one.
func (r *Room) eligibleVotersLocked(c *Challenge) []string {
	voters := make([]string, 0, len(r.players))
	for _, p := range r.players {
		if p.Nickname != c.Challenged {
			voters = append(voters, p.Nickname)
		}
	}
	return voters
}

func (r *Room) allVotedLocked(c *Challenge) bool {
	for _, nickname := range r.eligibleVotersLocked(c) {
		if _, ok := c.Votes[nickname]; !ok {
			return false
		}
	}
	return true
}

func (r *Room) onResponseWindowElapsed(c *Challenge) {
	if r.active != c || c.phase() != PhaseIssued {
		return
	}
	if err := c.machine.ChangeState(c.expired); err != nil {
		logger.Log.Errorf("Room %s: %v", r.code, err)
		return
	}
	if err := c.machine.ChangeState(c.voting); err != nil {
		logger.Log.Errorf("Room %s: %v", r.code, err)
	}
}

func (r *Room) onVotingWindowElapsed(c *Challenge) {
	if r.active != c || c.phase() != PhaseVotingOpen {
		return
	}
	r.resolveLocked(c)
}

// resolveLocked tallies the votes: strictly more yes than no is a success, a
// tie (including no votes at all) is a failure. Only success changes scores.
func (r *Room) resolveLocked(c *Challenge) {
	if err := c.machine.ChangeState(c.resolved); err != nil {
		logger.Log.Errorf("Room %s: %v", r.code, err)
		return
	}

	yes, no := c.tally()
	outcome := models.OutcomeFailure
	if yes > no {
		outcome = models.OutcomeSuccess
		r.scores[c.Challenged] += r.settings.ScoreAward
	}
	logger.Log.Infof("Room %s: challenge on %s resolved %s (%d-%d)", r.code, c.Challenged, outcome, yes, no)

	r.finishLocked(c, outcome, yes, no)
	r.advanceTurnLocked()
}

// abortLocked ends a challenge whose principal left. Scores are untouched and
// the caller decides how the turn moves on.
func (r *Room) abortLocked(c *Challenge, leaver string) {
	if err := c.machine.ChangeState(c.resolved); err != nil {
		logger.Log.Errorf("Room %s: %v", r.code, err)
		return
	}
	logger.Log.Infof("Room %s: challenge on %s aborted, %s left", r.code, c.Challenged, leaver)

	yes, no := c.tally()
	r.finishLocked(c, models.OutcomeAborted, yes, no)
}

func (r *Room) finishLocked(c *Challenge, outcome string, yes, no int) {
	r.emit(network.EventVoteResult, VoteResultPayload{
		Result:     outcome,
		Challenger: c.Challenger,
		Challenged: c.Challenged,
		Card:       c.Card,
		Yes:        yes,
		No:         no,
		Scores:     r.scoresLocked(),
	})
	r.records = append(r.records, models.ChallengeRecord{
		RoomCode:     r.code,
		Challenger:   c.Challenger,
		Challenged:   c.Challenged,
		CardID:       c.Card.ID,
		CardText:     c.Card.Text,
		Outcome:      outcome,
		VotesFor:     yes,
		VotesAgainst: no,
		IssuedAt:     c.IssuedAt,
		ResolvedAt:   time.Now(),
	})
	r.active = nil
}
