package room

import (
	"context"
	"time"

	"github.com/wfunc/callout/models"
)

// Broadcaster delivers room events to connections. It is defined here to break
// the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomCode string, event string, payload any) error
	SendTo(connID string, event string, payload any) error
}

// Scheduler runs callbacks after a delay and can cancel them before they fire.
// *timer.TimerManager satisfies it.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}

// Recorder receives a history entry each time a challenge ends.
type Recorder interface {
	RecordChallenge(ctx context.Context, rec models.ChallengeRecord) error
}
