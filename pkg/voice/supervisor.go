package voice

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the supervisor's view of a guild's voice connection.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StatePendingRejoin
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StatePendingRejoin:
		return "pending_rejoin"
	default:
		return "unknown"
	}
}

// Transport is the voice capability the supervisor corrects against.
type Transport interface {
	Connect(guildID, channelID string) error
	MoveTo(guildID, channelID string) error
	Disconnect(guildID string) error
	// Connected returns the channel the guild is currently joined to, if any.
	Connected(guildID string) (channelID string, ok bool)
}

// Playback is the slice of the session the supervisor may touch. Recovery
// always goes through the session's own serialized advance path.
type Playback interface {
	Stalled() bool
	RecoverStalled()
}

// Config holds the supervisor's timing policy.
type Config struct {
	// RejoinDelay spaces the single delayed rejoin attempt after an
	// involuntary drop, so flapping links do not cause reconnect storms.
	RejoinDelay time.Duration
	// GraceWindow is how long after an explicit leave automatic reconnection
	// stays suppressed.
	GraceWindow time.Duration
}

// DefaultConfig returns the supervisor timing defaults.
func DefaultConfig() Config {
	return Config{
		RejoinDelay: 5 * time.Second,
		GraceWindow: 60 * time.Second,
	}
}

// Supervisor keeps one guild's voice connection reconciled with its desired
// endpoint: it reacts to involuntary disconnects with a single delayed rejoin,
// honors the manual-disconnect grace window, and lets the periodic sweep
// correct anything that slipped through.
type Supervisor struct {
	guildID   string
	cfg       Config
	transport Transport
	playback  Playback
	log       *logrus.Entry

	mu          sync.Mutex
	state       State
	desired     string
	manualUntil time.Time
	rejoinTimer *time.Timer

	// now is swapped out by tests exercising the grace window.
	now func() time.Time
}

// NewSupervisor creates a supervisor for one guild. playback may be nil when
// the guild has no session yet.
func NewSupervisor(guildID string, cfg Config, transport Transport, playback Playback, log *logrus.Entry) *Supervisor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Supervisor{
		guildID:   guildID,
		cfg:       cfg,
		transport: transport,
		playback:  playback,
		log:       log.WithField("guild_id", guildID),
		now:       time.Now,
	}
}

// State returns the supervisor's current connection state.
func (sv *Supervisor) State() State {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.state
}

// Desired returns the remembered target channel.
func (sv *Supervisor) Desired() string {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.desired
}

// ManualJoin connects to channelID on user request. It clears the
// manual-disconnect window and remembers the channel as the desired endpoint.
func (sv *Supervisor) ManualJoin(channelID string) error {
	sv.mu.Lock()
	sv.manualUntil = time.Time{}
	sv.desired = channelID
	sv.cancelRejoinLocked()
	sv.mu.Unlock()

	if err := sv.transport.Connect(sv.guildID, channelID); err != nil {
		sv.log.WithError(err).Warn("Manual join failed")
		return err
	}

	sv.mu.Lock()
	sv.state = StateConnected
	sv.mu.Unlock()
	sv.log.WithField("channel_id", channelID).Info("Joined voice channel")
	return nil
}

// ManualLeave disconnects on user request and opens the grace window during
// which no automatic reconnection may happen.
func (sv *Supervisor) ManualLeave() error {
	sv.mu.Lock()
	sv.manualUntil = sv.now().Add(sv.cfg.GraceWindow)
	sv.cancelRejoinLocked()
	sv.state = StateDisconnected
	sv.mu.Unlock()

	sv.log.Info("Left voice channel on user request")
	return sv.transport.Disconnect(sv.guildID)
}

// HandleDisconnect is the transport's involuntary-disconnect notification.
// Inside the grace window it is taken as the echo of the user's leave and
// ignored; otherwise a single rejoin attempt is scheduled.
func (sv *Supervisor) HandleDisconnect() {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	sv.state = StateDisconnected
	sv.cancelRejoinLocked()

	if sv.now().Before(sv.manualUntil) {
		sv.log.Debug("Disconnect within manual-leave grace window, staying down")
		return
	}
	if sv.desired == "" {
		return
	}

	sv.state = StatePendingRejoin
	sv.log.WithField("delay", sv.cfg.RejoinDelay).Info("Involuntary disconnect, rejoin scheduled")
	sv.rejoinTimer = time.AfterFunc(sv.cfg.RejoinDelay, sv.attemptRejoin)
}

// attemptRejoin fires once after the rejoin delay. If the guild reconnected
// through another path in the meantime the attempt is a no-op; on failure the
// supervisor stays in PendingRejoin and the sweep is the backstop.
func (sv *Supervisor) attemptRejoin() {
	sv.mu.Lock()
	if sv.state != StatePendingRejoin {
		sv.mu.Unlock()
		return
	}
	target := sv.desired
	sv.mu.Unlock()

	if ch, ok := sv.transport.Connected(sv.guildID); ok && ch == target {
		sv.mu.Lock()
		sv.state = StateConnected
		sv.mu.Unlock()
		return
	}

	if err := sv.transport.Connect(sv.guildID, target); err != nil {
		sv.log.WithError(err).Warn("Rejoin attempt failed, waiting for reconciliation sweep")
		return
	}

	sv.mu.Lock()
	sv.state = StateConnected
	sv.mu.Unlock()
	sv.log.WithField("channel_id", target).Info("Rejoined voice channel")
	sv.recoverPlayback()
}

// Reconcile corrects drift between the desired and actual connection. It runs
// on the registry's sweep interval, independent of disconnect notifications.
func (sv *Supervisor) Reconcile() {
	sv.mu.Lock()
	target := sv.desired
	inGrace := sv.now().Before(sv.manualUntil)
	sv.mu.Unlock()

	if target == "" || inGrace {
		return
	}

	actual, connected := sv.transport.Connected(sv.guildID)
	switch {
	case connected && actual == target:
		sv.mu.Lock()
		sv.state = StateConnected
		sv.cancelRejoinLocked()
		sv.mu.Unlock()
	case connected:
		sv.log.WithFields(logrus.Fields{"actual": actual, "desired": target}).Info("Moving to desired voice channel")
		if err := sv.transport.MoveTo(sv.guildID, target); err != nil {
			sv.log.WithError(err).Warn("Voice move failed")
			return
		}
		sv.mu.Lock()
		sv.state = StateConnected
		sv.cancelRejoinLocked()
		sv.mu.Unlock()
	default:
		sv.log.WithField("desired", target).Info("Reconnecting to desired voice channel")
		if err := sv.transport.Connect(sv.guildID, target); err != nil {
			sv.log.WithError(err).Warn("Voice reconnect failed")
			return
		}
		sv.mu.Lock()
		sv.state = StateConnected
		sv.cancelRejoinLocked()
		sv.mu.Unlock()
	}

	sv.recoverPlayback()
}

// recoverPlayback re-queues a track whose sink died with the old connection.
// Called without holding sv.mu; the session serializes internally.
func (sv *Supervisor) recoverPlayback() {
	if sv.playback == nil {
		return
	}
	if sv.playback.Stalled() {
		sv.playback.RecoverStalled()
	}
}

// Stop cancels any pending rejoin. The supervisor holds no other resources.
func (sv *Supervisor) Stop() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.cancelRejoinLocked()
}

func (sv *Supervisor) cancelRejoinLocked() {
	if sv.rejoinTimer != nil {
		sv.rejoinTimer.Stop()
		sv.rejoinTimer = nil
	}
}
