package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/internal/storage"
)

// userTimers is the warning/termination pair for one user. At most one pair
// exists per address; Touch replaces the whole pair, and every fired callback
// checks it still owns the map slot before acting.
type userTimers struct {
	warn *time.Timer
	kill *time.Timer
}

func (t *userTimers) stop() {
	if t.warn != nil {
		t.warn.Stop()
	}
	if t.kill != nil {
		t.kill.Stop()
	}
}

// InactivitySupervisor watches per-user idleness: after warnAfter of
// silence the user gets a warning, and killAfter later the session is
// reset. Timers live in process memory only; a restart simply loses them.
type InactivitySupervisor struct {
	store     storage.Store
	messenger Messenger
	warnAfter time.Duration
	killAfter time.Duration

	mu     sync.Mutex
	timers map[string]*userTimers

	// lockFor, when set, serializes terminations with conversation turns
	lockFor func(userAddress string) sync.Locker
}

// NewInactivitySupervisor creates the supervisor
func NewInactivitySupervisor(store storage.Store, messenger Messenger, warnAfter, killAfter time.Duration) *InactivitySupervisor {
	return &InactivitySupervisor{
		store:     store,
		messenger: messenger,
		warnAfter: warnAfter,
		killAfter: killAfter,
		timers:    make(map[string]*userTimers),
	}
}

// UseTurnLocks wires the engine's per-user turn locks so a termination
// never interleaves with an in-flight turn for the same user.
func (s *InactivitySupervisor) UseTurnLocks(fn func(userAddress string) sync.Locker) {
	s.lockFor = fn
}

// Touch restarts the timer pair for a user. Called on every inbound
// message, so an active user never sees a warning.
func (s *InactivitySupervisor) Touch(userAddress, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[userAddress]; ok {
		existing.stop()
	}
	pair := &userTimers{}
	pair.warn = time.AfterFunc(s.warnAfter, func() {
		s.warned(pair, userAddress, channelID)
	})
	s.timers[userAddress] = pair
}

// Forget drops the timer pair without firing, e.g. on shutdown
func (s *InactivitySupervisor) Forget(userAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[userAddress]; ok {
		existing.stop()
		delete(s.timers, userAddress)
	}
}

// drop removes the pair only while it still owns the slot. A pair replaced
// by a newer Touch stays untouched.
func (s *InactivitySupervisor) drop(userAddress string, pair *userTimers) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timers[userAddress] == pair {
		pair.stop()
		delete(s.timers, userAddress)
	}
}

// warned fires when the warning threshold passes. Pristine sessions are
// skipped silently; anything else is warned and put on the termination
// clock.
func (s *InactivitySupervisor) warned(pair *userTimers, userAddress, channelID string) {
	session, err := s.store.GetSession(userAddress)
	if err != nil {
		logrus.Errorf("❌ Inactivity lookup for %s failed: %v", userAddress, err)
		s.drop(userAddress, pair)
		return
	}
	if session.Pristine() {
		s.drop(userAddress, pair)
		return
	}

	s.mu.Lock()
	if s.timers[userAddress] != pair {
		// a Touch raced the warning; the user is back
		s.mu.Unlock()
		return
	}
	pair.kill = time.AfterFunc(s.killAfter, func() {
		s.terminate(pair, userAddress, channelID)
	})
	s.mu.Unlock()

	if err := s.messenger.SendText(channelID, userAddress, InactivityWarning()); err != nil {
		logrus.Errorf("❌ Inactivity warning to %s failed: %v", userAddress, err)
	}
}

// terminate resets the idle session in place and says goodbye
func (s *InactivitySupervisor) terminate(pair *userTimers, userAddress, channelID string) {
	s.mu.Lock()
	if s.timers[userAddress] != pair {
		// the user came back between warning and termination
		s.mu.Unlock()
		return
	}
	delete(s.timers, userAddress)
	s.mu.Unlock()

	if s.lockFor != nil {
		lock := s.lockFor(userAddress)
		lock.Lock()
		defer lock.Unlock()
	}

	session, err := s.store.GetSession(userAddress)
	if err != nil {
		logrus.Errorf("❌ Inactivity lookup for %s failed: %v", userAddress, err)
		return
	}
	if session.Pristine() {
		return
	}

	session.Reset()
	if err := s.store.SaveSession(session); err != nil {
		logrus.Errorf("❌ Inactivity reset for %s failed: %v", userAddress, err)
		return
	}

	logrus.Infof("⏰ Session %s reset after inactivity", userAddress)
	if err := s.messenger.SendText(channelID, userAddress, InactivityGoodbye()); err != nil {
		logrus.Errorf("❌ Inactivity goodbye to %s failed: %v", userAddress, err)
	}
}

// Stop cancels every pending timer
func (s *InactivitySupervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, pair := range s.timers {
		pair.stop()
		delete(s.timers, addr)
	}
}
