package jobs

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/internal/services"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// CleanupJob sweeps sessions that went idle without being reset, which
// happens when the process restarts and the in-memory inactivity timers
// are lost. It is a backstop behind the live timers, not a replacement.
type CleanupJob struct {
	store     storage.Store
	messenger services.Messenger
	idleAfter time.Duration
	interval  time.Duration
	lockFor   func(userAddress string) sync.Locker
	isRunning bool
}

// NewCleanupJob creates a new session cleanup job
func NewCleanupJob(store storage.Store, messenger services.Messenger, idleAfter time.Duration) *CleanupJob {
	return &CleanupJob{
		store:     store,
		messenger: messenger,
		idleAfter: idleAfter,
		interval:  15 * time.Minute,
		isRunning: false,
	}
}

// UseTurnLocks makes sweeps serialize with in-flight message turns
func (j *CleanupJob) UseTurnLocks(fn func(userAddress string) sync.Locker) {
	j.lockFor = fn
}

// Start begins the scheduled session sweep
func (j *CleanupJob) Start() {
	if j.isRunning {
		logrus.Info("Cleanup job already running")
		return
	}

	j.isRunning = true
	logrus.Info("Starting session cleanup job...")

	go j.scheduleSessionSweep()
}

// Stop halts the scheduled sweep
func (j *CleanupJob) Stop() {
	j.isRunning = false
	logrus.Info("Stopping session cleanup job...")
}

func (j *CleanupJob) scheduleSessionSweep() {
	for j.isRunning {
		time.Sleep(j.interval)

		if !j.isRunning {
			break
		}

		j.sweepIdleSessions()
	}
}

// sweepIdleSessions resets every stale non-pristine session it finds
func (j *CleanupJob) sweepIdleSessions() {
	sessions, err := j.store.GetIdleSessions(j.idleAfter)
	if err != nil {
		logrus.Errorf("Error listing idle sessions: %v", err)
		return
	}

	sweptCount := 0
	for _, stale := range sessions {
		if stale.Pristine() {
			continue
		}
		if j.resetSession(stale.UserAddress) {
			sweptCount++
		}
	}

	if sweptCount > 0 {
		logrus.Infof("🧹 Session sweep reset %d idle sessions", sweptCount)
	}
}

func (j *CleanupJob) resetSession(userAddress string) bool {
	if j.lockFor != nil {
		lock := j.lockFor(userAddress)
		lock.Lock()
		defer lock.Unlock()
	}

	// Re-read under the lock; the user may have come back mid-sweep
	session, err := j.store.GetSession(userAddress)
	if err != nil {
		return false
	}
	if session.Pristine() || time.Since(session.LastActivity) < j.idleAfter {
		return false
	}

	channelID := session.ChannelID
	session.Reset()
	if err := j.store.SaveSession(session); err != nil {
		logrus.Errorf("Error saving swept session %s: %v", userAddress, err)
		return false
	}

	if j.messenger != nil {
		if err := j.messenger.SendText(channelID, userAddress, services.InactivityGoodbye()); err != nil {
			logrus.Warnf("Failed to send sweep goodbye to %s: %v", userAddress, err)
		}
	}

	return true
}
