package jobs

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/services"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// ReminderJob nudges merchants about orders sitting in "received" longer
// than the configured threshold. Each order is nudged at most once per
// process lifetime; a restart may repeat a nudge, which is harmless.
type ReminderJob struct {
	store      storage.Store
	messenger  services.Messenger
	staleAfter time.Duration
	interval   time.Duration
	isRunning  bool

	mu       sync.Mutex
	reminded map[string]bool
}

// NewReminderJob creates a new order reminder job
func NewReminderJob(store storage.Store, messenger services.Messenger, staleAfter time.Duration) *ReminderJob {
	return &ReminderJob{
		store:      store,
		messenger:  messenger,
		staleAfter: staleAfter,
		interval:   time.Hour,
		isRunning:  false,
		reminded:   make(map[string]bool),
	}
}

// Start begins the scheduled reminder sweep
func (j *ReminderJob) Start() {
	if j.isRunning {
		logrus.Info("Reminder job already running")
		return
	}

	j.isRunning = true
	logrus.Info("Starting order reminder job...")

	go j.scheduleReminderSweep()
}

// Stop halts the scheduled sweep
func (j *ReminderJob) Stop() {
	j.isRunning = false
	logrus.Info("Stopping order reminder job...")
}

func (j *ReminderJob) scheduleReminderSweep() {
	for j.isRunning {
		time.Sleep(j.interval)

		if !j.isRunning {
			break
		}

		j.sweepUnconfirmedOrders()
	}
}

// sweepUnconfirmedOrders groups stale orders per merchant and sends one
// nudge covering all of them
func (j *ReminderJob) sweepUnconfirmedOrders() {
	orders, err := j.store.GetStaleOrders(models.OrderStatusReceived, j.staleAfter)
	if err != nil {
		logrus.Errorf("Error listing unconfirmed orders: %v", err)
		return
	}

	pending := make(map[string][]*models.Order)
	for _, order := range orders {
		if j.alreadyReminded(order.OrderID) {
			continue
		}
		pending[order.MerchantID] = append(pending[order.MerchantID], order)
	}

	for merchantID, stale := range pending {
		merchant, err := j.store.GetMerchant(merchantID)
		if err != nil {
			logrus.Warnf("Skipping reminder for unknown merchant %s: %v", merchantID, err)
			continue
		}
		if merchant.WhatsApp == "" {
			continue
		}

		if err := j.messenger.SendText("", merchant.WhatsApp, services.MerchantOrderReminder(stale)); err != nil {
			logrus.Warnf("Failed to send order reminder to %s: %v", merchant.WhatsApp, err)
			continue
		}

		logrus.Infof("⏳ Reminded %s about %d unconfirmed orders", merchantID, len(stale))
		j.markReminded(stale)
	}
}

func (j *ReminderJob) alreadyReminded(orderID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reminded[orderID]
}

func (j *ReminderJob) markReminded(orders []*models.Order) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, order := range orders {
		j.reminded[order.OrderID] = true
	}
}
