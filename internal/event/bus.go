package event

import (
	"strings"
	"sync"
	"time"
)

const (
	EventVisitApproved     = "visit.approved"
	EventVisitRejected     = "visit.rejected"
	EventRedemptionCreated = "redemption.created"
	EventRedemptionUsed    = "redemption.used"
)

type VisitApprovedPayload struct {
	VisitID      string    `json:"visit_id"`
	UserID       string    `json:"user_id"`
	StoreID      string    `json:"store_id"`
	PointsEarned int64     `json:"points_earned"`
	BalanceAfter int64     `json:"balance_after"`
	ApprovedBy   string    `json:"approved_by"`
	Timestamp    time.Time `json:"timestamp"`
}

type VisitRejectedPayload struct {
	VisitID    string    `json:"visit_id"`
	UserID     string    `json:"user_id"`
	StoreID    string    `json:"store_id"`
	RejectedBy string    `json:"rejected_by"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type RedemptionPayload struct {
	RedemptionID  string    `json:"redemption_id"`
	UserID        string    `json:"user_id"`
	StoreID       string    `json:"store_id"`
	Code          string    `json:"code"`
	RewardValue   string    `json:"reward_value"`
	PointsUsed    int64     `json:"points_used"`
	AutoTriggered bool      `json:"auto_triggered"`
	Timestamp     time.Time `json:"timestamp"`
}

// Bus fans published payloads out to subscribers, each on its own goroutine.
type Bus struct {
	handlers sync.Map
	mu       sync.Mutex
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(event string, handler func(payload any)) {
	if b == nil || handler == nil {
		return
	}

	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := make([]func(payload any), 0, 1)
	if current, ok := b.handlers.Load(eventName); ok {
		if casted, valid := current.([]func(payload any)); valid {
			handlers = append(handlers, casted...)
		}
	}
	handlers = append(handlers, handler)
	b.handlers.Store(eventName, handlers)
}

func (b *Bus) Publish(event string, payload any) {
	if b == nil {
		return
	}

	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	current, ok := b.handlers.Load(eventName)
	if !ok {
		return
	}

	handlers, ok := current.([]func(payload any))
	if !ok || len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		go handler(payload)
	}
}
