package conversation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStateNotFound is returned when no conversation exists for a phone yet.
var ErrStateNotFound = errors.New("conversation: state not found")

// State is the per-phone conversation record.
type State struct {
	Phone string `json:"phone"`
	Stage Stage  `json:"stage"`
	// ExchangesSinceQualified counts lead messages answered in QUALIFIED;
	// slots are offered once it reaches the configured threshold.
	ExchangesSinceQualified int       `json:"exchanges_since_qualified"`
	QualifiedAt             time.Time `json:"qualified_at,omitempty"`
	WebsiteResearched       bool      `json:"website_researched"`
	WebsiteSummary          string    `json:"website_summary,omitempty"`
	// OfferedSlots are the start times last shown to the lead. They only
	// resolve replies like "opção 2"; availability is checked again when
	// booking.
	OfferedSlots  []time.Time `json:"offered_slots,omitempty"`
	AppointmentID string      `json:"appointment_id,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewState returns the initial state for phone.
func NewState(phone string) *State {
	return &State{Phone: phone, Stage: StageNew}
}

func (s *State) clone() *State {
	out := *s
	out.OfferedSlots = append([]time.Time(nil), s.OfferedSlots...)
	return &out
}

// StateStore persists conversation state by phone.
type StateStore interface {
	Load(ctx context.Context, phone string) (*State, error)
	Save(ctx context.Context, state *State) error
}

// MemoryStateStore keeps state in process memory.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*State)}
}

func (s *MemoryStateStore) Load(_ context.Context, phone string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[phone]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.clone(), nil
}

func (s *MemoryStateStore) Save(_ context.Context, state *State) error {
	if state == nil || state.Phone == "" {
		return errors.New("conversation: state without phone")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.Phone] = state.clone()
	return nil
}
