package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/sdr-ai-platform/internal/qualification"
)

// Repository defines the interface for lead storage
type Repository interface {
	GetByPhone(ctx context.Context, phone string) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	Update(ctx context.Context, id string, update Update) error
	AppendMessage(ctx context.Context, leadID, role, content string) error
}

// InMemoryRepository keeps leads in process memory. Returned leads are
// copies, so callers can mutate them freely.
type InMemoryRepository struct {
	mu      sync.RWMutex
	leads   map[string]*Lead
	byPhone map[string]string
	now     func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:   make(map[string]*Lead),
		byPhone: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Create(_ context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[req.Phone]; exists {
		return nil, ErrLeadExists
	}
	now := r.now()
	lead := &Lead{
		ID:          uuid.New().String(),
		Phone:       req.Phone,
		Name:        req.Name,
		Source:      req.Source,
		Status:      StatusNew,
		Temperature: qualification.TemperatureCold,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.leads[lead.ID] = lead
	r.byPhone[lead.Phone] = lead.ID
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) GetByPhone(ctx context.Context, phone string) (*Lead, error) {
	r.mu.RLock()
	id, ok := r.byPhone[phone]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrLeadNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *InMemoryRepository) Update(_ context.Context, id string, update Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	lead.Apply(update)
	lead.UpdatedAt = r.now()
	return nil
}

func (r *InMemoryRepository) AppendMessage(_ context.Context, leadID, role, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[leadID]
	if !ok {
		return ErrLeadNotFound
	}
	now := r.now()
	lead.History = append(lead.History, Message{Role: role, Content: content, CreatedAt: now})
	lead.UpdatedAt = now
	return nil
}

func cloneLead(l *Lead) *Lead {
	out := *l
	out.History = append([]Message(nil), l.History...)
	if l.Qualification != nil {
		q := *l.Qualification
		out.Qualification = &q
	}
	return &out
}
