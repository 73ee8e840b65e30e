package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const (
	defaultQueueSize  = 256
	deliveryTimeout   = 15 * time.Second
	meetingTimeLayout = "02/01/2006 15:04"
)

// Service is the asynchronous Sink: events are queued and a background
// worker records them on the timeline and emails the sales team about the
// ones that need a human.
type Service struct {
	timeline   TimelineWriter
	email      EmailSender
	salesEmail string
	location   *time.Location
	logger     *logging.Logger

	queue  chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type job struct {
	eventType EventType
	payload   Payload
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithSalesEmail emails addr about qualified, lost and booked leads.
func WithSalesEmail(sender EmailSender, addr string) ServiceOption {
	return func(s *Service) {
		s.email = sender
		s.salesEmail = strings.TrimSpace(addr)
	}
}

// WithLocation sets the zone used to format meeting times in emails.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithQueueSize bounds the pending event queue.
func WithQueueSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.queue = make(chan job, n)
		}
	}
}

// NewService starts the background worker. Call Close to drain it.
func NewService(timeline TimelineWriter, logger *logging.Logger, opts ...ServiceOption) *Service {
	if timeline == nil {
		timeline = NewMemoryTimeline()
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		timeline: timeline,
		location: time.UTC,
		logger:   logger,
		queue:    make(chan job, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.run()
	return s
}

var _ Sink = (*Service)(nil)

// Notify queues the event. When the queue is full or the service is closed
// the event is dropped and logged.
func (s *Service) Notify(_ context.Context, eventType EventType, payload Payload) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("notify: service closed, dropping event", "event", eventType, "lead_id", payload.LeadID)
		return
	}
	select {
	case s.queue <- job{eventType: eventType, payload: payload}:
	default:
		s.logger.Warn("notify: queue full, dropping event", "event", eventType, "lead_id", payload.LeadID)
	}
}

// Close stops accepting events and waits for queued ones or ctx expiry.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: close: %w", ctx.Err())
	}
}

func (s *Service) run() {
	defer s.wg.Done()
	for j := range s.queue {
		s.deliver(j)
	}
}

func (s *Service) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := s.timeline.Append(ctx, j.eventType, j.payload); err != nil {
		s.logger.Error("notify: timeline append failed", "event", j.eventType, "lead_id", j.payload.LeadID, "error", err)
	}
	if s.email == nil || s.salesEmail == "" {
		return
	}
	msg, ok := s.salesEmailFor(j.eventType, j.payload)
	if !ok {
		return
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: sales email failed", "event", j.eventType, "lead_id", j.payload.LeadID, "error", err)
	}
}

func (s *Service) salesEmailFor(eventType EventType, p Payload) (EmailMessage, bool) {
	who := leadLabel(p)
	var subject string
	lines := []string{
		"Lead: " + who,
		"Telefone: " + p.Phone,
	}
	if p.Score > 0 || p.Temperature != "" {
		lines = append(lines, fmt.Sprintf("Score: %d (%s)", p.Score, p.Temperature))
	}

	switch eventType {
	case EventLeadQualified:
		subject = "Lead qualificado: " + who
	case EventMeetingBooked:
		subject = "Reunião agendada: " + who
		if !p.MeetingStart.IsZero() {
			lines = append(lines, "Horário: "+p.MeetingStart.In(s.location).Format(meetingTimeLayout))
		}
		if p.MeetLink != "" {
			lines = append(lines, "Link: "+p.MeetLink)
		}
	case EventLeadLost:
		subject = "Lead desqualificado: " + who
	default:
		return EmailMessage{}, false
	}
	if p.Reason != "" {
		lines = append(lines, "Motivo: "+p.Reason)
	}
	for _, key := range sortedKeys(p.Details) {
		lines = append(lines, fmt.Sprintf("%s: %s", key, p.Details[key]))
	}
	return EmailMessage{
		To:      s.salesEmail,
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
	}, true
}

func leadLabel(p Payload) string {
	parts := make([]string, 0, 2)
	if p.Name != "" {
		parts = append(parts, p.Name)
	}
	if p.Company != "" {
		parts = append(parts, p.Company)
	}
	if len(parts) == 0 {
		return p.Phone
	}
	return strings.Join(parts, " - ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
