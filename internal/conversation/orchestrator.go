package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/sdr-ai-platform/internal/leads"
	"github.com/wolfman30/sdr-ai-platform/internal/llm"
	"github.com/wolfman30/sdr-ai-platform/internal/notify"
	"github.com/wolfman30/sdr-ai-platform/internal/qualification"
	"github.com/wolfman30/sdr-ai-platform/internal/research"
	"github.com/wolfman30/sdr-ai-platform/internal/scheduling"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

var conversationTracer = otel.Tracer("sdr.internal.conversation")

var (
	ErrMissingPhone = errors.New("conversation: inbound message without phone")
	ErrEmptyMessage = errors.New("conversation: inbound message without text")
)

const leadSourceWhatsApp = "whatsapp"

// SlotFinder lists free meeting slots.
type SlotFinder interface {
	AvailableSlots(ctx context.Context, daysAhead, count int, duration time.Duration) ([]scheduling.CandidateSlot, error)
	Hours() scheduling.BusinessHours
}

// MeetingBooker books and cancels meetings.
type MeetingBooker interface {
	CreateMeeting(ctx context.Context, req scheduling.MeetingRequest) scheduling.BookingResult
	CancelMeeting(ctx context.Context, appointmentID string) error
	Appointment(ctx context.Context, id string) (*scheduling.Appointment, error)
}

// QualificationExtractor reads qualification facts from the transcript.
type QualificationExtractor interface {
	Extract(ctx context.Context, history []llm.Message, hints qualification.Hints) (qualification.Data, qualification.Source, error)
}

// WebsiteResearcher summarizes a site the lead mentions.
type WebsiteResearcher interface {
	Research(ctx context.Context, rawURL string) (research.Summary, error)
}

// ReplySender delivers the reply. Delivery is best effort.
type ReplySender interface {
	SendText(ctx context.Context, to, text string) bool
}

// TurnObserver records conversation metrics.
type TurnObserver interface {
	ObserveTransition(from, to string)
	ObserveGate(qualified bool)
	ObserveTurnLatency(stage string, seconds float64)
}

// Deps are the collaborators of the orchestrator. Researcher and Notifier
// are optional.
type Deps struct {
	Leads      leads.Repository
	States     StateStore
	Extractor  QualificationExtractor
	Gate       qualification.Gate
	Finder     SlotFinder
	Booker     MeetingBooker
	Composer   Composer
	Sender     ReplySender
	Notifier   notify.Sink
	Researcher WebsiteResearcher
}

// Inbound is one debounced message from a lead.
type Inbound struct {
	Phone       string
	DisplayName string
	Text        string
}

// Transition is one applied stage change.
type Transition struct {
	From Stage
	To   Stage
}

// TurnResult describes what a turn did.
type TurnResult struct {
	LeadID      string
	Stage       Stage
	Transitions []Transition
	ReplyKind   ReplyKind
	Reply       string
	Delivered   bool
	Booking     *scheduling.BookingResult
}

type stageHandler func(ctx context.Context, t *turn) error

// Orchestrator runs one conversation turn per debounced inbound message.
// Turns for the same phone must not run concurrently; the debouncer
// serializes them.
type Orchestrator struct {
	leads      leads.Repository
	states     StateStore
	extractor  QualificationExtractor
	gate       qualification.Gate
	finder     SlotFinder
	booker     MeetingBooker
	composer   Composer
	sender     ReplySender
	notifier   notify.Sink
	researcher WebsiteResearcher
	observer   TurnObserver
	logger     *logging.Logger
	now        func() time.Time

	offerAfter int
	daysAhead  int
	slotCount  int
	duration   time.Duration

	handlers map[Stage]stageHandler
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithOfferAfter sets how many exchanges in QUALIFIED pass before slots are
// offered without being asked.
func WithOfferAfter(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.offerAfter = n
		}
	}
}

// WithSlotSearch sets the slot search window, number of slots offered and
// meeting length.
func WithSlotSearch(daysAhead, count int, duration time.Duration) Option {
	return func(o *Orchestrator) {
		if daysAhead > 0 {
			o.daysAhead = daysAhead
		}
		if count > 0 {
			o.slotCount = count
		}
		if duration > 0 {
			o.duration = duration
		}
	}
}

func WithTurnObserver(observer TurnObserver) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

func WithOrchestratorClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(deps Deps, logger *logging.Logger, opts ...Option) *Orchestrator {
	switch {
	case deps.Leads == nil:
		panic("conversation: lead repository cannot be nil")
	case deps.States == nil:
		panic("conversation: state store cannot be nil")
	case deps.Extractor == nil:
		panic("conversation: extractor cannot be nil")
	case deps.Finder == nil:
		panic("conversation: slot finder cannot be nil")
	case deps.Booker == nil:
		panic("conversation: booker cannot be nil")
	case deps.Sender == nil:
		panic("conversation: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if deps.Composer == nil {
		deps.Composer = TemplateComposer{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NopSink{}
	}
	if deps.Gate.MinAnnualRevenue <= 0 {
		deps.Gate = qualification.NewGate(0)
	}

	o := &Orchestrator{
		leads:      deps.Leads,
		states:     deps.States,
		extractor:  deps.Extractor,
		gate:       deps.Gate,
		finder:     deps.Finder,
		booker:     deps.Booker,
		composer:   deps.Composer,
		sender:     deps.Sender,
		notifier:   deps.Notifier,
		researcher: deps.Researcher,
		logger:     logger,
		now:        time.Now,
		offerAfter: 2,
		daysAhead:  scheduling.DefaultDaysAhead,
		slotCount:  scheduling.DefaultSlotCount,
		duration:   scheduling.DefaultDuration,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.handlers = map[Stage]stageHandler{
		StageNew:                o.handleNew,
		StageFirstContact:       o.handleFirstContact,
		StageQualifying:         o.handleQualifying,
		StageQualified:          o.handleQualified,
		StageAwaitingSlotChoice: o.handleAwaitingSlotChoice,
		StageMeetingBooked:      o.handleMeetingBooked,
		StageLost:               o.handleLost,
		StageFinalized:          o.handleFinalized,
	}
	return o
}

// turn is the working set of one HandleMessage call.
type turn struct {
	text        string
	intent      Intent
	now         time.Time
	lead        *leads.Lead
	origStatus  leads.Status
	origStage   Stage
	state       *State
	update      leads.Update
	reply       ReplyContext
	transitions []Transition
	events      []pendingEvent
	booking     *scheduling.BookingResult
}

type pendingEvent struct {
	eventType notify.EventType
	reason    string
	details   map[string]string
	meeting   *scheduling.Appointment
}

func (t *turn) notify(eventType notify.EventType, reason string, details map[string]string) {
	t.events = append(t.events, pendingEvent{eventType: eventType, reason: reason, details: details})
}

// HandleMessage processes one debounced inbound message and sends exactly
// one reply. Internal failures send GenericErrorReply and return the error;
// the result is non-nil whenever a reply was attempted.
func (o *Orchestrator) HandleMessage(ctx context.Context, in Inbound) (*TurnResult, error) {
	phone := strings.TrimSpace(in.Phone)
	text := strings.TrimSpace(in.Text)
	if phone == "" {
		return nil, ErrMissingPhone
	}
	if text == "" {
		return nil, ErrEmptyMessage
	}

	started := o.now()
	ctx, span := conversationTracer.Start(ctx, "conversation.handle_message")
	defer span.End()

	lead, created, err := o.loadLead(ctx, phone, in.DisplayName)
	if err != nil {
		span.RecordError(err)
		return o.fail(ctx, phone, nil, err)
	}
	span.SetAttributes(attribute.String("sdr.lead_id", lead.ID))

	state, err := o.loadState(ctx, phone, lead, created)
	if err != nil {
		span.RecordError(err)
		return o.fail(ctx, phone, lead, err)
	}
	span.SetAttributes(attribute.String("sdr.stage", string(state.Stage)))

	if err := o.leads.AppendMessage(ctx, lead.ID, leads.RoleLead, text); err != nil {
		span.RecordError(err)
		return o.fail(ctx, phone, lead, fmt.Errorf("conversation: append inbound: %w", err))
	}
	lead.History = append(lead.History, leads.Message{Role: leads.RoleLead, Content: text, CreatedAt: started})

	t := &turn{
		text:       text,
		intent:     ClassifyIntent(text),
		now:        started,
		lead:       lead,
		origStatus: lead.Status,
		origStage:  state.Stage,
		state:      state,
	}
	if created {
		t.notify(notify.EventLeadCreated, "", nil)
	}

	handler, ok := o.handlers[state.Stage]
	if !ok {
		err := fmt.Errorf("%w: no handler for %q", ErrInvalidStage, state.Stage)
		span.RecordError(err)
		return o.fail(ctx, phone, lead, err)
	}
	if err := handler(ctx, t); err != nil {
		span.RecordError(err)
		return o.fail(ctx, phone, lead, err)
	}

	reply := o.compose(ctx, t)
	delivered := o.sender.SendText(ctx, phone, reply)
	if !delivered {
		o.logger.Warn("reply not delivered", "lead_id", lead.ID, "stage", state.Stage)
	}

	persistErr := o.persist(ctx, t, reply)
	if persistErr != nil {
		span.RecordError(persistErr)
		o.logger.Error("failed to persist turn", "lead_id", lead.ID, "error", persistErr)
	}
	o.flushEvents(ctx, t)
	o.observeLatency(t.origStage, started)

	o.logger.Info("turn handled",
		"lead_id", lead.ID,
		"from", t.origStage,
		"to", state.Stage,
		"intent", t.intent.String(),
		"reply_kind", t.reply.Kind,
		"delivered", delivered,
	)
	return &TurnResult{
		LeadID:      lead.ID,
		Stage:       state.Stage,
		Transitions: t.transitions,
		ReplyKind:   t.reply.Kind,
		Reply:       reply,
		Delivered:   delivered,
		Booking:     t.booking,
	}, persistErr
}

func (o *Orchestrator) loadLead(ctx context.Context, phone, displayName string) (*leads.Lead, bool, error) {
	lead, err := o.leads.GetByPhone(ctx, phone)
	if err == nil {
		return lead, false, nil
	}
	if !errors.Is(err, leads.ErrLeadNotFound) {
		return nil, false, fmt.Errorf("conversation: load lead: %w", err)
	}

	lead, err = o.leads.Create(ctx, &leads.CreateLeadRequest{
		Phone:  phone,
		Name:   strings.TrimSpace(displayName),
		Source: leadSourceWhatsApp,
	})
	if errors.Is(err, leads.ErrLeadExists) {
		lead, err = o.leads.GetByPhone(ctx, phone)
		if err != nil {
			return nil, false, fmt.Errorf("conversation: load lead: %w", err)
		}
		return lead, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("conversation: create lead: %w", err)
	}
	o.logger.Info("lead created", "lead_id", lead.ID)
	return lead, true, nil
}

func (o *Orchestrator) loadState(ctx context.Context, phone string, lead *leads.Lead, created bool) (*State, error) {
	state, err := o.states.Load(ctx, phone)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return nil, fmt.Errorf("conversation: load state: %w", err)
	}
	state = NewState(phone)
	if !created {
		state.Stage = stageForStatus(lead.Status)
		if state.Stage != StageNew {
			o.logger.Warn("conversation state recovered from lead status", "lead_id", lead.ID, "status", lead.Status, "stage", state.Stage)
		}
	}
	return state, nil
}

// transition moves the turn to stage to. Staying in place is a no-op.
func (o *Orchestrator) transition(t *turn, to Stage) error {
	from := t.state.Stage
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	t.state.Stage = to
	t.transitions = append(t.transitions, Transition{From: from, To: to})
	o.logger.Info("conversation stage changed", "lead_id", t.lead.ID, "from", from, "to", to)
	if o.observer != nil {
		o.observer.ObserveTransition(string(from), string(to))
	}
	return nil
}

func (o *Orchestrator) compose(ctx context.Context, t *turn) string {
	rc := t.reply
	rc.FirstName = firstName(t.lead.Name)
	rc.Company = t.lead.Company
	rc.History = llmHistory(t.lead.History)
	rc.LastMessage = t.text

	text, err := o.composer.Compose(ctx, rc)
	if err != nil {
		o.logger.Warn("reply composer failed; using template", "kind", rc.Kind, "error", err)
	}
	if strings.TrimSpace(text) == "" {
		text = renderTemplate(rc)
	}
	return text
}

// persist writes the reply to history, the lead changes and the state. It
// keeps going after a failure so one broken store does not lose the others.
func (o *Orchestrator) persist(ctx context.Context, t *turn, reply string) error {
	var errs []error
	if err := o.leads.AppendMessage(ctx, t.lead.ID, leads.RoleAgent, reply); err != nil {
		errs = append(errs, fmt.Errorf("conversation: append reply: %w", err))
	}

	// the status follows the stage only when this turn moved it, and never
	// overrides a lead an operator already closed
	if len(t.transitions) > 0 && !closedByOperator(t.origStatus, t.origStage) {
		if status := t.state.Stage.LeadStatus(); status != t.origStatus {
			t.update.Status = &status
			t.lead.Status = status
		}
	}
	if !t.update.IsEmpty() {
		if err := o.leads.Update(ctx, t.lead.ID, t.update); err != nil {
			errs = append(errs, fmt.Errorf("conversation: update lead: %w", err))
		}
	}

	t.state.UpdatedAt = t.now
	if err := o.states.Save(ctx, t.state); err != nil {
		errs = append(errs, fmt.Errorf("conversation: save state: %w", err))
	}
	return errors.Join(errs...)
}

// fail sends the generic technical reply. State is left as it was so the
// lead can simply repeat the message.
func (o *Orchestrator) fail(ctx context.Context, phone string, lead *leads.Lead, cause error) (*TurnResult, error) {
	o.logger.Error("conversation turn failed", "error", cause)
	delivered := o.sender.SendText(ctx, phone, GenericErrorReply)
	result := &TurnResult{ReplyKind: ReplyTechnicalError, Reply: GenericErrorReply, Delivered: delivered}
	if lead != nil {
		result.LeadID = lead.ID
		if err := o.leads.AppendMessage(ctx, lead.ID, leads.RoleAgent, GenericErrorReply); err != nil {
			o.logger.Warn("failed to record technical reply", "lead_id", lead.ID, "error", err)
		}
	}
	return result, cause
}

func (o *Orchestrator) flushEvents(ctx context.Context, t *turn) {
	for _, ev := range t.events {
		payload := notify.Payload{
			LeadID:      t.lead.ID,
			Phone:       t.lead.Phone,
			Name:        t.lead.Name,
			Company:     t.lead.Company,
			Score:       t.lead.Score,
			Temperature: string(t.lead.Temperature),
			Reason:      ev.reason,
			Details:     ev.details,
		}
		if ev.meeting != nil {
			payload.MeetingStart = ev.meeting.Start
			payload.MeetLink = ev.meeting.MeetLink
		}
		o.notifier.Notify(ctx, ev.eventType, payload)
	}
}

func (o *Orchestrator) observeGate(qualified bool) {
	if o.observer != nil {
		o.observer.ObserveGate(qualified)
	}
}

func (o *Orchestrator) observeLatency(stage Stage, started time.Time) {
	if o.observer != nil {
		o.observer.ObserveTurnLatency(string(stage), o.now().Sub(started).Seconds())
	}
}

func (o *Orchestrator) location() *time.Location {
	if loc := o.finder.Hours().Location; loc != nil {
		return loc
	}
	return time.UTC
}

func llmHistory(history []leads.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == leads.RoleAgent {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
