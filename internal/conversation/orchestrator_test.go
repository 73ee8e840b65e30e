package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sdr-ai-platform/internal/leads"
	"github.com/wolfman30/sdr-ai-platform/internal/llm"
	"github.com/wolfman30/sdr-ai-platform/internal/notify"
	"github.com/wolfman30/sdr-ai-platform/internal/qualification"
	"github.com/wolfman30/sdr-ai-platform/internal/research"
	"github.com/wolfman30/sdr-ai-platform/internal/scheduling"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

var brt = time.FixedZone("BRT", -3*60*60)

const testPhone = "+5511999990000"

// ruleExtractor runs the keyword rules over the lead messages, reporting
// them as model output so fallback notifications stay out of the way.
type ruleExtractor struct {
	mu    sync.Mutex
	err   error
	calls int
	hints qualification.Hints
}

func (r *ruleExtractor) Extract(_ context.Context, history []llm.Message, hints qualification.Hints) (qualification.Data, qualification.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.hints = hints
	if r.err != nil {
		return qualification.Data{}, "", r.err
	}
	var msgs []string
	for _, m := range history {
		if m.Role == llm.RoleUser {
			msgs = append(msgs, m.Content)
		}
	}
	return qualification.RuleExtractor{}.ExtractMessages(msgs), qualification.SourceLLM, nil
}

type sentText struct {
	to   string
	text string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentText
	fail bool
}

func (s *recordingSender) SendText(_ context.Context, to, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentText{to: to, text: text})
	return !s.fail
}

func (s *recordingSender) last() sentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentText{}
	}
	return s.sent[len(s.sent)-1]
}

type recordedEvent struct {
	eventType notify.EventType
	payload   notify.Payload
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *recordingSink) Notify(_ context.Context, eventType notify.EventType, payload notify.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{eventType: eventType, payload: payload})
}

func (s *recordingSink) types() []notify.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.eventType)
	}
	return out
}

func (s *recordingSink) find(eventType notify.EventType) (notify.Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.eventType == eventType {
			return e.payload, true
		}
	}
	return notify.Payload{}, false
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	gates       []bool
	latencies   int
}

func (o *recordingObserver) ObserveTransition(from, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from+"->"+to)
}

func (o *recordingObserver) ObserveGate(qualified bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gates = append(o.gates, qualified)
}

func (o *recordingObserver) ObserveTurnLatency(string, float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.latencies++
}

type stubResearcher struct {
	calls   int
	summary research.Summary
	err     error
}

func (s *stubResearcher) Research(_ context.Context, rawURL string) (research.Summary, error) {
	s.calls++
	s.summary.URL = rawURL
	return s.summary, s.err
}

type harness struct {
	orch      *Orchestrator
	leads     *leads.InMemoryRepository
	states    *MemoryStateStore
	cal       *scheduling.MemoryCalendar
	appts     *scheduling.MemoryAppointmentRepository
	sender    *recordingSender
	sink      *recordingSink
	observer  *recordingObserver
	extractor *ruleExtractor
}

// newHarness wires real scheduling and in-memory stores around a clock
// frozen at Monday 2025-03-10 14:22 BRT. The first slots on offer are today
// 16:00, today 17:00 and tomorrow 09:00.
func newHarness(t *testing.T, configure ...func(*Deps)) *harness {
	t.Helper()
	now := time.Date(2025, 3, 10, 14, 22, 0, 0, brt)
	clock := func() time.Time { return now }
	hours := scheduling.BusinessHours{
		Location:  brt,
		StartHour: 9,
		EndHour:   18,
		WorkDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}

	h := &harness{
		leads:     leads.NewInMemoryRepository(),
		states:    NewMemoryStateStore(),
		cal:       scheduling.NewMemoryCalendar(),
		appts:     scheduling.NewMemoryAppointmentRepository(),
		sender:    &recordingSender{},
		sink:      &recordingSink{},
		observer:  &recordingObserver{},
		extractor: &ruleExtractor{},
	}
	deps := Deps{
		Leads:     h.leads,
		States:    h.states,
		Extractor: h.extractor,
		Gate:      qualification.NewGate(qualification.DefaultMinAnnualRevenue),
		Finder:    scheduling.NewFinder(h.cal, hours, scheduling.WithClock(clock)),
		Booker:    scheduling.NewBooker(h.cal, h.appts, hours, scheduling.WithBookerClock(clock)),
		Sender:    h.sender,
		Notifier:  h.sink,
	}
	for _, fn := range configure {
		fn(&deps)
	}
	h.orch = NewOrchestrator(deps, logging.Default(),
		WithOrchestratorClock(clock),
		WithTurnObserver(h.observer),
		WithOfferAfter(2),
		WithSlotSearch(5, 3, time.Hour),
	)
	return h
}

func (h *harness) say(t *testing.T, text string) *TurnResult {
	t.Helper()
	res, err := h.orch.HandleMessage(context.Background(), Inbound{Phone: testPhone, DisplayName: "Ana Souza", Text: text})
	require.NoError(t, err, text)
	require.NotNil(t, res)
	assert.Equal(t, res.Reply, h.sender.last().text, "the reply is what was sent")
	return res
}

func (h *harness) lead(t *testing.T) *leads.Lead {
	t.Helper()
	lead, err := h.leads.GetByPhone(context.Background(), testPhone)
	require.NoError(t, err)
	return lead
}

func (h *harness) state(t *testing.T) *State {
	t.Helper()
	st, err := h.states.Load(context.Background(), testPhone)
	require.NoError(t, err)
	return st
}

// qualify drives a new lead to QUALIFIED.
func (h *harness) qualify(t *testing.T) {
	t.Helper()
	h.say(t, "Oi, tudo bem?")
	res := h.say(t, "faturamos 2 milhões por ano e sou o dono")
	require.Equal(t, StageQualified, res.Stage)
}

func (h *harness) awaitSlots(t *testing.T) *TurnResult {
	t.Helper()
	h.qualify(t)
	res := h.say(t, "quero agendar")
	require.Equal(t, StageAwaitingSlotChoice, res.Stage)
	return res
}

func at(day, hour int) time.Time {
	return time.Date(2025, 3, day, hour, 0, 0, 0, brt)
}

func TestOrchestrator_QualifiesBooksAndCancels(t *testing.T) {
	h := newHarness(t)

	res := h.say(t, "Oi, tudo bem?")
	assert.Equal(t, StageFirstContact, res.Stage)
	assert.Equal(t, ReplyGreeting, res.ReplyKind)
	assert.Contains(t, res.Reply, "Olá, Ana!")
	assert.Zero(t, h.extractor.calls, "no extraction on first contact")
	assert.Equal(t, leads.StatusFirstContact, h.lead(t).Status)

	res = h.say(t, "faturamos 2 milhões por ano e sou o dono")
	assert.Equal(t, []Transition{{StageFirstContact, StageQualifying}, {StageQualifying, StageQualified}}, res.Transitions)
	assert.Equal(t, ReplyQualified, res.ReplyKind)
	lead := h.lead(t)
	assert.Equal(t, leads.StatusQualified, lead.Status)
	assert.Equal(t, 75, lead.Score)
	assert.Equal(t, qualification.TemperatureWarm, lead.Temperature)
	require.NotNil(t, lead.Qualification)
	assert.Equal(t, int64(2_000_000), *lead.Qualification.AnnualRevenue)
	assert.True(t, *lead.Qualification.IsDecisionMaker)

	res = h.say(t, "sim, vamos marcar")
	assert.Equal(t, StageAwaitingSlotChoice, res.Stage)
	assert.Equal(t, ReplyOfferSlots, res.ReplyKind)
	assert.Contains(t, res.Reply, "1. Hoje às 16:00\n2. Hoje às 17:00\n3. Amanhã às 09:00")
	assert.Len(t, h.state(t).OfferedSlots, 3)

	res = h.say(t, "opção 2")
	assert.Equal(t, StageMeetingBooked, res.Stage)
	require.NotNil(t, res.Booking)
	assert.Equal(t, scheduling.OutcomeBooked, res.Booking.Outcome)
	assert.True(t, res.Booking.Appointment.Start.Equal(at(10, 17)))
	assert.Contains(t, res.Reply, "Reunião confirmada para hoje às 17:00!")
	assert.Contains(t, res.Reply, "https://meet.local/")
	assert.Equal(t, 1, h.cal.Len())
	st := h.state(t)
	assert.Empty(t, st.OfferedSlots)
	assert.Equal(t, res.Booking.Appointment.ID, st.AppointmentID)
	assert.Equal(t, leads.StatusMeetingBooked, h.lead(t).Status)

	res = h.say(t, "Obrigada!")
	assert.Equal(t, ReplyBookedCourtesy, res.ReplyKind)
	assert.Contains(t, res.Reply, "hoje às 17:00")

	apptID := st.AppointmentID
	res = h.say(t, "surgiu um imprevisto, preciso cancelar a reunião")
	assert.Equal(t, StageQualified, res.Stage)
	assert.Equal(t, ReplyCancelled, res.ReplyKind)
	assert.Zero(t, h.cal.Len())
	appt, err := h.appts.Get(context.Background(), apptID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.AppointmentCancelled, appt.Status)
	assert.Empty(t, h.state(t).AppointmentID)

	assert.Equal(t, []notify.EventType{
		notify.EventLeadCreated,
		notify.EventLeadQualified,
		notify.EventMeetingBooked,
		notify.EventMeetingCancelled,
	}, h.sink.types())
	booked, _ := h.sink.find(notify.EventMeetingBooked)
	assert.True(t, booked.MeetingStart.Equal(at(10, 17)))
	assert.Equal(t, 75, booked.Score)

	history := h.lead(t).History
	require.Len(t, history, 12)
	assert.Equal(t, leads.RoleLead, history[0].Role)
	assert.Equal(t, leads.RoleAgent, history[11].Role)

	assert.Equal(t, []string{
		"NEW->FIRST_CONTACT",
		"FIRST_CONTACT->QUALIFYING",
		"QUALIFYING->QUALIFIED",
		"QUALIFIED->AWAITING_SLOT_CHOICE",
		"AWAITING_SLOT_CHOICE->MEETING_BOOKED",
		"MEETING_BOOKED->QUALIFIED",
	}, h.observer.transitions)
	assert.Equal(t, []bool{true, true}, h.observer.gates)
	assert.Equal(t, 6, h.observer.latencies)
}

func TestOrchestrator_DisqualifiesThenFinalizes(t *testing.T) {
	h := newHarness(t)
	h.say(t, "oi")

	res := h.say(t, "faturamos 100 mil por ano, sou sócio")
	assert.Equal(t, StageLost, res.Stage)
	assert.Equal(t, ReplyDisqualified, res.ReplyKind)
	lead := h.lead(t)
	assert.Equal(t, leads.StatusLost, lead.Status)
	assert.Equal(t, 40, lead.Score)
	assert.Equal(t, qualification.TemperatureCold, lead.Temperature)
	lost, ok := h.sink.find(notify.EventLeadLost)
	require.True(t, ok)
	assert.Equal(t, "faturamento anual (100000) abaixo do mínimo (600000)", lost.Reason)

	res = h.say(t, "ok, obrigado")
	assert.Equal(t, StageFinalized, res.Stage)
	assert.Equal(t, ReplyClosing, res.ReplyKind)

	res = h.say(t, "oi de novo")
	assert.Equal(t, StageFinalized, res.Stage)
	assert.Equal(t, ReplyHandoff, res.ReplyKind)
	assert.Empty(t, res.Transitions)
	assert.Equal(t, leads.StatusLost, h.lead(t).Status)
}

func TestOrchestrator_AsksForMissingCriticalFields(t *testing.T) {
	h := newHarness(t)
	h.say(t, "oi")

	res := h.say(t, "quero agendar uma reunião")
	assert.Equal(t, StageQualifying, res.Stage)
	assert.Equal(t, ReplyAskQualification, res.ReplyKind)
	assert.Contains(t, res.Reply, "Claro, já vamos agendar!")
	assert.Contains(t, res.Reply, "faturamento anual")

	res = h.say(t, "faturamos 3 milhões por ano")
	assert.Equal(t, StageQualifying, res.Stage)
	assert.NotContains(t, res.Reply, "faturamento anual")
	assert.Contains(t, res.Reply, "decide")
	assert.Empty(t, h.observer.gates, "the gate waits for both critical fields")

	res = h.say(t, "sou a CEO e quero agendar")
	assert.Equal(t, []Transition{{StageQualifying, StageQualified}, {StageQualified, StageAwaitingSlotChoice}}, res.Transitions)
	assert.Equal(t, ReplyOfferSlots, res.ReplyKind)
}

func TestOrchestrator_OffersSlotsAfterConfiguredExchanges(t *testing.T) {
	h := newHarness(t)
	h.qualify(t)

	res := h.say(t, "legal")
	assert.Equal(t, StageQualified, res.Stage)
	assert.Equal(t, ReplyFollowUp, res.ReplyKind)
	assert.Equal(t, 1, h.state(t).ExchangesSinceQualified)

	res = h.say(t, "entendi")
	assert.Equal(t, StageAwaitingSlotChoice, res.Stage)
	assert.Equal(t, ReplyOfferSlots, res.ReplyKind)
}

func TestOrchestrator_HesitationReentersQualifying(t *testing.T) {
	h := newHarness(t)
	h.awaitSlots(t)

	res := h.say(t, "antes disso, quanto custa?")
	assert.Equal(t, StageQualifying, res.Stage)
	assert.Equal(t, ReplyHesitation, res.ReplyKind)
	assert.Empty(t, h.state(t).OfferedSlots)

	res = h.say(t, "ok, vamos marcar então")
	assert.Equal(t, []Transition{{StageQualifying, StageQualified}, {StageQualified, StageAwaitingSlotChoice}}, res.Transitions)
	assert.Equal(t, ReplyOfferSlots, res.ReplyKind)

	qualified := 0
	for _, typ := range h.sink.types() {
		if typ == notify.EventLeadQualified {
			qualified++
		}
	}
	assert.Equal(t, 1, qualified, "re-qualification is not a new lead_qualified event")
}

func TestOrchestrator_QuestionInQualifiedReentersQualifying(t *testing.T) {
	h := newHarness(t)
	h.qualify(t)

	res := h.say(t, "vocês integram com o meu CRM?")
	assert.Equal(t, StageQualifying, res.Stage)
	assert.Equal(t, ReplyHesitation, res.ReplyKind)
}

func TestOrchestrator_ConflictReoffersAlternatives(t *testing.T) {
	h := newHarness(t)
	h.awaitSlots(t)

	// someone else takes today 16:00 between offer and choice
	h.cal.Block(at(10, 16), at(10, 17))

	res := h.say(t, "1")
	assert.Equal(t, StageAwaitingSlotChoice, res.Stage)
	require.NotNil(t, res.Booking)
	assert.Equal(t, scheduling.OutcomeConflict, res.Booking.Outcome)
	assert.Equal(t, ReplySlotConflict, res.ReplyKind)
	assert.Contains(t, res.Reply, "1. Hoje às 17:00\n2. Amanhã às 09:00\n3. Amanhã às 10:00")

	offered := h.state(t).OfferedSlots
	require.Len(t, offered, 3)
	for _, s := range offered {
		assert.False(t, s.Equal(at(10, 16)))
	}

	res = h.say(t, "amanhã às 10")
	assert.Equal(t, StageMeetingBooked, res.Stage)
	assert.True(t, res.Booking.Appointment.Start.Equal(at(11, 10)))
}

func TestOrchestrator_RepromptsAndRefreshesSlots(t *testing.T) {
	h := newHarness(t)
	h.awaitSlots(t)

	res := h.say(t, "hmm")
	assert.Equal(t, StageAwaitingSlotChoice, res.Stage)
	assert.Equal(t, ReplyChooseSlot, res.ReplyKind)
	assert.Contains(t, res.Reply, "3. Amanhã às 09:00")

	res = h.say(t, "tem outros horários?")
	assert.Equal(t, ReplyOfferSlots, res.ReplyKind)
	assert.Contains(t, res.Reply, "1. Amanhã às 10:00\n2. Amanhã às 11:00\n3. Amanhã às 12:00")
}

func TestOrchestrator_CalendarUnavailableKeepsConversationGoing(t *testing.T) {
	h := newHarness(t)
	h.qualify(t)
	h.cal.Err = errors.New("calendar api down")

	res := h.say(t, "quero agendar")
	assert.Equal(t, StageQualified, res.Stage)
	assert.Equal(t, ReplyCalendarDown, res.ReplyKind)

	h.cal.Err = nil
	res = h.say(t, "quero agendar")
	assert.Equal(t, StageAwaitingSlotChoice, res.Stage)
}

func TestOrchestrator_BookingServiceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.awaitSlots(t)
	h.cal.Err = errors.New("calendar api down")

	res := h.say(t, "opção 1")
	assert.Equal(t, StageAwaitingSlotChoice, res.Stage)
	assert.Equal(t, scheduling.OutcomeServiceUnavailable, res.Booking.Outcome)
	assert.Equal(t, ReplyCalendarDown, res.ReplyKind)
	assert.Len(t, h.state(t).OfferedSlots, 3, "offered slots survive so the lead can pick again")
}

func TestOrchestrator_RescheduleCancelsAndOffers(t *testing.T) {
	h := newHarness(t)
	h.awaitSlots(t)
	h.say(t, "opção 2")
	require.Equal(t, 1, h.cal.Len())

	res := h.say(t, "preciso remarcar")
	assert.Equal(t, []Transition{{StageMeetingBooked, StageQualified}, {StageQualified, StageAwaitingSlotChoice}}, res.Transitions)
	assert.Equal(t, ReplyOfferSlots, res.ReplyKind)
	assert.Zero(t, h.cal.Len())
	cancelled, ok := h.sink.find(notify.EventMeetingCancelled)
	require.True(t, ok)
	assert.Equal(t, "remarcação solicitada pelo lead", cancelled.Reason)
	assert.True(t, cancelled.MeetingStart.Equal(at(10, 17)))
}

func TestOrchestrator_GenericReplyOnInternalFailure(t *testing.T) {
	h := newHarness(t)
	h.say(t, "oi")
	h.extractor.err = context.Canceled

	res, err := h.orch.HandleMessage(context.Background(), Inbound{Phone: testPhone, Text: "faturamos 2 milhões"})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, GenericErrorReply, res.Reply)
	assert.Equal(t, ReplyTechnicalError, res.ReplyKind)
	assert.Equal(t, GenericErrorReply, h.sender.last().text)

	assert.Equal(t, StageFirstContact, h.state(t).Stage, "failed turns do not move the conversation")
	history := h.lead(t).History
	require.Len(t, history, 4)
	assert.Equal(t, GenericErrorReply, history[3].Content)
}

type failingLeads struct {
	leads.Repository
}

func (failingLeads) GetByPhone(context.Context, string) (*leads.Lead, error) {
	return nil, errors.New("connection refused")
}

func TestOrchestrator_GenericReplyWhenLeadStoreDown(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Leads = failingLeads{} })

	res, err := h.orch.HandleMessage(context.Background(), Inbound{Phone: testPhone, Text: "oi"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, GenericErrorReply, res.Reply)
	assert.Equal(t, sentText{to: testPhone, text: GenericErrorReply}, h.sender.last())
}

func TestOrchestrator_UndeliveredReplyStillAdvances(t *testing.T) {
	h := newHarness(t)
	h.sender.fail = true

	res := h.say(t, "oi")
	assert.False(t, res.Delivered)
	assert.Equal(t, StageFirstContact, h.state(t).Stage)
}

func TestOrchestrator_ResearchesWebsiteOnce(t *testing.T) {
	researcher := &stubResearcher{summary: research.Summary{Title: "Clínica Sorriso", Description: "Odontologia estética em Campinas"}}
	h := newHarness(t, func(d *Deps) { d.Researcher = researcher })
	h.say(t, "oi")

	h.say(t, "nosso site é clinicasorriso.com.br")
	assert.Equal(t, 1, researcher.calls)
	assert.Contains(t, h.extractor.hints.WebsiteSummary, "Clínica Sorriso")
	st := h.state(t)
	assert.True(t, st.WebsiteResearched)

	h.say(t, "o outro site é sorriso.net")
	assert.Equal(t, 1, researcher.calls)
	assert.Contains(t, h.extractor.hints.WebsiteSummary, "Clínica Sorriso", "the summary keeps feeding extraction")
}

func TestOrchestrator_RecoversStageFromLeadStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lead, err := h.leads.Create(ctx, &leads.CreateLeadRequest{Phone: testPhone, Name: "Ana"})
	require.NoError(t, err)
	status := leads.StatusQualified
	require.NoError(t, h.leads.Update(ctx, lead.ID, leads.Update{
		Status: &status,
		Qualification: &qualification.Data{
			AnnualRevenue:   qualification.Ptr(int64(2_000_000)),
			IsDecisionMaker: qualification.Ptr(true),
		},
	}))

	res := h.say(t, "quero agendar")
	assert.Equal(t, []Transition{{StageQualified, StageAwaitingSlotChoice}}, res.Transitions)
	assert.NotContains(t, h.sink.types(), notify.EventLeadCreated)
}

func TestOrchestrator_KeepsStatusClosedByOperator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.awaitSlots(t)
	res := h.say(t, "opção 1")
	require.Equal(t, StageMeetingBooked, res.Stage)

	won := leads.StatusWon
	require.NoError(t, h.leads.Update(ctx, h.lead(t).ID, leads.Update{Status: &won}))

	res = h.say(t, "obrigado!")
	assert.Equal(t, ReplyBookedCourtesy, res.ReplyKind)
	assert.Empty(t, res.Transitions)
	assert.Equal(t, leads.StatusWon, h.lead(t).Status)
}

func TestOrchestrator_KeepsLostSetByOperator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.say(t, "Oi, tudo bem?")

	lost := leads.StatusLost
	require.NoError(t, h.leads.Update(ctx, h.lead(t).ID, leads.Update{Status: &lost}))

	res := h.say(t, "faturamos 2 milhões por ano e sou o dono")
	assert.Equal(t, StageQualified, res.Stage)
	assert.Equal(t, leads.StatusLost, h.lead(t).Status)
}

func TestOrchestrator_StatusUnchangedWithoutTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.qualify(t)

	// stale status written by another process
	stale := leads.StatusQualifying
	require.NoError(t, h.leads.Update(ctx, h.lead(t).ID, leads.Update{Status: &stale}))

	res := h.say(t, "a empresa fica em Campinas")
	require.Empty(t, res.Transitions)
	assert.Equal(t, leads.StatusQualifying, h.lead(t).Status)
}

func TestOrchestrator_RejectsEmptyInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.HandleMessage(context.Background(), Inbound{Text: "oi"})
	assert.ErrorIs(t, err, ErrMissingPhone)
	_, err = h.orch.HandleMessage(context.Background(), Inbound{Phone: testPhone, Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, h.sender.sent)
}

func TestOrchestrator_SendersAreIndependent(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			phone := fmt.Sprintf("+55119999900%02d", i)
			_, err := h.orch.HandleMessage(context.Background(), Inbound{Phone: phone, Text: "oi"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		st, err := h.states.Load(context.Background(), fmt.Sprintf("+55119999900%02d", i))
		require.NoError(t, err)
		assert.Equal(t, StageFirstContact, st.Stage)
	}
}

func TestNewOrchestrator_RequiresCollaborators(t *testing.T) {
	assert.Panics(t, func() { NewOrchestrator(Deps{}, nil) })
}
