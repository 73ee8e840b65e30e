package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wolfman30/sdr-ai-platform/internal/notify"
	"github.com/wolfman30/sdr-ai-platform/internal/qualification"
	"github.com/wolfman30/sdr-ai-platform/internal/research"
	"github.com/wolfman30/sdr-ai-platform/internal/scheduling"
)

func (o *Orchestrator) handleNew(_ context.Context, t *turn) error {
	if err := o.transition(t, StageFirstContact); err != nil {
		return err
	}
	t.reply.Kind = ReplyGreeting
	return nil
}

func (o *Orchestrator) handleFirstContact(ctx context.Context, t *turn) error {
	if err := o.transition(t, StageQualifying); err != nil {
		return err
	}
	return o.handleQualifying(ctx, t)
}

func (o *Orchestrator) handleQualifying(ctx context.Context, t *turn) error {
	data, err := o.extract(ctx, t)
	if err != nil {
		return err
	}
	if !data.HasCriticalFields() {
		t.reply = ReplyContext{
			Kind:            ReplyAskQualification,
			Missing:         missingFields(data),
			WantsToSchedule: t.intent == IntentSchedule,
		}
		return nil
	}

	decision := o.evaluate(t, data)
	if !decision.Qualified {
		return o.disqualify(t, decision)
	}

	returning := !t.state.QualifiedAt.IsZero()
	if err := o.transition(t, StageQualified); err != nil {
		return err
	}
	if !returning {
		t.state.QualifiedAt = t.now
		t.state.ExchangesSinceQualified = 0
		t.notify(notify.EventLeadQualified, decision.Reason, roiDetails(data))
	}

	switch {
	case t.intent == IntentSchedule:
		return o.offerSlots(ctx, t, ReplyOfferSlots, nil)
	case !returning:
		t.reply = ReplyContext{Kind: ReplyQualified}
		if roi, ok := qualification.EstimateROI(data); ok {
			t.reply.ROI = &roi
		}
	case wantsToLeaveSchedulingFlow(t.intent, t.text):
		t.reply = ReplyContext{Kind: ReplyHesitation}
	default:
		t.reply = ReplyContext{Kind: ReplyFollowUp}
	}
	return nil
}

func (o *Orchestrator) handleQualified(ctx context.Context, t *turn) error {
	data, err := o.extract(ctx, t)
	if err != nil {
		return err
	}
	if data.HasCriticalFields() {
		if decision := o.evaluate(t, data); !decision.Qualified {
			return o.disqualify(t, decision)
		}
	}

	if wantsToLeaveSchedulingFlow(t.intent, t.text) {
		return o.reenterQualifying(t)
	}

	t.state.ExchangesSinceQualified++
	if t.intent == IntentSchedule || isAffirmative(t.text) || t.state.ExchangesSinceQualified >= o.offerAfter {
		return o.offerSlots(ctx, t, ReplyOfferSlots, nil)
	}
	t.reply = ReplyContext{Kind: ReplyFollowUp}
	return nil
}

func (o *Orchestrator) handleAwaitingSlotChoice(ctx context.Context, t *turn) error {
	loc := o.location()
	if start, ok := scheduling.ParseSlotChoice(t.text, t.state.OfferedSlots, t.now, loc); ok {
		return o.book(ctx, t, start)
	}
	if wantsOtherSlots(t.text) {
		return o.offerSlots(ctx, t, ReplyOfferSlots, t.state.OfferedSlots)
	}
	if wantsToLeaveSchedulingFlow(t.intent, t.text) {
		return o.reenterQualifying(t)
	}

	remaining := o.candidates(t.state.OfferedSlots, t.now)
	if len(remaining) == 0 {
		// everything offered is in the past now
		return o.offerSlots(ctx, t, ReplyOfferSlots, nil)
	}
	t.reply = ReplyContext{Kind: ReplyChooseSlot, Slots: remaining}
	return nil
}

func (o *Orchestrator) handleMeetingBooked(ctx context.Context, t *turn) error {
	reschedule := isRescheduleRequest(t.text)
	if !reschedule && !isCancelRequest(t.text) {
		t.reply = ReplyContext{Kind: ReplyBookedCourtesy}
		o.describeAppointment(ctx, t)
		return nil
	}

	if t.state.AppointmentID == "" {
		o.logger.Warn("cancellation requested without appointment on record", "lead_id", t.lead.ID)
		t.reply = ReplyContext{Kind: ReplyCancelFailed}
		return nil
	}
	appt, _ := o.booker.Appointment(ctx, t.state.AppointmentID)
	if err := o.booker.CancelMeeting(ctx, t.state.AppointmentID); err != nil {
		o.logger.Error("failed to cancel meeting", "lead_id", t.lead.ID, "appointment_id", t.state.AppointmentID, "error", err)
		t.reply = ReplyContext{Kind: ReplyCancelFailed}
		return nil
	}

	ev := pendingEvent{eventType: notify.EventMeetingCancelled, reason: "cancelado pelo lead", meeting: appt}
	if reschedule {
		ev.reason = "remarcação solicitada pelo lead"
	}
	t.events = append(t.events, ev)
	t.state.AppointmentID = ""
	if err := o.transition(t, StageQualified); err != nil {
		return err
	}
	if reschedule {
		return o.offerSlots(ctx, t, ReplyOfferSlots, nil)
	}
	t.reply = ReplyContext{Kind: ReplyCancelled}
	return nil
}

func (o *Orchestrator) handleLost(_ context.Context, t *turn) error {
	if err := o.transition(t, StageFinalized); err != nil {
		return err
	}
	t.reply = ReplyContext{Kind: ReplyClosing}
	return nil
}

func (o *Orchestrator) handleFinalized(_ context.Context, t *turn) error {
	t.reply = ReplyContext{Kind: ReplyHandoff}
	return nil
}

// extract researches a referenced website once, runs the extractor over the
// whole transcript and merges the result into the lead. Score and
// temperature are refreshed on every run.
func (o *Orchestrator) extract(ctx context.Context, t *turn) (qualification.Data, error) {
	o.research(ctx, t)

	data, source, err := o.extractor.Extract(ctx, llmHistory(t.lead.History), qualification.Hints{WebsiteSummary: t.state.WebsiteSummary})
	if err != nil {
		return qualification.Data{}, fmt.Errorf("conversation: extract: %w", err)
	}
	if source == qualification.SourceFallback {
		t.notify(notify.EventExtractionFallback, "extração por regras", map[string]string{"stage": string(t.state.Stage)})
	}

	var merged qualification.Data
	if t.lead.Qualification != nil {
		merged = *t.lead.Qualification
	}
	merged.Merge(data)
	t.lead.Qualification = &merged
	t.update.Qualification = &merged

	if data.Name != nil && t.lead.Name == "" {
		t.lead.Name = *data.Name
		t.update.Name = data.Name
	}
	if data.Company != nil && t.lead.Company == "" {
		t.lead.Company = *data.Company
		t.update.Company = data.Company
	}
	if data.Email != nil && t.lead.Email == "" {
		t.lead.Email = *data.Email
		t.update.Email = data.Email
	}

	score := qualification.Score(merged)
	temperature := qualification.TemperatureFor(score)
	t.lead.Score = score
	t.lead.Temperature = temperature
	t.update.Score = &score
	t.update.Temperature = &temperature
	return merged, nil
}

func (o *Orchestrator) research(ctx context.Context, t *turn) {
	if o.researcher == nil || t.state.WebsiteResearched {
		return
	}
	url, ok := research.ExtractURL(t.text)
	if !ok {
		return
	}
	t.state.WebsiteResearched = true
	summary, err := o.researcher.Research(ctx, url)
	if err != nil {
		o.logger.Warn("website research failed", "lead_id", t.lead.ID, "url", url, "error", err)
		return
	}
	if !summary.IsEmpty() {
		t.state.WebsiteSummary = summary.String()
	}
}

func (o *Orchestrator) evaluate(t *turn, data qualification.Data) qualification.Decision {
	decision := o.gate.IsQualified(data)
	o.observeGate(decision.Qualified)
	o.logger.Info("qualification gate evaluated",
		"lead_id", t.lead.ID,
		"qualified", decision.Qualified,
		"score", decision.Score,
		"reason", decision.Reason,
	)
	return decision
}

func (o *Orchestrator) disqualify(t *turn, decision qualification.Decision) error {
	if err := o.transition(t, StageLost); err != nil {
		return err
	}
	t.state.OfferedSlots = nil
	t.notify(notify.EventLeadLost, decision.Reason, nil)
	t.reply = ReplyContext{Kind: ReplyDisqualified}
	return nil
}

func (o *Orchestrator) reenterQualifying(t *turn) error {
	if err := o.transition(t, StageQualifying); err != nil {
		return err
	}
	t.state.OfferedSlots = nil
	t.state.ExchangesSinceQualified = 0
	t.reply = ReplyContext{Kind: ReplyHesitation}
	return nil
}

// offerSlots looks up fresh slots, skipping the excluded start times, and
// moves to AWAITING_SLOT_CHOICE when there is something to offer. Calendar
// trouble keeps the current stage; the conversation goes on without
// scheduling.
func (o *Orchestrator) offerSlots(ctx context.Context, t *turn, kind ReplyKind, exclude []time.Time) error {
	slots, err := o.finder.AvailableSlots(ctx, o.daysAhead, o.slotCount+len(exclude), o.duration)
	if err != nil {
		o.logger.Warn("slot lookup failed", "lead_id", t.lead.ID, "error", err)
		if !errors.Is(err, scheduling.ErrCalendarUnavailable) && ctx.Err() != nil {
			return fmt.Errorf("conversation: find slots: %w", err)
		}
		t.state.OfferedSlots = nil
		t.reply = ReplyContext{Kind: ReplyCalendarDown}
		return nil
	}
	slots = withoutStarts(slots, exclude)
	if len(slots) > o.slotCount {
		slots = slots[:o.slotCount]
	}
	if len(slots) == 0 {
		t.state.OfferedSlots = nil
		if kind == ReplySlotConflict {
			t.reply = ReplyContext{Kind: ReplySlotConflict}
		} else {
			t.reply = ReplyContext{Kind: ReplyNoSlots}
		}
		return nil
	}

	if t.state.Stage != StageAwaitingSlotChoice {
		if err := o.transition(t, StageAwaitingSlotChoice); err != nil {
			return err
		}
	}
	t.state.OfferedSlots = make([]time.Time, 0, len(slots))
	for _, s := range slots {
		t.state.OfferedSlots = append(t.state.OfferedSlots, s.Start)
	}
	t.reply = ReplyContext{Kind: kind, Slots: slots}
	return nil
}

func (o *Orchestrator) book(ctx context.Context, t *turn, start time.Time) error {
	lead := t.lead
	result := o.booker.CreateMeeting(ctx, scheduling.MeetingRequest{
		LeadID:    lead.ID,
		LeadPhone: lead.Phone,
		LeadName:  lead.Name,
		LeadEmail: lead.Email,
		Company:   lead.Company,
		Start:     start,
		Duration:  o.duration,
		Notes:     meetingNotes(lead.Qualification, lead.Score, string(lead.Temperature)),
	})
	t.booking = &result

	switch result.Outcome {
	case scheduling.OutcomeBooked:
		if err := o.transition(t, StageMeetingBooked); err != nil {
			return err
		}
		t.state.OfferedSlots = nil
		t.state.AppointmentID = result.Appointment.ID
		t.events = append(t.events, pendingEvent{eventType: notify.EventMeetingBooked, meeting: result.Appointment})
		t.reply = ReplyContext{
			Kind:             ReplyBooked,
			Appointment:      result.Appointment,
			AppointmentLabel: scheduling.DisplayLabel(result.Appointment.Start, t.now.In(o.location())),
		}
		return nil
	case scheduling.OutcomeConflict:
		o.logger.Info("chosen slot taken; offering alternatives", "lead_id", lead.ID, "start", start, "reason", result.Reason)
		return o.offerSlots(ctx, t, ReplySlotConflict, []time.Time{start})
	default:
		o.logger.Warn("booking unavailable", "lead_id", lead.ID, "error", result.Err)
		t.reply = ReplyContext{Kind: ReplyCalendarDown}
		return nil
	}
}

func (o *Orchestrator) describeAppointment(ctx context.Context, t *turn) {
	if t.state.AppointmentID == "" {
		return
	}
	appt, err := o.booker.Appointment(ctx, t.state.AppointmentID)
	if err != nil {
		o.logger.Warn("failed to load appointment", "appointment_id", t.state.AppointmentID, "error", err)
		return
	}
	t.reply.Appointment = appt
	t.reply.AppointmentLabel = scheduling.DisplayLabel(appt.Start, t.now.In(o.location()))
}

// candidates rebuilds display slots for the offered start times that are
// still in the future.
func (o *Orchestrator) candidates(starts []time.Time, now time.Time) []scheduling.CandidateSlot {
	local := now.In(o.location())
	out := make([]scheduling.CandidateSlot, 0, len(starts))
	for _, s := range starts {
		if s.After(now) {
			out = append(out, scheduling.NewCandidateSlot(s, o.duration, local))
		}
	}
	return out
}

func withoutStarts(slots []scheduling.CandidateSlot, exclude []time.Time) []scheduling.CandidateSlot {
	if len(exclude) == 0 {
		return slots
	}
	out := slots[:0:0]
	for _, s := range slots {
		skip := false
		for _, e := range exclude {
			if s.Start.Equal(e) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, s)
		}
	}
	return out
}

func missingFields(d qualification.Data) []MissingField {
	var missing []MissingField
	if d.AnnualRevenue == nil {
		missing = append(missing, MissingRevenue)
	}
	if d.IsDecisionMaker == nil {
		missing = append(missing, MissingDecisionMaker)
	}
	return missing
}

func roiDetails(d qualification.Data) map[string]string {
	details := map[string]string{}
	if d.AnnualRevenue != nil {
		details["faturamento_anual"] = strconv.FormatInt(*d.AnnualRevenue, 10)
	}
	if d.Sector != nil {
		details["setor"] = *d.Sector
	}
	if d.Urgency != nil {
		details["urgencia"] = string(*d.Urgency)
	}
	if roi, ok := qualification.EstimateROI(d); ok {
		details["atendimentos_mes"] = strconv.Itoa(roi.MonthlyConversations)
		details["horas_mes"] = strconv.FormatFloat(roi.MonthlyHandlingHours, 'f', 1, 64)
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func meetingNotes(d *qualification.Data, score int, temperature string) string {
	notes := fmt.Sprintf("Score: %d (%s)", score, temperature)
	if d == nil {
		return notes
	}
	if d.Sector != nil {
		notes += "\nSetor: " + *d.Sector
	}
	if d.AnnualRevenue != nil {
		notes += "\nFaturamento anual: R$ " + strconv.FormatInt(*d.AnnualRevenue, 10)
	}
	if d.Role != nil {
		notes += "\nCargo: " + *d.Role
	}
	if d.Urgency != nil {
		notes += "\nUrgência: " + string(*d.Urgency)
	}
	return notes
}
