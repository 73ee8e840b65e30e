// Package conversation runs the per-lead dialogue: it keeps the stage of
// each conversation, decides which step runs for an inbound message and
// produces the single reply for that turn.
package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/sdr-ai-platform/internal/leads"
)

// Stage is the position of a conversation in the qualification flow.
type Stage string

const (
	StageNew                Stage = "NEW"
	StageFirstContact       Stage = "FIRST_CONTACT"
	StageQualifying         Stage = "QUALIFYING"
	StageQualified          Stage = "QUALIFIED"
	StageAwaitingSlotChoice Stage = "AWAITING_SLOT_CHOICE"
	StageMeetingBooked      Stage = "MEETING_BOOKED"
	StageLost               Stage = "LOST"
	StageFinalized          Stage = "FINALIZED"
)

var (
	ErrInvalidStage      = errors.New("conversation: invalid stage")
	ErrInvalidTransition = errors.New("conversation: invalid stage transition")
)

var allStages = []Stage{
	StageNew, StageFirstContact, StageQualifying, StageQualified,
	StageAwaitingSlotChoice, StageMeetingBooked, StageLost, StageFinalized,
}

// ParseStage converts a stored stage string.
func ParseStage(s string) (Stage, error) {
	normalized := Stage(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range allStages {
		if st == normalized {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStage, s)
}

// transitions lists the stages reachable from each stage in one step.
var transitions = map[Stage][]Stage{
	StageNew:                {StageFirstContact},
	StageFirstContact:       {StageQualifying},
	StageQualifying:         {StageQualified, StageLost},
	StageQualified:          {StageAwaitingSlotChoice, StageQualifying, StageLost},
	StageAwaitingSlotChoice: {StageMeetingBooked, StageQualifying},
	StageMeetingBooked:      {StageQualified},
	StageLost:               {StageFinalized},
	StageFinalized:          nil,
}

// CanTransition reports whether a conversation may move from one stage to
// another. Staying in the same stage is always allowed.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LeadStatus is the pipeline status a lead has while its conversation is in
// stage s.
func (s Stage) LeadStatus() leads.Status {
	switch s {
	case StageNew:
		return leads.StatusNew
	case StageFirstContact:
		return leads.StatusFirstContact
	case StageQualifying:
		return leads.StatusQualifying
	case StageQualified:
		return leads.StatusQualified
	case StageAwaitingSlotChoice:
		return leads.StatusAwaitingSlotChoice
	case StageMeetingBooked:
		return leads.StatusMeetingBooked
	default:
		return leads.StatusLost
	}
}

// closedByOperator reports whether status was set outside the conversation:
// WON always is, and LOST is when the stage never got there itself.
func closedByOperator(status leads.Status, stage Stage) bool {
	switch status {
	case leads.StatusWon:
		return true
	case leads.StatusLost:
		return stage.LeadStatus() != leads.StatusLost
	default:
		return false
	}
}

// stageForStatus recovers a stage from the lead status when the state record
// is gone, for example after a restart with the in-memory store.
func stageForStatus(status leads.Status) Stage {
	switch status {
	case leads.StatusFirstContact:
		return StageFirstContact
	case leads.StatusQualifying:
		return StageQualifying
	case leads.StatusQualified, leads.StatusAwaitingSlotChoice:
		// offered slots are not recoverable; offer again from QUALIFIED
		return StageQualified
	case leads.StatusMeetingBooked, leads.StatusWon:
		return StageMeetingBooked
	case leads.StatusLost:
		return StageFinalized
	default:
		return StageNew
	}
}
