// Package qualification turns lead statements into typed business facts and
// decides whether a lead is admitted to the scheduling step.
package qualification

import (
	"fmt"
	"math"
)

// Urgency is how soon the lead wants a solution.
type Urgency string

const (
	UrgencyImmediate  Urgency = "immediate"
	UrgencyOneToThree Urgency = "1-3mo"
	UrgencyThreeToSix Urgency = "3-6mo"
	UrgencyNone       Urgency = "none"
)

// ParseUrgency accepts the canonical urgency strings only.
func ParseUrgency(s string) (Urgency, error) {
	switch u := Urgency(s); u {
	case UrgencyImmediate, UrgencyOneToThree, UrgencyThreeToSix, UrgencyNone:
		return u, nil
	}
	return "", fmt.Errorf("qualification: unknown urgency %q", s)
}

// MaxAnnualRevenue bounds a stated revenue figure. Anything above it is a
// parsing or model error, not a lead.
const MaxAnnualRevenue int64 = 10_000_000_000_000

// annualRevenue rounds v to whole reais, rejecting values outside
// (0, MaxAnnualRevenue].
func annualRevenue(v float64) (int64, bool) {
	if math.IsNaN(v) || v <= 0 || v > float64(MaxAnnualRevenue) {
		return 0, false
	}
	return int64(math.Round(v)), true
}

// Data holds facts the lead stated explicitly. A nil field means the lead
// never said it; nothing is inferred.
type Data struct {
	AnnualRevenue   *int64   `json:"annual_revenue,omitempty"`
	IsDecisionMaker *bool    `json:"is_decision_maker,omitempty"`
	Urgency         *Urgency `json:"urgency,omitempty"`
	Sector          *string  `json:"sector,omitempty"`
	Role            *string  `json:"role,omitempty"`

	// ROI inputs
	DailyVolume     *int     `json:"daily_volume,omitempty"`
	HandlingMinutes *float64 `json:"handling_minutes,omitempty"`
	AverageTicket   *float64 `json:"average_ticket,omitempty"`
	StaffCount      *int     `json:"staff_count,omitempty"`

	Name    *string `json:"name,omitempty"`
	Company *string `json:"company,omitempty"`
	Email   *string `json:"email,omitempty"`
}

// Merge overwrites d with every non-nil field of other.
func (d *Data) Merge(other Data) {
	mergePtr(&d.AnnualRevenue, other.AnnualRevenue)
	mergePtr(&d.IsDecisionMaker, other.IsDecisionMaker)
	mergePtr(&d.Urgency, other.Urgency)
	mergePtr(&d.Sector, other.Sector)
	mergePtr(&d.Role, other.Role)
	mergePtr(&d.DailyVolume, other.DailyVolume)
	mergePtr(&d.HandlingMinutes, other.HandlingMinutes)
	mergePtr(&d.AverageTicket, other.AverageTicket)
	mergePtr(&d.StaffCount, other.StaffCount)
	mergePtr(&d.Name, other.Name)
	mergePtr(&d.Company, other.Company)
	mergePtr(&d.Email, other.Email)
}

func mergePtr[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// HasCriticalFields reports whether the gate has enough to decide.
func (d Data) HasCriticalFields() bool {
	return d.AnnualRevenue != nil && d.IsDecisionMaker != nil
}

// IsEmpty reports whether nothing has been captured.
func (d Data) IsEmpty() bool {
	return d == Data{}
}

// Ptr is a convenience for building Data literals.
func Ptr[T any](v T) *T {
	return &v
}
