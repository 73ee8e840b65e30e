package qualification

import "math"

const workingDaysPerMonth = 22

// ROI is a rough monthly picture of the load an automated agent would take
// over.
type ROI struct {
	MonthlyConversations int
	MonthlyHandlingHours float64
	// StaffHoursPerPerson is zero when the staff count is unknown.
	StaffHoursPerPerson float64
	// MonthlyRevenueHandled is zero when the average ticket is unknown.
	MonthlyRevenueHandled float64
}

// EstimateROI needs daily volume and handling minutes; other inputs refine
// the estimate when present.
func EstimateROI(d Data) (ROI, bool) {
	if d.DailyVolume == nil || d.HandlingMinutes == nil || *d.DailyVolume <= 0 || *d.HandlingMinutes <= 0 {
		return ROI{}, false
	}
	monthly := *d.DailyVolume * workingDaysPerMonth
	roi := ROI{
		MonthlyConversations: monthly,
		MonthlyHandlingHours: round1(float64(monthly) * *d.HandlingMinutes / 60),
	}
	if d.StaffCount != nil && *d.StaffCount > 0 {
		roi.StaffHoursPerPerson = round1(roi.MonthlyHandlingHours / float64(*d.StaffCount))
	}
	if d.AverageTicket != nil && *d.AverageTicket > 0 {
		roi.MonthlyRevenueHandled = math.Round(float64(monthly) * *d.AverageTicket)
	}
	return roi, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
