package qualification

import (
	"fmt"
	"strings"
)

// DefaultMinAnnualRevenue is the admission floor in BRL per year.
const DefaultMinAnnualRevenue int64 = 600000

// Score rates a lead 0..100 from revenue (50), decision power (30) and
// urgency (20). It never gates anything on its own.
func Score(d Data) int {
	score := revenuePoints(d.AnnualRevenue) + decisionPoints(d.IsDecisionMaker) + urgencyPoints(d.Urgency)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func revenuePoints(revenue *int64) int {
	if revenue == nil {
		return 0
	}
	switch r := *revenue; {
	case r >= 5_000_000:
		return 50
	case r >= 2_000_000:
		return 45
	case r >= 1_000_000:
		return 40
	case r >= 600_000:
		return 35
	default:
		return 10
	}
}

func decisionPoints(isDecisionMaker *bool) int {
	switch {
	case isDecisionMaker == nil:
		return 0
	case *isDecisionMaker:
		return 30
	default:
		return 5
	}
}

func urgencyPoints(u *Urgency) int {
	if u == nil {
		return 0
	}
	switch *u {
	case UrgencyImmediate:
		return 20
	case UrgencyOneToThree:
		return 15
	case UrgencyThreeToSix:
		return 10
	case UrgencyNone:
		return 3
	}
	return 0
}

// Decision is the gate outcome. Reason lists every failing criterion.
type Decision struct {
	Qualified bool
	Reason    string
	Score     int
}

// Gate admits leads with enough revenue whose contact can decide. It is a
// hard AND; a high score does not compensate for a missing criterion.
type Gate struct {
	MinAnnualRevenue int64
}

func NewGate(minAnnualRevenue int64) Gate {
	if minAnnualRevenue <= 0 {
		minAnnualRevenue = DefaultMinAnnualRevenue
	}
	return Gate{MinAnnualRevenue: minAnnualRevenue}
}

func (g Gate) IsQualified(d Data) Decision {
	var failures []string
	switch {
	case d.AnnualRevenue == nil:
		failures = append(failures, "faturamento anual não informado")
	case *d.AnnualRevenue < g.MinAnnualRevenue:
		failures = append(failures, fmt.Sprintf("faturamento anual (%d) abaixo do mínimo (%d)", *d.AnnualRevenue, g.MinAnnualRevenue))
	}
	switch {
	case d.IsDecisionMaker == nil:
		failures = append(failures, "decisor não identificado")
	case !*d.IsDecisionMaker:
		failures = append(failures, "contato não é o tomador de decisão")
	}

	decision := Decision{Score: Score(d)}
	if len(failures) > 0 {
		decision.Reason = strings.Join(failures, "; ")
		return decision
	}
	decision.Qualified = true
	decision.Reason = "lead qualificado"
	return decision
}

// Temperature buckets a score for the sales team.
type Temperature string

const (
	TemperatureHot  Temperature = "HOT"
	TemperatureWarm Temperature = "WARM"
	TemperatureCold Temperature = "COLD"
)

func TemperatureFor(score int) Temperature {
	switch {
	case score >= 80:
		return TemperatureHot
	case score >= 50:
		return TemperatureWarm
	default:
		return TemperatureCold
	}
}

// ParseTemperature converts a stored value, defaulting unknown input to COLD.
func ParseTemperature(s string) Temperature {
	switch t := Temperature(strings.ToUpper(strings.TrimSpace(s))); t {
	case TemperatureHot, TemperatureWarm:
		return t
	}
	return TemperatureCold
}
