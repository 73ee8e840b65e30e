package scheduling

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/sdr-ai-platform/internal/textnorm"
)

var (
	optionOnlyRE = regexp.MustCompile(`^(?:opcao|op|numero|n)?\s*#?\s*(\d{1,2})\s*[.!)]*$`)
	optionRE     = regexp.MustCompile(`\b(?:opcao|numero)\s*#?\s*(\d{1,2})\b`)
	clockRE      = regexp.MustCompile(`\b(\d{1,2})(?:\s*h(?:oras?|rs?)?\s*(\d{2})?|:(\d{2}))\b`)
	atHourRE     = regexp.MustCompile(`\bas\s+(\d{1,2})\b`)
	ordinalRE    = regexp.MustCompile(`\b(primeir|segund|terceir|quart|quint|ultim)[ao]\b(?:[\s-]*feira)?`)
)

var ordinalIndex = map[string]int{
	"primeir": 0,
	"segund":  1,
	"terceir": 2,
	"quart":   3,
	"quint":   4,
	"ultim":   -1,
}

var weekdayWords = []struct {
	word string
	day  time.Weekday
}{
	{"segunda-feira", time.Monday},
	{"segunda feira", time.Monday},
	{"terca", time.Tuesday},
	{"quarta-feira", time.Wednesday},
	{"quarta feira", time.Wednesday},
	{"quinta-feira", time.Thursday},
	{"quinta feira", time.Thursday},
	{"sexta", time.Friday},
	{"sabado", time.Saturday},
	{"domingo", time.Sunday},
	// bare forms last; "a segunda" alone is read as an ordinal first
	{"segunda", time.Monday},
	{"quarta", time.Wednesday},
	{"quinta", time.Thursday},
}

// ParseSlotChoice maps a lead reply to one of the offered start times. It
// understands option numbers ("2", "opção 2"), ordinals ("a segunda"),
// clock times ("10h", "10:00") optionally qualified by a day ("amanhã às
// 10", "sexta 14h") and bare days ("amanhã"). Ambiguous replies resolve to
// the earliest matching slot.
func ParseSlotChoice(text string, offered []time.Time, now time.Time, loc *time.Location) (time.Time, bool) {
	if len(offered) == 0 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	folded := textnorm.Fold(text)
	if folded == "" {
		return time.Time{}, false
	}
	now = now.In(loc)

	// a debounced burst joins messages with newlines; a bare number on the
	// last line ("pode ser\n2") is still an option pick
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for _, candidate := range []string{folded, textnorm.Fold(lines[len(lines)-1])} {
		if m := optionOnlyRE.FindStringSubmatch(candidate); m != nil {
			if idx, err := strconv.Atoi(m[1]); err == nil && idx >= 1 && idx <= len(offered) {
				return offered[idx-1], true
			}
		}
	}
	if m := optionRE.FindStringSubmatch(folded); m != nil {
		if idx, err := strconv.Atoi(m[1]); err == nil && idx >= 1 && idx <= len(offered) {
			return offered[idx-1], true
		}
	}

	dayFilter := dayConstraint(folded, now, loc)

	if hour, minute, ok := clockFrom(folded); ok {
		for _, start := range offered {
			local := start.In(loc)
			if local.Hour() == hour && local.Minute() == minute && dayFilter(local) {
				return start, true
			}
		}
		return time.Time{}, false
	}

	for _, m := range ordinalRE.FindAllStringSubmatch(folded, -1) {
		if strings.HasSuffix(m[0], "feira") {
			continue
		}
		idx := ordinalIndex[m[1]]
		if idx < 0 {
			return offered[len(offered)-1], true
		}
		if idx < len(offered) {
			return offered[idx], true
		}
	}

	if hasDayWord(folded) {
		for _, start := range offered {
			if dayFilter(start.In(loc)) {
				return start, true
			}
		}
	}
	return time.Time{}, false
}

func clockFrom(folded string) (int, int, bool) {
	var hourStr, minuteStr string
	if m := clockRE.FindStringSubmatch(folded); m != nil {
		hourStr = m[1]
		minuteStr = m[2]
		if minuteStr == "" {
			minuteStr = m[3]
		}
	} else if m := atHourRE.FindStringSubmatch(folded); m != nil {
		hourStr = m[1]
	} else {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour > 23 {
		return 0, 0, false
	}
	minute := 0
	if minuteStr != "" {
		minute, err = strconv.Atoi(minuteStr)
		if err != nil || minute > 59 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

func hasDayWord(folded string) bool {
	if strings.Contains(folded, "hoje") || strings.Contains(folded, "amanha") {
		return true
	}
	_, ok := weekdayIn(folded)
	return ok
}

func weekdayIn(folded string) (time.Weekday, bool) {
	for _, w := range weekdayWords {
		if strings.Contains(folded, w.word) {
			return w.day, true
		}
	}
	return 0, false
}

// dayConstraint returns a filter for the day named in the reply, or one that
// accepts every day.
func dayConstraint(folded string, now time.Time, loc *time.Location) func(time.Time) bool {
	sameDay := func(target time.Time) func(time.Time) bool {
		y, m, d := target.Date()
		return func(t time.Time) bool {
			ty, tm, td := t.In(loc).Date()
			return ty == y && tm == m && td == d
		}
	}
	switch {
	case strings.Contains(folded, "depois de amanha"):
		return sameDay(now.AddDate(0, 0, 2))
	case strings.Contains(folded, "amanha"):
		return sameDay(now.AddDate(0, 0, 1))
	case strings.Contains(folded, "hoje"):
		return sameDay(now)
	}
	if day, ok := weekdayIn(folded); ok {
		return func(t time.Time) bool { return t.In(loc).Weekday() == day }
	}
	return func(time.Time) bool { return true }
}
