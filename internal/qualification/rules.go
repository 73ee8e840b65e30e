package qualification

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/sdr-ai-platform/internal/textnorm"
)

// ---------- package-level compiled regexes (folded text) ----------

var (
	amountRE       = regexp.MustCompile(`(r\$\s*)?(\d+(?:[.,]\d+)*)\s*(milhoes|milhao|mi|mm|mil|k)?\b`)
	revenueCueRE   = regexp.MustCompile(`fatur|receita|vend[eo]|vendas|ganh|r\$|por ano|ao ano|anual|por mes|ao mes|mensal`)
	monthlyCueRE   = regexp.MustCompile(`por mes|ao mes|mensal|/mes|mensais`)
	yearlyCueRE    = regexp.MustCompile(`por ano|ao ano|no ano|anual|anuais|/ano`)
	emailRE        = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	nameRE         = regexp.MustCompile(`(?i:meu nome [eé]|me chamo|aqui [eé] (?:o|a))\s+(\p{Lu}\p{L}*(?:\s+\p{Lu}\p{L}*)?)`)
	companyRE      = regexp.MustCompile(`(?i:minha empresa (?:[eé]|se chama)|empresa chamada|trabalho na)\s+(\p{Lu}[\p{L}0-9&\-]*(?:\s+\p{Lu}[\p{L}0-9&\-]*){0,2})`)
	dailyVolumeRE  = regexp.MustCompile(`(\d+)\s*(?:atendimentos|mensagens|ligacoes|leads|clientes|conversas|pedidos)\s*(?:por dia|ao dia|diarios|diarias|/dia)`)
	handlingRE     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:minutos|min)\b`)
	staffRE        = regexp.MustCompile(`(\d+)\s*(?:funcionarios|atendentes|vendedores|colaboradores|pessoas no atendimento)`)
	ticketRE       = regexp.MustCompile(`ticket medio\D{0,12}(\d+(?:[.,]\d+)*)`)
	ownRoleRE      = regexp.MustCompile(`\bsou (?:o |a |um |uma )?(dono|dona|proprietario|proprietaria|socio|socia|fundador|fundadora|co-fundador|cofundador|ceo|cfo|coo|cto|diretor|diretora|presidente|gerente|gestor|gestora|coordenador|coordenadora|analista|assistente|estagiario|estagiaria|funcionario|funcionaria|vendedor|vendedora)\b`)
	notDeciderRE   = regexp.MustCompile(`nao sou (?:eu )?(?:quem|que) decid|nao decido|preciso (?:falar|consultar|ver|alinhar) com (?:o |a |meu |minha )?(?:chefe|socio|socia|diretor|diretora|gestor|gestora|dono|dona|patrao)|quem decide (?:e|eh) (?:o |a |meu |minha )|nao sou (?:o )?dono|decisao (?:e|eh) d[oa] (?:meu|minha|chefe|diretor|diretora|dono|dona)`)
	deciderRE      = regexp.MustCompile(`eu (?:que |quem )?decido|quem decide sou eu|a decisao e minha|eu tomo a decisao|sou (?:o |a )?(?:responsavel|decisor|decisora)`)
	urgencyNoneRE  = regexp.MustCompile(`sem pressa|sem urgencia|nao tenho pressa|nao ha pressa|so pesquisando|apenas pesquisando|so olhando|so conhecendo|sem previsao`)
	urgency36RE    = regexp.MustCompile(`3 a 6 meses|tres a seis meses|(?:em|uns|daqui a) (?:4|5|6|quatro|cinco|seis) meses|proximo semestre|segundo semestre|fim do ano|final do ano`)
	urgency13RE    = regexp.MustCompile(`1 a 3 meses|um a tres meses|proximo mes|mes que vem|(?:em|uns|daqui a) (?:1|2|3|um|dois|tres) mes(?:es)?|proximos (?:2|3|dois|tres) meses`)
	urgencyNowRE   = regexp.MustCompile(`urgente|urgencia|pra ontem|para ontem|imediat|o quanto antes|o mais rapido|esta semana|essa semana|este mes|esse mes|ja ontem`)
)

// deciderRoles are job titles that carry buying authority on their own.
var deciderRoles = map[string]bool{
	"dono": true, "dona": true, "proprietario": true, "proprietaria": true,
	"socio": true, "socia": true, "fundador": true, "fundadora": true,
	"co-fundador": true, "cofundador": true,
	"ceo": true, "cfo": true, "coo": true, "cto": true,
	"diretor": true, "diretora": true, "presidente": true,
}

// nonDeciderRoles are titles that need someone else to sign off.
var nonDeciderRoles = map[string]bool{
	"analista": true, "assistente": true, "estagiario": true, "estagiaria": true,
	"funcionario": true, "funcionaria": true, "vendedor": true, "vendedora": true,
}

// RuleExtractor is the keyword fallback used when the language model fails.
// It only reads what the lead wrote and never guesses.
type RuleExtractor struct{}

// ExtractMessages applies the rules to each lead message in order so later
// statements win.
func (RuleExtractor) ExtractMessages(messages []string) Data {
	var out Data
	for _, msg := range messages {
		out.Merge(RuleExtractor{}.Extract(msg))
	}
	return out
}

// Extract reads a single message.
func (RuleExtractor) Extract(text string) Data {
	var d Data
	folded := textnorm.Fold(text)
	if folded == "" {
		return d
	}

	if revenue, ok := parseRevenue(folded); ok {
		d.AnnualRevenue = &revenue
	}

	role := ""
	if m := ownRoleRE.FindStringSubmatchIndex(folded); m != nil && !strings.HasSuffix(folded[:m[0]], "nao ") {
		role = folded[m[2]:m[3]]
		d.Role = Ptr(role)
	}
	switch {
	case notDeciderRE.MatchString(folded):
		d.IsDecisionMaker = Ptr(false)
	case deciderRE.MatchString(folded), deciderRoles[role]:
		d.IsDecisionMaker = Ptr(true)
	case nonDeciderRoles[role]:
		d.IsDecisionMaker = Ptr(false)
	}

	switch {
	case urgencyNoneRE.MatchString(folded):
		d.Urgency = Ptr(UrgencyNone)
	case urgency36RE.MatchString(folded):
		d.Urgency = Ptr(UrgencyThreeToSix)
	case urgency13RE.MatchString(folded):
		d.Urgency = Ptr(UrgencyOneToThree)
	case urgencyNowRE.MatchString(folded):
		d.Urgency = Ptr(UrgencyImmediate)
	}

	if m := emailRE.FindString(text); m != "" {
		d.Email = Ptr(strings.ToLower(m))
	}
	if m := nameRE.FindStringSubmatch(text); m != nil {
		d.Name = Ptr(strings.TrimSpace(m[1]))
	}
	if m := companyRE.FindStringSubmatch(text); m != nil {
		d.Company = Ptr(strings.TrimSpace(m[1]))
	}

	if m := dailyVolumeRE.FindStringSubmatch(folded); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.DailyVolume = &n
		}
	}
	if m := handlingRE.FindStringSubmatch(folded); m != nil {
		if v, ok := parseBRNumber(m[1], true); ok {
			d.HandlingMinutes = &v
		}
	}
	if m := staffRE.FindStringSubmatch(folded); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.StaffCount = &n
		}
	}
	if m := ticketRE.FindStringSubmatch(folded); m != nil {
		if v, ok := parseBRNumber(m[1], false); ok {
			d.AverageTicket = &v
		}
	}
	return d
}

// parseRevenue finds the first amount that carries a magnitude word or a
// currency sign in a message that talks about revenue. Ticket amounts are
// not revenue. An amount is monthly when a monthly cue follows it before the
// next amount, or precedes it with no yearly cue after it, and is then
// annualized.
func parseRevenue(folded string) (int64, bool) {
	folded = ticketRE.ReplaceAllString(folded, " ")
	if !revenueCueRE.MatchString(folded) {
		return 0, false
	}
	matches := amountRE.FindAllStringSubmatchIndex(folded, -1)
	for i, m := range matches {
		currency := submatch(folded, m, 1)
		digits := submatch(folded, m, 2)
		unit := submatch(folded, m, 3)
		if currency == "" && unit == "" {
			continue
		}
		value, ok := parseBRNumber(digits, unit != "")
		if !ok {
			continue
		}
		switch unit {
		case "milhoes", "milhao", "mi", "mm":
			value *= 1_000_000
		case "mil", "k":
			value *= 1_000
		}

		before, after := folded[:m[0]], folded[m[1]:]
		if i > 0 {
			before = folded[matches[i-1][1]:m[0]]
		}
		if i+1 < len(matches) {
			after = folded[m[1]:matches[i+1][0]]
		}
		if monthlyCueRE.MatchString(after) || (monthlyCueRE.MatchString(before) && !yearlyCueRE.MatchString(after)) {
			value *= 12
		}
		if rev, ok := annualRevenue(value); ok {
			return rev, true
		}
	}
	return 0, false
}

func submatch(s string, loc []int, group int) string {
	if loc[2*group] < 0 {
		return ""
	}
	return s[loc[2*group]:loc[2*group+1]]
}

// parseBRNumber reads "1,5", "600.000", "2.000.000,00". With a magnitude
// word a lone dot followed by one or two digits is a decimal point ("1.5 mi").
func parseBRNumber(s string, hasUnit bool) (float64, bool) {
	switch commas := strings.Count(s, ","); {
	case commas == 1:
		parts := strings.SplitN(s, ",", 2)
		s = strings.ReplaceAll(parts[0], ".", "") + "." + parts[1]
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case hasUnit && strings.Count(s, ".") == 1 && len(s)-strings.Index(s, ".")-1 <= 2:
		// already a decimal point
	default:
		s = strings.ReplaceAll(s, ".", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
