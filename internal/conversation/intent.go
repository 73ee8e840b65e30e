package conversation

import (
	"strings"

	"github.com/wolfman30/sdr-ai-platform/internal/textnorm"
)

// Intent is what a lead message signals about scheduling.
type Intent int

const (
	IntentNone Intent = iota
	IntentSchedule
	IntentHesitation
)

func (i Intent) String() string {
	switch i {
	case IntentSchedule:
		return "schedule"
	case IntentHesitation:
		return "hesitation"
	default:
		return "none"
	}
}

// Phrases are folded (lowercase, no accents).
var (
	schedulePhrases = []string{
		"agendar", "agenda uma", "marcar uma reuniao", "marcar reuniao", "marcar uma conversa",
		"marcar um horario", "marcar uma call", "quero marcar", "vamos marcar", "podemos marcar",
		"horarios disponiveis", "quais horarios", "qual horario", "tem horario", "tem agenda",
		"quero conversar com", "falar com um especialista", "falar com o especialista",
		"quero uma demonstracao", "ver uma demo", "marcar a reuniao",
	}
	hesitationPhrases = []string{
		"antes disso", "antes de marcar", "antes de agendar", "quanto custa", "qual o preco",
		"qual e o preco", "qual o valor", "qual e o valor", "quanto fica", "quanto sai",
		"preco", "investimento", "mensalidade", "agora nao", "nao agora", "mais pra frente",
		"mais para frente", "fica pra depois", "deixa pra depois", "vou pensar", "preciso pensar",
		"tenho uma duvida", "tirar uma duvida", "tirando duvidas", "tirar duvidas", "como funciona",
		"nao tenho interesse", "sem interesse", "nao quero",
	}
	affirmativeWords = []string{
		"sim", "claro", "pode ser", "bora", "quero", "vamos", "ok", "beleza", "fechado",
		"com certeza", "perfeito", "show", "otimo",
	}
	cancelPhrases = []string{
		"cancelar a reuniao", "cancelar reuniao", "cancela a reuniao", "cancelar o agendamento",
		"cancelar a call", "desmarcar", "nao vou poder comparecer", "nao vou conseguir ir",
		"nao vou conseguir participar",
	}
	reschedulePhrases = []string{
		"remarcar", "reagendar", "mudar o horario", "trocar o horario", "mudar a reuniao",
		"trocar a reuniao",
	}
	moreSlotsPhrases = []string{
		"outros horarios", "outro horario", "outras opcoes", "outra opcao", "nenhum desses",
		"nenhum deles", "nenhuma dessas", "nenhum", "nenhuma", "nao posso nesses", "nao consigo nesses",
	}
)

// ClassifyIntent is a conservative rule classifier: hesitation phrases win
// over scheduling phrases and without either the answer is IntentNone.
func ClassifyIntent(text string) Intent {
	folded := textnorm.Fold(text)
	switch {
	case folded == "":
		return IntentNone
	case textnorm.ContainsAny(folded, hesitationPhrases):
		return IntentHesitation
	case textnorm.ContainsAny(folded, schedulePhrases):
		return IntentSchedule
	default:
		return IntentNone
	}
}

// IsQuestion reports whether text ends with a question mark.
func IsQuestion(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), "?")
}

// wantsToLeaveSchedulingFlow is the re-entry test for QUALIFIED and
// AWAITING_SLOT_CHOICE: explicit hesitation, or a question that does not ask
// for a meeting.
func wantsToLeaveSchedulingFlow(intent Intent, text string) bool {
	return intent == IntentHesitation || (intent == IntentNone && IsQuestion(text))
}

func isAffirmative(text string) bool {
	folded := strings.Trim(textnorm.Fold(text), " .!")
	if folded == "" {
		return false
	}
	for _, w := range affirmativeWords {
		if folded == w || strings.HasPrefix(folded, w+" ") || strings.HasPrefix(folded, w+",") || strings.HasPrefix(folded, w+"!") {
			return true
		}
	}
	return false
}

func isCancelRequest(text string) bool {
	return textnorm.ContainsAny(textnorm.Fold(text), cancelPhrases)
}

func isRescheduleRequest(text string) bool {
	return textnorm.ContainsAny(textnorm.Fold(text), reschedulePhrases)
}

func wantsOtherSlots(text string) bool {
	return textnorm.ContainsAny(textnorm.Fold(text), moreSlotsPhrases)
}
