package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/sdr-ai-platform/internal/llm"
	"github.com/wolfman30/sdr-ai-platform/internal/qualification"
	"github.com/wolfman30/sdr-ai-platform/internal/scheduling"
)

// GenericErrorReply is sent when a turn fails internally. Internal errors are
// never echoed to the lead.
const GenericErrorReply = "Desculpe, tive um problema técnico aqui. Pode repetir, por favor?"

// ReplyKind selects what a reply has to achieve.
type ReplyKind string

const (
	ReplyGreeting         ReplyKind = "greeting"
	ReplyAskQualification ReplyKind = "ask_qualification"
	ReplyQualified        ReplyKind = "qualified"
	ReplyFollowUp         ReplyKind = "follow_up"
	ReplyHesitation       ReplyKind = "hesitation"
	ReplyOfferSlots       ReplyKind = "offer_slots"
	ReplyChooseSlot       ReplyKind = "choose_slot"
	ReplySlotConflict     ReplyKind = "slot_conflict"
	ReplyNoSlots          ReplyKind = "no_slots"
	ReplyCalendarDown     ReplyKind = "calendar_down"
	ReplyBooked           ReplyKind = "booked"
	ReplyBookedCourtesy   ReplyKind = "booked_courtesy"
	ReplyCancelled        ReplyKind = "cancelled"
	ReplyCancelFailed     ReplyKind = "cancel_failed"
	ReplyDisqualified     ReplyKind = "disqualified"
	ReplyClosing          ReplyKind = "closing"
	ReplyHandoff          ReplyKind = "handoff"
	ReplyTechnicalError   ReplyKind = "technical_error"
)

// MissingField names a critical qualification field the lead has not stated.
type MissingField string

const (
	MissingRevenue       MissingField = "annual_revenue"
	MissingDecisionMaker MissingField = "is_decision_maker"
)

// ReplyContext is everything a composer may use for one reply.
type ReplyContext struct {
	Kind ReplyKind
	// FirstName is empty when the lead never gave a name.
	FirstName string
	Company   string
	Missing   []MissingField
	// WantsToSchedule is set when the lead asked for a meeting before the
	// gate could decide.
	WantsToSchedule bool
	ROI             *qualification.ROI
	Slots           []scheduling.CandidateSlot
	Appointment     *scheduling.Appointment
	// AppointmentLabel is the display label of Appointment.Start.
	AppointmentLabel string
	History          []llm.Message
	LastMessage      string
}

// Composer writes the reply text for a turn.
type Composer interface {
	Compose(ctx context.Context, rc ReplyContext) (string, error)
}

// TemplateComposer writes deterministic pt-BR replies.
type TemplateComposer struct{}

func (TemplateComposer) Compose(_ context.Context, rc ReplyContext) (string, error) {
	return renderTemplate(rc), nil
}

func renderTemplate(rc ReplyContext) string {
	switch rc.Kind {
	case ReplyGreeting:
		return greetingFor(rc.FirstName) + " Obrigado pelo contato! Para eu entender como podemos ajudar, me conta um pouco sobre a sua empresa: qual é o segmento e o faturamento anual aproximado?"
	case ReplyAskQualification:
		return askQualification(rc)
	case ReplyQualified:
		return qualifiedReply(rc)
	case ReplyFollowUp:
		return "Entendi! Quando quiser, te mostro os horários disponíveis para uma conversa com nosso especialista."
	case ReplyHesitation:
		return "Boa pergunta! Nosso especialista detalha isso na conversa, mas fique à vontade para perguntar o que precisar por aqui. Quando quiser marcar, é só me avisar."
	case ReplyOfferSlots:
		return "Tenho estes horários disponíveis:\n" + slotList(rc.Slots) + "\nQual fica melhor para você? Pode responder com o número da opção."
	case ReplyChooseSlot:
		return "Não consegui identificar o horário. Qual destas opções fica melhor?\n" + slotList(rc.Slots)
	case ReplySlotConflict:
		if len(rc.Slots) == 0 {
			return "Poxa, esse horário acabou de ser preenchido e não encontrei outros livres nos próximos dias. Vou pedir para alguém do time combinar um horário com você, tudo bem?"
		}
		return "Poxa, esse horário acabou de ser preenchido. Que tal uma destas opções?\n" + slotList(rc.Slots)
	case ReplyNoSlots:
		return "No momento não encontrei horários livres nos próximos dias. Vou pedir para alguém do time entrar em contato para combinar um horário, tudo bem?"
	case ReplyCalendarDown:
		return "Não consegui consultar a agenda agora. Já avisei o time e retomamos o agendamento em seguida."
	case ReplyBooked:
		return bookedReply(rc)
	case ReplyBookedCourtesy:
		if rc.AppointmentLabel == "" {
			return "Sua reunião está confirmada. Se precisar cancelar, é só escrever \"cancelar a reunião\"."
		}
		return fmt.Sprintf("Sua reunião está marcada para %s. Se precisar cancelar, é só escrever \"cancelar a reunião\".", lowerFirst(rc.AppointmentLabel))
	case ReplyCancelled:
		return "Pronto, cancelei a sua reunião. Quer que eu veja outro horário?"
	case ReplyCancelFailed:
		return "Não consegui cancelar agora por um problema na agenda. Pode tentar de novo em alguns minutos?"
	case ReplyDisqualified:
		return "Obrigado por compartilhar! No momento nossa solução atende empresas com um perfil diferente, então não quero tomar o seu tempo com uma reunião agora. Se o cenário mudar, é só me chamar por aqui."
	case ReplyClosing:
		return "Fico à disposição! Se algo mudar, é só me chamar por aqui. Até mais!"
	case ReplyHandoff:
		return "Sua mensagem foi registrada e alguém do nosso time retoma o contato se houver uma oportunidade. Obrigado!"
	default:
		return GenericErrorReply
	}
}

func greetingFor(firstName string) string {
	if firstName == "" {
		return "Olá!"
	}
	return "Olá, " + firstName + "!"
}

func askQualification(rc ReplyContext) string {
	var b strings.Builder
	if rc.WantsToSchedule {
		b.WriteString("Claro, já vamos agendar! Antes, só preciso confirmar ")
		if len(rc.Missing) > 1 {
			b.WriteString("duas coisas. ")
		} else {
			b.WriteString("uma coisa. ")
		}
	}
	revenue, decider := false, false
	for _, m := range rc.Missing {
		switch m {
		case MissingRevenue:
			revenue = true
		case MissingDecisionMaker:
			decider = true
		}
	}
	switch {
	case revenue && decider:
		b.WriteString("Qual é o faturamento anual aproximado da empresa? E você é quem decide sobre esse tipo de investimento?")
	case revenue:
		b.WriteString("Qual é o faturamento anual aproximado da empresa?")
	case decider:
		b.WriteString("Você é a pessoa que decide sobre esse tipo de projeto, ou tem mais alguém envolvido?")
	default:
		b.WriteString("Me conta um pouco mais sobre como funciona o atendimento hoje na sua empresa?")
	}
	return b.String()
}

func qualifiedReply(rc ReplyContext) string {
	var b strings.Builder
	if rc.FirstName != "" {
		b.WriteString("Perfeito, " + rc.FirstName + "! ")
	} else {
		b.WriteString("Perfeito! ")
	}
	b.WriteString("Pelo que você contou, faz muito sentido a gente conversar.")
	if rc.ROI != nil {
		fmt.Fprintf(&b, " Pelas suas contas, são cerca de %d atendimentos e %s horas de equipe por mês que podem ser automatizados.",
			rc.ROI.MonthlyConversations, formatHours(rc.ROI.MonthlyHandlingHours))
	}
	b.WriteString(" Quer agendar uma conversa rápida com nosso especialista?")
	return b.String()
}

func bookedReply(rc ReplyContext) string {
	var b strings.Builder
	if rc.AppointmentLabel != "" {
		fmt.Fprintf(&b, "Reunião confirmada para %s!", lowerFirst(rc.AppointmentLabel))
	} else {
		b.WriteString("Reunião confirmada!")
	}
	if rc.Appointment != nil && rc.Appointment.MeetLink != "" {
		b.WriteString("\nLink da reunião: " + rc.Appointment.MeetLink)
	}
	b.WriteString("\nVou te lembrar um dia antes e uma hora antes.")
	return b.String()
}

func slotList(slots []scheduling.CandidateSlot) string {
	lines := make([]string, 0, len(slots))
	for i, s := range slots {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, s.Display))
	}
	return strings.Join(lines, "\n")
}

func formatHours(h float64) string {
	if h == float64(int64(h)) {
		return fmt.Sprintf("%d", int64(h))
	}
	return strings.Replace(fmt.Sprintf("%.1f", h), ".", ",", 1)
}

// lowerFirst turns a display label such as "Amanhã às 10:00" into
// "amanhã às 10:00" for use mid-sentence. Labels always start with an ASCII
// letter.
func lowerFirst(label string) string {
	if label == "" {
		return label
	}
	return strings.ToLower(label[:1]) + label[1:]
}

const composerSystemPrompt = `Você é um SDR (pré-vendedor) respondendo leads pelo WhatsApp em português do Brasil.
Escreva mensagens curtas (no máximo 3 frases), cordiais e objetivas, sem emojis em excesso.
Nunca invente preços, prazos, horários, links ou informações sobre o produto.
Nunca diga que é uma inteligência artificial.
Você recebe o objetivo da próxima mensagem e uma sugestão de texto; reescreva a sugestão de forma natural para o contexto da conversa, mantendo o objetivo.
Responda apenas com o texto da mensagem.`

const composerHistoryLimit = 12

// LLMComposer lets the language model phrase free-form replies. Slot lists,
// confirmations and closings always come from templates, and any model
// failure falls back to the template text.
type LLMComposer struct {
	client   llm.Client
	model    string
	fallback TemplateComposer
	timeout  time.Duration
}

func NewLLMComposer(client llm.Client, model string) *LLMComposer {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	return &LLMComposer{client: client, model: model, timeout: 15 * time.Second}
}

func (c *LLMComposer) Compose(ctx context.Context, rc ReplyContext) (string, error) {
	template := renderTemplate(rc)
	goal, freeForm := freeFormGoals[rc.Kind]
	if !freeForm {
		return template, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	history := rc.History
	if len(history) > composerHistoryLimit {
		history = history[len(history)-composerHistoryLimit:]
	}
	resp, err := c.client.Complete(ctx, llm.Request{
		Model: c.model,
		System: []string{
			composerSystemPrompt,
			"Objetivo da próxima mensagem: " + goal,
			"Sugestão de texto: " + template,
		},
		Messages:    history,
		MaxTokens:   300,
		Temperature: 0.4,
	})
	if err != nil {
		return template, fmt.Errorf("conversation: compose %s: %w", rc.Kind, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return template, fmt.Errorf("conversation: compose %s: empty model output", rc.Kind)
	}
	return text, nil
}

var freeFormGoals = map[ReplyKind]string{
	ReplyGreeting:         "cumprimentar o lead e perguntar sobre a empresa, o segmento e o faturamento anual.",
	ReplyAskQualification: "obter as informações de qualificação que ainda faltam (faturamento anual e/ou se o lead é o tomador de decisão), uma pergunta de cada vez.",
	ReplyQualified:        "dizer que faz sentido conversar e convidar o lead para agendar uma reunião com o especialista.",
	ReplyFollowUp:         "responder a mensagem do lead e lembrar que podemos agendar uma conversa quando ele quiser.",
	ReplyHesitation:       "responder a dúvida do lead sem pressionar e deixar claro que o agendamento fica para quando ele quiser.",
}
