package qualification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/wolfman30/sdr-ai-platform/internal/llm"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

// Source tells where extracted data came from.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Hints is extra context for the extractor that the lead did not type.
type Hints struct {
	WebsiteSummary string
}

const extractionSystemPrompt = `Você extrai dados de qualificação de uma conversa de WhatsApp entre um SDR e um lead.
Responda SOMENTE com um objeto JSON com estas chaves:
"annual_revenue" (número, faturamento anual em reais),
"is_decision_maker" (true/false),
"urgency" ("immediate", "1-3mo", "3-6mo" ou "none"),
"sector", "role", "name", "company", "email" (texto),
"daily_volume" (inteiro, atendimentos por dia),
"handling_minutes" (número, minutos por atendimento),
"average_ticket" (número, ticket médio em reais),
"staff_count" (inteiro).
Use null para tudo que o lead NÃO disse de forma explícita e inequívoca. Nunca deduza.
Faturamento mensal deve ser convertido para anual (x12).`

// ExtractionObserver counts extractions per source.
type ExtractionObserver interface {
	ObserveExtraction(source string)
}

// Extractor asks the language model for qualification data and falls back
// to keyword rules when the model errors or answers garbage.
type Extractor struct {
	client   llm.Client
	model    string
	rules    RuleExtractor
	logger   *logging.Logger
	observer ExtractionObserver
}

type ExtractorOption func(*Extractor)

func WithExtractionModel(model string) ExtractorOption {
	return func(e *Extractor) { e.model = model }
}

func WithExtractionObserver(observer ExtractionObserver) ExtractorOption {
	return func(e *Extractor) { e.observer = observer }
}

// NewExtractor builds an extractor. A nil client makes it rules-only.
func NewExtractor(client llm.Client, logger *logging.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Extractor{client: client, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the conversation and returns what the lead stated. The
// error is non-nil only when ctx is done.
func (e *Extractor) Extract(ctx context.Context, history []llm.Message, hints Hints) (Data, Source, error) {
	if err := ctx.Err(); err != nil {
		return Data{}, "", err
	}

	if e.client != nil {
		data, err := e.extractWithLLM(ctx, history, hints)
		if err == nil {
			e.observe(SourceLLM)
			return data, SourceLLM, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Data{}, "", ctxErr
		}
		e.logger.Warn("llm extraction failed; using keyword rules", "error", err)
	}

	data := e.rules.ExtractMessages(leadMessages(history))
	e.observe(SourceFallback)
	return data, SourceFallback, nil
}

func (e *Extractor) observe(source Source) {
	if e.observer != nil {
		e.observer.ObserveExtraction(string(source))
	}
}

func (e *Extractor) extractWithLLM(ctx context.Context, history []llm.Message, hints Hints) (Data, error) {
	system := []string{extractionSystemPrompt}
	if summary := strings.TrimSpace(hints.WebsiteSummary); summary != "" {
		system = append(system, "Contexto do site do lead (não é fala do lead, use só para o setor): "+summary)
	}
	resp, err := e.client.Complete(ctx, llm.Request{
		Model:       e.model,
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: transcript(history)}},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		return Data{}, err
	}
	return parseExtraction(resp.Text)
}

// transcript renders the dialogue as plain labelled lines so the model sees
// who said what.
func transcript(history []llm.Message) string {
	var b strings.Builder
	for _, msg := range history {
		label := "Lead"
		switch msg.Role {
		case llm.RoleAssistant:
			label = "SDR"
		case llm.RoleSystem:
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", label, strings.TrimSpace(msg.Content))
	}
	return b.String()
}

func leadMessages(history []llm.Message) []string {
	var out []string
	for _, msg := range history {
		if msg.Role == llm.RoleUser {
			out = append(out, msg.Content)
		}
	}
	return out
}

type extractionPayload struct {
	AnnualRevenue   *json.Number `json:"annual_revenue"`
	IsDecisionMaker *bool        `json:"is_decision_maker"`
	Urgency         *string      `json:"urgency"`
	Sector          *string      `json:"sector"`
	Role            *string      `json:"role"`
	Name            *string      `json:"name"`
	Company         *string      `json:"company"`
	Email           *string      `json:"email"`
	DailyVolume     *json.Number `json:"daily_volume"`
	HandlingMinutes *json.Number `json:"handling_minutes"`
	AverageTicket   *json.Number `json:"average_ticket"`
	StaffCount      *json.Number `json:"staff_count"`
}

var errNoJSONObject = errors.New("qualification: model output has no JSON object")

// parseExtraction accepts raw JSON or JSON wrapped in prose or code fences.
// Invalid individual values are dropped rather than failing the whole
// payload.
func parseExtraction(raw string) (Data, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Data{}, errNoJSONObject
	}
	var payload extractionPayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return Data{}, fmt.Errorf("qualification: decode extraction: %w", err)
	}

	var d Data
	if v, ok := positiveNumber(payload.AnnualRevenue); ok {
		if rev, ok := annualRevenue(v); ok {
			d.AnnualRevenue = &rev
		}
	}
	d.IsDecisionMaker = payload.IsDecisionMaker
	if payload.Urgency != nil {
		if u, err := ParseUrgency(strings.TrimSpace(*payload.Urgency)); err == nil {
			d.Urgency = &u
		}
	}
	d.Sector = cleanString(payload.Sector)
	d.Role = cleanString(payload.Role)
	d.Name = cleanString(payload.Name)
	d.Company = cleanString(payload.Company)
	if email := cleanString(payload.Email); email != nil && emailRE.MatchString(*email) {
		d.Email = Ptr(strings.ToLower(*email))
	}
	if v, ok := positiveNumber(payload.DailyVolume); ok && v <= maxCount {
		d.DailyVolume = Ptr(int(math.Round(v)))
	}
	if v, ok := positiveNumber(payload.HandlingMinutes); ok && v < 24*60 {
		d.HandlingMinutes = &v
	}
	if v, ok := positiveNumber(payload.AverageTicket); ok {
		d.AverageTicket = &v
	}
	if v, ok := positiveNumber(payload.StaffCount); ok && v <= maxCount {
		d.StaffCount = Ptr(int(math.Round(v)))
	}
	return d, nil
}

// maxCount bounds volumes and headcounts before they are converted to int.
const maxCount = 1_000_000

func positiveNumber(n *json.Number) (float64, bool) {
	if n == nil {
		return 0, false
	}
	v, err := n.Float64()
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func cleanString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
