// Package main drives a running SDR agent through WhatsApp conversations
// posted to its webhook and checks the outcome through /metrics.
//
// Scenarios cover:
//   - Qualified lead reaching a slot offer and booking
//   - Disqualified lead closed without a meeting
//   - Burst of messages coalesced into one turn
//   - Duplicate message ids ignored
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go [scenario-name]
//
// Run the agent with a short DEBOUNCE_DELAY and LLM_PROVIDER=none so the
// keyword rules make the outcome deterministic.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	maxWait      = 30 * time.Second
	pollInterval = 500 * time.Millisecond
)

var apiBase string

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// newPhone returns a fresh Brazilian mobile number so scenarios never share
// conversation state.
func newPhone() string {
	return fmt.Sprintf("+55119%08d", rand.Intn(100000000))
}

func sendWhatsApp(phone, text, messageID string) (int, error) {
	if messageID == "" {
		messageID = fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	}
	body, _ := json.Marshal(map[string]string{
		"sender_id":    phone,
		"display_name": "E2E Lead",
		"text":         text,
		"message_id":   messageID,
	})
	resp, err := http.Post(apiBase+"/webhooks/whatsapp", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func scrapeMetrics() (map[string]*dto.MetricFamily, error) {
	resp, err := http.Get(apiBase + "/metrics")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics returned %d", resp.StatusCode)
	}
	var parser expfmt.TextParser
	return parser.TextToMetricFamilies(resp.Body)
}

// counter sums a counter family, restricted to series whose labels match.
func counter(families map[string]*dto.MetricFamily, name string, labels map[string]string) float64 {
	family, ok := families[name]
	if !ok {
		return 0
	}
	var total float64
	for _, m := range family.GetMetric() {
		if !labelsMatch(m.GetLabel(), labels) {
			continue
		}
		total += m.GetCounter().GetValue()
	}
	return total
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, p := range pairs {
			if p.GetName() == k && p.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func readCounter(name string, labels map[string]string) float64 {
	families, err := scrapeMetrics()
	if err != nil {
		return 0
	}
	return counter(families, name, labels)
}

// waitForIncrease polls until the counter grows past base by at least delta.
func waitForIncrease(name string, labels map[string]string, base, delta float64) bool {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		if readCounter(name, labels)-base >= delta {
			return true
		}
		time.Sleep(pollInterval)
	}
	return false
}

func transition(from, to string) map[string]string {
	return map[string]string{"from": from, "to": to}
}

func setup() error {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if apiBase == "" {
		apiBase = "http://localhost:8080"
	}
	resp, err := http.Get(apiBase + "/health")
	if err != nil {
		return fmt.Errorf("agent not reachable at %s: %w", apiBase, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent health returned %d", resp.StatusCode)
	}
	return nil
}

func scenarioQualifiedBooking(t *T) {
	phone := newPhone()
	offered := readCounter("sdr_conversation_stage_transitions_total", transition("QUALIFIED", "AWAITING_SLOT_CHOICE"))
	booked := readCounter("sdr_scheduling_booking_total", map[string]string{"outcome": "booked"})

	code, err := sendWhatsApp(phone, "Oi, vi o anúncio de vocês", "")
	if err != nil {
		t.fatalf("send: %v", err)
		return
	}
	t.check("webhook accepts first message", code == http.StatusOK)
	time.Sleep(2 * time.Second)

	_, _ = sendWhatsApp(phone, "Sou o dono da empresa, faturamos 2 milhões por ano e precisamos resolver isso esse mês", "")
	time.Sleep(2 * time.Second)
	_, _ = sendWhatsApp(phone, "quero sim, podemos marcar uma conversa", "")

	t.check("slots offered after qualification",
		waitForIncrease("sdr_conversation_stage_transitions_total", transition("QUALIFIED", "AWAITING_SLOT_CHOICE"), offered, 1))

	_, _ = sendWhatsApp(phone, "1", "")
	t.check("meeting booked from the first slot",
		waitForIncrease("sdr_scheduling_booking_total", map[string]string{"outcome": "booked"}, booked, 1))
}

func scenarioDisqualified(t *T) {
	phone := newPhone()
	lost := readCounter("sdr_conversation_stage_transitions_total", map[string]string{"to": "LOST"})
	rejected := readCounter("sdr_qualification_gate_decisions_total", map[string]string{"result": "rejected"})

	_, _ = sendWhatsApp(phone, "Olá", "")
	time.Sleep(2 * time.Second)
	_, _ = sendWhatsApp(phone, "sou estagiário, a empresa fatura uns 100 mil por ano", "")

	t.check("gate rejects the lead",
		waitForIncrease("sdr_qualification_gate_decisions_total", map[string]string{"result": "rejected"}, rejected, 1))
	t.check("conversation moves to LOST",
		waitForIncrease("sdr_conversation_stage_transitions_total", map[string]string{"to": "LOST"}, lost, 1))
}

func scenarioBurstCoalesced(t *T) {
	phone := newPhone()
	flushes := readCounter("sdr_debounce_flush_total", nil)

	for _, text := range []string{"oi", "tudo bem?", "queria entender como funciona"} {
		if _, err := sendWhatsApp(phone, text, ""); err != nil {
			t.fatalf("send: %v", err)
			return
		}
	}
	t.check("burst flushed", waitForIncrease("sdr_debounce_flush_total", nil, flushes, 1))
	time.Sleep(3 * time.Second)
	t.check("burst produced a single turn", readCounter("sdr_debounce_flush_total", nil)-flushes == 1)
}

func scenarioDuplicateIgnored(t *T) {
	phone := newPhone()
	duplicates := readCounter("sdr_messaging_inbound_total", map[string]string{"status": "duplicate"})
	id := fmt.Sprintf("e2e-dup-%d", time.Now().UnixNano())

	_, _ = sendWhatsApp(phone, "oi", id)
	code, err := sendWhatsApp(phone, "oi", id)
	if err != nil {
		t.fatalf("send: %v", err)
		return
	}
	t.check("redelivery acknowledged", code == http.StatusOK)
	t.check("redelivery counted as duplicate",
		waitForIncrease("sdr_messaging_inbound_total", map[string]string{"status": "duplicate"}, duplicates, 1))
}

func main() {
	if err := setup(); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}

	scenarios := []scenario{
		{Name: "qualified-booking", Fn: scenarioQualifiedBooking},
		{Name: "disqualified", Fn: scenarioDisqualified},
		{Name: "burst", Fn: scenarioBurstCoalesced},
		{Name: "duplicate", Fn: scenarioDuplicateIgnored},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	var passed, failed int
	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}
		fmt.Printf("\n=== %s ===\n", s.Name)
		t := &T{name: s.Name}
		s.Fn(t)
		passed += t.passed
		failed += t.failed
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
