package messaging

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/sdr-ai-platform/internal/debounce"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

var webhookTracer = otel.Tracer("sdr.internal.messaging.webhook")

const maxWebhookBody = 1 << 20

// gatewayWebhook is the messages.upsert payload posted by the gateway.
type gatewayWebhook struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     struct {
		Key struct {
			RemoteJID string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
		} `json:"key"`
		PushName string `json:"pushName"`
		Message  struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
			ImageMessage struct {
				Caption string `json:"caption"`
			} `json:"imageMessage"`
		} `json:"message"`
	} `json:"data"`
}

// ParseWebhook decodes either a gateway messages.upsert payload or a plain
// InboundEvent. ok is false for gateway events that carry no message.
func ParseWebhook(body []byte) (InboundEvent, bool, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return InboundEvent{}, false, err
	}
	if _, plain := probe["sender_id"]; plain {
		var evt InboundEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			return InboundEvent{}, false, err
		}
		return evt, true, nil
	}

	var hook gatewayWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return InboundEvent{}, false, err
	}
	event := strings.ToLower(strings.ReplaceAll(hook.Event, "_", "."))
	if event != "" && event != "messages.upsert" {
		return InboundEvent{}, false, nil
	}
	jid := hook.Data.Key.RemoteJID
	if jid == "" || strings.HasSuffix(jid, "@g.us") || strings.HasSuffix(jid, "@broadcast") {
		// groups and status updates are not leads
		return InboundEvent{}, false, nil
	}
	msg := hook.Data.Message
	text := msg.Conversation
	if text == "" {
		text = msg.ExtendedTextMessage.Text
	}
	if text == "" {
		text = msg.ImageMessage.Caption
	}
	return InboundEvent{
		SenderID:    jid,
		DisplayName: hook.Data.PushName,
		Text:        text,
		MessageID:   hook.Data.Key.ID,
		IsOutgoing:  hook.Data.Key.FromMe,
	}, true, nil
}

// Handler serves the inbound WhatsApp webhook.
type Handler struct {
	intake *Intake
	logger *logging.Logger
}

func NewHandler(intake *Intake, logger *logging.Logger) *Handler {
	if intake == nil {
		panic("messaging: intake cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{intake: intake, logger: logger}
}

type webhookResponse struct {
	Status string `json:"status"`
}

// WhatsAppWebhook handles POST /webhooks/whatsapp.
func (h *Handler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read whatsapp webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	evt, ok, err := ParseWebhook(body)
	if err != nil {
		h.logger.Warn("invalid whatsapp webhook payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, webhookResponse{Status: "ignored"})
		return
	}
	span.SetAttributes(
		attribute.String("sdr.message_id", evt.MessageID),
		attribute.Bool("sdr.outgoing", evt.IsOutgoing),
	)

	status, err := h.intake.Accept(ctx, evt)
	if err != nil {
		h.logger.Error("failed to accept inbound message", "message_id", evt.MessageID, "error", err)
		span.RecordError(err)
		code := http.StatusInternalServerError
		if errors.Is(err, debounce.ErrClosed) {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, webhookResponse{Status: string(status)})
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Status: string(status)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
