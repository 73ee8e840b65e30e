package messaging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

// DirectConfig configures the direct WhatsApp Web connection.
type DirectConfig struct {
	StorePath string
	LogLevel  string
}

// DirectClient talks to WhatsApp directly through whatsmeow. It is both a
// Sender and an inbound event source.
type DirectClient struct {
	client *whatsmeow.Client
	logger *logging.Logger
	intake *Intake
}

// NewDirectClient opens the device store (SQLite) and prepares the client.
// Call Start to connect.
func NewDirectClient(ctx context.Context, cfg DirectConfig, logger *logging.Logger) (*DirectClient, error) {
	if cfg.StorePath == "" {
		return nil, fmt.Errorf("messaging: whatsmeow store path required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if dir := filepath.Dir(cfg.StorePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("messaging: ensure store dir: %w", err)
		}
	}
	level := cfg.LogLevel
	if level == "" {
		level = "WARN"
	}

	container, err := sqlstore.New(ctx, "sqlite",
		fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath),
		waLog.Stdout("whatsmeow/sqlstore", level, true))
	if err != nil {
		return nil, fmt.Errorf("messaging: open whatsmeow store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging: load whatsmeow device: %w", err)
	}

	dc := &DirectClient{
		client: whatsmeow.NewClient(device, waLog.Stdout("whatsmeow/client", level, true)),
		logger: logger.With("component", "whatsmeow"),
	}
	dc.client.AddEventHandler(dc.handleEvent)
	return dc, nil
}

// SetIntake routes inbound messages to intake. Must be called before Start.
func (c *DirectClient) SetIntake(intake *Intake) {
	c.intake = intake
}

// Start connects, logging the pairing QR code when the device is new.
func (c *DirectClient) Start(ctx context.Context) error {
	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("messaging: get qr channel: %w", err)
		}
		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					c.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					c.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}
	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("messaging: connect whatsmeow: %w", err)
	}
	c.logger.Info("whatsapp client connected")
	return nil
}

// Close disconnects the client.
func (c *DirectClient) Close() {
	c.client.Disconnect()
}

func (c *DirectClient) SendText(ctx context.Context, to, text string) bool {
	user := strings.TrimPrefix(strings.TrimSpace(to), "+")
	if user == "" {
		return false
	}
	msg := &waProto.Message{Conversation: proto.String(text)}
	if _, err := c.client.SendMessage(ctx, types.NewJID(user, types.DefaultUserServer), msg); err != nil {
		c.logger.Error("whatsmeow send failed", "to", to, "error", err)
		return false
	}
	return true
}

func (c *DirectClient) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		inbound, ok := eventFromMessage(v)
		if !ok || c.intake == nil {
			return
		}
		status, err := c.intake.Accept(context.Background(), inbound)
		if err != nil {
			c.logger.Error("failed to accept inbound message", "message_id", inbound.MessageID, "error", err)
			return
		}
		c.logger.Debug("inbound message", "message_id", inbound.MessageID, "status", status)
	case *events.Connected:
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	}
}

// eventFromMessage converts a whatsmeow message. Group chats and messages
// without text are skipped.
func eventFromMessage(evt *events.Message) (InboundEvent, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsGroup {
		return InboundEvent{}, false
	}
	msg := evt.Message
	text := msg.GetConversation()
	if text == "" {
		text = msg.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		text = msg.GetImageMessage().GetCaption()
	}
	if text == "" {
		return InboundEvent{}, false
	}
	return InboundEvent{
		SenderID:    evt.Info.Sender.ToNonAD().String(),
		DisplayName: evt.Info.PushName,
		Text:        text,
		MessageID:   string(evt.Info.ID),
		IsOutgoing:  evt.Info.IsFromMe,
	}, true
}
