package messaging

import (
	"fmt"
	"strings"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const (
	// TransportAuto prefers the gateway and fails over to the direct client.
	TransportAuto = "auto"
	// TransportGateway forces the HTTP gateway.
	TransportGateway = "gateway"
	// TransportDirect forces the whatsmeow connection.
	TransportDirect = "whatsmeow"
	// TransportLog only logs outbound messages.
	TransportLog = "log"
)

// SenderSelection captures what is needed to pick an outbound transport.
type SenderSelection struct {
	Preference string
	Gateway    GatewayConfig
	Direct     *DirectClient
}

// BuildSender instantiates a Sender based on the preferred transport. It
// returns the sender, the transport that was selected, and a reason when
// nothing could be initialized.
func BuildSender(sel SenderSelection, logger *logging.Logger) (Sender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(sel.Preference))
	if preference == "" {
		preference = TransportAuto
	}
	if preference == TransportLog {
		return NewLogSender(logger), TransportLog, ""
	}

	missing := map[string]string{}
	var gateway Sender
	if sel.Gateway.BaseURL != "" && sel.Gateway.Instance != "" {
		gs, err := NewGatewaySender(sel.Gateway, logger)
		if err != nil {
			missing[TransportGateway] = err.Error()
		} else {
			gateway = gs
		}
	} else {
		var reasons []string
		if sel.Gateway.BaseURL == "" {
			reasons = append(reasons, "WHATSAPP_GATEWAY_URL missing")
		}
		if sel.Gateway.Instance == "" {
			reasons = append(reasons, "WHATSAPP_INSTANCE missing")
		}
		missing[TransportGateway] = strings.Join(reasons, ", ")
	}

	var direct Sender
	if sel.Direct != nil {
		direct = sel.Direct
	} else {
		missing[TransportDirect] = "whatsmeow client not started"
	}

	switch preference {
	case TransportGateway:
		if gateway != nil {
			return gateway, TransportGateway, ""
		}
		return nil, "", missing[TransportGateway]
	case TransportDirect:
		if direct != nil {
			return direct, TransportDirect, ""
		}
		return nil, "", missing[TransportDirect]
	case TransportAuto:
	default:
		return nil, "", fmt.Sprintf("unknown whatsapp transport %q", preference)
	}

	switch {
	case gateway != nil && direct != nil:
		return NewFailoverSender(gateway, TransportGateway, direct, TransportDirect, logger), TransportGateway + "+" + TransportDirect, ""
	case gateway != nil:
		return gateway, TransportGateway, ""
	case direct != nil:
		return direct, TransportDirect, ""
	}
	return nil, "", fmt.Sprintf("%s: %s; %s: %s",
		TransportGateway, missing[TransportGateway], TransportDirect, missing[TransportDirect])
}
