package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// bridgeChannels are the signal-bus channels the bridge forwards to the
// notifier. They match what the services publish.
var bridgeChannels = []string{"sales", "purchases", "transfers"}

// Bridge subscribes to the signal bus and forwards settlement events to the
// notifier, so operators hear about new sales, settled purchases, and denied
// transfers without watching the logs.
type Bridge struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewBridge creates a Bridge between the given bus and notifier.
func NewBridge(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_bridge")),
	}
}

// Run subscribes to the event channels and forwards messages until the
// context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for _, ch := range bridgeChannels {
		msgCh, err := b.bus.Subscribe(ctx, ch)
		if err != nil {
			return fmt.Errorf("notify: subscribe %s: %w", ch, err)
		}
		go b.forward(ctx, ch, msgCh)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (b *Bridge) forward(ctx context.Context, channel string, msgCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				return
			}
			b.handle(ctx, channel, data)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, channel string, data []byte) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		b.logger.WarnContext(ctx, "unparseable event payload",
			slog.String("channel", channel),
		)
		return
	}

	event, _ := payload["event"].(string)
	if event == "" {
		return
	}

	title, message := renderEvent(event, payload)
	if title == "" {
		return
	}

	if err := b.notifier.Notify(ctx, event, title, message); err != nil {
		b.logger.WarnContext(ctx, "notification delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// renderEvent converts a bus payload into a human-readable notification.
// Unknown events render an empty title and are skipped.
func renderEvent(event string, p map[string]any) (title, message string) {
	switch event {
	case "sale_created":
		return "Sale created",
			fmt.Sprintf("asset %v opened by %v", p["asset"], p["creator"])
	case "purchase_settled":
		return "Purchase settled",
			fmt.Sprintf("asset %v, buyer %v, amount %v", p["asset"], p["buyer"], p["amount"])
	case "transfer_denied":
		return "Transfer denied",
			fmt.Sprintf("asset %v, wallet %v, rule %v", p["asset"], p["wallet"], p["rule"])
	case "transfer_executed":
		return "Transfer executed",
			fmt.Sprintf("asset %v, %v -> %v, amount %v", p["asset"], p["from"], p["to"], p["amount"])
	default:
		return "", ""
	}
}
