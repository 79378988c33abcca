package notify

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"

	"campus-events/utils"
)

// Publisher is the slice of the PubNub client the notifier needs.
type Publisher interface {
	Publish(channel string, message any) error
}

type pubnubPublisher struct {
	pn *pubnub.PubNub
}

func (p pubnubPublisher) Publish(channel string, message any) error {
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

// PubNubNotifier pushes each notification to the per-user channel
// "user-<id>" of every recipient.
type PubNubNotifier struct {
	publisher Publisher
	breaker   *utils.CircuitBreaker
}

func NewPubNubNotifier(pn *pubnub.PubNub, breaker *utils.CircuitBreaker) *PubNubNotifier {
	return NewPubNubNotifierWithPublisher(pubnubPublisher{pn: pn}, breaker)
}

func NewPubNubNotifierWithPublisher(publisher Publisher, breaker *utils.CircuitBreaker) *PubNubNotifier {
	if breaker == nil {
		breaker = utils.NewCircuitBreaker("pubnub")
	}
	return &PubNubNotifier{publisher: publisher, breaker: breaker}
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

func (p *PubNubNotifier) Notify(ctx context.Context, n Notification) error {
	message := map[string]any{
		"type":       n.Type,
		"message":    n.Message,
		"metadata":   n.Metadata,
		"created_at": n.CreatedAt,
	}
	var failed int
	var lastErr error
	for _, userID := range n.Recipients {
		channel := UserChannel(userID)
		err := p.breaker.Execute(ctx, func(context.Context) error {
			return p.publisher.Publish(channel, message)
		})
		if err != nil {
			slog.Error("Failed to publish notification", "error", err, "channel", channel, "type", n.Type)
			failed++
			lastErr = err
		}
	}
	if failed > 0 {
		return fmt.Errorf("pubnub: %d of %d deliveries failed: %w", failed, len(n.Recipients), lastErr)
	}
	return nil
}
