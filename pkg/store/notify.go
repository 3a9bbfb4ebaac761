package store

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts lifecycle transitions to a Slack channel. If botToken is
// empty the notifier is a noop, matching the optionality of the rest of the
// notification stack.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty botToken yields a disabled notifier.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a usable client and channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyReady posts a Ready transition.
func (n *Notifier) NotifyReady(ctx context.Context, s Row) {
	n.post(ctx, fmt.Sprintf(":white_check_mark: store `%s` (%s) is ready at `%s`", s.ID, s.TenantID, s.Host))
}

// NotifyFailed posts a Failed transition with the recorded reason.
func (n *Notifier) NotifyFailed(ctx context.Context, s Row, reason string) {
	n.post(ctx, fmt.Sprintf(":x: store `%s` (%s) failed: %s", s.ID, s.TenantID, reason))
}

// NotifyDeleted posts a Deleted transition.
func (n *Notifier) NotifyDeleted(ctx context.Context, s Row) {
	n.post(ctx, fmt.Sprintf(":wastebasket: store `%s` (%s) deleted", s.ID, s.TenantID))
}

func (n *Notifier) post(ctx context.Context, text string) {
	if !n.IsEnabled() {
		return
	}
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Warn("posting slack notification failed", "error", err)
	}
}
