package notifier

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack posts notifications to channels with chat.postMessage.
type Slack struct {
	client poster
}

func NewSlack(token string, options ...slack.Option) *Slack {
	return &Slack{client: slack.New(token, options...)}
}

func (s *Slack) Notify(ctx context.Context, recipient string, text string) error {
	_, _, err := s.client.PostMessageContext(ctx, recipient,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("failed to post message to %s: %w", recipient, err)
	}
	return nil
}

// Log only logs the messages it is given.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Notify(ctx context.Context, recipient string, text string) error {
	l.Logger.Info("notification", zap.String("recipient", recipient), zap.String("text", text))
	return nil
}
