package approval

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/pkg/qstash"
)

// Publisher is the slice of the QStash client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) (qstash.PublishResult, error)
}

// QStashNotifier publishes approval notices to a reviewer webhook.
type QStashNotifier struct {
	publisher   Publisher
	destination string
}

var _ contractx.Notifier = (*QStashNotifier)(nil)

func NewQStashNotifier(publisher Publisher, destination string) (*QStashNotifier, error) {
	if publisher == nil {
		return nil, errors.New("qstash publisher is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("reviewer url is required")
	}
	return &QStashNotifier{publisher: publisher, destination: destination}, nil
}

func (n *QStashNotifier) NotifyApproval(ctx context.Context, notice contractx.ApprovalNotice) error {
	res, err := n.publisher.Publish(ctx, n.destination, notice)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Str("message_id", res.MessageID).
		Str("tool", notice.Tool).
		Msg("approval notice published")
	return nil
}

// NopNotifier drops notices. It is used when no reviewer url is set.
type NopNotifier struct{}

func (NopNotifier) NotifyApproval(context.Context, contractx.ApprovalNotice) error { return nil }
