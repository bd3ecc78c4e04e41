package telegram

import (
	"context"

	"triarb/internal/application/port"
	"triarb/internal/application/usecase/detector"
	"triarb/internal/domain/model"
)

// Notifier 把机会推送到管理员会话
type Notifier struct {
	transport port.ChatTransport
	chatID    int64
	fmt       *detector.Formatter
}

func NewNotifier(transport port.ChatTransport, chatID int64) *Notifier {
	return &Notifier{transport: transport, chatID: chatID, fmt: detector.NewFormatter()}
}

func (n *Notifier) Name() string { return "telegram" }

func (n *Notifier) Publish(ctx context.Context, opp *model.Opportunity) error {
	return n.transport.SendMessage(ctx, n.chatID, n.fmt.Render(opp, detector.RenderMarkdown))
}

var _ port.OpportunitySink = (*Notifier)(nil)
