package port

import "context"

// ChatMessage 一条收到的聊天消息
type ChatMessage struct {
	UpdateID int64
	ChatID   int64
	UserID   int64
	UserName string
	Text     string
}

// ChatTransport 聊天机器人收发
type ChatTransport interface {
	// GetUpdates long-polls for messages after offset, waiting up to timeoutSec.
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]ChatMessage, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}
