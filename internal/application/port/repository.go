package port

import (
	"context"

	"triarb/internal/domain/model"
)

// OpportunityJournal 机会流水（通知层可选持久化，核心不依赖）
type OpportunityJournal interface {
	SaveOpportunity(ctx context.Context, opp *model.Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]JournalEntry, error)

	// Connection management
	Close() error
}

// JournalEntry 流水中的一行
type JournalEntry struct {
	ID            string
	Path          string
	StartAmount   string
	FinalAmount   string
	ProfitPercent string
	DetectedAt    int64 // unix ms
	Payload       string
}
