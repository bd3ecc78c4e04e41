package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"triarb/internal/application/port"
	"triarb/internal/domain/model"
)

// EncodeOpportunity 机会的 JSON 载荷（redis 消息与流水 payload 共用）
func EncodeOpportunity(opp *model.Opportunity) (string, error) {
	b, err := json.Marshal(opp)
	if err != nil {
		return "", fmt.Errorf("encode opportunity %s: %w", opp.ID, err)
	}
	return string(b), nil
}

// NewEntry 把机会转成流水行
func NewEntry(opp *model.Opportunity) (port.JournalEntry, error) {
	payload, err := EncodeOpportunity(opp)
	if err != nil {
		return port.JournalEntry{}, err
	}
	return port.JournalEntry{
		ID:            opp.ID,
		Path:          opp.Cycle.Path(),
		StartAmount:   opp.StartAmount.String(),
		FinalAmount:   opp.FinalAmount.String(),
		ProfitPercent: opp.ProfitPercent.String(),
		DetectedAt:    opp.DetectedAt.UnixMilli(),
		Payload:       payload,
	}, nil
}

// JournalSink 把流水仓储接到通知链上
type JournalSink struct {
	name    string
	journal port.OpportunityJournal
}

var _ port.OpportunitySink = (*JournalSink)(nil)

func NewJournalSink(name string, journal port.OpportunityJournal) *JournalSink {
	return &JournalSink{name: name, journal: journal}
}

func (s *JournalSink) Name() string { return s.name }

func (s *JournalSink) Publish(ctx context.Context, opp *model.Opportunity) error {
	return s.journal.SaveOpportunity(ctx, opp)
}
