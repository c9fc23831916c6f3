package report

import (
	"context"
	"fmt"

	"cdpharvest/internal/storage"
)

// Store 将运行、遮蔽后的模板与结果写入 sqlite
type Store struct {
	DB *storage.Store
}

func (r *Store) Report(ctx context.Context, s *Summary) error {
	finished := s.FinishedAt
	skipped := 0
	for _, n := range s.Skipped {
		skipped += n
	}
	run := &storage.Run{
		ID:         string(s.RunID),
		Target:     s.Target,
		StartedAt:  s.StartedAt,
		FinishedAt: &finished,
		ListState:  s.ListState,
		Pages:      s.Pages,
		Entities:   s.Entities,
		Skipped:    skipped,
		Records:    len(s.Records),
		Error:      s.Error,
	}
	if err := r.DB.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	for _, t := range s.Templates {
		if err := r.DB.SaveTemplate(ctx, string(s.RunID), t); err != nil {
			return fmt.Errorf("save template: %w", err)
		}
	}
	if err := r.DB.SaveRecords(ctx, string(s.RunID), s.Records); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	return nil
}
