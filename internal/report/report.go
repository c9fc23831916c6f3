package report

import (
	"context"
	"errors"
	"time"

	"cdpharvest/pkg/domain"
)

// Summary 一次运行交给报告方的全部结果
type Summary struct {
	RunID      domain.RunID              `json:"runId"`
	Target     string                    `json:"target"`
	StartedAt  time.Time                 `json:"startedAt"`
	FinishedAt time.Time                 `json:"finishedAt"`
	ListState  string                    `json:"listState"`
	Pages      int                       `json:"pages"`
	Entities   int                       `json:"entities"`
	Skipped    map[string]int            `json:"skipped"`
	Facets     []domain.Facet            `json:"facets"`
	Records    []domain.EntityRecord     `json:"records"`
	Templates  []*domain.CapturedRequest `json:"-"`
	Partial    bool                      `json:"partial"`
	Error      string                    `json:"error,omitempty"`
}

// Reporter 结果的下游消费方
type Reporter interface {
	Report(ctx context.Context, s *Summary) error
}

// Multi 依次调用所有报告方，单个失败不影响其余
type Multi []Reporter

func (m Multi) Report(ctx context.Context, s *Summary) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
