package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"cdpharvest/internal/logger"
	"cdpharvest/pkg/domain"
	"cdpharvest/pkg/traffic"
)

// 持久化前需要遮蔽的凭据头
var sensitiveHeaders = []string{"cookie", "authorization", "x-goog-authuser", "x-goog-visitor-id", "x-client-data"}

const redacted = "[redacted]"

// Run 一次采集运行
type Run struct {
	ID         string `gorm:"primaryKey;size:36"`
	Target     string
	StartedAt  time.Time `gorm:"index"`
	FinishedAt *time.Time
	ListState  string
	Pages      int
	Entities   int
	Skipped    int
	Records    int
	Error      string
}

// Template 捕获的请求模板，凭据已遮蔽
type Template struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index;size:36"`
	Kind       string
	Facet      string
	URL        string
	Method     string
	Headers    traffic.Header `gorm:"serializer:json"`
	Body       string
	CapturedAt time.Time
}

// Record 实体结果
type Record struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"uniqueIndex:idx_run_entity;size:36"`
	EntityID    string `gorm:"uniqueIndex:idx_run_entity"`
	Title       string
	Entity      domain.Entity                  `gorm:"serializer:json"`
	Facets      map[string]domain.FacetMetrics `gorm:"serializer:json"`
	CollectedAt time.Time
}

// Store sqlite 持久化
type Store struct {
	db *gorm.DB
}

// Open 打开数据库并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l).LogMode(gormlogger.Warn),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&Run{}, &Template{}, &Record{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun 新建或更新运行记录
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(r).Error
}

// SaveTemplate 保存遮蔽凭据后的请求模板
func (s *Store) SaveTemplate(ctx context.Context, runID string, req *domain.CapturedRequest) error {
	t := &Template{
		RunID:      runID,
		Kind:       string(req.Kind),
		Facet:      req.Facet,
		URL:        req.URL,
		Method:     req.Method,
		Headers:    Redact(req.Headers),
		Body:       string(req.Body),
		CapturedAt: req.CapturedAt,
	}
	return s.db.WithContext(ctx).Create(t).Error
}

// SaveRecords 批量写入实体结果，同一运行内重复的实体 ID 被忽略
func (s *Store) SaveRecords(ctx context.Context, runID string, recs []domain.EntityRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]Record, 0, len(recs))
	for _, r := range recs {
		row := Record{RunID: runID, EntityID: r.ID, Facets: r.Facets, CollectedAt: r.CollectedAt}
		if r.Entity != nil {
			row.Entity = *r.Entity
			row.Title = r.Entity.Title
		}
		rows = append(rows, row)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 100).Error
}

// ListRuns 按开始时间倒序返回最近的运行
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := s.db.WithContext(ctx).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun 按 ID 查找运行
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return &r, err
}

// Templates 运行中保存的请求模板
func (s *Store) Templates(ctx context.Context, runID string) ([]Template, error) {
	var ts []Template
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&ts).Error; err != nil {
		return nil, err
	}
	return ts, nil
}

// Records 运行中的实体结果，按写入顺序
func (s *Store) Records(ctx context.Context, runID string) ([]domain.EntityRecord, error) {
	var rows []Record
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.EntityRecord, 0, len(rows))
	for i := range rows {
		out = append(out, domain.EntityRecord{
			ID:          rows[i].EntityID,
			Entity:      &rows[i].Entity,
			Facets:      rows[i].Facets,
			CollectedAt: rows[i].CollectedAt,
		})
	}
	return out, nil
}

// Redact 返回遮蔽凭据后的头部副本
func Redact(h traffic.Header) traffic.Header {
	out := h.Clone()
	for _, k := range sensitiveHeaders {
		if out.Has(k) {
			out.Set(k, redacted)
		}
	}
	for k := range out {
		if strings.HasPrefix(k, "x-goog-") || strings.Contains(k, "token") {
			out[k] = redacted
		}
	}
	return out
}
