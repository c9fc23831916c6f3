package api

import (
	"context"
	"fmt"
	"io"

	"cdpharvest/internal/cdp"
	"cdpharvest/internal/config"
	"cdpharvest/internal/logger"
	"cdpharvest/internal/monitor"
	"cdpharvest/internal/report"
	"cdpharvest/internal/session"
	"cdpharvest/internal/stats"
	"cdpharvest/internal/storage"
	"cdpharvest/pkg/domain"
)

// Result 一次运行的结果
type Result = report.Summary

// Service 服务接口
type Service interface {
	// Run 连接浏览器并执行一次完整采集，出错时仍尽量返回部分结果
	Run(ctx context.Context, cfg *config.Config) (*Result, error)

	// Targets 列出调试端点上的页面目标
	Targets(ctx context.Context, devtoolsURL string) ([]domain.TargetInfo, error)

	// Runs 读取历史运行记录
	Runs(ctx context.Context, cfg *config.Config, limit int) ([]storage.Run, error)

	// Active 进程内正在进行的运行
	Active() []*session.Session
}

// Options 服务选项
type Options struct {
	Logger logger.Logger
	Stats  *stats.Stats
	Out    io.Writer // 控制台表格输出，为空时不渲染
}

type service struct {
	log      logger.Logger
	stats    *stats.Stats
	out      io.Writer
	sessions *session.Manager
}

// NewService 创建并返回服务接口实现
func NewService(opts Options) Service {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &service{
		log:      opts.Logger,
		stats:    opts.Stats,
		out:      opts.Out,
		sessions: session.NewManager(opts.Logger),
	}
}

func (s *service) Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	sess := s.sessions.Create()
	defer s.sessions.Delete(sess.ID)
	l := s.log.With("runId", string(sess.ID))

	var db *storage.Store
	if cfg.Sqlite.Dsn != "" {
		var err error
		if db, err = storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l); err != nil {
			return nil, err
		}
		defer db.Close()
	}

	ch := cdp.New(cfg.DevTools.URL, cfg.DevTools.CommandTimeout, l)
	target, err := ch.Attach(ctx, cfg.DevTools.TargetMatch)
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	if err := ch.Enable(ctx); err != nil {
		return nil, err
	}
	sess.SetTarget(target)

	m := monitor.New(cfg, sess, monitor.Deps{
		Channel:   ch,
		Navigator: cdp.NewNavigator(ch, cfg.Collect.NavigationSettle, l),
		Reporter:  s.reporters(cfg, db),
		Logger:    s.log,
		Stats:     s.stats,
	})
	return m.Run(ctx)
}

func (s *service) reporters(cfg *config.Config, db *storage.Store) report.Reporter {
	var rs report.Multi
	if cfg.Report.JSONPath != "" {
		rs = append(rs, &report.JSONFile{Path: cfg.Report.JSONPath})
	}
	if cfg.Report.Table && s.out != nil {
		rs = append(rs, &report.Table{Out: s.out})
	}
	if db != nil {
		rs = append(rs, &report.Store{DB: db})
	}
	return rs
}

func (s *service) Targets(ctx context.Context, devtoolsURL string) ([]domain.TargetInfo, error) {
	return cdp.Targets(ctx, devtoolsURL)
}

func (s *service) Runs(ctx context.Context, cfg *config.Config, limit int) ([]storage.Run, error) {
	db, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, s.log)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.ListRuns(ctx, limit)
}

func (s *service) Active() []*session.Session { return s.sessions.List() }
