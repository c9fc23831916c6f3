package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"cdpharvest/internal/cdp"
	"cdpharvest/internal/collector"
	"cdpharvest/internal/config"
	"cdpharvest/internal/correlator"
	"cdpharvest/internal/handler"
	"cdpharvest/internal/logger"
	"cdpharvest/internal/pagination"
	"cdpharvest/internal/replay"
	"cdpharvest/internal/report"
	"cdpharvest/internal/rules"
	"cdpharvest/internal/session"
	"cdpharvest/internal/stats"
	"cdpharvest/pkg/domain"
)

// Channel 运行所需的浏览器会话能力
type Channel interface {
	Listen(ctx context.Context, sink cdp.Sink, ready chan<- struct{}) error
	Cookies(ctx context.Context, url string) ([]*http.Cookie, error)
	PostData(ctx context.Context, requestID string) (string, error)
}

// Navigator 页面导航
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
}

// Replayer 离线重放
type Replayer interface {
	Replay(ctx context.Context, req *domain.CapturedRequest, mut replay.Mutation) ([]byte, error)
}

// Deps 外部协作方，重放器为空时按配置创建
type Deps struct {
	Channel       Channel
	Navigator     Navigator
	ListReplayer  Replayer
	FacetReplayer Replayer
	Reporter      report.Reporter
	Logger        logger.Logger
	Stats         *stats.Stats
}

// Monitor 编排一次完整的两阶段采集
type Monitor struct {
	cfg  *config.Config
	sess *session.Session
	deps Deps
	log  logger.Logger

	// 以下字段只由协调协程写入，g.Wait 之后读取
	listTmpl *domain.CapturedRequest
	list     *pagination.Result
	coll     *collector.Collector
	records  []domain.EntityRecord
	done     bool
}

// New 创建编排器
func New(cfg *config.Config, sess *session.Session, deps Deps) *Monitor {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	l := deps.Logger.With("runId", string(sess.ID))
	if deps.ListReplayer == nil {
		deps.ListReplayer = replay.New(replay.Config{
			Timeout: cfg.Replay.ListTimeout, DebugDir: cfg.Replay.DebugDir, Logger: l, Stats: deps.Stats,
		})
	}
	if deps.FacetReplayer == nil {
		deps.FacetReplayer = replay.New(replay.Config{
			Timeout: cfg.Replay.FacetTimeout, DebugDir: cfg.Replay.DebugDir, Logger: l, Stats: deps.Stats,
		})
	}
	return &Monitor{cfg: cfg, sess: sess, deps: deps, log: l}
}

// Run 执行采集直到完成、预算耗尽或会话断开，始终返回已累积的结果。
// 返回的错误仅表示会话层面的致命失败。
func (m *Monitor) Run(ctx context.Context) (*report.Summary, error) {
	ctx = m.sess.Context(ctx)
	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Collect.Duration)
	defer cancel()

	corr := correlator.New(rules.ForEndpoints(m.cfg.Endpoints.List, m.cfg.Facets), m.log)
	lists := make(chan *domain.CapturedRequest, 1)
	m.coll = collector.New(collector.Config{
		Facets:         m.cfg.Facets,
		IDKey:          m.cfg.Endpoints.IDKey,
		EntityDelay:    m.cfg.Collect.EntityDelay,
		CaptureTimeout: m.cfg.Collect.FacetCaptureTimeout,
		Navigator:      m.deps.Navigator,
		Replayer:       m.deps.FacetReplayer,
		Logger:         m.log,
		Stats:          m.deps.Stats,
	})
	h := handler.New(handler.Config{
		Correlator: corr,
		Browser:    m.deps.Channel,
		Lists:      lists,
		Facets:     m.coll,
		Logger:     m.log,
		Stats:      m.deps.Stats,
	})

	m.setPhase(corr, domain.PhaseList)
	m.log.Info("开始采集", "duration", m.cfg.Collect.Duration, "facets", len(m.cfg.Facets), "listOnly", m.cfg.Collect.ListOnly)

	g, gctx := errgroup.WithContext(runCtx)
	listenCtx, stopListen := context.WithCancel(gctx)
	defer stopListen()

	ready := make(chan struct{})
	g.Go(func() error {
		return m.deps.Channel.Listen(listenCtx, h, ready)
	})
	g.Go(func() error {
		defer stopListen()
		// 事件流订阅完成前导航会漏掉列表请求
		select {
		case <-ready:
		case <-gctx.Done():
			m.log.Warn("网络事件监听未就绪", "reason", gctx.Err())
			return nil
		}
		m.coordinate(gctx, corr, lists)
		return nil
	})
	err := g.Wait()
	m.setPhase(corr, domain.PhaseDone)

	if err != nil {
		m.log.Err(err, "浏览器会话中断，输出部分结果")
	} else if !m.done {
		m.log.Warn("采集预算耗尽，输出部分结果", "elapsed", m.sess.Elapsed())
	}
	s := m.summary(err)
	if m.deps.Reporter != nil {
		if rerr := m.deps.Reporter.Report(context.WithoutCancel(ctx), s); rerr != nil {
			m.log.Err(rerr, "输出报告失败")
		}
	}
	return s, err
}

// coordinate 依次执行启动导航、列表阶段与 facet 阶段
func (m *Monitor) coordinate(ctx context.Context, corr *correlator.Correlator, lists <-chan *domain.CapturedRequest) {
	m.kickOff(ctx)

	m.log.Info("等待列表请求", "endpoint", m.cfg.Endpoints.List)
	select {
	case <-ctx.Done():
		m.log.Warn("未捕获到列表请求", "endpoint", m.cfg.Endpoints.List, "reason", ctx.Err())
		return
	case m.listTmpl = <-lists:
	}
	m.setPhase(corr, domain.PhaseIdle)

	loop := pagination.New(m.deps.ListReplayer, pagination.Config{
		CursorField:  m.cfg.Endpoints.CursorField,
		NextCursor:   m.cfg.Endpoints.NextCursor,
		ItemKeys:     m.cfg.Endpoints.ItemKeys,
		IDKey:        m.cfg.Endpoints.IDKey,
		StatusField:  m.cfg.Endpoints.StatusField,
		VisibleValue: m.cfg.Endpoints.VisibleValue,
		Delay:        m.cfg.Collect.PageDelay,
		StartCursor:  m.cfg.Collect.StartCursor,
		MaxPages:     m.cfg.Collect.MaxPages,
		Logger:       m.log,
		Stats:        m.deps.Stats,
	})
	m.list = loop.Run(ctx, m.listTmpl)
	if skipped := m.list.SkippedByStatus(); len(skipped) > 0 {
		m.log.Info("按可见性过滤的条目", "skipped", skipped)
	}
	m.log.Info("列表阶段结束", "state", m.list.State.String(), "pages", m.list.Pages, "entities", len(m.list.Entities))

	if m.cfg.Collect.ListOnly || len(m.list.Entities) == 0 {
		m.done = ctx.Err() == nil && m.list.State == pagination.Done
		return
	}
	if ctx.Err() != nil {
		return
	}

	m.setPhase(corr, domain.PhaseFacets)
	m.records = m.coll.Run(ctx, m.list.Entities)
	m.done = ctx.Err() == nil && m.list.State == pagination.Done && len(m.records) == len(m.list.Entities)
}

// kickOff 当前页面位于频道下时跳转到列表页以触发列表请求
func (m *Monitor) kickOff(ctx context.Context) {
	if m.deps.Navigator == nil {
		return
	}
	cur, err := m.deps.Navigator.CurrentURL(ctx)
	if err != nil {
		m.log.Warn("读取当前页面地址失败", "error", err)
		return
	}
	target, ok := cdp.ListPageURL(cur, m.cfg.DevTools.ChannelPattern, m.cfg.DevTools.ListPage)
	if !ok {
		m.log.Info("当前页面不在频道下，等待手动打开列表页", "url", cur)
		return
	}
	m.log.Info("跳转到列表页", "url", target)
	if err := m.deps.Navigator.Navigate(ctx, target); err != nil {
		m.log.Warn("跳转列表页失败", "url", target, "error", err)
	}
}

func (m *Monitor) setPhase(corr *correlator.Correlator, p domain.Phase) {
	corr.SetPhase(p)
	m.sess.SetPhase(p)
}

func (m *Monitor) summary(runErr error) *report.Summary {
	s := &report.Summary{
		RunID:      m.sess.ID,
		Target:     m.sess.Target().URL,
		StartedAt:  m.sess.StartedAt,
		FinishedAt: time.Now(),
		ListState:  pagination.AwaitingFirstPage.String(),
		Facets:     m.cfg.Facets,
		Records:    m.records,
		Partial:    !m.done,
	}
	if m.listTmpl != nil {
		s.Templates = append(s.Templates, m.listTmpl)
	}
	tmpls := m.coll.Templates()
	for _, f := range m.cfg.Facets {
		if t, ok := tmpls[f.Name]; ok {
			s.Templates = append(s.Templates, t)
		}
	}
	if m.list != nil {
		s.ListState = m.list.State.String()
		s.Pages = m.list.Pages
		s.Entities = len(m.list.Entities)
		s.Skipped = m.list.SkippedByStatus()
		if m.cfg.Collect.ListOnly {
			s.Records = listOnlyRecords(m.list.Entities)
		}
	}
	if s.Records == nil {
		s.Records = m.coll.Records().Records()
	}
	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if m.list != nil && m.list.Err != nil {
		errs = append(errs, m.list.Err)
	}
	if len(errs) > 0 {
		s.Error = errors.Join(errs...).Error()
	} else if s.Partial {
		s.Error = fmt.Sprintf("run stopped after %s before completion", m.sess.Elapsed().Round(time.Second))
	}
	return s
}

// listOnlyRecords 仅列表模式下每个实体只带静态属性
func listOnlyRecords(es []domain.Entity) []domain.EntityRecord {
	now := time.Now()
	out := make([]domain.EntityRecord, 0, len(es))
	for i := range es {
		out = append(out, domain.EntityRecord{ID: es[i].ID, Entity: &es[i], Facets: map[string]domain.FacetMetrics{}, CollectedAt: now})
	}
	return out
}
