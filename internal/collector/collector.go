package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cdpharvest/internal/cards"
	"cdpharvest/internal/logger"
	"cdpharvest/internal/replay"
	"cdpharvest/internal/stats"
	"cdpharvest/pkg/domain"
	"cdpharvest/pkg/payload"
)

// State 多 facet 采集状态
type State int

const (
	Idle State = iota
	AwaitingFacetCapture
	FacetCaptured
	EntityComplete
	AllComplete
)

func (s State) String() string {
	switch s {
	case AwaitingFacetCapture:
		return "awaiting_facet_capture"
	case FacetCaptured:
		return "facet_captured"
	case EntityComplete:
		return "entity_complete"
	case AllComplete:
		return "all_complete"
	default:
		return "idle"
	}
}

// Navigator 驱动浏览器打开指定页面
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Replayer 离线重放能力
type Replayer interface {
	Replay(ctx context.Context, req *domain.CapturedRequest, mut replay.Mutation) ([]byte, error)
}

// Extractor 将 facet 响应归一化为指标
type Extractor func(body []byte, id string) (domain.FacetMetrics, error)

// Config 采集器配置
type Config struct {
	Facets         []domain.Facet
	IDKey          string
	EntityDelay    time.Duration
	CaptureTimeout time.Duration
	Navigator      Navigator
	Replayer       Replayer
	Extract        Extractor
	Logger         logger.Logger
	Stats          *stats.Stats
	// OnRecord 每条记录首次写入后回调，在采集协程中同步执行
	OnRecord func(domain.EntityRecord)
}

// collectionCursor 当前实体的采集进度，每个实体开始时重置
type collectionCursor struct {
	entity    *domain.Entity
	index     int
	captured  map[string]*domain.CapturedRequest
	responses map[string]domain.FacetMetrics
	// waiting 非空表示正在等待 facets[index] 的实时捕获
	waiting chan *domain.CapturedRequest
}

// Collector 多 facet 采集状态机。
// 首个实体通过浏览器导航发现每个 facet 的请求模板，之后的实体直接重放模板。
type Collector struct {
	cfg     Config
	log     logger.Logger
	records *RecordSet

	mu        sync.Mutex
	state     State
	cur       collectionCursor
	templates map[string]*domain.CapturedRequest
	navigated int
}

// New 创建采集器
func New(cfg Config) *Collector {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Extract == nil {
		cfg.Extract = cards.Extract
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 20 * time.Second
	}
	return &Collector{
		cfg:       cfg,
		log:       cfg.Logger,
		records:   NewRecordSet(),
		templates: make(map[string]*domain.CapturedRequest),
	}
}

// Records 已完成的实体记录
func (c *Collector) Records() *RecordSet { return c.records }

// State 当前状态与 facet 索引
func (c *Collector) State() (State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.cur.index
}

// Templates 已缓存的 facet 请求模板快照
func (c *Collector) Templates() map[string]*domain.CapturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*domain.CapturedRequest, len(c.templates))
	for k, v := range c.templates {
		out[k] = v
	}
	return out
}

// Awaiting 是否正在等待 facet 的实时捕获
func (c *Collector) Awaiting(facet string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur.waiting != nil && c.inBounds() && c.cfg.Facets[c.cur.index].Name == facet
}

// OnCapture 接收监听协程提交的 facet 捕获，只投递属于当前实体当前 facet 的请求。
// 不阻塞调用方。
func (c *Collector) OnCapture(req *domain.CapturedRequest) bool {
	c.mu.Lock()
	if c.cur.waiting == nil || c.cur.entity == nil || !c.inBounds() || c.cfg.Facets[c.cur.index].Name != req.Facet {
		c.mu.Unlock()
		c.log.Debug("忽略非当前 facet 的捕获", "facet", req.Facet, "requestID", req.RequestID)
		return false
	}
	id, ch := c.cur.entity.ID, c.cur.waiting
	c.mu.Unlock()

	if !bodyMentions(req.Body, c.cfg.IDKey, id) {
		c.log.Debug("捕获请求不属于当前实体", "facet", req.Facet, "entity", id, "requestID", req.RequestID)
		return false
	}
	select {
	case ch <- req:
		return true
	default:
		c.log.Debug("facet 已有捕获，丢弃重复请求", "facet", req.Facet, "entity", id, "requestID", req.RequestID)
		return false
	}
}

// Run 依次处理所有实体，ctx 结束时完成当前实体后停止
func (c *Collector) Run(ctx context.Context, entities []domain.Entity) []domain.EntityRecord {
	for i := range entities {
		if ctx.Err() != nil {
			c.log.Warn("采集预算耗尽，停止处理剩余实体", "done", i, "total", len(entities))
			break
		}
		if i > 0 && c.cfg.EntityDelay > 0 && !sleep(ctx, c.cfg.EntityDelay) {
			c.log.Warn("采集预算耗尽，停止处理剩余实体", "done", i, "total", len(entities))
			break
		}
		c.collect(ctx, &entities[i], i == 0, i, len(entities))
	}
	c.mu.Lock()
	c.state = AllComplete
	c.mu.Unlock()
	c.log.Info("facet 采集结束", "records", c.records.Len(), "entities", len(entities))
	return c.records.Records()
}

// collect 只有首个实体会导航发现模板，之后缺少模板的 facet 直接留空
func (c *Collector) collect(ctx context.Context, e *domain.Entity, first bool, n, total int) {
	c.begin(e)
	log := c.log.With("entity", e.ID)
	log.Info("开始采集实体", "title", e.Title, "position", n+1, "total", total)

	for {
		f, tmpl, err := c.current()
		if err != nil {
			// 索引越界视为该实体已无工作
			c.cfg.Stats.Failure(domain.KindOf(err), "entity")
			log.Warn("facet 索引越界，结束实体", "error", err)
			break
		}
		if f == nil {
			break
		}
		flog := log.With("facet", f.Name)
		switch {
		case tmpl != nil:
			c.replayFacet(ctx, e, f, tmpl, flog)
		case first && ctx.Err() == nil:
			c.discoverFacet(ctx, e, f, flog)
		case !first:
			c.cfg.Stats.Failure(domain.KindOf(domain.ErrState), "facet")
			flog.Warn("facet 没有可用的请求模板，跳过", "endpoint", f.Endpoint)
		}
		if err := c.advance(); err != nil {
			c.cfg.Stats.Failure(domain.KindOf(err), "entity")
			log.Warn("facet 索引越界，结束实体", "error", err)
			break
		}
	}
	c.finalize(e, log)
}

// begin 为新实体重置游标
func (c *Collector) begin(e *domain.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = collectionCursor{
		entity:    e,
		captured:  make(map[string]*domain.CapturedRequest),
		responses: make(map[string]domain.FacetMetrics),
	}
	c.state = Idle
}

// current 返回当前 facet 及其已缓存的模板，全部完成时 facet 为 nil
func (c *Collector) current() (*domain.Facet, *domain.CapturedRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur.index == len(c.cfg.Facets) {
		return nil, nil, nil
	}
	if !c.inBounds() {
		return nil, nil, fmt.Errorf("%w: facet index %d outside [0,%d)", domain.ErrState, c.cur.index, len(c.cfg.Facets))
	}
	f := c.cfg.Facets[c.cur.index]
	return &f, c.templates[f.Name], nil
}

func (c *Collector) advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inBounds() {
		return fmt.Errorf("%w: cannot advance facet index %d", domain.ErrState, c.cur.index)
	}
	c.cur.index++
	c.cur.waiting = nil
	return nil
}

func (c *Collector) inBounds() bool {
	return c.cur.index >= 0 && c.cur.index < len(c.cfg.Facets)
}

// discoverFacet 导航到 facet 页面并等待浏览器发出的请求
func (c *Collector) discoverFacet(ctx context.Context, e *domain.Entity, f *domain.Facet, log logger.Logger) {
	ch := make(chan *domain.CapturedRequest, 1)
	c.mu.Lock()
	c.cur.waiting = ch
	c.state = AwaitingFacetCapture
	c.navigated++
	c.mu.Unlock()

	url := strings.ReplaceAll(f.Navigation, "{id}", e.ID)
	if c.cfg.Navigator == nil {
		c.cfg.Stats.Failure(domain.KindOf(domain.ErrState), "facet")
		log.Warn("未配置导航器，无法发现 facet 请求模板", "url", url)
		return
	}
	log.Info("导航到 facet 页面等待捕获", "url", url)
	if err := c.cfg.Navigator.Navigate(ctx, url); err != nil {
		c.cfg.Stats.Failure(domain.KindOf(err), "facet")
		log.Err(err, "facet 页面导航失败", "url", url)
		return
	}

	timer := time.NewTimer(c.cfg.CaptureTimeout)
	defer timer.Stop()
	var req *domain.CapturedRequest
	select {
	case req = <-ch:
	case <-timer.C:
		c.cfg.Stats.Failure("timeout", "facet")
		log.Warn("等待 facet 捕获超时", "timeout", c.cfg.CaptureTimeout, "endpoint", f.Endpoint)
		return
	case <-ctx.Done():
		log.Warn("采集预算耗尽，放弃等待 facet 捕获")
		return
	}

	c.mu.Lock()
	c.cur.waiting = nil
	c.cur.captured[f.Name] = req
	if _, ok := c.templates[f.Name]; !ok {
		c.templates[f.Name] = req
	}
	c.state = FacetCaptured
	c.mu.Unlock()
	log.Info("已捕获 facet 请求模板", "endpoint", req.URL, "requestID", req.RequestID)

	// 实时捕获的请求本身就属于当前实体，原样重放即可
	c.fetch(ctx, e, f, req, nil, log)
}

// replayFacet 使用缓存模板替换实体 ID 后直接重放
func (c *Collector) replayFacet(ctx context.Context, e *domain.Entity, f *domain.Facet, tmpl *domain.CapturedRequest, log logger.Logger) {
	c.fetch(ctx, e, f, tmpl, replay.IdentifierSubstitution(c.cfg.IDKey, e.ID), log)
}

func (c *Collector) fetch(ctx context.Context, e *domain.Entity, f *domain.Facet, tmpl *domain.CapturedRequest, mut replay.Mutation, log logger.Logger) {
	body, err := c.cfg.Replayer.Replay(context.WithoutCancel(ctx), tmpl, mut)
	if err != nil {
		c.cfg.Stats.Failure(domain.KindOf(err), "facet")
		log.Err(err, "facet 重放失败", "endpoint", tmpl.URL, "kind", domain.KindOf(err))
		return
	}
	metrics, err := c.cfg.Extract(body, e.ID)
	if err != nil {
		c.cfg.Stats.Failure(domain.KindOf(err), "facet")
		log.Err(err, "facet 指标提取失败", "endpoint", tmpl.URL)
		return
	}
	c.mu.Lock()
	if c.cur.entity == e {
		c.cur.responses[f.Name] = metrics
	}
	c.mu.Unlock()
	log.Info("facet 采集完成", "metrics", len(metrics))
}

// finalize 合并当前实体的 facet 结果为一条记录
func (c *Collector) finalize(e *domain.Entity, log logger.Logger) {
	c.mu.Lock()
	facets := c.cur.responses
	c.cur = collectionCursor{}
	c.state = EntityComplete
	c.mu.Unlock()

	rec := domain.EntityRecord{ID: e.ID, Entity: e, Facets: facets, CollectedAt: time.Now()}
	if !c.records.Add(rec) {
		log.Warn("实体记录已存在，忽略重复写入")
		return
	}
	c.cfg.Stats.Record()
	log.Info("实体采集完成", "facets", len(facets), "of", len(c.cfg.Facets))
	if c.cfg.OnRecord != nil {
		c.cfg.OnRecord(rec)
	}
}

// Navigations 已发起的导航次数
func (c *Collector) Navigations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.navigated
}

func bodyMentions(body []byte, key, id string) bool {
	tree, err := payload.Decode(body)
	if err != nil {
		return false
	}
	return payload.Contains(tree, key, id)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
