package correlator

import (
	"sync"
	"sync/atomic"
	"time"

	"cdpharvest/internal/logger"
	"cdpharvest/internal/rules"
	"cdpharvest/pkg/domain"
)

// Correlator 将 requestWillBeSent 与 responseReceived 按请求 ID 关联，
// 只有原始请求成功时才提升为捕获。
type Correlator struct {
	engine *rules.Engine
	phase  atomic.Int32
	log    logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]domain.PendingRequest
	fired   map[string]struct{}
}

// New 创建关联器，初始阶段为 idle（不跟踪任何请求）
func New(engine *rules.Engine, l logger.Logger) *Correlator {
	if l == nil {
		l = logger.NewNop()
	}
	return &Correlator{
		engine:  engine,
		log:     l,
		now:     time.Now,
		pending: make(map[string]domain.PendingRequest),
		fired:   make(map[string]struct{}),
	}
}

// SetPhase 切换跟踪阶段，切换时丢弃上一阶段未完成的请求
func (c *Correlator) SetPhase(p domain.Phase) {
	old := domain.Phase(c.phase.Swap(int32(p)))
	if old == p {
		return
	}
	c.mu.Lock()
	dropped := len(c.pending)
	c.pending = make(map[string]domain.PendingRequest)
	c.mu.Unlock()
	c.log.Info("切换采集阶段", "from", old.String(), "to", p.String(), "droppedPending", dropped)
}

// Phase 当前阶段
func (c *Correlator) Phase() domain.Phase { return domain.Phase(c.phase.Load()) }

// Observe 处理请求即将发送的通知，返回该请求是否被跟踪
func (c *Correlator) Observe(ev domain.RequestSent) bool {
	var kind domain.RequestKind
	switch c.Phase() {
	case domain.PhaseList:
		kind = domain.KindList
	case domain.PhaseFacets:
		kind = domain.KindFacet
	default:
		return false
	}
	r := c.engine.Eval(rules.Ctx{URL: ev.URL, Method: ev.Method}, kind)
	if r == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, done := c.fired[ev.RequestID]; done {
		return false
	}
	// 重定向会复用同一个请求 ID，保留最新的请求
	c.pending[ev.RequestID] = domain.PendingRequest{
		Request:   ev,
		RequestID: ev.RequestID,
		FirstSeen: c.now(),
		Kind:      r.Kind,
		Facet:     r.Facet,
	}
	c.log.Debug("跟踪请求", "requestID", ev.RequestID, "kind", r.Kind, "facet", r.Facet, "url", ev.URL)
	return true
}

// Resolve 处理响应通知。仅当请求被跟踪且状态成功时返回 true，
// 同一请求 ID 最多返回一次 true。
func (c *Correlator) Resolve(ev domain.ResponseReceived) (domain.PendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[ev.RequestID]
	if !ok {
		return domain.PendingRequest{}, false
	}
	delete(c.pending, ev.RequestID)
	if !Success(ev.Status) {
		c.log.Warn("原始请求失败，丢弃", "requestID", ev.RequestID, "status", ev.Status, "endpoint", ev.URL, "facet", p.Facet)
		return domain.PendingRequest{}, false
	}
	c.fired[ev.RequestID] = struct{}{}
	return p, true
}

// Pending 未完成的跟踪请求数
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Success 判断状态码是否为成功
func Success(status int) bool { return status >= 200 && status < 300 }
