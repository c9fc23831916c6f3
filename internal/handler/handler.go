package handler

import (
	"context"
	"net/http"
	"time"

	"cdpharvest/internal/correlator"
	"cdpharvest/internal/logger"
	"cdpharvest/internal/stats"
	"cdpharvest/pkg/domain"
	"cdpharvest/pkg/traffic"
)

// Browser 捕获补全所需的协议命令
type Browser interface {
	Cookies(ctx context.Context, url string) ([]*http.Cookie, error)
	PostData(ctx context.Context, requestID string) (string, error)
}

// FacetSink facet 捕获的接收方
type FacetSink interface {
	Awaiting(facet string) bool
	OnCapture(req *domain.CapturedRequest) bool
}

// Handler 捕获处理器：关联请求与响应，补全成功请求后分发到列表或 facet 接收方
type Handler struct {
	correlator *correlator.Correlator
	browser    Browser
	lists      chan<- *domain.CapturedRequest
	facets     FacetSink
	log        logger.Logger
	stats      *stats.Stats
}

// Config 配置选项
type Config struct {
	Correlator *correlator.Correlator
	Browser    Browser
	Lists      chan<- *domain.CapturedRequest
	Facets     FacetSink
	Logger     logger.Logger
	Stats      *stats.Stats
}

// New 创建捕获处理器
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Handler{
		correlator: cfg.Correlator,
		browser:    cfg.Browser,
		lists:      cfg.Lists,
		facets:     cfg.Facets,
		log:        cfg.Logger,
		stats:      cfg.Stats,
	}
}

// RequestSent 登记被跟踪的请求
func (h *Handler) RequestSent(_ context.Context, ev domain.RequestSent) {
	h.correlator.Observe(ev)
}

// ResponseReceived 原始请求成功时提升为捕获
func (h *Handler) ResponseReceived(ctx context.Context, ev domain.ResponseReceived) {
	p, ok := h.correlator.Resolve(ev)
	if !ok {
		return
	}
	l := h.log.With("requestID", p.RequestID, "kind", p.Kind)

	switch p.Kind {
	case domain.KindList:
		if len(h.lists) == cap(h.lists) {
			l.Debug("列表请求已捕获，忽略后续请求", "endpoint", ev.URL)
			return
		}
		req := h.enrich(ctx, p, l)
		select {
		case h.lists <- req:
			h.stats.Capture(string(p.Kind))
			l.Info("已捕获列表请求", "endpoint", req.URL, "status", ev.Status)
		default:
			l.Debug("列表请求已捕获，忽略后续请求", "endpoint", req.URL)
		}
	case domain.KindFacet:
		if h.facets == nil || !h.facets.Awaiting(p.Facet) {
			l.Debug("当前未等待该 facet，忽略", "facet", p.Facet, "endpoint", ev.URL)
			return
		}
		req := h.enrich(ctx, p, l)
		if h.facets.OnCapture(req) {
			h.stats.Capture(string(p.Kind))
			l.Info("已捕获 facet 请求", "facet", p.Facet, "endpoint", req.URL, "status", ev.Status)
		}
	}
}

// enrich 将待定请求补全为可重放的捕获：缺失的请求体与 Cookie 通过协议命令获取
func (h *Handler) enrich(ctx context.Context, p domain.PendingRequest, l logger.Logger) *domain.CapturedRequest {
	rs := p.Request
	headers := rs.Headers.Clone()

	body := rs.PostData
	if body == "" && rs.HasPostData && h.browser != nil {
		data, err := h.browser.PostData(ctx, p.RequestID)
		if err != nil {
			h.stats.Failure(domain.KindOf(err), "capture")
			l.Warn("获取请求体失败", "endpoint", rs.URL, "facet", p.Facet, "error", err)
		} else {
			body = data
		}
	}

	if !headers.Has("cookie") && h.browser != nil {
		cookies, err := h.browser.Cookies(ctx, rs.URL)
		if err != nil {
			h.stats.Failure(domain.KindOf(err), "capture")
			l.Warn("获取 Cookie 失败", "endpoint", rs.URL, "facet", p.Facet, "error", err)
		} else {
			headers.Set("cookie", traffic.JoinCookie(cookies))
		}
	}

	return &domain.CapturedRequest{
		URL:        rs.URL,
		Method:     rs.Method,
		Headers:    headers,
		Body:       []byte(body),
		RequestID:  p.RequestID,
		CapturedAt: time.Now(),
		Kind:       p.Kind,
		Facet:      p.Facet,
	}
}
