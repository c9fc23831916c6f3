package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"cdpharvest/internal/logger"
	"cdpharvest/internal/stats"
	"cdpharvest/pkg/domain"
	"cdpharvest/pkg/traffic"
)

// 由传输层重新计算或不应原样转发的头部
var strippedHeaders = []string{"content-length", "accept-encoding", "cookie", "host", "connection"}

// Config 重放器配置
type Config struct {
	Timeout  time.Duration
	DebugDir string
	Logger   logger.Logger
	Stats    *stats.Stats
	Client   *resty.Client // 可选，测试时注入
}

// Replayer 在浏览器之外重新发送捕获的请求
type Replayer struct {
	client   *resty.Client
	timeout  time.Duration
	debugDir string
	log      logger.Logger
	stats    *stats.Stats
}

// New 创建重放器，不做自动重试
func New(cfg Config) *Replayer {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = resty.New()
	}
	client.SetTimeout(cfg.Timeout).SetRetryCount(0)
	return &Replayer{
		client:   client,
		timeout:  cfg.Timeout,
		debugDir: cfg.DebugDir,
		log:      cfg.Logger,
		stats:    cfg.Stats,
	}
}

// Replay 以 req 为模板发送请求，mut 非空时先对请求体副本施加变更。
// 仅在 HTTP 200 且响应体为合法 JSON 时返回响应体。
func (r *Replayer) Replay(ctx context.Context, req *domain.CapturedRequest, mut Mutation) ([]byte, error) {
	body, err := r.run(ctx, req, mut)
	result := domain.KindOf(err)
	r.stats.Replay(string(req.Kind), result)
	return body, err
}

func (r *Replayer) run(ctx context.Context, req *domain.CapturedRequest, mut Mutation) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil captured request", domain.ErrState)
	}
	body := bytes.Clone(req.Body)
	if mut != nil {
		var err error
		if body, err = mut(body); err != nil {
			return nil, err
		}
	}

	headers, cookies := prepareHeaders(req.Headers)
	if len(body) > 0 && headers.Get("content-type") == "" && gjson.ValidBytes(body) {
		headers.Set("content-type", "application/json")
	}

	if r.debugDir != "" {
		dumpHeaders := headers.Clone()
		if len(cookies) > 0 {
			dumpHeaders.Set("cookie", traffic.JoinCookie(cookies))
		}
		label := string(req.Kind) + "_" + req.Facet
		if path, err := writeDump(r.debugDir, label, CurlCommand(req.Method, req.URL, dumpHeaders, body)); err != nil {
			r.log.Err(err, "写入调试命令失败", "dir", r.debugDir)
		} else {
			r.log.Debug("已写入调试命令", "path", path)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	rq := r.client.R().SetContext(ctx).SetHeaders(headers).SetCookies(cookies)
	if len(body) > 0 && method != http.MethodGet && method != http.MethodHead {
		rq.SetBody(body)
	}

	start := time.Now()
	resp, err := rq.Execute(method, req.URL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out after %s", domain.ErrTransport, req.URL, r.timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTransport, req.URL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", domain.ErrTransport, req.URL, resp.StatusCode())
	}
	out := resp.Body()
	if !gjson.ValidBytes(out) {
		return nil, fmt.Errorf("%w: %s returned malformed json (%d bytes)", domain.ErrPayloadShape, req.URL, len(out))
	}
	r.log.Debug("重放完成", "endpoint", req.URL, "kind", req.Kind, "facet", req.Facet, "bytes", len(out), "duration", time.Since(start))
	return out, nil
}

// prepareHeaders 复制头部，剥离由传输层计算的字段，并将 Cookie 头拆为结构化 Cookie
func prepareHeaders(src traffic.Header) (traffic.Header, []*http.Cookie) {
	h := src.Clone()
	cookies := traffic.ParseCookie(h.Get("cookie"))
	for _, k := range strippedHeaders {
		h.Del(k)
	}
	for k := range h {
		// HTTP/2 伪头部
		if strings.HasPrefix(k, ":") {
			delete(h, k)
		}
	}
	return h, cookies
}
