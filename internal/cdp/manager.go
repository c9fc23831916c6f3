package cdp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"

	adapter "cdpharvest/internal/adapter/cdp"
	"cdpharvest/internal/logger"
	"cdpharvest/pkg/domain"
)

// Channel 与浏览器页面目标之间的调试会话
type Channel struct {
	devtoolsURL string
	timeout     time.Duration
	log         logger.Logger

	conn   *rpcc.Conn
	client *cdp.Client
	target domain.TargetInfo
}

// New 创建会话，timeout 为单条协议命令的等待上限
func New(devtoolsURL string, timeout time.Duration, l logger.Logger) *Channel {
	if l == nil {
		l = logger.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Channel{devtoolsURL: devtoolsURL, timeout: timeout, log: l}
}

// Targets 列出调试端点上的所有目标
func Targets(ctx context.Context, devtoolsURL string) ([]domain.TargetInfo, error) {
	targets, err := devtool.New(devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list targets at %s: %v", domain.ErrProtocol, devtoolsURL, err)
	}
	out := make([]domain.TargetInfo, 0, len(targets))
	for _, t := range targets {
		out = append(out, domain.TargetInfo{
			ID:    domain.TargetID(t.ID),
			Type:  string(t.Type),
			URL:   t.URL,
			Title: t.Title,
		})
	}
	return out, nil
}

// Attach 连接第一个 URL 包含 match 的页面目标，match 为空时取第一个页面
func (c *Channel) Attach(ctx context.Context, match string) (domain.TargetInfo, error) {
	targets, err := devtool.New(c.devtoolsURL).List(ctx)
	if err != nil {
		return domain.TargetInfo{}, fmt.Errorf("%w: list targets at %s: %v", domain.ErrProtocol, c.devtoolsURL, err)
	}
	var sel *devtool.Target
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if match == "" || strings.Contains(t.URL, match) {
			sel = t
			break
		}
	}
	if sel == nil {
		return domain.TargetInfo{}, fmt.Errorf("%w: no page target matching %q among %d targets", domain.ErrProtocol, match, len(targets))
	}
	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return domain.TargetInfo{}, fmt.Errorf("%w: dial %s: %v", domain.ErrProtocol, sel.WebSocketDebuggerURL, err)
	}
	c.conn = conn
	c.client = cdp.NewClient(conn)
	c.target = domain.TargetInfo{ID: domain.TargetID(sel.ID), Type: string(sel.Type), URL: sel.URL, Title: sel.Title}
	c.log.Info("已连接页面目标", "target", sel.ID, "url", sel.URL)
	return c.target, nil
}

// Target 当前连接的目标
func (c *Channel) Target() domain.TargetInfo { return c.target }

// Enable 开启网络与运行时域
func (c *Channel) Enable(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("%w: not attached", domain.ErrState)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Network.Enable(ctx, network.NewEnableArgs()); err != nil {
		return fmt.Errorf("%w: enable network: %v", domain.ErrProtocol, err)
	}
	if err := c.client.Runtime.Enable(ctx); err != nil {
		return fmt.Errorf("%w: enable runtime: %v", domain.ErrProtocol, err)
	}
	return nil
}

// Cookies 获取浏览器为 url 保存的 Cookie
func (c *Channel) Cookies(ctx context.Context, url string) ([]*http.Cookie, error) {
	if c.client == nil {
		return nil, fmt.Errorf("%w: not attached", domain.ErrState)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	reply, err := c.client.Network.GetCookies(ctx, network.NewGetCookiesArgs().SetURLs([]string{url}))
	if err != nil {
		return nil, fmt.Errorf("%w: get cookies for %s: %v", domain.ErrProtocol, url, err)
	}
	cookies := adapter.ToCookies(reply.Cookies)
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: no cookies returned for %s", domain.ErrProtocol, url)
	}
	return cookies, nil
}

// PostData 获取请求未内联的请求体
func (c *Channel) PostData(ctx context.Context, requestID string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("%w: not attached", domain.ErrState)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	reply, err := c.client.Network.GetRequestPostData(ctx, network.NewGetRequestPostDataArgs(network.RequestID(requestID)))
	if err != nil {
		return "", fmt.Errorf("%w: get post data for %s: %v", domain.ErrProtocol, requestID, err)
	}
	if reply.PostData == "" {
		return "", fmt.Errorf("%w: empty post data for %s", domain.ErrProtocol, requestID)
	}
	return reply.PostData, nil
}

// Evaluate 在页面中执行表达式，返回结果的 JSON 表示
func (c *Channel) Evaluate(ctx context.Context, expr string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("%w: not attached", domain.ErrState)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	reply, err := c.client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(expr).SetReturnByValue(true))
	if err != nil {
		return "", fmt.Errorf("%w: evaluate: %v", domain.ErrProtocol, err)
	}
	if reply.ExceptionDetails != nil {
		return "", fmt.Errorf("%w: evaluate threw: %s", domain.ErrProtocol, reply.ExceptionDetails.Text)
	}
	return string(reply.Result.Value), nil
}

// Close 断开调试连接
func (c *Channel) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.client = nil, nil
	return err
}
