package cdp

import (
	"context"
	"fmt"

	"github.com/mafredri/cdp"

	adapter "cdpharvest/internal/adapter/cdp"
	"cdpharvest/pkg/domain"
)

// Sink 接收网络生命周期事件，由单一监听协程按顺序调用
type Sink interface {
	RequestSent(ctx context.Context, ev domain.RequestSent)
	ResponseReceived(ctx context.Context, ev domain.ResponseReceived)
}

// Listen 顺序消费请求与响应事件直到 ctx 结束或连接断开。
// 两个事件流订阅完成后关闭 ready（可为 nil）。
// ctx 结束返回 nil，事件流失败返回 ErrProtocol。
func (c *Channel) Listen(ctx context.Context, sink Sink, ready chan<- struct{}) error {
	if c.client == nil {
		return fmt.Errorf("%w: not attached", domain.ErrState)
	}
	sent, err := c.client.Network.RequestWillBeSent(ctx)
	if err != nil {
		return fmt.Errorf("%w: subscribe requestWillBeSent: %v", domain.ErrProtocol, err)
	}
	defer sent.Close()
	recv, err := c.client.Network.ResponseReceived(ctx)
	if err != nil {
		return fmt.Errorf("%w: subscribe responseReceived: %v", domain.ErrProtocol, err)
	}
	defer recv.Close()
	// 保证两个事件流按浏览器发送顺序交付
	if err := cdp.Sync(sent, recv); err != nil {
		return fmt.Errorf("%w: sync event streams: %v", domain.ErrProtocol, err)
	}
	if ready != nil {
		close(ready)
	}

	c.log.Info("开始监听网络事件", "target", c.target.ID)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("停止监听网络事件", "reason", ctx.Err())
			return nil
		case <-sent.Ready():
			ev, err := sent.Recv()
			if err != nil {
				return c.streamErr(ctx, err)
			}
			sink.RequestSent(ctx, adapter.ToRequestSent(ev))
		case <-recv.Ready():
			ev, err := recv.Recv()
			if err != nil {
				return c.streamErr(ctx, err)
			}
			sink.ResponseReceived(ctx, adapter.ToResponseReceived(ev))
		}
	}
}

func (c *Channel) streamErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	c.log.Err(err, "网络事件流中断", "target", c.target.ID)
	return fmt.Errorf("%w: event stream: %v", domain.ErrProtocol, err)
}
