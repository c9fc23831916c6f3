package cdp

import (
	"net/http"
	"time"

	"github.com/mafredri/cdp/protocol/network"

	"cdpharvest/pkg/domain"
	"cdpharvest/pkg/traffic"
)

// ToRequestSent 将 requestWillBeSent 事件转换为中立模型
func ToRequestSent(ev *network.RequestWillBeSentReply) domain.RequestSent {
	rs := domain.RequestSent{
		RequestID: string(ev.RequestID),
		URL:       ev.Request.URL,
		Method:    ev.Request.Method,
		Headers:   traffic.HeaderFromJSON([]byte(ev.Request.Headers)),
		Timestamp: time.Now(),
	}
	if ev.Request.PostData != nil {
		rs.PostData = *ev.Request.PostData
		rs.HasPostData = true
	}
	if ev.Request.HasPostData != nil && *ev.Request.HasPostData {
		rs.HasPostData = true
	}
	return rs
}

// ToResponseReceived 将 responseReceived 事件转换为中立模型
func ToResponseReceived(ev *network.ResponseReceivedReply) domain.ResponseReceived {
	return domain.ResponseReceived{
		RequestID: string(ev.RequestID),
		URL:       ev.Response.URL,
		Status:    ev.Response.Status,
	}
}

// ToCookies 将浏览器 Cookie 转换为 net/http Cookie，跳过空名称
func ToCookies(in []network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c.Name == "" {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}
