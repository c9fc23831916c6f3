package traffic

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// Header 封装通用的头部操作，键统一为小写
type Header map[string]string

// HeaderFromJSON 从 CDP 的 JSON 头部对象构建 Header
func HeaderFromJSON(raw []byte) Header {
	h := make(Header)
	if len(raw) == 0 {
		return h
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return h
	}
	for k, v := range m {
		switch t := v.(type) {
		case string:
			h.Set(k, t)
		default:
			b, _ := json.Marshal(t)
			h.Set(k, string(b))
		}
	}
	return h
}

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Has 判断 Header 是否存在
func (h Header) Has(key string) bool {
	if h == nil {
		return false
	}
	_, ok := h[strings.ToLower(key)]
	return ok
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Del 删除指定 Header
func (h Header) Del(key string) {
	delete(h, strings.ToLower(key))
}

// Clone 返回独立副本
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Keys 返回排序后的键
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseCookie 解析 Cookie 头为结构化列表，保持原始顺序
func ParseCookie(s string) []*http.Cookie {
	var out []*http.Cookie
	for _, p := range strings.Split(s, ";") {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		out = append(out, &http.Cookie{Name: kv[0], Value: kv[1]})
	}
	return out
}

// JoinCookie 将 name/value 对拼接为 Cookie 头
func JoinCookie(cookies []*http.Cookie) string {
	var b strings.Builder
	for i, c := range cookies {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteString("=")
		b.WriteString(c.Value)
	}
	return b.String()
}
