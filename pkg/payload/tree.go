// Package payload 提供对通用 JSON 值树（object/array/scalar）的纯函数操作。
// 所有函数都不修改入参，返回新的树。
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode 解析 JSON，数字保留为 json.Number 以免精度丢失
func Decode(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after json value")
	}
	return v, nil
}

// Encode 紧凑编码，不转义 HTML 字符
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Copy 深拷贝一棵值树
func Copy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = Copy(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = Copy(c)
		}
		return out
	default:
		return t
	}
}

// Substitute 递归查找所有名为 key 且值为字符串的字段，替换为 value。
// 返回新树与替换次数。
func Substitute(v any, key string, value string) (any, int) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		n := 0
		for k, c := range t {
			if _, isStr := c.(string); isStr && k == key {
				out[k] = value
				n++
				continue
			}
			nc, cn := Substitute(c, key, value)
			out[k] = nc
			n += cn
		}
		return out, n
	case []any:
		out := make([]any, len(t))
		n := 0
		for i, c := range t {
			nc, cn := Substitute(c, key, value)
			out[i] = nc
			n += cn
		}
		return out, n
	default:
		return t, 0
	}
}

// Contains 判断树中是否存在 key 字段且值等于 value
func Contains(v any, key, value string) bool {
	switch t := v.(type) {
	case map[string]any:
		for k, c := range t {
			if s, ok := c.(string); ok && k == key && s == value {
				return true
			}
			if Contains(c, key, value) {
				return true
			}
		}
	case []any:
		for _, c := range t {
			if Contains(c, key, value) {
				return true
			}
		}
	}
	return false
}
