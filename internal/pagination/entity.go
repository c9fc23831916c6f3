package pagination

import (
	"github.com/tidwall/gjson"

	"cdpharvest/pkg/domain"
)

// 列表条目中保留的基础字段
var basicFields = []string{
	"videoId", "title", "description", "privacy",
	"lengthSeconds", "timeCreatedSeconds", "timePublishedSeconds",
	"status", "watchUrl", "shareUrl",
}

// ExtractItems 按优先级尝试已知键，失败时扫描任意元素含 idKey 的数组字段
func ExtractItems(body []byte, keys []string, idKey string) ([]gjson.Result, string, bool) {
	root := gjson.ParseBytes(body)
	for _, k := range keys {
		if r := root.Get(gjson.Escape(k)); r.IsArray() {
			return r.Array(), k, true
		}
	}
	var (
		items []gjson.Result
		found string
	)
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			return true
		}
		for _, el := range value.Array() {
			if el.IsObject() && el.Get(gjson.Escape(idKey)).Exists() {
				items, found = value.Array(), key.String()
				return false
			}
		}
		return true
	})
	return items, found, found != ""
}

// ParseEntity 从列表条目构建实体，缺少 ID 时返回 false
func ParseEntity(item gjson.Result, idKey string) (domain.Entity, bool) {
	id := item.Get(gjson.Escape(idKey)).String()
	if id == "" {
		return domain.Entity{}, false
	}
	attrs := make(map[string]any)
	for _, f := range basicFields {
		if v := item.Get(f); v.Exists() {
			attrs[f] = v.Value()
		}
	}
	if idKey != "videoId" {
		attrs[idKey] = id
	}
	flatten(item.Get("publicMetrics"), "public_", attrs)
	flatten(item.Get("privateMetrics"), "private_", attrs)

	var thumbs []string
	item.Get("thumbnailDetails.thumbnails").ForEach(func(_, th gjson.Result) bool {
		if u := th.Get("url").String(); u != "" {
			thumbs = append(thumbs, u)
		}
		return true
	})
	if len(thumbs) > 0 {
		attrs["thumbnail_urls"] = thumbs
	}
	return domain.Entity{ID: id, Title: item.Get("title").String(), Attributes: attrs}, true
}

func flatten(obj gjson.Result, prefix string, into map[string]any) {
	if !obj.IsObject() {
		return
	}
	obj.ForEach(func(k, v gjson.Result) bool {
		into[prefix+k.String()] = v.Value()
		return true
	})
}
