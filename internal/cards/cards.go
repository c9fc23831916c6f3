package cards

import (
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"

	"cdpharvest/pkg/domain"
)

// Datum 时间序列中的一个点
type Datum struct {
	Timestamp     string  `json:"timestamp"`
	UnixTimestamp int64   `json:"unix_timestamp"`
	Value         float64 `json:"value"`
}

// Extract 将分析面板的 cards 响应归一化为指标集合。
// id 用于从留存卡片的多视频数据中挑出当前实体。
func Extract(body []byte, id string) (domain.FacetMetrics, error) {
	root := gjson.ParseBytes(body)
	list := root.Get("cards")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: response has no cards array", domain.ErrPayloadShape)
	}
	out := make(domain.FacetMetrics)
	list.ForEach(func(_, card gjson.Result) bool {
		keyMetrics(card.Get("keyMetricCardData.keyMetricTabs"), out)
		retention(card.Get("audienceRetentionHighlightsCardData.videosData"), id, out)
		if title := card.Get("personalizedHeaderCardData.title").String(); title != "" {
			out["header_title"] = title
		}
		return true
	})
	return out, nil
}

func keyMetrics(tabs gjson.Result, out domain.FacetMetrics) {
	tabs.ForEach(func(_, tab gjson.Result) bool {
		pc := tab.Get("primaryContent")
		metric := pc.Get("metric").String()
		total := pc.Get("total")
		if metric == "" || !total.Exists() {
			return true
		}
		out[metric] = total.Value()
		if datums := pc.Get("mainSeries.datums"); datums.IsArray() && len(datums.Array()) > 0 {
			series := make([]Datum, 0, len(datums.Array()))
			datums.ForEach(func(_, d gjson.Result) bool {
				x := d.Get("x").Int()
				series = append(series, Datum{Timestamp: timestamp(x), UnixTimestamp: x, Value: d.Get("y").Float()})
				return true
			})
			out[metric+"_timeseries"] = series
		}
		return true
	})
}

func retention(videos gjson.Result, id string, out domain.FacetMetrics) {
	videos.ForEach(func(_, v gjson.Result) bool {
		if v.Get("videoId").String() != id {
			return true
		}
		totals := v.Get("metricTotals")
		if ms := totals.Get("avgViewDurationMillis").Float(); ms != 0 {
			out["avg_view_duration_seconds"] = math.Round(ms / 1000)
		}
		if pct := totals.Get("avgPercentageWatched").Float(); pct != 0 {
			out["avg_percentage_watched"] = math.Round(pct*10000) / 100
		}
		if views := totals.Get("views"); views.Exists() {
			if _, ok := out["retention_views"]; !ok {
				out["retention_views"] = views.Value()
			}
		}
		return false
	})
}

// timestamp 秒或毫秒级时间戳转为 RFC3339
func timestamp(x int64) string {
	if x <= 0 {
		return ""
	}
	if x > 1e12 {
		return time.UnixMilli(x).UTC().Format(time.RFC3339)
	}
	return time.Unix(x, 0).UTC().Format(time.RFC3339)
}
