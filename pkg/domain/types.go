package domain

import (
	"time"

	"cdpharvest/pkg/traffic"
)

type RunID string
type TargetID string

// RequestKind 被跟踪请求的类型
type RequestKind string

const (
	KindList  RequestKind = "list"
	KindFacet RequestKind = "facet"
)

// Phase 采集阶段
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseList
	PhaseFacets
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseList:
		return "list"
	case PhaseFacets:
		return "facets"
	case PhaseDone:
		return "done"
	default:
		return "idle"
	}
}

// RequestSent 浏览器即将发送请求的通知
type RequestSent struct {
	RequestID   string
	URL         string
	Method      string
	Headers     traffic.Header
	PostData    string
	HasPostData bool
	Timestamp   time.Time
}

// ResponseReceived 浏览器收到响应的通知
type ResponseReceived struct {
	RequestID string
	URL       string
	Status    int
}

// PendingRequest 已发送但尚未收到响应的被跟踪请求
type PendingRequest struct {
	Request   RequestSent
	RequestID string
	FirstSeen time.Time
	Kind      RequestKind
	Facet     string // 仅 KindFacet
}

// CapturedRequest 一次成功的浏览器请求，捕获后只读
type CapturedRequest struct {
	URL        string
	Method     string
	Headers    traffic.Header
	Body       []byte
	RequestID  string
	CapturedAt time.Time
	Kind       RequestKind
	Facet      string
}

// Facet 每个实体需要采集的一个分析视图
type Facet struct {
	Name        string `yaml:"name" json:"name"`
	Navigation  string `yaml:"navigation" json:"navigation"` // 含 {id} 占位符
	Endpoint    string `yaml:"endpoint" json:"endpoint"`
	Description string `yaml:"description" json:"description"`
}

// Entity 第一阶段列出的条目（如一个视频）
type Entity struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Attributes map[string]any `json:"attributes"`
}

// FacetMetrics 单个 facet 归一化后的指标
type FacetMetrics map[string]any

// EntityRecord 每个实体的最终采集结果
type EntityRecord struct {
	ID          string                  `json:"id"`
	Entity      *Entity                 `json:"entity"`
	Facets      map[string]FacetMetrics `json:"facets"`
	CollectedAt time.Time               `json:"collectedAt"`
}

// SkippedItem 被可见性过滤掉的条目
type SkippedItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

type TargetInfo struct {
	ID    TargetID `json:"id"`
	Type  string   `json:"type"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
}
