package rules

import (
	"regexp"
	"strings"
	"sync"

	"cdpharvest/pkg/domain"
)

// Mode URL 匹配方式
type Mode string

const (
	ModeContains Mode = "contains"
	ModePrefix   Mode = "prefix"
	ModeExact    Mode = "exact"
	ModeRegex    Mode = "regex"
	ModeGlob     Mode = "glob"
)

// Condition 单个 URL 条件
type Condition struct {
	Mode    Mode
	Pattern string
}

// ParseCondition 解析 "mode:pattern" 形式的模式，无前缀时按包含匹配
func ParseCondition(s string) Condition {
	for _, m := range []Mode{ModePrefix, ModeExact, ModeRegex, ModeGlob, ModeContains} {
		p := string(m) + ":"
		if strings.HasPrefix(s, p) {
			return Condition{Mode: m, Pattern: strings.TrimPrefix(s, p)}
		}
	}
	return Condition{Mode: ModeContains, Pattern: s}
}

// Rule 一个被跟踪的端点
type Rule struct {
	Kind  domain.RequestKind
	Facet string
	Cond  Condition
}

type Engine struct {
	rules []Rule
}

// New 创建规则引擎，按声明顺序匹配
func New(rs []Rule) *Engine { return &Engine{rules: rs} }

// ForEndpoints 根据列表端点与 facet 配置构建规则
func ForEndpoints(list string, facets []domain.Facet) *Engine {
	rs := []Rule{{Kind: domain.KindList, Cond: ParseCondition(list)}}
	for _, f := range facets {
		rs = append(rs, Rule{Kind: domain.KindFacet, Facet: f.Name, Cond: ParseCondition(f.Endpoint)})
	}
	return New(rs)
}

type Ctx struct {
	URL    string
	Method string
}

// Eval 返回第一个匹配的规则，排除 OPTIONS 预检请求
func (e *Engine) Eval(ctx Ctx, kind domain.RequestKind) *Rule {
	if strings.EqualFold(ctx.Method, "OPTIONS") {
		return nil
	}
	for i := range e.rules {
		r := &e.rules[i]
		if r.Kind != kind {
			continue
		}
		if Match(ctx.URL, r.Cond) {
			return r
		}
	}
	return nil
}

// Match 判断 URL 是否满足条件
func Match(s string, c Condition) bool {
	switch c.Mode {
	case ModePrefix:
		return strings.HasPrefix(s, c.Pattern)
	case ModeExact:
		return s == c.Pattern
	case ModeRegex:
		return matchRegex(s, c.Pattern)
	case ModeGlob:
		return glob(s, c.Pattern)
	default:
		return c.Pattern != "" && strings.Contains(s, c.Pattern)
	}
}

type regexStore struct {
	mu sync.RWMutex
	m  map[string]*regexp.Regexp
}

var regexCache = &regexStore{m: make(map[string]*regexp.Regexp)}

func (s *regexStore) Get(pattern string) (*regexp.Regexp, error) {
	s.mu.RLock()
	re, ok := s.m[pattern]
	s.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.m[pattern] = re
	s.mu.Unlock()
	return re, nil
}

func matchRegex(s, pattern string) bool {
	re, err := regexCache.Get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func glob(s, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(s, strings.TrimPrefix(pattern, "*")) {
		return true
	}
	if strings.HasSuffix(pattern, "*") && strings.HasPrefix(s, strings.TrimSuffix(pattern, "*")) {
		return true
	}
	return s == pattern
}
