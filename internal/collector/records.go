package collector

import (
	"sync"

	"cdpharvest/pkg/domain"
)

// RecordSet 按实体 ID 去重的结果集合，保持插入顺序
type RecordSet struct {
	mu    sync.Mutex
	order []string
	byID  map[string]domain.EntityRecord
}

func NewRecordSet() *RecordSet {
	return &RecordSet{byID: make(map[string]domain.EntityRecord)}
}

// Add 追加记录，ID 已存在时忽略并返回 false
func (s *RecordSet) Add(r domain.EntityRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.ID]; ok {
		return false
	}
	s.byID[r.ID] = r
	s.order = append(s.order, r.ID)
	return true
}

// Get 按 ID 查找记录
func (s *RecordSet) Get(id string) (domain.EntityRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	return r, ok
}

func (s *RecordSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Records 按插入顺序返回快照
func (s *RecordSet) Records() []domain.EntityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EntityRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}
