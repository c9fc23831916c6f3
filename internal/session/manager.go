package session

import (
	"sort"
	"sync"

	"cdpharvest/internal/logger"
	"cdpharvest/pkg/domain"
)

// Manager 进程内活动运行的登记表
type Manager struct {
	mu       sync.RWMutex
	sessions map[domain.RunID]*Session
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[domain.RunID]*Session),
		log:      l,
	}
}

// Create 创建并登记新会话
func (m *Manager) Create() *Session {
	s := New()
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.log.Info("创建采集会话", "runId", string(s.ID))
	return s
}

// Get 获取会话
func (m *Manager) Get(id domain.RunID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete 销毁会话
func (m *Manager) Delete(id domain.RunID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.log.Info("销毁采集会话", "runId", string(id))
}

// List 按开始时间返回所有活动会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt.Before(list[j].StartedAt) })
	return list
}
