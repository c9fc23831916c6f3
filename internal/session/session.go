package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cdpharvest/internal/ctxkeys"
	"cdpharvest/pkg/domain"
)

// Session 一次采集运行的显式上下文，运行开始时创建，结束时销毁
type Session struct {
	ID        domain.RunID
	StartedAt time.Time

	phase  atomic.Int32
	target atomic.Value // domain.TargetInfo
}

// New 创建带随机 ID 的会话
func New() *Session {
	return &Session{ID: domain.RunID(uuid.NewString()), StartedAt: time.Now()}
}

// Context 将运行 ID 写入 ctx，供日志与存储关联
func (s *Session) Context(ctx context.Context) context.Context {
	return ctxkeys.WithTraceID(ctx, string(s.ID))
}

func (s *Session) SetPhase(p domain.Phase) { s.phase.Store(int32(p)) }

func (s *Session) Phase() domain.Phase { return domain.Phase(s.phase.Load()) }

func (s *Session) SetTarget(t domain.TargetInfo) { s.target.Store(t) }

func (s *Session) Target() domain.TargetInfo {
	t, _ := s.target.Load().(domain.TargetInfo)
	return t
}

// Elapsed 自开始以来的时长
func (s *Session) Elapsed() time.Duration { return time.Since(s.StartedAt) }
