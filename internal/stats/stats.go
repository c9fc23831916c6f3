package stats

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdpharvest/internal/logger"
)

const namespace = "cdpharvest"

// Stats 运行期计数器。所有方法对 nil 接收者安全。
type Stats struct {
	reg *prometheus.Registry

	Captures *prometheus.CounterVec
	Pages    prometheus.Counter
	Replays  *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Records  prometheus.Counter
	Entities prometheus.Gauge
}

// New 创建独立注册表上的计数器
func New() *Stats {
	reg := prometheus.NewRegistry()
	s := &Stats{
		reg: reg,
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "captures_total",
			Help: "Successful browser requests promoted to captures.",
		}, []string{"kind"}),
		Pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "list_pages_total",
			Help: "Entity list pages fetched.",
		}),
		Replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "replays_total",
			Help: "Out-of-band replays by endpoint kind and result.",
		}, []string{"kind", "result"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "failures_total",
			Help: "Recovered or fatal failures by error kind and unit of work.",
		}, []string{"kind", "unit"}),
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_total",
			Help: "Entity records finalized.",
		}),
		Entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "entities",
			Help: "Entities collected by the list phase.",
		}),
	}
	reg.MustRegister(s.Captures, s.Pages, s.Replays, s.Failures, s.Records, s.Entities)
	return s
}

func (s *Stats) Capture(kind string) {
	if s != nil {
		s.Captures.WithLabelValues(kind).Inc()
	}
}

func (s *Stats) Page() {
	if s != nil {
		s.Pages.Inc()
	}
}

func (s *Stats) Replay(kind, result string) {
	if s != nil {
		s.Replays.WithLabelValues(kind, result).Inc()
	}
}

func (s *Stats) Failure(kind, unit string) {
	if s != nil {
		s.Failures.WithLabelValues(kind, unit).Inc()
	}
}

func (s *Stats) Record() {
	if s != nil {
		s.Records.Inc()
	}
}

func (s *Stats) SetEntities(n int) {
	if s != nil {
		s.Entities.Set(float64(n))
	}
}

// Registry 返回底层注册表
func (s *Stats) Registry() *prometheus.Registry { return s.reg }

// Handler 返回 /metrics 处理器
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics，ctx 结束时关闭
func (s *Stats) Serve(ctx context.Context, addr string, l logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	l.Info("指标服务已启动", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
