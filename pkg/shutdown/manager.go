package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shutdown_duration_seconds",
		Help:    "Total time taken to shutdown gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// ShutdownFunc shuts down one component
type ShutdownFunc func(context.Context) error

type component struct {
	name string
	fn   ShutdownFunc
}

// Manager coordinates graceful shutdown. Components shut down in REVERSE
// registration order: workers first (stop generating work), then HTTP
// servers, then the database.
type Manager struct {
	logger     *zap.Logger
	components []component
	mu         sync.Mutex
	timeout    time.Duration
}

// NewManager creates a new shutdown manager
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a shutdown function, to be called in LIFO order
func (sm *Manager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.components = append(sm.components, component{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then shuts everything down
func (sm *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	sm.logger.Info("Received shutdown signal",
		zap.String("signal", sig.String()),
		zap.Duration("timeout", sm.timeout),
	)
	sm.Shutdown()
}

// Shutdown runs all registered shutdown functions in reverse order
func (sm *Manager) Shutdown() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	components := make([]component, len(sm.components))
	copy(components, sm.components)
	sm.mu.Unlock()

	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		compStart := time.Now()
		if err := c.fn(ctx); err != nil {
			shutdownErrors.WithLabelValues(c.name).Inc()
			sm.logger.Error("Component shutdown failed",
				zap.String("component", c.name),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(compStart)),
			)
			continue
		}
		sm.logger.Info("Component shut down",
			zap.String("component", c.name),
			zap.Duration("elapsed", time.Since(compStart)),
		)
	}

	shutdownDuration.Observe(time.Since(start).Seconds())
	sm.logger.Info("Graceful shutdown completed", zap.Duration("elapsed", time.Since(start)))
}
