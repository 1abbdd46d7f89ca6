package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onenight-backend/internal/metrics"
)

// Factory builds the controller for a new workspace.
type Factory func(id uuid.UUID) *Controller

// Registry holds the live workspaces and evicts the ones left idle.
type Registry struct {
	mu          sync.RWMutex
	controllers map[uuid.UUID]*Controller

	newController Factory
	idleTTL       time.Duration
	sweepEvery    time.Duration
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
	stopChan      chan struct{}
}

func NewRegistry(factory Factory, idleTTL time.Duration, m *metrics.Metrics, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	sweepEvery := idleTTL / 4
	if sweepEvery > time.Minute || sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &Registry{
		controllers:   make(map[uuid.UUID]*Controller),
		newController: factory,
		idleTTL:       idleTTL,
		sweepEvery:    sweepEvery,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
}

// Create registers a fresh workspace.
func (r *Registry) Create() *Controller {
	return r.GetOrCreate(uuid.New())
}

func (r *Registry) Get(id uuid.UUID) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[id]
	return c, ok
}

// GetOrCreate returns the workspace's controller, starting a new one in setup
// when the workspace was evicted or the server restarted.
func (r *Registry) GetOrCreate(id uuid.UUID) *Controller {
	if c, ok := r.Get(id); ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[id]; ok {
		return c
	}
	c := r.newController(id)
	r.controllers[id] = c
	r.metrics.SetWorkspaces(len(r.controllers))
	return c
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}

// Start runs the idle janitor until Stop.
func (r *Registry) Start() {
	if r.idleTTL <= 0 {
		return
	}
	go r.loop()
	r.logger.Info("workspace janitor started", zap.Duration("idle_ttl", r.idleTTL))
}

func (r *Registry) Stop() {
	select {
	case <-r.stopChan:
		return
	default:
		close(r.stopChan)
	}
}

func (r *Registry) loop() {
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Sweep closes and forgets every workspace idle for longer than the TTL and
// returns how many were evicted.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var idle []*Controller
	for id, c := range r.controllers {
		if now.Sub(c.LastActive()) > r.idleTTL {
			idle = append(idle, c)
			delete(r.controllers, id)
		}
	}
	r.metrics.SetWorkspaces(len(r.controllers))
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
		r.logger.Info("evicted idle workspace", zap.String("workspace_id", c.ID().String()))
	}
	return len(idle)
}

// CloseAll shuts every workspace down on server exit.
func (r *Registry) CloseAll() {
	r.Stop()

	r.mu.Lock()
	all := make([]*Controller, 0, len(r.controllers))
	for id, c := range r.controllers {
		all = append(all, c)
		delete(r.controllers, id)
	}
	r.metrics.SetWorkspaces(0)
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}
