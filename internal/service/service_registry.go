package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/observability"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

// Aggregate registry states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Sub-service names booted by the API.
const (
	ServiceOCR     = "ocr"
	ServiceLLM     = "llm"
	ServiceMapping = "mapping"
	ServiceGrading = "grading"
)

// ServiceInitializer builds one sub-service. Later initializers may read
// instances registered by earlier ones.
type ServiceInitializer struct {
	Name string
	Init func(ctx context.Context, registry *ServiceRegistry) (interface{}, error)
}

// InitRecord captures the outcome of the latest initialisation attempt.
type InitRecord struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
}

// ServiceHealth is the latest probe result of a registered instance.
type ServiceHealth struct {
	Name       string    `json:"name"`
	Healthy    bool      `json:"healthy"`
	LastCheck  time.Time `json:"last_check"`
	ErrorCount int       `json:"error_count"`
}

// HealthReport summarises the registry for the health endpoint.
type HealthReport struct {
	Status         string                   `json:"status"`
	Timestamp      time.Time                `json:"timestamp"`
	Initialized    int                      `json:"initialized"`
	Total          int                      `json:"total"`
	Services       map[string]ServiceHealth `json:"services"`
	Initialization map[string]InitRecord    `json:"initialization"`
}

// ServiceRegistry boots the pipeline sub-services and tracks their health.
type ServiceRegistry struct {
	initializers []ServiceInitializer
	policy       ai.RetryPolicy
	logger       zerolog.Logger
	now          func() time.Time

	mu        sync.RWMutex
	instances map[string]interface{}
	health    map[string]ServiceHealth
	records   map[string]InitRecord
	status    string
}

// NewServiceRegistry constructs a registry for the given initializers.
func NewServiceRegistry(initializers []ServiceInitializer, policy ai.RetryPolicy, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		initializers: initializers,
		policy:       policy,
		logger:       logger.With().Str("component", "service_registry").Logger(),
		now:          time.Now,
		instances:    make(map[string]interface{}),
		health:       make(map[string]ServiceHealth),
		records:      make(map[string]InitRecord),
		status:       StatusUnhealthy,
	}
}

// Initialize runs every initializer with retry and returns how many succeeded.
func (r *ServiceRegistry) Initialize(ctx context.Context) (int, int) {
	for _, initializer := range r.initializers {
		r.runInitializer(ctx, initializer)
	}

	initialized, total := r.recompute()
	r.logger.Info().
		Int("initialized", initialized).
		Int("total", total).
		Str("status", r.Status()).
		Msg("service initialisation finished")
	return initialized, total
}

// RestartFailedServices re-runs only the initializers whose last attempt failed.
func (r *ServiceRegistry) RestartFailedServices(ctx context.Context) int {
	restarted := 0
	for _, initializer := range r.initializers {
		r.mu.RLock()
		record, seen := r.records[initializer.Name]
		r.mu.RUnlock()
		if seen && record.Success {
			continue
		}

		if r.runInitializer(ctx, initializer) {
			restarted++
		}
	}

	r.recompute()
	r.logger.Info().Int("restarted", restarted).Str("status", r.Status()).Msg("failed services restarted")
	return restarted
}

// Register stores instance under name and probes it immediately.
func (r *ServiceRegistry) Register(ctx context.Context, name string, instance interface{}) ServiceHealth {
	r.mu.Lock()
	r.instances[name] = instance
	r.mu.Unlock()

	return r.probe(ctx, name, instance)
}

// CheckHealth re-probes every registered instance and returns the fresh report.
func (r *ServiceRegistry) CheckHealth(ctx context.Context) HealthReport {
	r.mu.RLock()
	instances := make(map[string]interface{}, len(r.instances))
	for name, instance := range r.instances {
		instances[name] = instance
	}
	r.mu.RUnlock()

	for name, instance := range instances {
		r.probe(ctx, name, instance)
	}

	r.mu.Lock()
	healthy := 0
	for _, initializer := range r.initializers {
		if h, ok := r.health[initializer.Name]; ok && h.Healthy {
			healthy++
		}
	}
	r.status = aggregateStatus(healthy, len(r.initializers))
	r.mu.Unlock()

	return r.Report()
}

// Report returns a snapshot without probing.
func (r *ServiceRegistry) Report() HealthReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := HealthReport{
		Status:         r.status,
		Timestamp:      r.now().UTC(),
		Total:          len(r.initializers),
		Services:       make(map[string]ServiceHealth, len(r.health)),
		Initialization: make(map[string]InitRecord, len(r.records)),
	}
	for name, h := range r.health {
		report.Services[name] = h
	}
	for name, record := range r.records {
		report.Initialization[name] = record
		if record.Success {
			report.Initialized++
		}
	}
	return report
}

// Status returns the aggregate registry status.
func (r *ServiceRegistry) Status() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Instance returns the registered instance for name.
func (r *ServiceRegistry) Instance(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instance, ok := r.instances[name]
	return instance, ok
}

func (r *ServiceRegistry) runInitializer(ctx context.Context, initializer ServiceInitializer) bool {
	var instance interface{}
	attempts, err := r.policy.Do(ctx, func(ctx context.Context) error {
		built, err := safeInit(ctx, initializer, r)
		if err != nil {
			r.logger.Warn().Err(err).Str("service", initializer.Name).Msg("service initialisation attempt failed")
			return err
		}
		instance = built
		return nil
	})

	record := InitRecord{
		Success:   err == nil,
		Timestamp: r.now().UTC(),
		Attempts:  attempts,
	}
	if err != nil {
		record.Error = err.Error()
		r.logger.Error().Err(err).Str("service", initializer.Name).Int("attempts", attempts).Msg("service failed to initialise")
	}

	r.mu.Lock()
	r.records[initializer.Name] = record
	r.mu.Unlock()

	if err != nil {
		observability.ServiceHealth().WithLabelValues(initializer.Name).Set(0)
		return false
	}

	r.Register(ctx, initializer.Name, instance)
	return true
}

func safeInit(ctx context.Context, initializer ServiceInitializer, registry *ServiceRegistry) (instance interface{}, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("initializer %s panicked: %v", initializer.Name, recovered)
		}
	}()
	if initializer.Init == nil {
		return nil, fmt.Errorf("initializer %s has no init function", initializer.Name)
	}
	return initializer.Init(ctx, registry)
}

func (r *ServiceRegistry) probe(ctx context.Context, name string, instance interface{}) ServiceHealth {
	healthy := probeInstance(ctx, instance)

	r.mu.Lock()
	h := r.health[name]
	h.Name = name
	h.Healthy = healthy
	h.LastCheck = r.now().UTC()
	if !healthy {
		h.ErrorCount++
	}
	r.health[name] = h
	r.mu.Unlock()

	gauge := 0.0
	if healthy {
		gauge = 1
	}
	observability.ServiceHealth().WithLabelValues(name).Set(gauge)
	return h
}

func probeInstance(ctx context.Context, instance interface{}) (healthy bool) {
	defer func() {
		if recover() != nil {
			healthy = false
		}
	}()

	switch checker := instance.(type) {
	case nil:
		return false
	case interface{ HealthCheck(context.Context) bool }:
		return checker.HealthCheck(ctx)
	case interface{ IsAvailable() bool }:
		return checker.IsAvailable()
	default:
		return true
	}
}

func (r *ServiceRegistry) recompute() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	initialized := 0
	for _, initializer := range r.initializers {
		if record, ok := r.records[initializer.Name]; ok && record.Success {
			initialized++
		}
	}
	r.status = aggregateStatus(initialized, len(r.initializers))
	return initialized, len(r.initializers)
}

func aggregateStatus(ok, total int) string {
	switch {
	case ok == total:
		return StatusHealthy
	case total > 0 && ok*2 >= total:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
