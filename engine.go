package modeller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Spyderisk/system-modeller-sub004/domain"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

// Engine holds the loaded domain models and runs assessments against them.
// Validators are built on first use per domain version and reused, so each
// domain's patterns are compiled once. Engine is safe for concurrent use.
type Engine struct {
	cfg    engineConfig
	logger *slog.Logger

	mu         sync.RWMutex
	domains    map[string]*domain.Model
	validators map[string]*validator.Validator
}

// NewEngine creates an engine with no domain models loaded.
//
// Example:
//
//	engine := modeller.NewEngine(
//	    modeller.WithLogger(logger),
//	    modeller.WithConcurrency(8),
//	)
//	if _, err := engine.LoadDomain("domains/network.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	assessment, err := engine.Assess(ctx, "network", "", input)
func NewEngine(opts ...EngineOption) *Engine {
	cfg := engineConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Engine{
		cfg:        cfg,
		logger:     cfg.logger,
		domains:    make(map[string]*domain.Model),
		validators: make(map[string]*validator.Validator),
	}
}

// LoadDomain loads a domain model file and registers it.
func (e *Engine) LoadDomain(path string) (*domain.Model, error) {
	m, err := domain.Load(path)
	if err != nil {
		return nil, NewValidationError("Engine.LoadDomain", err).WithContext(map[string]any{"path": path})
	}
	if err := e.RegisterDomain(m); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadDomainDir loads and registers every domain model file in dir.
func (e *Engine) LoadDomainDir(dir string) ([]*domain.Model, error) {
	models, err := domain.LoadDir(dir)
	if err != nil {
		return nil, NewValidationError("Engine.LoadDomainDir", err).WithContext(map[string]any{"dir": dir})
	}
	for _, m := range models {
		if err := e.RegisterDomain(m); err != nil {
			return nil, err
		}
	}
	return models, nil
}

// RegisterDomain validates m and makes it available to Assess. Registering
// a name and version again replaces the earlier model.
func (e *Engine) RegisterDomain(m *domain.Model) error {
	if m == nil {
		return NewValidationError("Engine.RegisterDomain", domain.ErrInvalidModel)
	}
	if err := m.Validate(); err != nil {
		return NewValidationError("Engine.RegisterDomain", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.domains[m.Key()] = m
	delete(e.validators, m.Key())

	e.logger.Info("domain model registered",
		"domain", m.Name,
		"version", m.Version,
		"patterns", len(m.Patterns),
		"threats", len(m.Threats),
	)
	return nil
}

// Domain returns the registered model with the given name and version.
// An empty version selects the highest registered version.
func (e *Engine) Domain(name, version string) (*domain.Model, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lookup(name, version)
}

func (e *Engine) lookup(name, version string) (*domain.Model, error) {
	if version != "" {
		if m, ok := e.domains[name+"@"+version]; ok {
			return m, nil
		}
	} else {
		all := make([]*domain.Model, 0, len(e.domains))
		for _, m := range e.domains {
			all = append(all, m)
		}
		if m, ok := domain.Latest(all, name); ok {
			return m, nil
		}
	}
	return nil, NewNotFoundError("Engine.Domain", ErrDomainNotFound).WithContext(map[string]any{
		"name":    name,
		"version": version,
	})
}

// Domains returns the keys ("name@version") of the registered models, sorted.
func (e *Engine) Domains() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.domains))
	for k := range e.domains {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Assess validates a system model against a registered domain model.
// An empty version selects the highest registered version. An expired ctx
// is not an error: the searches it cut short are listed in
// Assessment.Incomplete.
func (e *Engine) Assess(ctx context.Context, name, version string, in validator.Input) (*validator.Assessment, error) {
	v, err := e.validator(name, version)
	if err != nil {
		return nil, err
	}

	a, err := v.Run(ctx, in)
	if err != nil {
		if errors.Is(err, validator.ErrInvalidInput) {
			return nil, NewValidationError("Engine.Assess", err)
		}
		return nil, NewExecutionError("Engine.Assess", fmt.Errorf("%w: %w", ErrAssessmentFailed, err))
	}
	return a, nil
}

func (e *Engine) validator(name, version string) (*validator.Validator, error) {
	e.mu.RLock()
	m, err := e.lookup(name, version)
	if err != nil {
		e.mu.RUnlock()
		return nil, err
	}
	v, ok := e.validators[m.Key()]
	e.mu.RUnlock()
	if ok {
		return v, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.validators[m.Key()]; ok {
		return v, nil
	}
	if current, ok := e.domains[m.Key()]; ok {
		m = current
	}
	v, err = validator.New(m, e.validatorOptions()...)
	if err != nil {
		return nil, NewInternalError("Engine.Assess", err)
	}
	e.validators[m.Key()] = v
	return v, nil
}

func (e *Engine) validatorOptions() []validator.Option {
	opts := []validator.Option{
		validator.WithLogger(e.logger),
		validator.WithTracer(e.cfg.tracer),
		validator.WithMeter(e.cfg.meter),
		validator.WithConcurrency(e.cfg.concurrency),
		validator.WithSearchTimeout(e.cfg.searchTimeout),
		validator.WithNamespace(e.cfg.namespace),
	}
	if e.cfg.maxExpansions != nil {
		opts = append(opts, validator.WithMaxExpansions(*e.cfg.maxExpansions))
	}
	if e.cfg.policy != nil {
		opts = append(opts, validator.WithPresencePolicy(e.cfg.policy))
	}
	return opts
}
