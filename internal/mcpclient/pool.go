// Package mcpclient implements the MCP client + connection pool (C10):
// strategy-based load balancing over multiple MCP endpoints with health
// checks and retry/backoff, grounded in mcp/client/client.py's retry
// semantics from original_source/. The pool delegates every call to a
// caller-supplied Caller; it contains no MCP transport or session handling
// of its own.
package mcpclient

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Strategy selects how the pool picks the next endpoint.
type Strategy string

const (
	RoundRobin      Strategy = "round_robin"
	Random          Strategy = "random"
	LeastConnections Strategy = "least_connections"
)

// Caller is the per-endpoint transport, supplied by the code that builds the
// pool; tests use a fake.
type Caller interface {
	Call(ctx context.Context, method string, args map[string]any) (any, error)
}

// Endpoint is one pool member: its caller plus health/stat bookkeeping.
type Endpoint struct {
	Name    string
	Caller  Caller

	mu          sync.Mutex
	healthy     bool
	successes   int64
	failures    int64
	lastError   error
	lastChecked time.Time
}

func newEndpoint(name string, caller Caller) *Endpoint {
	return &Endpoint{Name: name, Caller: caller, healthy: true, lastChecked: time.Now()}
}

// Stats is the per-endpoint observability snapshot.
type Stats struct {
	Name        string
	Healthy     bool
	Successes   int64
	Failures    int64
	LastError   string
	LastChecked time.Time
}

func (e *Endpoint) snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	errMsg := ""
	if e.lastError != nil {
		errMsg = e.lastError.Error()
	}
	return Stats{Name: e.Name, Healthy: e.healthy, Successes: e.successes, Failures: e.failures, LastError: errMsg, LastChecked: e.lastChecked}
}

func (e *Endpoint) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successes++
	e.healthy = true
	e.lastChecked = time.Now()
}

func (e *Endpoint) recordFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures++
	e.healthy = false
	e.lastError = err
	e.lastChecked = time.Now()
}

func (e *Endpoint) isHealthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

// Config tunes the pool's strategy, retries and health-check cadence.
type Config struct {
	Strategy             Strategy
	MaxRetries           int
	HealthCheckInterval  time.Duration
	BackoffBase          time.Duration
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:            RoundRobin,
		MaxRetries:          3,
		HealthCheckInterval: 30 * time.Second,
		BackoffBase:         200 * time.Millisecond,
	}
}

// Pool load-balances calls across a fixed set of MCP endpoints.
type Pool struct {
	cfg       Config
	endpoints []*Endpoint
	mu        sync.Mutex
	rrCursor  int
	log       *logrus.Entry
	stopCh    chan struct{}
}

// New builds a pool over the given named endpoints.
func New(cfg Config, endpoints map[string]Caller) *Pool {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	p := &Pool{cfg: cfg, log: logrus.WithField("component", "mcpclient_pool"), stopCh: make(chan struct{})}
	for name, caller := range endpoints {
		p.endpoints = append(p.endpoints, newEndpoint(name, caller))
	}
	return p
}

// StartHealthChecks launches the background health-check loop; ping is
// called against each endpoint on each tick.
func (p *Pool) StartHealthChecks(ping func(ctx context.Context, e *Endpoint) error) {
	go func() {
		ticker := time.NewTicker(p.cfg.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				for _, e := range p.endpoints {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					err := ping(ctx, e)
					cancel()
					if err != nil {
						e.recordFailure(err)
					} else {
						e.recordSuccess()
					}
				}
			}
		}
	}()
}

// Stop halts the health-check loop.
func (p *Pool) Stop() {
	close(p.stopCh)
}

// GetConnection selects a healthy endpoint per the configured strategy,
// skipping unhealthy ones until their health check reinstates them.
func (p *Pool) GetConnection() (*Endpoint, error) {
	healthy := make([]*Endpoint, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		if e.isHealthy() {
			healthy = append(healthy, e)
		}
	}
	if len(healthy) == 0 {
		return nil, fmt.Errorf("mcpclient: no healthy endpoints")
	}
	switch p.cfg.Strategy {
	case Random:
		return healthy[rand.Intn(len(healthy))], nil
	case LeastConnections:
		best := healthy[0]
		for _, e := range healthy[1:] {
			if e.snapshot().Failures < best.snapshot().Failures {
				best = e
			}
		}
		return best, nil
	default:
		p.mu.Lock()
		defer p.mu.Unlock()
		e := healthy[p.rrCursor%len(healthy)]
		p.rrCursor++
		return e, nil
	}
}

// CallWithRetry selects a healthy endpoint, calls it, and on failure marks
// it unhealthy, backs off linearly and retries on a different endpoint, up
// to max_retries.
func (p *Pool) CallWithRetry(ctx context.Context, method string, args map[string]any) (any, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		endpoint, err := p.GetConnection()
		if err != nil {
			return nil, err
		}
		result, err := endpoint.Caller.Call(ctx, method, args)
		if err == nil {
			endpoint.recordSuccess()
			return result, nil
		}
		endpoint.recordFailure(err)
		lastErr = err
		p.log.WithError(err).WithField("endpoint", endpoint.Name).Warn("call failed, retrying")
		time.Sleep(time.Duration(attempt+1) * p.cfg.BackoffBase)
	}
	return nil, fmt.Errorf("mcpclient: call_with_retry exhausted after %d attempts: %w", p.cfg.MaxRetries, lastErr)
}

// StatsAll returns per-endpoint stats plus aggregate totals.
func (p *Pool) StatsAll() ([]Stats, Stats) {
	var all []Stats
	var agg Stats
	agg.Name = "aggregate"
	agg.Healthy = true
	for _, e := range p.endpoints {
		s := e.snapshot()
		all = append(all, s)
		agg.Successes += s.Successes
		agg.Failures += s.Failures
		if !s.Healthy {
			agg.Healthy = false
		}
	}
	return all, agg
}
