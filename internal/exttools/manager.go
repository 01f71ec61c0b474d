// Package exttools implements the external tool manager (C11): descriptor
// loading with env-var substitution, gateway proxying with audit headers,
// auto-discovery via tools/list, and a periodic refresh/diff loop. Grounded
// in genai/workflows/infra/mcp_gateway_client.py from original_source/.
package exttools

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AuthType selects how a descriptor authenticates against its endpoint.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer"
	AuthOAuth2 AuthType = "oauth2"
)

// Descriptor is one external MCP tool's registration record.
type Descriptor struct {
	Name          string
	RealEndpoint  string
	ProxyEndpoint string
	AuthType      AuthType
	AuthValue     string
	HideIP        bool
	AutoDiscover  bool
	InputSchema   map[string]any
}

// Lister discovers a tool's input schema via tools/list on its endpoint.
type Lister interface {
	ListTools(ctx context.Context, endpoint string) (map[string]map[string]any, error)
}

// Invoker performs the actual call, either directly or via the proxy.
type Invoker interface {
	Invoke(ctx context.Context, endpoint string, headers map[string]string, name string, args map[string]any) (any, error)
}

// AuditSink receives one record per call for compliance/audit logging.
type AuditSink interface {
	Record(entry AuditEntry)
}

// AuditEntry is one gateway call's audit trail.
type AuditEntry struct {
	ToolName string
	Success  bool
	LatencyMS int64
	At       time.Time
}

// Metrics receives (tool_name, success, latency) for every call path.
type Metrics interface {
	Observe(toolName string, success bool, latency time.Duration)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Z0-9_]+)\}`)

func resolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// Manager owns the registered descriptor set and dispatches calls through
// the gateway, recording metrics and audit entries.
type Manager struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	lister      Lister
	invoker     Invoker
	metrics     Metrics
	audit       AuditSink
	callCounts  map[string]int64
	log         *logrus.Entry
	stopCh      chan struct{}
}

// New builds an external tool manager.
func New(lister Lister, invoker Invoker, metrics Metrics, audit AuditSink) *Manager {
	return &Manager{
		descriptors: make(map[string]*Descriptor),
		lister:      lister,
		invoker:     invoker,
		metrics:     metrics,
		audit:       audit,
		callCounts:  make(map[string]int64),
		log:         logrus.WithField("component", "exttools_manager"),
		stopCh:      make(chan struct{}),
	}
}

// Register resolves env-var references, optionally auto-discovers the input
// schema, and adds the descriptor to the registry.
func (m *Manager) Register(ctx context.Context, d Descriptor) error {
	d.RealEndpoint = resolveEnvVars(d.RealEndpoint)
	d.ProxyEndpoint = resolveEnvVars(d.ProxyEndpoint)
	d.AuthValue = resolveEnvVars(d.AuthValue)

	if d.AutoDiscover && m.lister != nil {
		schemas, err := m.lister.ListTools(ctx, d.RealEndpoint)
		if err != nil {
			m.log.WithError(err).WithField("tool", d.Name).Warn("auto-discover failed")
		} else if schema, ok := schemas[d.Name]; ok {
			d.InputSchema = schema
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := d
	m.descriptors[d.Name] = &cp
	return nil
}

// Unregister removes a descriptor by name.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.descriptors, name)
}

// Get returns a descriptor snapshot, or nil if not registered.
func (m *Manager) Get(name string) *Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.descriptors[name]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

// Call routes a tool invocation through the proxy when configured, attaching
// audit/routing headers, and records metrics and an audit entry.
func (m *Manager) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	d := m.Get(name)
	if d == nil {
		return nil, fmt.Errorf("exttools: unknown tool %q", name)
	}

	endpoint := d.RealEndpoint
	headers := map[string]string{}
	if d.ProxyEndpoint != "" {
		endpoint = d.ProxyEndpoint
		headers["X-Tool-Name"] = d.Name
		headers["X-Real-Endpoint"] = d.RealEndpoint
		if d.HideIP {
			headers["X-Hide-IP"] = "true"
		}
	}
	switch d.AuthType {
	case AuthAPIKey:
		headers["X-API-Key"] = d.AuthValue
	case AuthBearer:
		headers["Authorization"] = "Bearer " + d.AuthValue
	}

	start := time.Now()
	result, err := m.invoker.Invoke(ctx, endpoint, headers, name, args)
	latency := time.Since(start)
	success := err == nil

	m.mu.Lock()
	m.callCounts[name]++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Observe(name, success, latency)
	}
	if m.audit != nil {
		m.audit.Record(AuditEntry{ToolName: name, Success: success, LatencyMS: latency.Milliseconds(), At: start})
	}
	return result, err
}

// CallCount returns how many times a tool has been invoked.
func (m *Manager) CallCount(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCounts[name]
}

// StartRefreshLoop diffs a live descriptor source against the registry every
// interval, registering new tools and unregistering removed ones. It runs no
// health checks against the registered tools.
func (m *Manager) StartRefreshLoop(interval time.Duration, source func() []Descriptor) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.diff(source())
			}
		}
	}()
}

func (m *Manager) diff(latest []Descriptor) {
	want := make(map[string]bool, len(latest))
	for _, d := range latest {
		want[d.Name] = true
		if err := m.Register(context.Background(), d); err != nil {
			m.log.WithError(err).WithField("tool", d.Name).Warn("refresh register failed")
		}
	}
	m.mu.Lock()
	var stale []string
	for name := range m.descriptors {
		if !want[name] {
			stale = append(stale, name)
		}
	}
	m.mu.Unlock()
	for _, name := range stale {
		m.Unregister(name)
	}
}

// Stop halts the refresh loop.
func (m *Manager) Stop() {
	close(m.stopCh)
}
