package mcpclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	fail bool
}

func (f *fakeCaller) Call(ctx context.Context, method string, args map[string]any) (any, error) {
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return "ok", nil
}

func TestCallWithRetryFailsOverToHealthyEndpoint(t *testing.T) {
	e1 := &fakeCaller{fail: true}
	e2 := &fakeCaller{fail: false}
	e3 := &fakeCaller{fail: false}

	cfg := DefaultConfig()
	cfg.BackoffBase = 0
	pool := New(cfg, map[string]Caller{"E1": e1, "E2": e2, "E3": e3})
	// Force deterministic round robin starting at E1.
	order := []string{"E1", "E2", "E3"}
	byName := map[string]*Endpoint{}
	for _, e := range pool.endpoints {
		byName[e.Name] = e
	}
	pool.endpoints = []*Endpoint{byName[order[0]], byName[order[1]], byName[order[2]]}

	result, err := pool.CallWithRetry(context.Background(), "tools/list", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	stats, _ := pool.StatsAll()
	var e1Stats Stats
	for _, s := range stats {
		if s.Name == "E1" {
			e1Stats = s
		}
	}
	assert.False(t, e1Stats.Healthy)
	assert.Equal(t, int64(1), e1Stats.Failures)
}

func TestGetConnectionSkipsUnhealthyEndpoints(t *testing.T) {
	e1 := newEndpoint("E1", &fakeCaller{fail: true})
	e1.recordFailure(errors.New("down"))
	e2 := newEndpoint("E2", &fakeCaller{fail: false})

	pool := &Pool{cfg: DefaultConfig(), endpoints: []*Endpoint{e1, e2}}
	conn, err := pool.GetConnection()
	require.NoError(t, err)
	assert.Equal(t, "E2", conn.Name)
}

func TestCallWithRetryExhaustsAfterAllFail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffBase = 0
	cfg.MaxRetries = 2
	pool := New(cfg, map[string]Caller{"E1": &fakeCaller{fail: true}})

	_, err := pool.CallWithRetry(context.Background(), "tools/list", nil)
	assert.Error(t, err)
}
