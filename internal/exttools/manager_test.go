package exttools

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	lastEndpoint string
	lastHeaders  map[string]string
}

func (f *fakeInvoker) Invoke(ctx context.Context, endpoint string, headers map[string]string, name string, args map[string]any) (any, error) {
	f.lastEndpoint = endpoint
	f.lastHeaders = headers
	return "ok", nil
}

func TestRegisterResolvesEnvVars(t *testing.T) {
	os.Setenv("TEST_TOOL_KEY", "secret123")
	defer os.Unsetenv("TEST_TOOL_KEY")

	m := New(nil, &fakeInvoker{}, nil, nil)
	err := m.Register(context.Background(), Descriptor{
		Name:         "weather",
		RealEndpoint: "https://api.example.com",
		AuthType:     AuthAPIKey,
		AuthValue:    "${TEST_TOOL_KEY}",
	})
	require.NoError(t, err)

	d := m.Get("weather")
	require.NotNil(t, d)
	assert.Equal(t, "secret123", d.AuthValue)
}

func TestCallThroughProxyAddsAuditHeaders(t *testing.T) {
	invoker := &fakeInvoker{}
	m := New(nil, invoker, nil, nil)
	m.Register(context.Background(), Descriptor{
		Name:          "search",
		RealEndpoint:  "https://real.example.com",
		ProxyEndpoint: "https://gateway.example.com",
		HideIP:        true,
	})

	_, err := m.Call(context.Background(), "search", map[string]any{"q": "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.example.com", invoker.lastEndpoint)
	assert.Equal(t, "search", invoker.lastHeaders["X-Tool-Name"])
	assert.Equal(t, "https://real.example.com", invoker.lastHeaders["X-Real-Endpoint"])
	assert.Equal(t, "true", invoker.lastHeaders["X-Hide-IP"])
	assert.Equal(t, int64(1), m.CallCount("search"))
}

func TestCallUnknownToolErrors(t *testing.T) {
	m := New(nil, &fakeInvoker{}, nil, nil)
	_, err := m.Call(context.Background(), "missing", nil)
	assert.Error(t, err)
}
