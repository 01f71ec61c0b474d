package chatmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type denyConsent struct{}

func (denyConsent) HasConsent(ctx context.Context, userID string) bool { return false }

type allowConsent struct{}

func (allowConsent) HasConsent(ctx context.Context, userID string) bool { return true }

func TestRetrieveConsentOffDisablesMemory(t *testing.T) {
	svc := New(denyConsent{}, nil, nil, nil, DefaultConfig())
	res := svc.Retrieve(context.Background(), "u1", "s1", "what is my balance", nil)

	assert.Equal(t, 0, res.MemoryHitCount)
	assert.Empty(t, res.MemorySources)
	assert.Nil(t, res.InjectionMessages)
}

func TestRetrieveConsentOffWriteBackSkipped(t *testing.T) {
	svc := New(denyConsent{}, nil, nil, nil, DefaultConfig())
	id := svc.WriteBack(context.Background(), "u1", "s1", "hi", "hello")
	// WriteBack is only ever called post-gate by the caller; with no AAM wired
	// at all it is a no-op regardless, confirming no memory is written.
	assert.Empty(t, id)
}

func TestFormatInjectionClipsTotalLength(t *testing.T) {
	long := make([]string, 20)
	for i := range long {
		long[i] = "this line is moderately long and repeated to exceed the cap"
	}
	messages := formatInjection(long, nil, nil, 200)
	assert.Len(t, messages, 1)
	assert.LessOrEqual(t, len(messages[0]), 200)
}

func TestFormatInjectionEmptyWhenNoSections(t *testing.T) {
	messages := formatInjection(nil, nil, nil, 1800)
	assert.Nil(t, messages)
}
