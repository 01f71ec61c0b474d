package coref

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRulePathSubstitutesPronounAndNoun(t *testing.T) {
	r := New(nil, nil)
	res := r.Resolve(context.Background(), "這個料號庫存還有多少", map[string]string{"part_number": "RM05-008"}, nil)

	assert.Equal(t, "RM05-008庫存還有多少", res.ResolvedQuery)
	assert.Equal(t, "RM05-008", res.Entities["part_number"])
	assert.Contains(t, []Method{MethodAAM, MethodRule}, res.Method)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
}

func TestResolveEllipsisPathPrefixesEntityValue(t *testing.T) {
	r := New(nil, nil)
	res := r.Resolve(context.Background(), "庫存還有多少", map[string]string{"part_number": "ABC-123"}, nil)

	assert.True(t, strings.HasPrefix(res.ResolvedQuery, "ABC-123 "))
	assert.Equal(t, "ABC-123", res.Entities["part_number"])
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
}

func TestResolveNoContextFallsThroughToNone(t *testing.T) {
	r := New(nil, nil)
	res := r.Resolve(context.Background(), "庫存還有多少", nil, nil)
	assert.Equal(t, MethodNone, res.Method)
}

type fakeLLM struct {
	resolved string
	entities map[string]string
}

func (f *fakeLLM) ResolveReference(ctx context.Context, query string, history []string) (string, map[string]string, error) {
	return f.resolved, f.entities, nil
}

func TestResolveLLMFallbackWhenRuleAndAAMFail(t *testing.T) {
	r := New(nil, &fakeLLM{resolved: "widget-9 status", entities: map[string]string{"part_number": "widget-9"}})
	res := r.Resolve(context.Background(), "status", nil, []string{"earlier turn"})
	assert.Equal(t, MethodLLM, res.Method)
	assert.Equal(t, "widget-9", res.Entities["part_number"])
}
