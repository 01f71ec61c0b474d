// Package coref resolves pronouns and ellipsis in follow-up queries against
// context entities carried over from earlier turns. It is grounded in
// datalake-system/mm_agent/coreference_resolver.py from original_source/:
// the near/far/personal pronoun groups and the ellipsis-prefix rule are
// carried over in meaning, re-expressed idiomatically in Go.
package coref

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/agentic-memory/aam-platform/internal/memory"
)

// Method identifies which stage of the three-stage pipeline resolved a query.
type Method string

const (
	MethodRule Method = "rule"
	MethodAAM  Method = "aam"
	MethodLLM  Method = "llm"
	MethodNone Method = "none"
)

// Result carries the resolved query, any entities the resolution bound, the
// stage that produced it, and a confidence in [0,1].
type Result struct {
	ResolvedQuery string
	Entities      map[string]string
	Method        Method
	Confidence    float64
}

// LLMFallback is the interface the third pipeline stage calls when rule and
// AAM-based resolution both fail to bind any entity.
type LLMFallback interface {
	ResolveReference(ctx context.Context, query string, history []string) (resolvedQuery string, entities map[string]string, err error)
}

// nearPronouns, farPronouns and personalPronouns mirror the three Chinese
// pronoun groups from the original resolver: near-demonstrative, far-
// demonstrative, and personal.
var (
	nearPronouns     = []string{"這個", "那個", "它", "此", "是"}
	farPronouns      = []string{"那個", "那", "是"}
	personalPronouns = []string{"他", "她", "它"}
)

// domainNouns maps a recommended entity_type to the Chinese noun a pronoun
// commonly precedes when referring to it, e.g. "這個料號" for part_number.
var domainNouns = map[string]string{
	"part_number": "料號",
	"tlf19":       "TLF19",
}

// Resolver runs the rule-based substitution stage, falls back to an AAM
// long-term memory match, and finally to an LLM-backed fallback.
type Resolver struct {
	aam *memory.AAM
	llm LLMFallback
	log *logrus.Entry
}

// New builds a resolver. aam and llm may be nil to disable their stage.
func New(aam *memory.AAM, llm LLMFallback) *Resolver {
	return &Resolver{aam: aam, llm: llm, log: logrus.WithField("component", "coref_resolver")}
}

// Resolve runs the three-stage pipeline against the given query and context
// entities (typically carried forward from the current session).
func (r *Resolver) Resolve(ctx context.Context, query string, contextEntities map[string]string, history []string) Result {
	if res, ok := r.resolveByRule(query, contextEntities); ok {
		return res
	}
	if res, ok := r.resolveByAAM(ctx, query, contextEntities); ok {
		return res
	}
	if r.llm != nil {
		resolved, entities, err := r.llm.ResolveReference(ctx, query, history)
		if err == nil && len(entities) > 0 {
			return Result{ResolvedQuery: resolved, Entities: entities, Method: MethodLLM, Confidence: 0.6}
		}
		if err != nil {
			r.log.WithError(err).Warn("llm fallback failed")
		}
	}
	return Result{ResolvedQuery: query, Entities: map[string]string{}, Method: MethodNone, Confidence: 0}
}

// resolveByRule substitutes pronoun+domain-noun phrases (e.g. "這個料號")
// with the bound entity's value, falling back to a bare pronoun substitution,
// and applies the ellipsis-prefix rule when no pronoun is present at all.
func (r *Resolver) resolveByRule(query string, contextEntities map[string]string) (Result, bool) {
	if len(contextEntities) == 0 {
		return Result{}, false
	}

	resolved := query
	bound := map[string]string{}

	for entityType, value := range contextEntities {
		noun, hasNoun := domainNouns[entityType]
		if hasNoun {
			for _, pronoun := range append(append([]string{}, nearPronouns...), farPronouns...) {
				phrase := pronoun + noun
				if strings.Contains(resolved, phrase) {
					resolved = strings.ReplaceAll(resolved, phrase, value)
					bound[entityType] = value
				}
			}
		}
	}
	if len(bound) > 0 {
		return Result{ResolvedQuery: resolved, Entities: bound, Method: MethodRule, Confidence: 0.9}, true
	}

	// Bare pronoun substitution (no recognized domain noun attached).
	allPronouns := append(append(append([]string{}, nearPronouns...), farPronouns...), personalPronouns...)
	for entityType, value := range contextEntities {
		for _, pronoun := range allPronouns {
			if strings.Contains(resolved, pronoun) {
				resolved = strings.ReplaceAll(resolved, pronoun, value)
				bound[entityType] = value
			}
		}
	}
	if len(bound) > 0 {
		return Result{ResolvedQuery: resolved, Entities: bound, Method: MethodRule, Confidence: 0.85}, true
	}

	// Ellipsis: no pronoun present at all, but exactly the context's primary
	// entity is implied by omission. Prefix the query with the entity value.
	if len(contextEntities) == 1 {
		for entityType, value := range contextEntities {
			return Result{
				ResolvedQuery: value + " " + query,
				Entities:      map[string]string{entityType: value},
				Method:        MethodRule,
				Confidence:    0.8,
			}, true
		}
	}
	return Result{}, false
}

// resolveByAAM falls back to long-term memory when no context entities were
// supplied: it runs a text search for the query (min relevance 0.5) and, if
// the top match carries an entity type and value, binds that value.
func (r *Resolver) resolveByAAM(ctx context.Context, query string, contextEntities map[string]string) (Result, bool) {
	if r.aam == nil || len(contextEntities) != 0 {
		return Result{}, false
	}
	matches := r.aam.SearchMemories(ctx, query, memory.LongTerm, 1, 0.5)
	if len(matches) == 0 {
		return Result{}, false
	}
	m := matches[0]
	if m.EntityType == "" || m.EntityValue == "" {
		return Result{}, false
	}
	return Result{
		ResolvedQuery: m.EntityValue + " " + query,
		Entities:      map[string]string{m.EntityType: m.EntityValue},
		Method:        MethodAAM,
		Confidence:    0.7,
	}, true
}
