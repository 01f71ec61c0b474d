package rag

import (
	"context"
	"regexp"
	"strings"
)

// Entity is a named span extracted from a query, grounded in
// original_source's entity_extractor.py two-strategy (keyword, pattern)
// extraction pipeline.
type Entity struct {
	Type  string
	Value string
}

// NER extracts named entities with type labels from text (component C3).
// Pluggable: the graph track only depends on this interface, so a
// model-backed extractor can replace RuleNER without touching engine.go.
type NER interface {
	Extract(ctx context.Context, text string) []Entity
}

// RuleNER is the default NER implementation: a small multilingual keyword
// dictionary plus regex patterns per entity type, adapted from
// original_source's EntityExtractor (its KEYWORD_DICT/PATTERN_DICT tables,
// narrowed to the types this platform's graph track actually indexes).
type RuleNER struct {
	keywords map[string][]string
	patterns map[string][]*regexp.Regexp
}

// NewRuleNER returns a RuleNER seeded with a general-purpose entity dictionary.
func NewRuleNER() *RuleNER {
	return &RuleNER{
		keywords: map[string][]string{
			"part_number": {"料號", "產品", "件號", "編號", "品號", "part", "item", "pn"},
			"workstation": {"工作站", "工作中心", "工站", "機台", "工位", "workstation", "station"},
			"warehouse":   {"倉庫", "庫別", "倉別", "庫號", "warehouse", "location"},
			"work_order":  {"工單", "工單號", "work order", "wo"},
			"time_range":  {"時間", "日期", "期間", "月份", "這週", "上週", "本月", "date", "period"},
		},
		patterns: map[string][]*regexp.Regexp{
			"workstation": {
				regexp.MustCompile(`WC[\w-]+`),
				regexp.MustCompile(`WS[\w-]+`),
			},
			"part_number": {
				regexp.MustCompile(`[A-Z]{2}\d{2}[A-Z0-9]{8,}`),
				regexp.MustCompile(`[A-Z0-9]{10,}`),
			},
			"work_order": {
				regexp.MustCompile(`WO-[A-Z0-9]+-[A-Z0-9]+-\d{6,}`),
			},
		},
	}
}

// Extract runs the pattern strategy first, then the keyword strategy,
// de-duplicating by (type, value).
func (n *RuleNER) Extract(ctx context.Context, text string) []Entity {
	seen := map[string]bool{}
	var out []Entity
	add := func(typ, value string) {
		key := typ + ":" + value
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Entity{Type: typ, Value: value})
	}

	for typ, pats := range n.patterns {
		for _, p := range pats {
			for _, m := range p.FindAllString(text, -1) {
				add(typ, m)
			}
		}
	}
	for typ, words := range n.keywords {
		for _, w := range words {
			if strings.Contains(text, w) {
				add(typ, w)
			}
		}
	}
	return out
}

// cjkPattern matches a run of CJK ideographs, used to decide whether a
// candidate entity value should be n-grammed or punctuation-split.
var cjkPattern = regexp.MustCompile(`\p{Han}`)

// punctSplitPattern splits non-CJK text into candidate sub-tokens on
// whitespace and common punctuation.
var punctSplitPattern = regexp.MustCompile(`[\s,，。.!！?？;；:：、/\\|()（）\[\]{}"'“”‘’]+`)

// subTokens implements the keyword-match fallback: when an entity's text
// match against the graph's entity table is insufficient, split the entity
// text into candidate sub-tokens — 3-char Chinese n-grams if any survive the
// stop-word filter, else 2-char n-grams, else punctuation-split words —
// excluding the stop-word list.
func subTokens(text string, stop map[string]bool) []string {
	if cjkPattern.MatchString(text) {
		runes := []rune(text)
		if grams := ngrams(runes, 3, stop); len(grams) > 0 {
			return grams
		}
		if grams := ngrams(runes, 2, stop); len(grams) > 0 {
			return grams
		}
	}
	var out []string
	for _, w := range punctSplitPattern.Split(text, -1) {
		w = strings.TrimSpace(w)
		if w == "" || stop[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func ngrams(runes []rune, n int, stop map[string]bool) []string {
	if len(runes) < n {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for i := 0; i+n <= len(runes); i++ {
		g := string(runes[i : i+n])
		if stop[g] || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}
