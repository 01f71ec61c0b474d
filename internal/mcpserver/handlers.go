package mcpserver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentic-memory/aam-platform/internal/memory"
	"github.com/agentic-memory/aam-platform/internal/rag"
)

// Tool argument structures following MCP SDK patterns
type RecallArgs struct {
	UserID       string                 `json:"userId" jsonschema:"User the query is scoped to"`
	Query        string                 `json:"query" jsonschema:"Query to search for in memory"`
	MaxResults   int                    `json:"maxResults,omitempty" jsonschema:"Maximum number of results to return"`
	MinRelevance float64                `json:"minRelevance,omitempty" jsonschema:"Minimum relevance score to include a result"`
	Filters      map[string]interface{} `json:"filters,omitempty" jsonschema:"Additional filters (accepted but not applied)"`
	IncludeGraph bool                   `json:"includeGraph,omitempty" jsonschema:"Include graph relationships in response (accepted but not applied)"`
}

type WriteArgs struct {
	UserID   string                 `json:"userId" jsonschema:"User the memory belongs to"`
	Content  string                 `json:"content" jsonschema:"Content to store in memory"`
	MemType  string                 `json:"memType,omitempty" jsonschema:"Memory tier: short_term or long_term"`
	Priority string                 `json:"priority,omitempty" jsonschema:"Priority: low, medium, high or critical"`
	Source   string                 `json:"source,omitempty" jsonschema:"Source of the content"`
	Tags     []string               `json:"tags,omitempty" jsonschema:"Tags to associate with content"`
	Metadata map[string]interface{} `json:"metadata,omitempty" jsonschema:"Additional metadata"`
}

type ManageArgs struct {
	UserID     string   `json:"userId" jsonschema:"User the operation is scoped to"`
	Operation  string   `json:"operation" jsonschema:"Operation to perform (pin, forget, decay, delete)"`
	MemoryIDs  []string `json:"memoryIds,omitempty" jsonschema:"Memory IDs to operate on"`
	MemType    string   `json:"memType,omitempty" jsonschema:"Memory tier the IDs live in"`
	Query      string   `json:"query,omitempty" jsonschema:"Query to select memories (accepted but not applied; operations use memoryIds)"`
	Confidence float64  `json:"confidence,omitempty" jsonschema:"Confidence threshold (accepted but not applied)"`
}

type StatsArgs struct {
	UserID             string `json:"userId" jsonschema:"User to report statistics for"`
	IncludePerformance bool   `json:"includePerformance,omitempty" jsonschema:"Include performance metrics"`
	IncludeStorage     bool   `json:"includeStorage,omitempty" jsonschema:"Include storage usage metrics"`
}

// Tool result structures
type RecallResult struct {
	Evidence     []Evidence     `json:"evidence"`
	Conflicts    []ConflictInfo `json:"conflicts,omitempty"`
	Stats        RetrievalStats `json:"stats"`
	SelfCritique string         `json:"selfCritique,omitempty"`
}

type WriteResult struct {
	MemoryID       string         `json:"memoryId"`
	CandidateCount int            `json:"candidateCount"`
	ConflictsFound []ConflictInfo `json:"conflictsFound,omitempty"`
	EntitiesLinked []string       `json:"entitiesLinked"`
	ProvenanceID   string         `json:"provenanceId"`
}

type ManageResult struct {
	Operation       string   `json:"operation"`
	AffectedCount   int      `json:"affectedCount"`
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	Recommendations []string `json:"recommendations,omitempty"`
}

type StatsResult struct {
	TotalMemories    int                    `json:"totalMemories"`
	GraphNodes       int                    `json:"graphNodes"`
	GraphEdges       int                    `json:"graphEdges"`
	StorageUsage     map[string]interface{} `json:"storageUsage"`
	PerformanceStats map[string]interface{} `json:"performanceStats"`
}

// Placeholder data structures (filled in from AAM/RAG results below)
type Evidence struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Source      string            `json:"source"`
	Confidence  float64           `json:"confidence"`
	WhySelected string            `json:"why_selected"`
	RelationMap map[string]string `json:"relation_map,omitempty"`
	Provenance  ProvenanceInfo    `json:"provenance"`
	GraphPath   []string          `json:"graph_path,omitempty"`
}

type ConflictInfo struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	ConflictingIDs []string `json:"conflicting_ids"`
	Severity       string   `json:"severity"`
}

type RetrievalStats struct {
	VectorResults   int     `json:"vector_results"`
	GraphResults    int     `json:"graph_results"`
	FusionScore     float64 `json:"fusion_score"`
	TotalCandidates int     `json:"total_candidates"`
}

type ProvenanceInfo struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
}

// registerTools registers all MCP tools with the server
func (ams *AgenticMemoryServer) registerTools() error {
	mcp.AddTool(ams.server, &mcp.Tool{
		Name:        "memory_recall",
		Description: "Retrieve contextual information from memory using multi-view search",
	}, ams.handleRecall)

	mcp.AddTool(ams.server, &mcp.Tool{
		Name:        "memory_write",
		Description: "Store new information in memory, splitting oversized content into linked chunks",
	}, ams.handleWrite)

	mcp.AddTool(ams.server, &mcp.Tool{
		Name:        "memory_manage",
		Description: "Manage memory lifecycle (pin, forget, decay, delete operations)",
	}, ams.handleManage)

	mcp.AddTool(ams.server, &mcp.Tool{
		Name:        "memory_stats",
		Description: "Get memory system statistics and performance metrics",
	}, ams.handleStats)

	ams.log.Info("registered 4 mcp tools")
	return nil
}

// handleRecall runs the query through the coreference resolver (with no
// context entities or history, so only its long-term memory stage can bind
// a reference), then through the hybrid RAG engine, and falls back to the real-time
// retrieval pipeline when the RAG engine finds nothing (no graph signal yet
// for this user, e.g.).
func (ams *AgenticMemoryServer) handleRecall(ctx context.Context, req *mcp.CallToolRequest, args RecallArgs) (*mcp.CallToolResult, RecallResult, error) {
	if args.Query == "" {
		return nil, RecallResult{}, fmt.Errorf("query is required")
	}
	limit := args.MaxResults
	if limit <= 0 {
		limit = 10
	}
	minRelevance := args.MinRelevance

	resolved := ams.coref.Resolve(ctx, args.Query, nil, nil)
	query := resolved.ResolvedQuery

	hits := ams.rag.Query(ctx, args.UserID, query, nil, rag.Hybrid, limit)

	result := RecallResult{
		Stats: RetrievalStats{
			VectorResults:   countNonZero(hits, func(h rag.Hit) float64 { return h.VectorScore }),
			GraphResults:    countNonZero(hits, func(h rag.Hit) float64 { return h.GraphScore }),
			TotalCandidates: len(hits),
		},
	}

	if len(hits) == 0 {
		records := ams.retrieval.Query(ctx, query, nil, "", limit, minRelevance)
		for _, rec := range records {
			result.Evidence = append(result.Evidence, evidenceFromRecord(rec, 0, 0))
		}
		result.Stats.TotalCandidates = len(records)
	} else {
		var fusionTotal float64
		for _, hit := range hits {
			if hit.Record.RelevanceScore > 0 && hit.Record.RelevanceScore < minRelevance {
				continue
			}
			result.Evidence = append(result.Evidence, evidenceFromRecord(hit.Record, hit.VectorScore, hit.GraphScore))
			fusionTotal += hit.Fused
		}
		if len(hits) > 0 {
			result.Stats.FusionScore = fusionTotal / float64(len(hits))
		}
	}

	if resolved.Method != "" && resolved.Method != "none" {
		result.SelfCritique = fmt.Sprintf("resolved query via %s: %q -> %q", resolved.Method, args.Query, query)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Retrieved %d pieces of evidence for query: %s", len(result.Evidence), args.Query),
			},
		},
	}, result, nil
}

func evidenceFromRecord(rec *memory.Record, vectorScore, graphScore float64) Evidence {
	why := "matched by relevance score"
	if vectorScore > 0 && graphScore > 0 {
		why = "matched by both vector and graph tracks"
	} else if graphScore > 0 {
		why = "matched via graph traversal"
	} else if vectorScore > 0 {
		why = "matched by vector similarity"
	}
	return Evidence{
		ID:          rec.ID,
		Content:     rec.Content,
		Source:      string(rec.MemoryType),
		Confidence:  rec.Confidence,
		WhySelected: why,
		Provenance: ProvenanceInfo{
			Source:    string(rec.MemoryType),
			Timestamp: rec.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UserID:    rec.UserID,
		},
	}
}

func countNonZero(hits []rag.Hit, f func(rag.Hit) float64) int {
	n := 0
	for _, h := range hits {
		if f(h) > 0 {
			n++
		}
	}
	return n
}

// maxWriteChunkSize is the content length, in runes, past which handleWrite
// splits a write into multiple chunked records instead of one oversized one.
const maxWriteChunkSize = 2000

// handleWrite stores new content in the long-term tier (or short-term, if
// requested), tagging it with the caller's metadata and user scope. Content
// longer than maxWriteChunkSize is split into overlapping, sentence-aware
// chunks and stored as separate linked records.
func (ams *AgenticMemoryServer) handleWrite(ctx context.Context, req *mcp.CallToolRequest, args WriteArgs) (*mcp.CallToolResult, WriteResult, error) {
	if args.Content == "" {
		return nil, WriteResult{}, fmt.Errorf("content is required")
	}

	memType := memory.LongTerm
	if args.MemType == "short_term" {
		memType = memory.ShortTerm
	}
	priority := memory.PriorityMedium
	switch args.Priority {
	case "low":
		priority = memory.PriorityLow
	case "high":
		priority = memory.PriorityHigh
	case "critical":
		priority = memory.PriorityCritical
	}

	baseMetadata := map[string]any{}
	for k, v := range args.Metadata {
		baseMetadata[k] = v
	}
	baseMetadata["user_id"] = args.UserID
	if args.Source != "" {
		baseMetadata["source"] = args.Source
	}
	if len(args.Tags) > 0 {
		baseMetadata["tags"] = args.Tags
	}

	chunker := memory.NewChunker(maxWriteChunkSize, maxWriteChunkSize/10)
	chunks := chunker.Split(args.Content)

	var firstID string
	stored := 0
	groupID := "grp_" + uuid.New().String()
	for _, chunk := range chunks {
		metadata := map[string]any{}
		for k, v := range baseMetadata {
			metadata[k] = v
		}
		if len(chunks) > 1 {
			metadata["chunk_group"] = groupID
			metadata["chunk_index"] = chunk.Index
			metadata["chunk_count"] = len(chunks)
		}
		id := ams.aam.StoreMemory(ctx, chunk.Text, memType, priority, metadata, "")
		if id == "" {
			continue
		}
		if firstID == "" {
			firstID = id
		}
		stored++
	}
	if firstID == "" {
		return nil, WriteResult{}, fmt.Errorf("failed to store memory")
	}

	result := WriteResult{
		MemoryID:       firstID,
		CandidateCount: stored,
		ProvenanceID:   fmt.Sprintf("prov_%s", firstID),
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Stored memory with ID: %s (%d chunk(s))", firstID, stored)},
		},
	}, result, nil
}

// handleManage drives pin/forget/decay/delete lifecycle operations. "forget"
// and "delete" route through the deletion rollback manager, one operation per
// memory ID, so a partial failure across IDs is reported with remediation
// guidance.
func (ams *AgenticMemoryServer) handleManage(ctx context.Context, req *mcp.CallToolRequest, args ManageArgs) (*mcp.CallToolResult, ManageResult, error) {
	memType := memory.Type(args.MemType)

	result := ManageResult{Operation: args.Operation}

	switch args.Operation {
	case "pin":
		for _, id := range args.MemoryIDs {
			priority := memory.PriorityCritical
			if ams.aam.UpdateMemory(ctx, id, memType, nil, &priority, nil) {
				result.AffectedCount++
			}
		}
		result.Success = result.AffectedCount == len(args.MemoryIDs)
		result.Message = fmt.Sprintf("pinned %d/%d memories", result.AffectedCount, len(args.MemoryIDs))

	case "decay":
		priority := memory.PriorityLow
		for _, id := range args.MemoryIDs {
			if ams.aam.UpdateMemory(ctx, id, memType, nil, &priority, nil) {
				result.AffectedCount++
			}
		}
		result.Success = result.AffectedCount == len(args.MemoryIDs)
		result.Message = fmt.Sprintf("decayed %d/%d memories", result.AffectedCount, len(args.MemoryIDs))

	case "forget", "delete":
		mgr := ams.RunDeletion(fmt.Sprintf("manage-%d", len(args.MemoryIDs)), args.UserID)
		for _, id := range args.MemoryIDs {
			ok := mgr.Execute(id, "vector", func(targetID string) error {
				if !ams.aam.DeleteMemory(ctx, targetID, memType) {
					return fmt.Errorf("delete failed for %s", targetID)
				}
				return nil
			})
			if ok {
				result.AffectedCount++
			}
		}
		tx := mgr.Complete()
		report := mgr.RollbackReport()
		result.Success = tx.Status == "completed"
		result.Message = fmt.Sprintf("forgot %d/%d memories, status=%s", result.AffectedCount, len(args.MemoryIDs), tx.Status)
		result.Recommendations = report.Recommendations

	default:
		return nil, ManageResult{}, fmt.Errorf("unsupported operation: %s", args.Operation)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Memory operation '%s' completed on %d items", args.Operation, result.AffectedCount)},
		},
	}, result, nil
}

// handleStats reports coarse memory counts plus, on request, the user's
// report from a review pass it runs on the spot (that pass archives and
// flags records just as a scheduled run does).
func (ams *AgenticMemoryServer) handleStats(ctx context.Context, req *mcp.CallToolRequest, args StatsArgs) (*mcp.CallToolResult, StatsResult, error) {
	records := ams.aam.SearchMemories(ctx, "", memory.LongTerm, 0, 0)

	result := StatsResult{
		TotalMemories: len(records),
	}

	if args.IncludeStorage {
		result.StorageUsage = map[string]interface{}{
			"long_term_records": len(records),
		}
	}
	if args.IncludePerformance {
		reports := ams.review.RunWeeklyReview(ctx)
		for _, r := range reports {
			if r.UserID == args.UserID {
				result.PerformanceStats = map[string]interface{}{
					"archived_count":           r.ArchivedCount,
					"potentially_stale_count":  r.PotentiallyStaleCount,
					"review_count":             r.ReviewCount,
				}
				break
			}
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Memory system contains %d memories", result.TotalMemories)},
		},
	}, result, nil
}
