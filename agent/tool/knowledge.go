package tool

import (
	"context"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/search"
)

const noKnowledgeMessage = "No relevant documents found in the knowledge base."

type KnowledgeOutput struct {
	Query     string         `json:"query"`
	Documents []KnowledgeDoc `json:"documents"`
	Message   string         `json:"message,omitempty"`
}

type KnowledgeDoc struct {
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Score   float32 `json:"score"`
}

func (g *Gateway) retrieveKnowledge(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	query := stringArg(req.Args, "query")
	if query == "" {
		return errorResult("query is required")
	}
	if g.deps.Vector == nil {
		return errorResult("knowledge base is not configured")
	}

	kc := g.deps.Knowledge
	matches, err := g.deps.Vector.SimilarityQuery(ctx, kc.Collection, query, kc.TopK, kc.Threshold)
	if err != nil {
		return errorResult("knowledge base query failed: " + err.Error())
	}

	out := KnowledgeOutput{Query: query, Documents: make([]KnowledgeDoc, 0, len(matches))}
	for _, m := range matches {
		out.Documents = append(out.Documents, KnowledgeDoc{
			Content: m.Content,
			Source:  m.Metadata["source"],
			Score:   m.Score,
		})
	}
	if len(out.Documents) == 0 {
		out.Message = noKnowledgeMessage
	}
	return contractx.ToolResult{Result: out}
}

func (g *Gateway) webSearch(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	query := stringArg(req.Args, "query")
	if query == "" {
		return errorResult("query is required")
	}
	if g.deps.Search == nil {
		return errorResult("web search is not configured")
	}

	limit := intArg(req.Args, "max_results")
	if limit <= 0 {
		limit = g.deps.Knowledge.MaxResults
	}
	results, err := g.deps.Search.Search(ctx, search.Request{Query: query, MaxResults: limit})
	if err != nil {
		return errorResult("web search failed: " + err.Error())
	}
	return contractx.ToolResult{Result: results}
}
