package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docuchat/docuchat/internal/engine"
	"github.com/docuchat/docuchat/internal/retriever"
)

// makeAskHandler creates the ask_question tool handler. It runs the full
// retrieve-and-generate flow and records the turn in the session history.
func makeAskHandler(eng *engine.Engine, defaultK int) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		k := input.TopK
		if k <= 0 {
			k = defaultK
		}

		result, err := eng.Ask(ctx, input.Question, input.SessionID, k)
		if err != nil {
			if errors.Is(err, retriever.ErrNoDocuments) {
				return nil, AskOutput{}, fmt.Errorf("no documents uploaded yet; ingest a PDF or DOCX first")
			}
			return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
		}

		return nil, AskOutput{
			Answer:    result.Answer,
			Citations: result.Citations,
			Warnings:  result.Warnings,
		}, nil
	}
}

// makeSearchHandler creates the search_passages tool handler. It returns
// raw ranked passages without invoking the generative model.
func makeSearchHandler(eng *engine.Engine, defaultK int) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		k := input.MaxResults
		if k <= 0 {
			k = defaultK
		}

		matches, err := eng.Search(ctx, input.Query, input.SessionID, k)
		if err != nil {
			if errors.Is(err, retriever.ErrNoDocuments) {
				return nil, SearchOutput{
					Results: []PassageResult{},
					Message: "No documents uploaded yet. Ingest a PDF or DOCX first.",
				}, nil
			}
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]PassageResult, len(matches))
		for i, m := range matches {
			results[i] = PassageResult{
				Source: m.Source,
				Page:   m.Page,
				Score:  m.Score,
				Text:   m.Text,
			}
		}
		return nil, SearchOutput{Results: results}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		docs, err := eng.Knowledge().List(ctx, input.SessionID)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		return nil, ListDocumentsOutput{
			Documents: docs,
			Count:     len(docs),
		}, nil
	}
}

// makeStatusHandler creates the get_status tool handler.
func makeStatusHandler(eng *engine.Engine) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		stats, err := eng.Store().CountAll(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to read status: %w", err)
		}

		return nil, StatusOutput{
			Sessions:  stats.Sessions,
			Documents: stats.Documents,
			Messages:  stats.Messages,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, nil
	}
}
