// Package mcp exposes local model operations as MCP tools over stdio, so
// agent frontends can list, pull, inspect, and prompt models without speaking
// the Ollama API directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/octl/internal/ollama"
)

// ModelAPI abstracts the Ollama client for the MCP layer.
type ModelAPI interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (*ollama.GenerateResponse, error)
	List(ctx context.Context) ([]ollama.Model, error)
	Pull(ctx context.Context, req ollama.PullRequest) (*ollama.ProgressSummary, error)
	Show(ctx context.Context, name string) (*ollama.ShowResponse, error)
}

// Deps holds dependencies for the MCP server.
type Deps struct {
	Client       ModelAPI
	DefaultModel string // model used by generate when none is given
}

// NewServer creates an MCP server with all octl tools and resources registered.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"octl",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("octl — local model management and text generation via an Ollama server."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate",
			mcp.WithDescription("Generate a completion for a prompt using a local model."),
			mcp.WithString("prompt", mcp.Description("The prompt text"), mcp.Required()),
			mcp.WithString("model", mcp.Description("Model name (defaults to the configured model)")),
			mcp.WithString("system", mcp.Description("Optional system prompt override")),
		),
		toolGenerate(deps),
	)

	s.AddTool(
		mcp.NewTool("list_models",
			mcp.WithDescription("List models available on the local Ollama server."),
		),
		toolListModels(deps),
	)

	s.AddTool(
		mcp.NewTool("pull_model",
			mcp.WithDescription("Download a model from the registry to the local server."),
			mcp.WithString("name", mcp.Description("Model name, e.g. llama2 or llama2:13b"), mcp.Required()),
		),
		toolPullModel(deps),
	)

	s.AddTool(
		mcp.NewTool("show_model",
			mcp.WithDescription("Show a model's modelfile, parameters, and template."),
			mcp.WithString("name", mcp.Description("Model name"), mcp.Required()),
		),
		toolShowModel(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"ollama://models",
			"Local Models",
			mcp.WithResourceDescription("Models installed on the local Ollama server as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		resourceModels(deps),
	)

	return s
}

func toolGenerate(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return toolError("prompt is required"), nil
		}

		model := req.GetString("model", deps.DefaultModel)
		if model == "" {
			return toolError("no model given and no default configured"), nil
		}

		resp, err := deps.Client.Generate(ctx, ollama.GenerateRequest{
			Model:  model,
			Prompt: prompt,
			System: req.GetString("system", ""),
		})
		if err != nil {
			return toolError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		return toolText(resp.Response), nil
	}
}

func toolListModels(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		models, err := deps.Client.List(ctx)
		if err != nil {
			return toolError(fmt.Sprintf("listing models failed: %v", err)), nil
		}

		type modelInfo struct {
			Name       string `json:"name"`
			Size       int64  `json:"size,omitempty"`
			ModifiedAt string `json:"modified_at"`
		}

		infos := make([]modelInfo, len(models))
		for i, m := range models {
			infos[i] = modelInfo{
				Name:       m.Name,
				Size:       m.Size,
				ModifiedAt: m.ModifiedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(infos)
		if err != nil {
			return toolError(fmt.Sprintf("failed to marshal models: %v", err)), nil
		}
		return toolText(string(b)), nil
	}
}

func toolPullModel(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return toolError("name is required"), nil
		}

		sum, err := deps.Client.Pull(ctx, ollama.PullRequest{Name: name})
		if err != nil {
			return toolError(fmt.Sprintf("pull failed: %v", err)), nil
		}

		return toolText(fmt.Sprintf("Pulled %s (%d layers, status %s)", name, len(sum.Layers), sum.Status)), nil
	}
}

func toolShowModel(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return toolError("name is required"), nil
		}

		info, err := deps.Client.Show(ctx, name)
		if err != nil {
			return toolError(fmt.Sprintf("show failed: %v", err)), nil
		}

		b, err := json.Marshal(info)
		if err != nil {
			return toolError(fmt.Sprintf("failed to marshal model info: %v", err)), nil
		}
		return toolText(string(b)), nil
	}
}

func resourceModels(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		models, err := deps.Client.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list models: %w", err)
		}

		b, err := json.Marshal(models)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal models: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
