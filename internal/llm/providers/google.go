package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/agentturn/core/pkg/models"
)

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
}

// GoogleProvider adapts the Gemini generateContent API to the agnostic
// Provider contract.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
}

// NewGoogleProvider validates cfg and constructs a provider.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	return &GoogleProvider{client: client, defaultModel: cfg.DefaultModel}, nil
}

// Name identifies this provider to the ProviderManager.
func (p *GoogleProvider) Name() string { return "google" }

// Capabilities describes what the Gemini backend supports.
func (p *GoogleProvider) Capabilities() models.ProviderCapabilities {
	return models.ProviderCapabilities{
		Tools:             true,
		ParallelToolCalls: false,
		UsageMetrics:      true,
		Streaming:         true,
	}
}

// Chat translates req into a genai GenerateContent call and back.
func (p *GoogleProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, toGoogleContent(m))
	}

	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(req.MaxTokens)}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = toGoogleTools(req.Tools)
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("google: %w", err)
	}

	return fromGoogleResponse(resp, model), nil
}

func toGoogleContent(m models.Message) *genai.Content {
	role := genai.RoleUser
	if m.Role == models.RoleAssistant {
		role = genai.RoleModel
	}

	if m.Blocks == nil {
		return genai.NewContentFromText(m.Text, role)
	}

	parts := make([]*genai.Part, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch b.Kind {
		case models.BlockText:
			parts = append(parts, genai.NewPartFromText(b.Text))
		case models.BlockToolUse:
			var args map[string]any
			_ = json.Unmarshal(b.ToolInput, &args)
			parts = append(parts, genai.NewPartFromFunctionCall(b.ToolName, args))
		case models.BlockToolResult:
			parts = append(parts, genai.NewPartFromFunctionResponse(b.ToolResultForID, map[string]any{"result": b.ToolResultText}))
		}
	}
	return &genai.Content{Role: role, Parts: parts}
}

func toGoogleTools(tools []models.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema *genai.Schema
		_ = json.Unmarshal(t.InputSchema, &schema)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func fromGoogleResponse(resp *genai.GenerateContentResponse, model string) models.ChatResponse {
	out := models.ChatResponse{Model: model, Provider: "google", StopReason: models.StopEndTurn}
	if len(resp.Candidates) == 0 {
		return out
	}

	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				out.Text += part.Text
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				out.ToolCalls = append(out.ToolCalls, models.ToolCall{
					ID:    part.FunctionCall.Name,
					Name:  part.FunctionCall.Name,
					Input: args,
				})
			}
		}
	}

	if len(out.ToolCalls) > 0 {
		out.StopReason = models.StopToolUse
	} else if candidate.FinishReason == genai.FinishReasonMaxTokens {
		out.StopReason = models.StopMaxTokens
	}

	if resp.UsageMetadata != nil {
		in := int64(resp.UsageMetadata.PromptTokenCount)
		outTok := int64(resp.UsageMetadata.CandidatesTokenCount)
		out.Usage = models.Usage{InputTokens: &in, OutputTokens: &outTok}
	}
	return out
}
