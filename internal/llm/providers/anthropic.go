// Package providers holds the concrete LLM backend implementations behind
// the llm.Provider contract: Anthropic, OpenAI, Google Gemini, and AWS
// Bedrock (Claude-on-Bedrock).
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentturn/core/pkg/models"
)

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicProvider adapts the Anthropic Messages API to the agnostic
// Provider contract.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider validates cfg and constructs a provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name identifies this provider to the ProviderManager.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Capabilities describes what the Anthropic backend supports.
func (p *AnthropicProvider) Capabilities() models.ProviderCapabilities {
	return models.ProviderCapabilities{
		Tools:             true,
		ParallelToolCalls: true,
		UsageMetrics:      true,
		Streaming:         true,
	}
}

// Chat translates req into an Anthropic Messages request and back into the
// agnostic ChatResponse shape.
func (p *AnthropicProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toAnthropicMessage(m))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("anthropic: %w", err)
	}
	_ = time.Since(start)

	return fromAnthropicResponse(resp, model), nil
}

func toAnthropicMessage(m models.Message) anthropic.MessageParam {
	role := anthropic.MessageParamRoleUser
	if m.Role == models.RoleAssistant {
		role = anthropic.MessageParamRoleAssistant
	}

	if m.Blocks == nil {
		return anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{{OfText: &anthropic.TextBlockParam{Text: m.Text}}},
		}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch b.Kind {
		case models.BlockText:
			blocks = append(blocks, anthropic.ContentBlockParamUnion{OfText: &anthropic.TextBlockParam{Text: b.Text}})
		case models.BlockToolUse:
			var input any
			_ = json.Unmarshal(b.ToolInput, &input)
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{ID: b.ToolUseID, Name: b.ToolName, Input: input},
			})
		case models.BlockToolResult:
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: b.ToolResultForID,
					IsError:   anthropic.Bool(b.ToolResultError),
					Content:   []anthropic.ToolResultBlockParamContentUnion{{OfText: &anthropic.TextBlockParam{Text: b.ToolResultText}}},
				},
			})
		}
	}
	return anthropic.MessageParam{Role: role, Content: blocks}
}

func toAnthropicTools(tools []models.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.InputSchema, &schema)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: schema["properties"]},
			},
		})
	}
	return out
}

func fromAnthropicResponse(resp *anthropic.Message, model string) models.ChatResponse {
	out := models.ChatResponse{Model: model, Provider: "anthropic"}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			input, _ := json.Marshal(block.Input)
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{ID: block.ID, Name: block.Name, Input: input})
		}
	}

	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		out.StopReason = models.StopToolUse
	case anthropic.StopReasonMaxTokens:
		out.StopReason = models.StopMaxTokens
	default:
		out.StopReason = models.StopEndTurn
	}

	in := resp.Usage.InputTokens
	outTok := resp.Usage.OutputTokens
	out.Usage = models.Usage{InputTokens: &in, OutputTokens: &outTok}
	return out
}
