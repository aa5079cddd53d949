package providers

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentturn/core/pkg/models"
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAIProvider adapts the Chat Completions API to the agnostic Provider
// contract.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider validates cfg and constructs a provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openai.GPT4o
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name identifies this provider to the ProviderManager.
func (p *OpenAIProvider) Name() string { return "openai" }

// Capabilities describes what the OpenAI backend supports.
func (p *OpenAIProvider) Capabilities() models.ProviderCapabilities {
	return models.ProviderCapabilities{
		Tools:             true,
		ParallelToolCalls: true,
		UsageMetrics:      true,
		JSONMode:          true,
		Streaming:         true,
	}
}

// Chat translates req into an OpenAI ChatCompletion request and back.
func (p *OpenAIProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, toOpenAIMessage(m)...)
	}

	params := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.ChatResponse{}, fmt.Errorf("openai: no choices returned")
	}

	return fromOpenAIResponse(resp, model), nil
}

func toOpenAIMessage(m models.Message) []openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if m.Role == models.RoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}

	if m.Blocks == nil {
		return []openai.ChatCompletionMessage{{Role: role, Content: m.Text}}
	}

	var out []openai.ChatCompletionMessage
	var toolCalls []openai.ToolCall
	var text string
	for _, b := range m.Blocks {
		switch b.Kind {
		case models.BlockText:
			text += b.Text
		case models.BlockToolUse:
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   b.ToolUseID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      b.ToolName,
					Arguments: string(b.ToolInput),
				},
			})
		case models.BlockToolResult:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    b.ToolResultText,
				ToolCallID: b.ToolResultForID,
			})
		}
	}
	if text != "" || len(toolCalls) > 0 {
		out = append([]openai.ChatCompletionMessage{{Role: role, Content: text, ToolCalls: toolCalls}}, out...)
	}
	return out
}

func toOpenAITools(tools []models.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.InputSchema, &schema)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return out
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse, model string) models.ChatResponse {
	choice := resp.Choices[0]
	out := models.ChatResponse{
		Text:     choice.Message.Content,
		Model:    model,
		Provider: "openai",
	}

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}

	switch choice.FinishReason {
	case openai.FinishReasonToolCalls:
		out.StopReason = models.StopToolUse
	case openai.FinishReasonLength:
		out.StopReason = models.StopMaxTokens
	default:
		out.StopReason = models.StopEndTurn
	}

	in := int64(resp.Usage.PromptTokens)
	outTok := int64(resp.Usage.CompletionTokens)
	out.Usage = models.Usage{InputTokens: &in, OutputTokens: &outTok}
	return out
}
