package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/agentturn/core/pkg/models"
)

// BedrockConfig configures a BedrockProvider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	DefaultModel    string
}

// BedrockProvider adapts AWS Bedrock's Anthropic-format InvokeModel API to
// the agnostic Provider contract. It is a fourth concrete variant, chosen
// because it exercises the AWS SDK credential chain while reusing the
// Claude-on-Bedrock wire format.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// bedrockRequest mirrors Anthropic's Messages API body as accepted by
// Bedrock's InvokeModel for Claude models.
type bedrockRequest struct {
	AnthropicVersion string                   `json:"anthropic_version"`
	MaxTokens        int                      `json:"max_tokens"`
	System           string                   `json:"system,omitempty"`
	Messages         []bedrockMessage         `json:"messages"`
	Tools            []bedrockToolDefinition  `json:"tools,omitempty"`
}

type bedrockMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type bedrockToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type bedrockResponse struct {
	StopReason string              `json:"stop_reason"`
	Content    []bedrockContentOut `json:"content"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type bedrockContentOut struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// NewBedrockProvider builds the AWS SDK client, preferring static
// credentials when provided and otherwise falling back to the default
// credential chain.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("bedrock: region is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}

	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: loading aws config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name identifies this provider to the ProviderManager.
func (p *BedrockProvider) Name() string { return "bedrock" }

// Capabilities describes what Claude-on-Bedrock supports.
func (p *BedrockProvider) Capabilities() models.ProviderCapabilities {
	return models.ProviderCapabilities{
		Tools:             true,
		ParallelToolCalls: true,
		UsageMetrics:      true,
	}
}

// Chat translates req into a Bedrock InvokeModel call and back.
func (p *BedrockProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        req.MaxTokens,
		System:           req.System,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, toBedrockMessage(m))
	}
	for _, t := range req.Tools {
		var schema map[string]any
		_ = json.Unmarshal(t.InputSchema, &schema)
		body.Tools = append(body.Tools, bedrockToolDefinition{Name: t.Name, Description: t.Description, InputSchema: schema})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("bedrock: marshal request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("bedrock: invoke model: %w", err)
	}

	var parsed bedrockResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return models.ChatResponse{}, fmt.Errorf("bedrock: parse response: %w", err)
	}

	return fromBedrockResponse(parsed, model), nil
}

func toBedrockMessage(m models.Message) bedrockMessage {
	role := "user"
	if m.Role == models.RoleAssistant {
		role = "assistant"
	}

	if m.Blocks == nil {
		content, _ := json.Marshal([]map[string]string{{"type": "text", "text": m.Text}})
		return bedrockMessage{Role: role, Content: content}
	}

	var blocks []map[string]any
	for _, b := range m.Blocks {
		switch b.Kind {
		case models.BlockText:
			blocks = append(blocks, map[string]any{"type": "text", "text": b.Text})
		case models.BlockToolUse:
			var input any
			_ = json.Unmarshal(b.ToolInput, &input)
			blocks = append(blocks, map[string]any{"type": "tool_use", "id": b.ToolUseID, "name": b.ToolName, "input": input})
		case models.BlockToolResult:
			blocks = append(blocks, map[string]any{"type": "tool_result", "tool_use_id": b.ToolResultForID, "content": b.ToolResultText, "is_error": b.ToolResultError})
		}
	}
	content, _ := json.Marshal(blocks)
	return bedrockMessage{Role: role, Content: content}
}

func fromBedrockResponse(resp bedrockResponse, model string) models.ChatResponse {
	out := models.ChatResponse{Model: model, Provider: "bedrock"}
	for _, c := range resp.Content {
		switch c.Type {
		case "text":
			out.Text += c.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{ID: c.ID, Name: c.Name, Input: c.Input})
		}
	}

	switch resp.StopReason {
	case "tool_use":
		out.StopReason = models.StopToolUse
	case "max_tokens":
		out.StopReason = models.StopMaxTokens
	default:
		out.StopReason = models.StopEndTurn
	}

	in, outTok := resp.Usage.InputTokens, resp.Usage.OutputTokens
	out.Usage = models.Usage{InputTokens: &in, OutputTokens: &outTok}
	return out
}
