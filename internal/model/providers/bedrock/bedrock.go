// Package bedrock runs Anthropic models hosted on AWS Bedrock through the
// InvokeModel API.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harunnryd/autosend/internal/model/contract"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const anthropicVersion = "bedrock-2023-05-31"

// Invoker is the subset of the Bedrock runtime client the provider uses.
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Provider struct {
	client Invoker
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type request struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
	Temperature      *float64  `json:"temperature,omitempty"`
}

type response struct {
	Content []contentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// New loads AWS credentials from the default chain.
func New(ctx context.Context, region string) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Provider{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func NewWithClient(client Invoker) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Name() string {
	return "bedrock"
}

func (p *Provider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	body := request{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.MaxTokens,
		System:           req.System,
		Temperature:      req.Temperature,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = contract.DefaultMaxTokens
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		body.Messages = append(body.Messages, message{Role: role, Content: []contentBlock{{Type: "text", Text: m.Content}}})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bedrock request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock request failed: %w", err)
	}

	var parsed response
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse bedrock response: %w", err)
	}

	resp := &contract.CompletionResponse{
		Model:        req.Model,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			resp.Content += block.Text
		}
	}
	return resp, nil
}
