package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/harunnryd/autosend/internal/model/contract"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestGenerate_BuildsAnthropicMessagesBody(t *testing.T) {
	inv := &fakeInvoker{body: `{"content":[{"type":"text","text":"{\"confidence\":"},{"type":"text","text":"0.9}"}],"usage":{"input_tokens":12,"output_tokens":4}}`}
	p := NewWithClient(inv)

	resp, err := p.Generate(context.Background(), contract.CompletionRequest{
		Model:       "anthropic.claude-3-haiku-20240307-v1:0",
		System:      "judge the reply",
		Messages:    []contract.Message{{Role: "user", Content: "hello"}},
		Temperature: contract.Float(0),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"confidence":0.9}`, resp.Content)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 4, resp.OutputTokens)

	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", aws.ToString(inv.input.ModelId))

	var sent map[string]any
	require.NoError(t, json.Unmarshal(inv.input.Body, &sent))
	assert.Equal(t, anthropicVersion, sent["anthropic_version"])
	assert.Equal(t, "judge the reply", sent["system"])
	assert.EqualValues(t, contract.DefaultMaxTokens, sent["max_tokens"])
	assert.EqualValues(t, 0, sent["temperature"])
	msgs := sent["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestGenerate_WrapsInvokeErrors(t *testing.T) {
	p := NewWithClient(&fakeInvoker{err: errors.New("ThrottlingException: rate exceeded")})

	_, err := p.Generate(context.Background(), contract.CompletionRequest{Model: "m"})
	assert.ErrorContains(t, err, "bedrock request failed")
}

func TestGenerate_RejectsGarbageBody(t *testing.T) {
	p := NewWithClient(&fakeInvoker{body: "not json"})

	_, err := p.Generate(context.Background(), contract.CompletionRequest{Model: "m"})
	assert.Error(t, err)
}
