package contract

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	// JSONOutput asks providers that support it for a JSON-only response.
	JSONOutput bool `json:"json_output,omitempty"`
}

type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

const DefaultMaxTokens = 1024

// Float returns a pointer to v, for optional request fields.
func Float(v float64) *float64 { return &v }
