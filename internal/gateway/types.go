// Package gateway types - the wire contract for the chat-completion front end.
//
// DESIGN: The gateway is vendor-neutral: the same {content, model, usage}
// shape flows in from the upstream and out to the client, so no
// provider-specific translation lives here.
package gateway

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /v1/chat/completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Usage carries billed token counts.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ChatResponse is the body returned to the client.
type ChatResponse struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Model    string  `json:"model"`
	Usage    Usage   `json:"usage"`
	Cost     float64 `json:"cost"`
	CacheHit bool    `json:"cache_hit"`
}
