package inference

// Wire shapes for the three endpoint kinds, per the fixed JSON contracts
// each backend speaks. Kept separate from client.go so the request/response
// envelopes read as a flat reference independent of call logic.

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generativeRequest struct {
	Model            string        `json:"model"`
	Messages         []wireMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	TopK             int           `json:"top_k,omitempty"`
	RepeatPenalty    float64       `json:"repeat_penalty,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
}

type generativeResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

type contextualOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type contextualRequest struct {
	Model   string            `json:"model"`
	Prompt  string            `json:"prompt"`
	Stream  bool              `json:"stream"`
	Options contextualOptions `json:"options"`
}

type contextualResponse struct {
	Response string `json:"response"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}
