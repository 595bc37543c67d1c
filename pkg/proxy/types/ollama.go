package types

import "encoding/json"

// OllamaChatRequest is the body of POST /api/chat.
type OllamaChatRequest struct {
	// Model names the chat deployment.
	Model string `json:"model"`

	// Messages is the conversation history.
	Messages []OllamaMessage `json:"messages"`

	// Stream is kept raw. Only a JSON true streams; any other value,
	// including "true" or 1, is read as false.
	Stream json.RawMessage `json:"stream,omitempty"`

	// Options carries sampling parameters.
	Options *OllamaOptions `json:"options,omitempty"`
}

// OllamaMessage is one chat message. Images are base64 payloads without a
// data URI prefix.
type OllamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// OllamaOptions are the sampling options the gateway translates. Pointers
// keep an explicit zero distinct from an absent value.
type OllamaOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
}

// OllamaChatResponse is one NDJSON line of a chat response.
type OllamaChatResponse struct {
	Model     string              `json:"model"`
	CreatedAt string              `json:"created_at"`
	Message   OllamaMessageOutput `json:"message"`
	Done      bool                `json:"done"`
}

// OllamaMessageOutput is the assistant message of a chat response line.
type OllamaMessageOutput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaTagsResponse is the body of GET /api/tags.
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel describes one listed model.
type OllamaModel struct {
	Name       string             `json:"name"`
	Model      string             `json:"model"`
	ModifiedAt string             `json:"modified_at"`
	Size       int64              `json:"size"`
	Digest     string             `json:"digest"`
	Details    OllamaModelDetails `json:"details"`
}

// OllamaModelDetails is the details block of a listed model.
type OllamaModelDetails struct {
	Format string `json:"format"`
	Family string `json:"family"`
}
