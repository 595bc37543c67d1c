package dialect

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/sjson"

	"mercator-hq/eventgate/pkg/gateway"
	"mercator-hq/eventgate/pkg/providers"
	"mercator-hq/eventgate/pkg/proxy/types"
)

// NDJSONContentType is the content type of Ollama chat streams.
const NDJSONContentType = "application/x-ndjson"

// now is replaced in tests.
var now = time.Now

// ollamaToChat re-encodes an Ollama chat request as a chat completion
// request.
func ollamaToChat(d *gateway.Deployment, req *Request, p *Parsed) ([]byte, error) {
	var in types.OllamaChatRequest
	if err := json.Unmarshal(req.Body, &in); err != nil {
		return nil, gateway.InvalidRequest("The request body is not a valid chat request.")
	}

	out := openai.ChatCompletionRequest{
		Model:    d.DeploymentName,
		Messages: make([]openai.ChatCompletionMessage, 0, len(in.Messages)),
		Stream:   p.Stream,
	}
	for _, m := range in.Messages {
		out.Messages = append(out.Messages, chatMessage(m))
	}

	var zeroTemperature, zeroTopP bool
	if o := in.Options; o != nil {
		if o.Temperature != nil {
			out.Temperature = *o.Temperature
			zeroTemperature = *o.Temperature == 0
		}
		if o.TopP != nil {
			out.TopP = *o.TopP
			zeroTopP = *o.TopP == 0
		}
		if o.NumPredict != nil && *o.NumPredict > 0 {
			out.MaxTokens = *o.NumPredict
		}
		out.Stop = o.Stop
		out.Seed = o.Seed
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, gateway.InvalidRequest("The request body is not a valid chat request.")
	}

	// omitempty drops explicit zeros that change sampling
	if zeroTemperature {
		body, _ = sjson.SetBytes(body, "temperature", 0)
	}
	if zeroTopP {
		body, _ = sjson.SetBytes(body, "top_p", 0)
	}
	return body, nil
}

func chatMessage(m types.OllamaMessage) openai.ChatCompletionMessage {
	if len(m.Images) == 0 {
		return openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	parts := make([]openai.ChatMessagePart, 0, len(m.Images)+1)
	if m.Content != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: m.Content,
		})
	}
	for _, img := range m.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: imageDataURI(img)},
		})
	}
	return openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts}
}

func imageDataURI(b64 string) string {
	if strings.HasPrefix(b64, "data:") {
		return b64
	}
	return "data:image/jpeg;base64," + b64
}

// chatToOllama converts a buffered chat completion to one Ollama response.
func chatToOllama(p *Parsed, body []byte) ([]byte, string, error) {
	var in openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, "", err
	}

	out := types.OllamaChatResponse{
		Model:     p.Target,
		CreatedAt: now().UTC().Format(time.RFC3339Nano),
		Message:   types.OllamaMessageOutput{Role: openai.ChatMessageRoleAssistant},
		Done:      true,
	}
	if len(in.Choices) > 0 {
		msg := in.Choices[0].Message
		if msg.Role != "" {
			out.Message.Role = msg.Role
		}
		out.Message.Content = msg.Content
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, "", err
	}
	return encoded, "application/json", nil
}

// ollamaEncoder re-encodes an SSE chat completion stream as Ollama NDJSON.
// Incomplete lines are held until the next chunk, so frames and multi-byte
// characters split across reads are reassembled before parsing.
type ollamaEncoder struct {
	model   string
	pending []byte
	done    bool
	logger  *slog.Logger
}

func newOllamaEncoder(p *Parsed) providers.StreamEncoder {
	return &ollamaEncoder{
		model:  p.Target,
		logger: slog.Default().With("component", "dialect.ollama"),
	}
}

func (e *ollamaEncoder) ContentType() string { return NDJSONContentType }

func (e *ollamaEncoder) Encode(chunk []byte) ([]byte, error) {
	e.pending = append(e.pending, chunk...)

	cut := bytes.LastIndexByte(e.pending, '\n')
	if cut < 0 {
		return nil, nil
	}
	complete := e.pending[:cut+1]

	var out bytes.Buffer
	for _, line := range bytes.Split(complete, []byte("\n")) {
		if err := e.encodeLine(&out, line); err != nil {
			return nil, err
		}
	}

	e.pending = append(e.pending[:0], e.pending[cut+1:]...)
	return out.Bytes(), nil
}

func (e *ollamaEncoder) Close() ([]byte, error) {
	var out bytes.Buffer
	if len(e.pending) > 0 {
		if err := e.encodeLine(&out, e.pending); err != nil {
			return nil, err
		}
		e.pending = nil
	}
	if !e.done {
		// the upstream ended without a finish reason
		if err := e.write(&out, "", true); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

func (e *ollamaEncoder) encodeLine(out *bytes.Buffer, line []byte) error {
	line = bytes.TrimSpace(line)
	payload, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok || e.done {
		return nil
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return nil
	}

	var frame openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(payload, &frame); err != nil {
		e.logger.Debug("skipping unparsable stream frame", "error", err)
		return nil
	}
	if len(frame.Choices) == 0 {
		return nil
	}

	choice := frame.Choices[0]
	finished := choice.FinishReason != ""
	if choice.Delta.Content == "" && !finished {
		return nil
	}
	return e.write(out, choice.Delta.Content, finished)
}

func (e *ollamaEncoder) write(out *bytes.Buffer, content string, done bool) error {
	line, err := json.Marshal(types.OllamaChatResponse{
		Model:     e.model,
		CreatedAt: now().UTC().Format(time.RFC3339Nano),
		Message: types.OllamaMessageOutput{
			Role:    openai.ChatMessageRoleAssistant,
			Content: content,
		},
		Done: done,
	})
	if err != nil {
		return err
	}
	out.Write(line)
	out.WriteByte('\n')
	e.done = done
	return nil
}

// Tags lists chat deployments in Ollama's tag format.
func Tags(names []string) types.OllamaTagsResponse {
	resp := types.OllamaTagsResponse{Models: make([]types.OllamaModel, 0, len(names))}
	modified := now().UTC().Format(time.RFC3339)
	for _, name := range names {
		resp.Models = append(resp.Models, types.OllamaModel{
			Name:       name,
			Model:      name,
			ModifiedAt: modified,
			Details: types.OllamaModelDetails{
				Format: "api",
				Family: "openai",
			},
		})
	}
	return resp
}
