package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arencloud/stratus/internal/logging"
)

// upstreamTimeout bounds every backend call; expiry surfaces as an upstream error.
const upstreamTimeout = 60 * time.Second

// Result is what the handler writes back verbatim: a status plus a JSON body.
type Result struct {
	Status int
	Body   any
}

// Proxy translates between the three caller-facing request dialects and the
// two backend endpoints. Nothing here is persisted.
type Proxy struct {
	chatURL     string
	generateURL string
	model       string
	client      *http.Client
	logger      logging.Logger
}

func NewProxy(chatURL, generateURL, model string, logger logging.Logger) *Proxy {
	return &Proxy{
		chatURL:     chatURL,
		generateURL: generateURL,
		model:       model,
		client:      &http.Client{Timeout: upstreamTimeout},
		logger:      logger,
	}
}

// backend wire shapes

type backendMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type backendOptions struct {
	NumPredict  *int     `json:"num_predict,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []backendMessage `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  *backendOptions  `json:"options,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options *backendOptions `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role     string `json:"role"`
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
}

// caller dialects

type textBlock struct {
	Text string `json:"text"`
}

type messagesRequest struct {
	System   []textBlock `json:"system"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
	InferenceConfig *struct {
		MaxNewTokens *int     `json:"max_new_tokens"`
		Temperature  *float64 `json:"temperature"`
		TopP         *float64 `json:"top_p"`
	} `json:"inferenceConfig"`
}

type inputTextRequest struct {
	InputText            string `json:"inputText"`
	TextGenerationConfig *struct {
		MaxTokenCount *int     `json:"maxTokenCount"`
		Temperature   *float64 `json:"temperature"`
	} `json:"textGenerationConfig"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// caller-facing response envelopes

type tokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type assistantMessage struct {
	Role    string      `json:"role"`
	Content []textBlock `json:"content"`
}

type messagesResponse struct {
	Output struct {
		Message assistantMessage `json:"message"`
	} `json:"output"`
	StopReason string     `json:"stopReason"`
	Usage      tokenUsage `json:"usage"`
}

type outputText struct {
	OutputText string `json:"outputText"`
}

type inputTextResponse struct {
	Results             []outputText `json:"results"`
	InputTextTokenCount int          `json:"inputTextTokenCount"`
}

type promptResponse struct {
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason"`
}

func errorResult(status int, msg string) Result {
	return Result{Status: status, Body: map[string]string{"error": msg}}
}

// Invoke classifies the caller's dialect by top-level field presence and
// forwards the translated request to the matching backend endpoint. The three
// shapes are mutually exclusive; anything else is unsupported.
func (p *Proxy) Invoke(ctx context.Context, modelID string, body []byte) Result {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return errorResult(http.StatusBadRequest, "Invalid JSON")
	}
	p.logger.Info("model invocation", "model", modelID)
	if _, ok := probe["messages"]; ok {
		return p.invokeMessages(ctx, body)
	}
	if _, ok := probe["inputText"]; ok {
		return p.invokeInputText(ctx, body)
	}
	if _, ok := probe["prompt"]; ok {
		return p.invokePrompt(ctx, body)
	}
	return errorResult(http.StatusBadRequest, "Unsupported model request format.")
}

// post sends one backend call and decodes the reply; a non-empty return is
// the upstream error text to surface as 502.
func (p *Proxy) post(ctx context.Context, url string, payload, out any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return err.Error()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err.Error()
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err.Error()
	}
	if resp.StatusCode != http.StatusOK {
		p.logger.Error("inference backend error", "url", url, "status", resp.StatusCode)
		return "backend error: " + string(raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return err.Error()
	}
	return ""
}

// flattenContent accepts a message content that is either a plain string or a
// list of text blocks, and reduces it to plain text.
func flattenContent(raw json.RawMessage) string {
	var blocks []textBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			sb.WriteString(b.Text)
		}
		return sb.String()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func (p *Proxy) invokeMessages(ctx context.Context, body []byte) Result {
	var in messagesRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return errorResult(http.StatusBadRequest, err.Error())
	}
	req := chatRequest{Model: p.model, Stream: false}
	for _, s := range in.System {
		if s.Text != "" {
			req.Messages = append(req.Messages, backendMessage{Role: "system", Content: s.Text})
		}
	}
	for _, m := range in.Messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		req.Messages = append(req.Messages, backendMessage{Role: role, Content: flattenContent(m.Content)})
	}
	if c := in.InferenceConfig; c != nil && (c.MaxNewTokens != nil || c.Temperature != nil || c.TopP != nil) {
		req.Options = &backendOptions{NumPredict: c.MaxNewTokens, Temperature: c.Temperature, TopP: c.TopP}
	}

	var out chatResponse
	if errText := p.post(ctx, p.chatURL, req, &out); errText != "" {
		return errorResult(http.StatusBadGateway, errText)
	}

	text := out.Message.Content
	// reasoning-capable models report their chain separately; surface it
	// inline, bracketed, ahead of the visible content
	if out.Message.Thinking != "" {
		if text == "" {
			text = "<" + out.Message.Thinking + ">\n"
		} else {
			text = "<" + out.Message.Thinking + ">\n" + text
		}
	}

	var resp messagesResponse
	resp.Output.Message = assistantMessage{Role: "assistant", Content: []textBlock{{Text: text}}}
	resp.StopReason = "end_turn"
	resp.Usage = tokenUsage{InputTokens: out.PromptEvalCount, OutputTokens: out.EvalCount}
	return Result{Status: http.StatusOK, Body: resp}
}

func (p *Proxy) invokeInputText(ctx context.Context, body []byte) Result {
	var in inputTextRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return errorResult(http.StatusBadRequest, err.Error())
	}
	req := generateRequest{Model: p.model, Prompt: in.InputText, Stream: false}
	if c := in.TextGenerationConfig; c != nil && (c.MaxTokenCount != nil || c.Temperature != nil) {
		req.Options = &backendOptions{NumPredict: c.MaxTokenCount, Temperature: c.Temperature}
	}
	var out generateResponse
	if errText := p.post(ctx, p.generateURL, req, &out); errText != "" {
		return errorResult(http.StatusBadGateway, errText)
	}
	return Result{Status: http.StatusOK, Body: inputTextResponse{
		Results:             []outputText{{OutputText: out.Response}},
		InputTextTokenCount: out.PromptEvalCount,
	}}
}

func (p *Proxy) invokePrompt(ctx context.Context, body []byte) Result {
	var in promptRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return errorResult(http.StatusBadRequest, err.Error())
	}
	req := generateRequest{Model: p.model, Prompt: in.Prompt, Stream: false}
	var out generateResponse
	if errText := p.post(ctx, p.generateURL, req, &out); errText != "" {
		return errorResult(http.StatusBadGateway, errText)
	}
	return Result{Status: http.StatusOK, Body: promptResponse{
		Completion: out.Response,
		StopReason: "stop_sequence",
	}}
}
