package mockserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultModel is the model requested from Ollama when none is set.
const DefaultModel = "llama2"

// ollama proxies prompts to an Ollama /api/generate endpoint.
type ollama struct {
	endpoint string
	model    string
	http     *http.Client
}

func newOllama(baseURL, model string, timeout time.Duration) *ollama {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ollama{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/generate",
		model:    model,
		http:     &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// upstreamError is a transport-level failure talking to Ollama.
type upstreamError struct{ err error }

func (e *upstreamError) Error() string { return fmt.Sprintf("Error requesting Ollama: %v", e.err) }
func (e *upstreamError) Unwrap() error { return e.err }

// statusError is a non-2xx answer from Ollama.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("Ollama returned error: %d - %s", e.code, e.body)
}

// generate sends prompt upstream. Each step is reported through emit as a
// log record: the outgoing request, then the response or the transport
// error.
func (o *ollama) generate(ctx context.Context, prompt string, emit func(Record)) (string, error) {
	payload := generateRequest{Model: o.model, Prompt: prompt, Stream: false}
	emit(Record{Source: SourceOllamaRequest, Method: http.MethodPost, URL: o.endpoint, RequestPayload: payload})

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		uerr := &upstreamError{err: err}
		emit(Record{Source: SourceOllamaError, URL: o.endpoint, Detail: uerr.Error()})
		return "", uerr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		uerr := &upstreamError{err: err}
		emit(Record{Source: SourceOllamaError, URL: o.endpoint, Detail: uerr.Error()})
		return "", uerr
	}

	var decoded map[string]any
	var logged any
	decodeErr := json.Unmarshal(raw, &decoded)
	if decodeErr == nil {
		logged = decoded
	} else {
		logged = map[string]string{"raw_response": string(raw)}
	}
	emit(Record{Source: SourceOllamaResponse, URL: o.endpoint, Status: resp.StatusCode, ResponsePayload: logged})

	if resp.StatusCode >= 400 {
		return "", &statusError{code: resp.StatusCode, body: string(raw)}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode Ollama response: %w", decodeErr)
	}
	text, ok := decoded["response"].(string)
	if !ok {
		text = "Error: No 'response' field found in Ollama output."
	}
	return text, nil
}
