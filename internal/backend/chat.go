package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultChatEndpoint is used when an identity names no endpoint.
const DefaultChatEndpoint = "https://openrouter.ai/api/v1"

// ChatTransport talks to OpenAI-compatible chat completion endpoints.
type ChatTransport struct {
	httpClient *http.Client
}

// NewChatTransport returns a chat transport. A nil httpClient uses the SDK
// default.
func NewChatTransport(httpClient *http.Client) *ChatTransport {
	return &ChatTransport{httpClient: httpClient}
}

func (t *ChatTransport) options(id Identity) []option.RequestOption {
	endpoint := id.Endpoint
	if endpoint == "" {
		endpoint = DefaultChatEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	opts := []option.RequestOption{
		option.WithBaseURL(endpoint),
		option.WithMaxRetries(0),
		option.WithHeader("HTTP-Referer", "https://news2docx.local"),
		option.WithHeader("X-Title", "News2Docx"),
	}
	if id.APIKey != "" {
		opts = append(opts, option.WithAPIKey(id.APIKey))
	}
	if t.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(t.httpClient))
	}
	return opts
}

func (t *ChatTransport) Do(ctx context.Context, id Identity, req Request) (*Response, error) {
	if req.User == "" {
		return nil, fmt.Errorf("%w: chat request without user content", ErrUnsupported)
	}
	if id.Model == "" {
		return nil, fmt.Errorf("%w: chat backend %q has no model", ErrUnsupported, id.Name)
	}

	client := openai.NewClient(t.options(id)...)

	msgs := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(id.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Code: apiErr.StatusCode, Err: err}
		}
		return nil, err
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrMalformed)
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformed)
	}

	return &Response{Text: content}, nil
}
