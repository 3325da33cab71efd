package backend

import (
	"context"
	"errors"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleTransport translates segment lists with Google Cloud Translation.
// The API returns one translation per input string, so alignment is native.
type GoogleTransport struct{}

func NewGoogleTransport() *GoogleTransport {
	return &GoogleTransport{}
}

func (t *GoogleTransport) Do(ctx context.Context, id Identity, req Request) (*Response, error) {
	if len(req.Segments) == 0 {
		return nil, fmt.Errorf("%w: google backend only translates segment lists", ErrUnsupported)
	}

	target, err := language.Parse(req.TargetLang)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid target language %q: %v", ErrUnsupported, req.TargetLang, err)
	}

	opts := []option.ClientOption{}
	if id.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(id.Credentials))
	}
	if id.APIKey != "" {
		opts = append(opts, option.WithAPIKey(id.APIKey))
	}
	if id.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(id.Endpoint))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create client: %v", ErrUnsupported, err)
	}
	defer client.Close()

	translations, err := client.Translate(ctx, req.Segments, target, &translate.Options{
		Source: language.English,
		Format: translate.Text,
	})
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, &StatusError{Code: gerr.Code, Err: err}
		}
		return nil, fmt.Errorf("translation failed: %w", err)
	}

	if len(translations) != len(req.Segments) {
		return nil, fmt.Errorf("%w: %d translations for %d segments", ErrMalformed, len(translations), len(req.Segments))
	}

	out := make([]string, len(translations))
	for i, tr := range translations {
		out[i] = tr.Text
	}
	return &Response{Segments: out}, nil
}
