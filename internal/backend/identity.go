// Package backend calls remote language-model and translation services.
//
// A Client performs one logical call against one Identity: it waits for the
// identity's rate bucket, bounds every attempt with a timeout and retries
// transient failures with exponential backoff. The request-shaped work is
// delegated to a Transport registered per backend Kind.
package backend

import (
	"context"
	"time"
)

// Kind selects the wire protocol of a backend.
type Kind string

const (
	// KindChat is an OpenAI-compatible chat completion endpoint.
	KindChat Kind = "chat"
	// KindGoogle is Google Cloud Translation. It can only translate.
	KindGoogle Kind = "google"
)

// Identity is the static description of one remote backend.
type Identity struct {
	Name        string `json:"name" yaml:"name"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model       string `json:"model,omitempty" yaml:"model,omitempty"`
	RateBucket  string `json:"rate_bucket,omitempty" yaml:"rate_bucket,omitempty"`
	APIKey      string `json:"-" yaml:"-"`
	Credentials string `json:"-" yaml:"-"`
}

// Bucket returns the rate bucket key, defaulting to the identity name.
func (id Identity) Bucket() string {
	if id.RateBucket != "" {
		return id.RateBucket
	}
	return id.Name
}

// Generative reports whether the backend accepts free-form instructions.
// Only generative backends can normalize article length.
func (id Identity) Generative() bool {
	return id.Kind == KindChat
}

// Request is a single logical call. Chat transports use System and User;
// segment transports translate Segments into TargetLang one-to-one.
type Request struct {
	Stage       string
	System      string
	User        string
	Segments    []string
	TargetLang  string
	MaxTokens   int
	Temperature float64
}

// Response is a successful call result.
type Response struct {
	Identity Identity
	Text     string
	Segments []string
	Attempts int
	Latency  time.Duration
}

// Transport performs exactly one attempt against a backend. It must honour
// ctx and must not retry on its own.
type Transport interface {
	Do(ctx context.Context, id Identity, req Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, id Identity, req Request) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, id Identity, req Request) (*Response, error) {
	return f(ctx, id, req)
}
