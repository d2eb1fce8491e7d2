// Package textgen is the client side of the text-generation capability the
// evaluation stages call. Requests carry a JSON schema; responses are
// validated against it before they reach a stage.
package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Error kinds surfaced to callers.
var (
	ErrTimeout     = errors.New("textgen: timeout")
	ErrMalformed   = errors.New("textgen: malformed response")
	ErrUnavailable = errors.New("textgen: service unavailable")
)

// Request is one structured generation call.
type Request struct {
	Task   string // short label used in logs and metrics
	System string
	Prompt string
	Schema string // JSON schema the response must satisfy
}

// Generator turns a structured prompt into a JSON document.
type Generator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// Decode calls gen, validates the response against req.Schema and
// unmarshals it into out.
func Decode(ctx context.Context, gen Generator, req Request, out interface{}) error {
	raw, err := gen.Generate(ctx, req)
	if err != nil {
		return err
	}
	if err := Validate(req.Schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, req.Task, err)
	}
	return nil
}

// Validate checks raw against schema. An empty schema accepts any JSON.
func Validate(schema string, raw json.RawMessage) error {
	if !json.Valid(raw) {
		return fmt.Errorf("%w: not JSON", ErrMalformed)
	}
	if schema == "" {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("textgen: validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrMalformed, strings.Join(msgs, "; "))
}

// extractJSON strips markdown code fences and surrounding prose that some
// models wrap around a JSON object.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}
