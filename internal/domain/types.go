package domain

import "encoding/json"

// CacheSource identifies which cache tier served a result.
type CacheSource int

const (
	CacheNone CacheSource = iota
	CacheExact
	CacheSemantic
)

func (s CacheSource) String() string {
	switch s {
	case CacheExact:
		return "exact"
	case CacheSemantic:
		return "semantic"
	default:
		return "none"
	}
}

func (s CacheSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *CacheSource) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "exact":
		*s = CacheExact
	case "semantic":
		*s = CacheSemantic
	default:
		*s = CacheNone
	}
	return nil
}

// GenerationRequest is a single text-generation request. It is immutable
// once created; its identity for exact-match caching is a deterministic
// hash of the model, prompts, and sampling parameters.
type GenerationRequest struct {
	Model        string   `json:"model"`
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`

	// Per-call overrides. Never part of the request's cache identity.
	APIKey string `json:"-"`
	Quiet  bool   `json:"-"`
}

// CombinedPrompt joins the system and user prompt into the text the
// semantic cache embeds.
func (r GenerationRequest) CombinedPrompt() string {
	if r.SystemPrompt == "" {
		return r.Prompt
	}
	return r.SystemPrompt + "\n\n" + r.Prompt
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Generation is a provider's raw output before accounting and caching.
type Generation struct {
	Text  string
	Usage Usage
}

// GenerationResult is what callers receive. The gateway keeps no reference
// to it after return.
type GenerationResult struct {
	Text            string      `json:"text"`
	InputTokens     int         `json:"input_tokens"`
	OutputTokens    int         `json:"output_tokens"`
	Model           string      `json:"model"`
	ServedFromCache CacheSource `json:"served_from_cache"`
}

// BatchItem is one outcome in a batch dispatch. Exactly one of Result or
// Err is set; item order matches the submitted request order.
type BatchItem struct {
	Result *GenerationResult
	Err    error
}

type Capability string

const (
	CapabilityToolUse   Capability = "tool_use"
	CapabilityStreaming Capability = "streaming"
	CapabilityVision    Capability = "vision"
)

// ModelProfile is static per-model metadata: token limit, capability flags,
// and price per 1K tokens. Loaded once at startup and shared read-only by
// all requests.
type ModelProfile struct {
	ID           string       `json:"id"`
	Provider     string       `json:"provider"`
	TokenLimit   int          `json:"token_limit"`
	Capabilities []Capability `json:"capabilities,omitempty"`
	InputPer1K   float64      `json:"-"`
	OutputPer1K  float64      `json:"-"`
}

func (p ModelProfile) HasCapability(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
