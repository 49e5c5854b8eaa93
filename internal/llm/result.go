// internal/llm/result.go
package llm

// FallbackReason says why a slot used the deterministic template.
type FallbackReason string

const (
	ReasonModelDisabled       FallbackReason = "model_disabled"
	ReasonTemplateEngine      FallbackReason = "template_engine"
	ReasonProviderUnavailable FallbackReason = "provider_unavailable"
	ReasonProviderError       FallbackReason = "provider_error"
	ReasonTimeout             FallbackReason = "timeout"
	ReasonEmptyCompletion     FallbackReason = "empty_completion"
	ReasonDuplicate           FallbackReason = "duplicate_completion"
	ReasonRenderError         FallbackReason = "render_error"
	ReasonMalformed           FallbackReason = "malformed_completion"
)

// ProviderResult is either Success(text) or Fallback(reason). Callers branch
// on OK and never see provider errors directly.
type ProviderResult struct {
	Text   string
	Model  string
	Reason FallbackReason
	Err    error
}

// Success wraps a usable completion.
func Success(text, model string) ProviderResult {
	return ProviderResult{Text: text, Model: model}
}

// Fallback records why the template path must be used.
func Fallback(reason FallbackReason, err error) ProviderResult {
	return ProviderResult{Reason: reason, Err: err}
}

// OK reports whether the result is a Success.
func (r ProviderResult) OK() bool {
	return r.Reason == ""
}
