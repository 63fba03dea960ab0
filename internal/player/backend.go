package player

import "context"

// Usage carries token accounting from a back-end response, when the
// back-end reports it. Zero value means "unknown", not "zero tokens".
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Backend is the player capability consumed by the adapter: complete a
// chat transcript under a max-tokens budget. Credential management is
// the back-end's own concern; retry with backoff is the adapter's
// (completeWithRetry), which sees a terminal success or failure per call.
type Backend interface {
	Complete(ctx context.Context, transcript []ChatMessage, maxTokens int, requestParams map[string]string) (text string, usage Usage, err error)
	Close() error
}
