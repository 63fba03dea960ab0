package player

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/docker"
	"github.com/xentbench/xent-runtime/internal/player/bridge"
)

// DefaultBackend runs the player's agent as a container that connects
// out to a per-backend bridge server, and relays chat transcripts to
// it over that connection for the lifetime of one trial. The container
// is started lazily on the first Complete call and reused for every
// subsequent elicit in the same trial.
type DefaultBackend struct {
	image   string
	timeout time.Duration

	mu       sync.Mutex
	srv      *bridge.Server
	conn     *bridge.Conn
	workDir  string
	runErrCh chan error
}

// NewDefaultBackend builds a Default backend from one player's options.
// opts.Image is required (config.validate enforces this for
// PlayerKindDefault players).
func NewDefaultBackend(opts config.PlayerOptions) *DefaultBackend {
	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &DefaultBackend{image: opts.Image, timeout: timeout}
}

func (b *DefaultBackend) ensureStarted(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return nil
	}

	srv, err := bridge.Listen("127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("default backend: %w", err)
	}
	b.srv = srv

	workDir, err := os.MkdirTemp("", "xent-player-*")
	if err != nil {
		srv.Close()
		return fmt.Errorf("default backend: workdir: %w", err)
	}
	b.workDir = workDir

	b.runErrCh = make(chan error, 1)
	go func() {
		_, err := docker.RunContainer(ctx, &docker.RunOpts{
			Image:       b.image,
			WorkDir:     workDir,
			GatewayAddr: srv.Addr(),
			Timeout:     b.timeout,
		})
		b.runErrCh <- err
	}()

	conn, err := srv.Accept(ctx)
	if err != nil {
		return fmt.Errorf("default backend: waiting for agent container to connect: %w", err)
	}
	b.conn = conn
	return nil
}

func (b *DefaultBackend) Complete(ctx context.Context, transcript []ChatMessage, maxTokens int, requestParams map[string]string) (string, Usage, error) {
	if err := b.ensureStarted(ctx); err != nil {
		return "", Usage{}, err
	}
	msgs := make([]bridge.Message, len(transcript))
	for i, m := range transcript {
		msgs[i] = bridge.Message{Role: m.Role, Content: m.Content}
	}
	text, promptToks, completionToks, err := b.conn.Request(ctx, msgs, maxTokens, b.timeout)
	if err != nil {
		return "", Usage{}, fmt.Errorf("default backend: %w", err)
	}
	return text, Usage{PromptTokens: promptToks, CompletionTokens: completionToks}, nil
}

func (b *DefaultBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
	}
	if b.srv != nil {
		b.srv.Close()
	}
	if b.workDir != "" {
		os.RemoveAll(b.workDir)
	}
	return nil
}
