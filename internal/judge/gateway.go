// Package judge wraps the scoring/tokenization/sampling model behind a
// single process-wide, thread-safe Gateway.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/xentbench/xent-runtime/internal/xent"
	"github.com/xentbench/xent-runtime/internal/xenterr"
)

// StartOpts configures how the Gateway reaches the model-serving
// sidecar: spawn one, or dial an already-running instance.
type StartOpts struct {
	Command   string
	Args      []string
	Addr      string // if set, dial instead of spawning
	LogDir    string
	CacheSize int
}

// Gateway is the process-wide handle to the judge model sidecar.
type Gateway struct {
	baseURL string
	cmd     *exec.Cmd
	logFile *os.File
	client  *http.Client
	cache   *lru.Cache[string, []Token]
}

// Token is one tokenized unit: its opaque id and printable surface.
type Token struct {
	ID      int    `json:"id"`
	Surface string `json:"surface"`
}

// Start spawns (or dials, if opts.Addr is set) the judge sidecar and
// waits for it to accept connections, mirroring the spawn-or-dial,
// probe-then-proceed shape thunderdome's litellm gateway uses.
func Start(ctx context.Context, opts *StartOpts) (*Gateway, error) {
	if opts.Addr != "" {
		return Dial("http://"+opts.Addr, opts.CacheSize)
	}

	port, err := findFreePort()
	if err != nil {
		return nil, fmt.Errorf("finding free port for judge sidecar: %w", err)
	}

	var logFile *os.File
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating judge log dir: %w", err)
		}
		logFile, err = os.Create(fmt.Sprintf("%s/judge-%d.log", opts.LogDir, port))
		if err != nil {
			return nil, fmt.Errorf("creating judge log file: %w", err)
		}
	}

	args := append(append([]string{}, opts.Args...), "--port", fmt.Sprintf("%d", port))
	cmd := exec.CommandContext(ctx, opts.Command, args...)
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("starting judge sidecar: %w", err)
	}

	if err := waitForPort(port, 30*time.Second); err != nil {
		cmd.Process.Kill()
		if logFile != nil {
			logFile.Close()
		}
		return nil, xenterr.JudgeUnavailable("judge sidecar did not start", err)
	}

	log.Info().Int("port", port).Str("command", opts.Command).Msg("judge sidecar started")

	g, err := Dial(fmt.Sprintf("http://localhost:%d", port), opts.CacheSize)
	if err != nil {
		cmd.Process.Kill()
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}
	g.cmd = cmd
	g.logFile = logFile
	return g, nil
}

// Dial wires a Gateway directly to an already-reachable base URL,
// bypassing spawn/probe. Used when the judge sidecar is managed outside
// this process (opts.Addr) and in tests against an httptest server.
func Dial(baseURL string, cacheSize int) (*Gateway, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, []Token](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating tokenize cache: %w", err)
	}
	return &Gateway{baseURL: baseURL, client: http.DefaultClient, cache: cache}, nil
}

// Stop tears down a spawned sidecar. Dialed gateways (opts.Addr) have no
// process to stop.
func (g *Gateway) Stop() error {
	if g.cmd != nil && g.cmd.Process != nil {
		g.cmd.Process.Kill()
		g.cmd.Wait()
	}
	if g.logFile != nil {
		g.logFile.Close()
	}
	return nil
}

func findFreePort() (int, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port, nil
}

func waitForPort(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("port %d not ready after %s", port, timeout)
}

// backoff retries fn with exponential delay (base 500ms, factor 2, cap
// 5 attempts) before giving up, matching SPEC_FULL.md §4.A.
func backoff[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	delay := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return zero, xenterr.JudgeUnavailable("judge sidecar unreachable after retries", lastErr)
}

func (g *Gateway) post(ctx context.Context, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling judge request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("judge sidecar returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

// Tokenize returns the ordered token sequence for text, cached per text
// string — tokenize is defined to be pure, so caching is sound.
func (g *Gateway) Tokenize(ctx context.Context, text string) ([]Token, error) {
	if toks, ok := g.cache.Get(text); ok {
		return toks, nil
	}
	toks, err := backoff(ctx, func() ([]Token, error) {
		var resp struct {
			Tokens []Token `json:"tokens"`
		}
		if err := g.post(ctx, "/tokenize", map[string]string{"text": text}, &resp); err != nil {
			return nil, err
		}
		return resp.Tokens, nil
	})
	if err != nil {
		return nil, xenterr.JudgeUnavailable("tokenize failed", err)
	}
	g.cache.Add(text, toks)
	return toks, nil
}

// Xent computes xent(text | context): the model's raw per-token
// cross-entropy of text, in bits, conditioned on context.
func (g *Gateway) Xent(ctx context.Context, text, context string) (xent.TokenXent, error) {
	pairs, err := backoff(ctx, func() ([]xent.Pair, error) {
		var resp struct {
			Pairs []xent.Pair `json:"pairs"`
		}
		if err := g.post(ctx, "/score", map[string]string{"text": text, "context": context}, &resp); err != nil {
			return nil, err
		}
		return resp.Pairs, nil
	})
	if err != nil {
		return xent.TokenXent{}, xenterr.JudgeUnavailable("xent scoring failed", err)
	}
	return xent.New(pairs), nil
}

// Xed computes xed(text | context) = xent(text|"") - xent(text|context),
// the "xent delta": how much cheaper the context makes the text.
// Empty context uses the model's BOS marker (SPEC_FULL.md §4.A).
func (g *Gateway) Xed(ctx context.Context, text, ctxText string) (xent.TokenXent, error) {
	unconditioned, err := g.Xent(ctx, text, "")
	if err != nil {
		return xent.TokenXent{}, err
	}
	conditioned, err := g.Xent(ctx, text, ctxText)
	if err != nil {
		return xent.TokenXent{}, err
	}
	diff, err := unconditioned.Sub(conditioned)
	if err != nil {
		return xent.TokenXent{}, xenterr.ScoringAlignmentError(fmt.Sprintf("xed: %v", err))
	}
	return diff, nil
}

// Nex computes nex(text | context) = -xent(text | context).
func (g *Gateway) Nex(ctx context.Context, text, ctxText string) (xent.TokenXent, error) {
	x, err := g.Xent(ctx, text, ctxText)
	if err != nil {
		return xent.TokenXent{}, err
	}
	return x.Negated(), nil
}

// Dex computes dex(text | context) = -xed(text | context).
func (g *Gateway) Dex(ctx context.Context, text, ctxText string) (xent.TokenXent, error) {
	x, err := g.Xed(ctx, text, ctxText)
	if err != nil {
		return xent.TokenXent{}, err
	}
	return x.Negated(), nil
}

// XentDiff computes xent(text|c1) and xent(text|c2) and requires them to
// tokenize text identically, or fails ScoringAlignmentError (exact
// token-id equality, never float or surface-string comparison — two
// tokens can share a surface without being the same token).
func (g *Gateway) XentDiff(ctx context.Context, text, c1, c2 string) (xent.TokenXent, xent.TokenXent, error) {
	a, err := g.Xent(ctx, text, c1)
	if err != nil {
		return xent.TokenXent{}, xent.TokenXent{}, err
	}
	b, err := g.Xent(ctx, text, c2)
	if err != nil {
		return xent.TokenXent{}, xent.TokenXent{}, err
	}
	if !sameTokenIDs(a, b) {
		return xent.TokenXent{}, xent.TokenXent{}, xenterr.ScoringAlignmentError(
			fmt.Sprintf("xent_diff: %q tokenized differently under c1 and c2", text))
	}
	return a, b, nil
}

// sameTokenIDs reports whether a and b have the same token id sequence.
func sameTokenIDs(a, b xent.TokenXent) bool {
	if len(a.Pairs) != len(b.Pairs) {
		return false
	}
	for i := range a.Pairs {
		if a.Pairs[i].ID != b.Pairs[i].ID {
			return false
		}
	}
	return true
}

// Sample draws a completion deterministically for a fixed seed — used
// by the JUDGE text generator during map generation.
func (g *Gateway) Sample(ctx context.Context, prompt string, maxTokens int, seed int64) (string, error) {
	text, err := backoff(ctx, func() (string, error) {
		var resp struct {
			Text string `json:"text"`
		}
		body := map[string]any{"prompt": prompt, "max_tokens": maxTokens, "seed": seed}
		if err := g.post(ctx, "/generate", body, &resp); err != nil {
			return "", err
		}
		return resp.Text, nil
	})
	if err != nil {
		return "", xenterr.JudgeUnavailable("sample failed", err)
	}
	return text, nil
}
