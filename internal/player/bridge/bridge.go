// Package bridge is the NDJSON-over-WebSocket relay between a
// container-hosted player back-end and the Player Adapter, adapted
// from the Claude-Code-specific protocol in adapters/claude-code to a
// generic {messages, max_tokens} -> {text} exchange. The Server runs
// on the adapter side; the container's agent process connects out to
// it as the WebSocket client, the same direction thunderdome's
// GatewayAddr already assumes for its API proxy.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// Message mirrors player.ChatMessage without importing internal/player,
// which would create an import cycle (player imports bridge to drive
// Default backend containers).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Envelope is the single message shape on the wire. Type selects which
// fields are meaningful.
type Envelope struct {
	Type             string    `json:"type"` // "request" | "response" | "error"
	Messages         []Message `json:"messages,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Text             string    `json:"text,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Server accepts exactly one inbound connection per Accept call and
// exchanges any number of request/response pairs over it.
type Server struct {
	ln      net.Listener
	httpSrv *http.Server
	connCh  chan *websocket.Conn
	errCh   chan error
}

// Listen starts a Server on addr ("host:port", port 0 for any free
// port). Call Addr to discover the chosen port before handing it to a
// container as GatewayAddr.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bridge: listen: %w", err)
	}
	s := &Server{
		ln:     ln,
		connCh: make(chan *websocket.Conn, 1),
		errCh:  make(chan error, 1),
	}
	s.httpSrv = &http.Server{
		Handler: http.HandlerFunc(s.handleAccept),
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
	}()
	return s, nil
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	select {
	case s.connCh <- conn:
	default:
		conn.Close(websocket.StatusPolicyViolation, "only one connection allowed")
	}
}

// Addr returns the host:port the server is listening on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Accept blocks until the container's agent process connects, or ctx
// is cancelled.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	select {
	case conn := <-s.connCh:
		return &Conn{ws: conn}, nil
	case err := <-s.errCh:
		return nil, fmt.Errorf("bridge: accept: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the server. It does not close any already-accepted Conn.
func (s *Server) Close() error {
	return s.httpSrv.Close()
}

// Conn is one accepted connection to a container's agent process.
type Conn struct {
	ws *websocket.Conn
}

// Request sends one chat transcript and blocks for the matching
// response, ignoring any informational message types in between (the
// same tolerant dispatch adapters/claude-code/main.go uses for
// keep_alive/tool_progress noise).
func (c *Conn) Request(ctx context.Context, messages []Message, maxTokens int, timeout time.Duration) (text string, promptTokens, completionTokens int, err error) {
	req := Envelope{Type: "request", Messages: messages, MaxTokens: maxTokens}
	data, err := json.Marshal(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("bridge: marshal request: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return "", 0, 0, fmt.Errorf("bridge: write request: %w", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		_, raw, err := c.ws.Read(readCtx)
		if err != nil {
			return "", 0, 0, fmt.Errorf("bridge: read response: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		switch env.Type {
		case "response":
			return env.Text, env.PromptTokens, env.CompletionTokens, nil
		case "error":
			return "", 0, 0, fmt.Errorf("bridge: back-end error: %s", env.Error)
		default:
			continue // informational message, keep waiting
		}
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "done")
}
