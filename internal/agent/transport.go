package agent

import (
	"context"
	"time"
)

// transport carries protocol messages to one agent endpoint.
type transport interface {
	handshake(ctx context.Context, req map[string]any) (map[string]any, error)
	execute(ctx context.Context, req map[string]any) (map[string]any, error)
	close() error
}

// bearer mints the per-request token, or returns "" when tokens are disabled.
// Tokens always carry wall-clock times so deterministic runs still authenticate.
type bearer struct {
	secret  string
	subject string
}

func (b bearer) token() (string, error) {
	if b.secret == "" {
		return "", nil
	}
	return MintToken(b.secret, b.subject, time.Now())
}
