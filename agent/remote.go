package agent

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/quorumlabs/liarslie/internal/retry"
	"github.com/quorumlabs/liarslie/wire"
)

// RemoteAgent is a handle to an agent running in another process, reachable
// on loopback at a known port. Each Call opens a fresh connection — there is
// no pooling.
type RemoteAgent struct {
	target wire.AgentID
}

// NewRemoteAgent returns a client for the given agent identity.
func NewRemoteAgent(target wire.AgentID) *RemoteAgent {
	return &RemoteAgent{target: target}
}

// Call connects, sends req, waits for one framed response, and closes the
// connection. Only the connect step is retried (up to retry.MaxRetries,
// linear backoff); a write or read failure after a successful connect is
// returned to the caller immediately. If ctx carries a deadline, it is
// applied to the connection via SetDeadline, so a peer that stalls
// mid-write or mid-read is bounded the same as an unreachable one.
func (r *RemoteAgent) Call(ctx context.Context, req wire.Request) (wire.Response, error) {
	var dialer net.Dialer
	conn, err := retry.Connect(ctx, func() (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp", r.target.Addr())
	})
	if err != nil {
		return wire.Response{}, fmt.Errorf("agent: connect to %s: %w", r.target, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return wire.Response{}, fmt.Errorf("agent: set deadline for %s: %w", r.target, err)
		}
	}

	if err := wire.WriteRequest(conn, req); err != nil {
		return wire.Response{}, fmt.Errorf("agent: send to %s: %w", r.target, err)
	}

	resp, err := wire.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return wire.Response{}, fmt.Errorf("agent: receive from %s: %w", r.target, err)
	}
	return resp, nil
}
