// Package agent implements the per-agent TCP server, its remote client, and
// the campaign sub-protocol that runs inside an agent's Campaign handler.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/quorumlabs/liarslie/internal/logging"
	"github.com/quorumlabs/liarslie/wire"
)

// channelCapacity bounds every fan-in channel in this package, per spec.
const channelCapacity = 32

// ErrListenerNotSpecified is returned by New if it could not bind a listener.
var ErrListenerNotSpecified = errors.New("agent: could not bind listener")

// Agent holds one agent's immutable claim and its TCP listener. Multiple
// connection handlers run concurrently against a single Agent; they share no
// mutable state, since the claim never changes.
type Agent struct {
	claim    bool
	identity wire.AgentID
	listener *net.TCPListener
	log      *logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// New binds a fresh loopback listener on an OS-chosen port and constructs an
// Agent carrying claim.
func New(claim bool) (*Agent, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListenerNotSpecified, err)
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListenerNotSpecified, err)
	}

	identity := wire.AgentID{
		PID:  uint32(os.Getpid()),
		Port: uint16(listener.Addr().(*net.TCPAddr).Port),
	}

	return &Agent{
		claim:    claim,
		identity: identity,
		listener: listener,
		log:      logging.New(fmt.Sprintf("agent[%s] ", identity)),
		done:     make(chan struct{}),
	}, nil
}

// Identity returns this agent's (pid, port).
func (a *Agent) Identity() wire.AgentID { return a.identity }

// Port returns the port the listener is bound to.
func (a *Agent) Port() uint16 { return a.identity.Port }

// Serve runs the accept loop until ctx is canceled or Close is called. The
// accept loop never blocks on a single connection: every accepted connection
// is handed to its own goroutine immediately.
func (a *Agent) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			a.Close()
		case <-a.done:
		}
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-a.done:
				return nil
			default:
				return fmt.Errorf("agent: accept: %w", err)
			}
		}
		go a.handleConn(conn)
	}
}

// Close stops the accept loop and releases the listener. Idempotent.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.listener.Close()
	})
	return err
}

// handleConn services a single connection's request stream until the client
// closes it, sends Stop, or a decode/transport error occurs. Reentrant
// campaign calls into this same agent are expected and handled by a fresh
// goroutine per accepted connection, same as any other peer.
func (a *Agent) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for {
		req, err := wire.ReadRequest(reader)
		if err != nil {
			if !errors.Is(err, wire.ErrClosed) && !errors.Is(err, io.EOF) {
				a.log.Infof("dropping connection from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		a.log.DebugDump("request", req)

		switch req.Kind {
		case wire.RequestGetValue:
			resp := wire.CertificateResponse(wire.Certificate{Value: a.claim, Issuer: a.identity})
			if err := wire.WriteResponse(conn, resp); err != nil {
				a.log.Infof("could not respond to %s: %v", conn.RemoteAddr(), err)
				return
			}

		case wire.RequestCampaign:
			party := a.campaign(req.Peers)
			if err := wire.WriteResponse(conn, wire.QuorumResponse(party)); err != nil {
				a.log.Infof("could not respond to %s: %v", conn.RemoteAddr(), err)
				return
			}

		case wire.RequestStop:
			if err := wire.WriteResponse(conn, wire.StopResponse()); err != nil {
				a.log.Infof("could not ack stop to %s: %v", conn.RemoteAddr(), err)
			}
			return

		default:
			a.log.Infof("unrecognized request kind %d from %s, closing", req.Kind, conn.RemoteAddr())
			return
		}
	}
}
