package agent

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/liarslie/wire"
)

func startAgent(t *testing.T, claim bool) *Agent {
	t.Helper()
	a, err := New(claim)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.Serve(ctx)
	}()
	t.Cleanup(wg.Wait)

	return a
}

// TestGetValueReturnsOwnClaim is P3: a certificate emitted by an agent always
// carries its own claim.
func TestGetValueReturnsOwnClaim(t *testing.T) {
	a := startAgent(t, true)

	resp, err := NewRemoteAgent(a.Identity()).Call(context.Background(), wire.GetValueRequest())
	require.NoError(t, err)
	require.Equal(t, wire.ResponseCertificate, resp.Kind)
	assert.True(t, resp.Certificate.Value)
	assert.Equal(t, a.Identity(), resp.Certificate.Issuer)
}

// TestGetValueIsIdempotent is P5.
func TestGetValueIsIdempotent(t *testing.T) {
	a := startAgent(t, false)
	remote := NewRemoteAgent(a.Identity())

	first, err := remote.Call(context.Background(), wire.GetValueRequest())
	require.NoError(t, err)
	second, err := remote.Call(context.Background(), wire.GetValueRequest())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestStopTerminatesHandler is P7: after Stop is acknowledged, a follow-up
// request on the same connection fails.
func TestStopTerminatesHandler(t *testing.T) {
	a := startAgent(t, true)

	conn, err := net.Dial("tcp", a.Identity().Addr())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	require.NoError(t, wire.WriteRequest(conn, wire.StopRequest()))
	resp, err := wire.ReadResponse(reader)
	require.NoError(t, err)
	assert.Equal(t, wire.ResponseStop, resp.Kind)

	// The handler goroutine closes the connection after acking Stop; a
	// follow-up write/read on the same connection must fail.
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_ = wire.WriteRequest(conn, wire.GetValueRequest())
	_, err = wire.ReadResponse(reader)
	assert.Error(t, err)
}

// TestCampaignIncludesSelf exercises the reentrancy stress test: an agent
// campaigning against a peer list that includes itself must not deadlock,
// and must include its own certificate in the resulting party (P4: a party
// returned by agent A contains only certificates whose value equals A's
// claim).
func TestCampaignIncludesSelf(t *testing.T) {
	a := startAgent(t, true)
	b := startAgent(t, true)
	liar := startAgent(t, false)

	peers := []wire.AgentID{a.Identity(), b.Identity(), liar.Identity()}
	resp, err := NewRemoteAgent(a.Identity()).Call(context.Background(), wire.CampaignRequest(peers))
	require.NoError(t, err)
	require.Equal(t, wire.ResponseQuorum, resp.Kind)

	issuers := make(map[wire.AgentID]bool)
	for _, cert := range resp.Party {
		assert.True(t, cert.Value, "campaign must only keep certificates agreeing with the agent's own claim")
		issuers[cert.Issuer] = true
	}
	assert.True(t, issuers[a.Identity()], "campaign must include the agent's own reentrant self-call")
	assert.True(t, issuers[b.Identity()])
	assert.False(t, issuers[liar.Identity()], "disagreeing peer must be filtered out")
}

func TestCampaignToleratesUnreachablePeer(t *testing.T) {
	a := startAgent(t, true)
	unreachable := wire.AgentID{PID: 999999, Port: 1}

	resp, err := NewRemoteAgent(a.Identity()).Call(context.Background(), wire.CampaignRequest([]wire.AgentID{a.Identity(), unreachable}))
	require.NoError(t, err)
	require.Equal(t, wire.ResponseQuorum, resp.Kind)
	assert.Len(t, resp.Party, 1)
}

// TestCallBoundsStalledPeerNotJustUnreachableOne: a peer that accepts the
// connection and then never writes a response must still be bounded by
// ctx's deadline, not just a peer that never accepts at all.
func TestCallBoundsStalledPeerNotJustUnreachableOne(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Accept the connection and read the request, then stall forever
		// instead of responding.
		_, _ = wire.ReadRequest(bufio.NewReader(conn))
		select {}
	}()

	stalled := wire.AgentID{Port: uint16(listener.Addr().(*net.TCPAddr).Port)}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = NewRemoteAgent(stalled).Call(ctx, wire.GetValueRequest())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "stalled peer must be bounded by ctx's deadline, not the OS-level TCP timeout")
}
