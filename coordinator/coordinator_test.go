package coordinator

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/liarslie/agent"
	"github.com/quorumlabs/liarslie/wire"
)

// spawnAgents starts n real loopback agents, numLiars of which carry !value,
// and returns their identities; shutdown is registered with t.Cleanup.
func spawnAgents(t *testing.T, value bool, n, numLiars int) []wire.AgentID {
	t.Helper()

	ids := make([]wire.AgentID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		claim := value
		if i < numLiars {
			claim = !value
		}
		a, err := agent.New(claim)
		require.NoError(t, err)
		ids[i] = a.Identity()

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Serve(ctx)
		}()
	}
	t.Cleanup(wg.Wait)
	return ids
}

// TestSimplePollUnanimous is spec scenario 1: 10 agents, no liars.
func TestSimplePollUnanimous(t *testing.T) {
	ids := spawnAgents(t, true, 10, 0)
	result := SimplePoll(context.Background(), ids)
	require.NotNil(t, result)
	assert.True(t, *result)
}

// TestSimplePollWithMinorityLiars is spec scenario 2/3: liars are a strict
// minority, the majority answer must win regardless of N's parity.
func TestSimplePollWithMinorityLiars(t *testing.T) {
	for _, tc := range []struct {
		value    bool
		n        int
		numLiars int
	}{
		{false, 10, 4},
		{true, 11, 4},
	} {
		ids := spawnAgents(t, tc.value, tc.n, tc.numLiars)
		result := SimplePoll(context.Background(), ids)
		require.NotNil(t, result)
		assert.Equal(t, tc.value, *result)
	}
}

func TestSimplePollNoAgentsIsIndecisive(t *testing.T) {
	result := SimplePoll(context.Background(), nil)
	assert.Nil(t, result)
}

// TestExpertPollRecoversValue is spec scenario 4.
func TestExpertPollRecoversValue(t *testing.T) {
	ids := spawnAgents(t, true, 20, 5) // liar_ratio 0.25
	result := ExpertPoll(context.Background(), ids, 0.25, nil)
	require.NotNil(t, result)
	assert.True(t, *result)
}

// TestExpertPollWithVerification exercises the callback-based unforgeability
// resolution: verification re-contacts each issuer and must not change the
// outcome when every issuer is honest about its own claim.
func TestExpertPollWithVerification(t *testing.T) {
	ids := spawnAgents(t, false, 20, 5)
	result := ExpertPoll(context.Background(), ids, 0.25, VerifyWithIssuer)
	require.NotNil(t, result)
	assert.False(t, *result)
}

// TestExpertPollAboveChannelCapacityDoesNotLeakGoroutines covers N well
// above channelCapacity (32): with liar_ratio 0, every one of the N agents
// is an interlocutor, so the collector decides on the very first party it
// reads and stops draining while dozens of interlocutor goroutines are still
// trying to send. Without a done-guarded send, those goroutines block on the
// full channel forever; this asserts the goroutine count settles back down
// after ExpertPoll returns.
func TestExpertPollAboveChannelCapacityDoesNotLeakGoroutines(t *testing.T) {
	ids := spawnAgents(t, true, 40, 0)
	before := runtime.NumGoroutine()

	result := ExpertPoll(context.Background(), ids, 0.0, nil)
	require.NotNil(t, result)
	assert.True(t, *result)

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+5,
		"interlocutor goroutines leaked past ExpertPoll's early return")
}

// TestExpertPollEdgeCaseTwoAgents is spec scenario 5: k is clamped to N.
func TestExpertPollEdgeCaseTwoAgents(t *testing.T) {
	ids := spawnAgents(t, true, 2, 0)
	result := ExpertPoll(context.Background(), ids, 0.0, nil)
	require.NotNil(t, result)
	assert.True(t, *result)
}

func TestSampleInterlocutorsClampsToN(t *testing.T) {
	children := []wire.AgentID{{PID: 1, Port: 1}, {PID: 2, Port: 2}}
	picked := sampleInterlocutors(children, 0.0)
	assert.Len(t, picked, 2)
}

func TestSampleInterlocutorsCount(t *testing.T) {
	children := make([]wire.AgentID, 20)
	for i := range children {
		children[i] = wire.AgentID{PID: uint32(i), Port: uint16(i)}
	}
	picked := sampleInterlocutors(children, 0.25)
	assert.Len(t, picked, 16) // floor(20*0.75)+1
}
