package agent

import (
	"context"
	"sync"
	"time"

	"github.com/quorumlabs/liarslie/wire"
)

// peerCallTimeout bounds each outbound GetValue call a campaign makes to a
// single peer, connect through response: RemoteAgent.Call derives a
// conn.SetDeadline from this context's deadline, so a peer that accepts the
// connection and then stalls mid-write or mid-read is bounded too, not just
// one that's unreachable at connect time.
const peerCallTimeout = 5 * time.Second

// campaign runs this agent's campaign sub-protocol against peers (self
// included, deliberately — see handleConn). It fans out one GetValue call
// per peer, keeps only certificates that agree with this agent's own claim,
// and returns whatever agreement it could gather. There is no internal
// quorum check: validating majority is the coordinator's job.
func (a *Agent) campaign(peers []wire.AgentID) wire.Party {
	results := make(chan wire.Certificate, channelCapacity)
	var wg sync.WaitGroup

	for _, peer := range peers {
		wg.Add(1)
		go func(peer wire.AgentID) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), peerCallTimeout)
			defer cancel()
			resp, err := NewRemoteAgent(peer).Call(ctx, wire.GetValueRequest())
			if err != nil {
				// Remote agent can't or won't respond: skip it, never abort siblings.
				return
			}
			if resp.Kind != wire.ResponseCertificate {
				return
			}
			if resp.Certificate.Value != a.claim {
				// Remote agent disagrees with us: discard silently.
				return
			}
			results <- resp.Certificate
		}(peer)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	party := make(wire.Party, 0, len(peers))
	for cert := range results {
		party = append(party, cert)
	}
	return party
}
