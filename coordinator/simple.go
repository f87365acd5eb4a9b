// Package coordinator implements the two quorum-collection strategies: the
// simple poll (direct majority vote) and the expert poll (campaign-based
// quorum acceptance).
package coordinator

import (
	"context"
	"sync"

	"github.com/quorumlabs/liarslie/agent"
	"github.com/quorumlabs/liarslie/internal/logging"
	"github.com/quorumlabs/liarslie/wire"
)

// channelCapacity bounds every fan-in channel in this package, per spec.
const channelCapacity = 32

// SimplePoll queries every agent in children directly and returns the
// majority answer as soon as either threshold (N/2, integer division) is
// crossed. Returns nil if the channel drains without either threshold being
// reached. Already-inflight calls are allowed to run to completion; their
// late replies are discarded.
func SimplePoll(ctx context.Context, children []wire.AgentID) *bool {
	log := logging.New("simple-poll ")
	n := len(children)

	votes := make(chan bool, channelCapacity)
	done := make(chan struct{})
	var wg sync.WaitGroup

	for _, child := range children {
		wg.Add(1)
		go func(child wire.AgentID) {
			defer wg.Done()

			resp, err := agent.NewRemoteAgent(child).Call(ctx, wire.GetValueRequest())
			if err != nil {
				log.Infof("could not reach %s: %v, skipping", child, err)
				return
			}
			if resp.Kind != wire.ResponseCertificate {
				log.Infof("unexpected response from %s, skipping", child)
				return
			}

			// A receiver that already decided is a no-op, not a block.
			select {
			case votes <- resp.Certificate.Value:
			case <-done:
			}
		}(child)
	}

	go func() {
		wg.Wait()
		close(votes)
	}()

	yeas, nays := 0, 0
	for v := range votes {
		if v {
			yeas++
		} else {
			nays++
		}

		if yeas >= n/2 {
			close(done)
			return boolPtr(true)
		}
		if nays >= n/2 {
			close(done)
			return boolPtr(false)
		}
	}

	return nil
}

func boolPtr(v bool) *bool { return &v }
