package coordinator

import (
	"context"
	"math/rand"
	"sync"

	"github.com/quorumlabs/liarslie/agent"
	"github.com/quorumlabs/liarslie/internal/logging"
	"github.com/quorumlabs/liarslie/wire"
)

// VerifyFunc re-checks a certificate with its issuer before the collector
// counts it: the collector double-checks with the agent that it actually
// issued the certificate rather than trusting the wire value outright. A nil
// VerifyFunc skips this step and trusts certificates as unforgeable.
type VerifyFunc func(ctx context.Context, cert wire.Certificate) bool

// VerifyWithIssuer re-contacts cert.Issuer with a fresh GetValue and confirms
// it still reports cert.Value. This is the reference VerifyFunc.
func VerifyWithIssuer(ctx context.Context, cert wire.Certificate) bool {
	resp, err := agent.NewRemoteAgent(cert.Issuer).Call(ctx, wire.GetValueRequest())
	if err != nil {
		return false
	}
	return resp.Kind == wire.ResponseCertificate && resp.Certificate.Value == cert.Value
}

// ExpertPoll samples k = floor(N*(1-liarRatio))+1 (clamped to N) agents
// without replacement as interlocutors, sends each a Campaign against the
// full peer list, and accepts the first party that crosses the strict
// majority threshold ⌈N/2⌉ after a cheap N/2 pre-filter discards obviously
// incomplete parties. verify may be nil to skip re-verification.
func ExpertPoll(ctx context.Context, children []wire.AgentID, liarRatio float64, verify VerifyFunc) *bool {
	log := logging.New("expert-poll ")
	n := len(children)

	interlocutors := sampleInterlocutors(children, liarRatio)

	parties := make(chan wire.Party, channelCapacity)
	done := make(chan struct{})
	var wg sync.WaitGroup

	for _, interlocutor := range interlocutors {
		wg.Add(1)
		go func(interlocutor wire.AgentID) {
			defer wg.Done()

			resp, err := agent.NewRemoteAgent(interlocutor).Call(ctx, wire.CampaignRequest(children))
			if err != nil {
				log.Infof("could not reach %s: %v, skipping", interlocutor, err)
				return
			}
			if resp.Kind != wire.ResponseQuorum {
				log.Infof("unexpected response from %s, skipping", interlocutor)
				return
			}

			// A collector that already decided is a no-op, not a block.
			select {
			case parties <- resp.Party:
			case <-done:
			}
		}(interlocutor)
	}

	go func() {
		wg.Wait()
		close(parties)
	}()

	decisionThreshold := (n + 1) / 2 // ceil(n/2)
	for party := range parties {
		party = wire.DedupeByIssuer(party)
		if verify != nil {
			party = filterVerified(ctx, party, verify)
		}

		if len(party) < n/2 {
			// Too small to be a quorum, even optimistically.
			continue
		}

		yeas, nays := 0, 0
		for _, cert := range party {
			if cert.Value {
				yeas++
			} else {
				nays++
			}
		}

		if yeas >= decisionThreshold {
			close(done)
			return boolPtr(true)
		}
		if nays >= decisionThreshold {
			close(done)
			return boolPtr(false)
		}
	}

	return nil
}

// sampleInterlocutors picks k agents uniformly at random without
// replacement.
func sampleInterlocutors(children []wire.AgentID, liarRatio float64) []wire.AgentID {
	n := len(children)
	k := int(float64(n)*(1-liarRatio)) + 1
	if k > n {
		k = n
	}

	shuffled := make([]wire.AgentID, n)
	copy(shuffled, children)
	rand.Shuffle(n, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	return shuffled[:k]
}

func filterVerified(ctx context.Context, party wire.Party, verify VerifyFunc) wire.Party {
	out := make(wire.Party, 0, len(party))
	for _, cert := range party {
		if verify(ctx, cert) {
			out = append(out, cert)
		}
	}
	return out
}
