// Package wire defines the data model and line-delimited JSON codec shared by
// every agent and coordinator: agent identities, certificates, parties, the
// agents.conf configuration, and the request/response wire protocol.
package wire

import "fmt"

// AgentID identifies an agent process: its OS pid and the loopback port its
// listener is bound to. Assigned once at spawn time, immutable thereafter.
//
// Field names are stable wire-level (see agents.conf and the wire protocol):
// "socket" carries the port despite its name.
type AgentID struct {
	PID  uint32 `json:"pid"`
	Port uint16 `json:"socket"`
}

// String renders an identity for logs.
func (id AgentID) String() string {
	return fmt.Sprintf("pid=%d port=%d", id.PID, id.Port)
}

// Addr returns the loopback address this identity is reachable at.
func (id AgentID) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", id.Port)
}

// Certificate attests that Issuer answered GetValue with Value. The wire
// protocol treats certificates as unforgeable; see coordinator.ExpertPoll's
// optional re-verification callback for how this expansion upholds that
// contract without changing this shape.
type Certificate struct {
	Value  bool    `json:"value"`
	Issuer AgentID `json:"issuer"`
}

// Party is an unordered collection of certificates gathered during a
// campaign. Hardened callers should deduplicate by issuer before counting;
// see DedupeByIssuer.
type Party []Certificate

// DedupeByIssuer returns a copy of p with at most one certificate per issuer,
// keeping the first certificate seen for each issuer.
func DedupeByIssuer(p Party) Party {
	seen := make(map[AgentID]bool, len(p))
	out := make(Party, 0, len(p))
	for _, cert := range p {
		if seen[cert.Issuer] {
			continue
		}
		seen[cert.Issuer] = true
		out = append(out, cert)
	}
	return out
}

// Config is the content of agents.conf: the ordered list of agent identities
// produced once by the launcher and read thereafter by every coordinator.
type Config struct {
	Children []AgentID `json:"children"`
}
