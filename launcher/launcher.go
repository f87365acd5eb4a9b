// Package launcher implements the `start` subcommand's process-spawning
// driver: it distributes claims among N agent processes, retries spawn
// under resource pressure, reads back each agent's port, and emits
// agents.conf.
package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"code.cloudfoundry.org/bytefmt"

	"github.com/quorumlabs/liarslie/agent"
	"github.com/quorumlabs/liarslie/internal/logging"
	"github.com/quorumlabs/liarslie/internal/retry"
	"github.com/quorumlabs/liarslie/wire"
)

// ErrInvalidNumAgents and ErrInvalidLiarRatio report configuration errors
// that are fatal to start.
var (
	ErrInvalidNumAgents = errors.New("launcher: num_agents must be > 0")
	ErrInvalidLiarRatio = errors.New("launcher: liar_ratio must be in [0, 0.5)")
)

// Args configures a single call to Start.
type Args struct {
	// Exe is the executable to re-invoke in "agent" mode; typically the
	// launcher's own os.Executable().
	Exe       string
	Value     bool
	NumAgents int
	LiarRatio float64
}

// Validate checks Args against its configuration invariants.
func (a Args) Validate() error {
	if a.NumAgents <= 0 {
		return ErrInvalidNumAgents
	}
	if a.LiarRatio < 0 || a.LiarRatio >= 0.5 {
		return ErrInvalidLiarRatio
	}
	return nil
}

// Started is the result of a successful Start: the configuration written to
// disk, and the still-running child processes behind it.
type Started struct {
	Config wire.Config

	children []*spawnedChild
	log      *logging.Logger
}

type spawnedChild struct {
	cmd    *exec.Cmd
	stdout *bufio.Reader
}

// Close sends Stop to every spawned agent, then kills and reaps its process;
// an agent's exit status is not reported as an error. This is kill-on-drop
// semantics, entirely optional: play and playexpert never own a Started and
// never call this.
func (s *Started) Close() error {
	var firstErr error
	for i, child := range s.children {
		id := s.Config.Children[i]
		if _, err := agent.NewRemoteAgent(id).Call(context.Background(), wire.StopRequest()); err != nil {
			s.log.Infof("could not stop %s cleanly: %v", id, err)
		}
		// Stop ends only the agent's connection handler; the process keeps
		// serving until it is killed.
		_ = child.cmd.Process.Kill()
		if err := child.cmd.Wait(); err != nil && firstErr == nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Start distributes args.NumAgents claims (exactly
// floor(NumAgents*LiarRatio) of which are !Value, the rest Value, shuffled
// uniformly), spawns one agent process per claim, reads back each agent's
// port, and writes agents.conf in the current directory.
func Start(ctx context.Context, args Args) (*Started, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	log := logging.New("launcher ")

	numLiars := int(float64(args.NumAgents) * args.LiarRatio)
	claims := make([]bool, args.NumAgents)
	for i := range claims {
		claims[i] = args.Value
	}
	for i := 0; i < numLiars; i++ {
		claims[i] = !args.Value
	}
	rand.Shuffle(len(claims), func(i, j int) { claims[i], claims[j] = claims[j], claims[i] })

	log.Infof("preparing %d agents including %d liars", args.NumAgents, numLiars)

	children := make([]*spawnedChild, 0, args.NumAgents)
	for _, claim := range claims {
		value := claim
		child, err := retry.Spawn(ctx, func() (*spawnedChild, error) {
			return spawnOne(args.Exe, value)
		}, isResourceTemporarilyUnavailable)
		if err != nil {
			return nil, fmt.Errorf("launcher: could not spawn agent process: %w", err)
		}
		children = append(children, child)
	}

	ids := make([]wire.AgentID, 0, len(children))
	for _, child := range children {
		id, err := readAgentID(child)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	config := wire.Config{Children: ids}
	size, err := wire.WriteConfig("agents.conf", config)
	if err != nil {
		return nil, err
	}
	log.Infof("value=%v spawned %d processes, %d lying; wrote agents.conf (%s)",
		args.Value, args.NumAgents, numLiars, bytefmt.ByteSize(uint64(size)))

	return &Started{Config: config, children: children, log: log}, nil
}

// agentArgs builds the argv (excluding the executable itself) used to
// re-invoke Exe in agent mode. Overridable so tests can re-exec the test
// binary as a stand-in agent via the standard helper-process pattern
// (see os/exec's own tests) without changing production behavior.
var agentArgs = func(claim bool) []string {
	return []string{"agent", "--value=" + strconv.FormatBool(claim)}
}

func spawnOne(exe string, claim bool) (*spawnedChild, error) {
	cmd := exec.Command(exe, agentArgs(claim)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("launcher: pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launcher: spawn: %w", err)
	}
	return &spawnedChild{cmd: cmd, stdout: bufio.NewReader(stdout)}, nil
}

func readAgentID(child *spawnedChild) (wire.AgentID, error) {
	line, err := child.stdout.ReadString('\n')
	if err != nil {
		return wire.AgentID{}, fmt.Errorf("launcher: read port from child pid %d: %w", child.cmd.Process.Pid, err)
	}
	port, err := strconv.ParseUint(strings.TrimSpace(line), 10, 16)
	if err != nil {
		return wire.AgentID{}, fmt.Errorf("launcher: child pid %d did not report a port: %w", child.cmd.Process.Pid, err)
	}
	return wire.AgentID{PID: uint32(child.cmd.Process.Pid), Port: uint16(port)}, nil
}

// isResourceTemporarilyUnavailable reports whether err is the OS signaling
// transient resource pressure on process creation (the Go analogue of the
// reference implementation's io::ErrorKind::WouldBlock).
func isResourceTemporarilyUnavailable(err error) bool {
	return errors.Is(err, syscall.EAGAIN)
}
