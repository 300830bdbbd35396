package traceroute

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sidn/pathtraced/internal/logging"
	"github.com/sidn/pathtraced/pkg/hop"
)

var log = logging.Named("traceroute")

// DefaultGiveup is the number of consecutive missing hops that ends a
// trace early as a runaway/corrupt result.
const DefaultGiveup = 5

// Error carries the failing command line and captured stderr, raised
// when the child exits with a code other than a successful
// self-termination (0, SIGKILL, SIGTERM).
type Error struct {
	Command []string
	Stderr  string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("traceroute: %s: %v: %s", strings.Join(e.Command, " "), e.Err, e.Stderr)
}

func (e *Error) Unwrap() error { return e.Err }

// Runner drives exactly one traceroute subprocess at a time. Safe to
// reuse across consecutive Trace calls; Kill is safe to call from
// another goroutine while Trace is in flight.
type Runner struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

// Trace runs one traceroute against host with proto, returning the
// ordered hop sequence. Parsing stops (without error) after giveup
// consecutive missing hops, at which point the child is killed.
func (r *Runner) Trace(ctx context.Context, d Driver, host string, proto Protocol, ipv6 bool, maxHops, probeTimeout, giveup int) ([]hop.Hop, error) {
	if giveup <= 0 {
		giveup = DefaultGiveup
	}

	name, args := d.BuildCommand(host, proto, ipv6, maxHops, probeTimeout)
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = processGroupAttr()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cmd = nil
		r.mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.Kill()
		case <-done:
		}
	}()

	hops := make([]hop.Hop, 0, maxHops)
	consecutiveMissing := 0
	skip := d.HeaderLines()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if skip > 0 {
			skip--
			continue
		}
		addr, missing, ok := d.ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if missing {
			hops = append(hops, hop.Missing)
			consecutiveMissing++
			if consecutiveMissing >= giveup {
				r.Kill()
				break
			}
			continue
		}
		consecutiveMissing = 0
		hops = append(hops, hop.Hop(addr))
	}

	waitErr := cmd.Wait()
	close(done)

	if waitErr != nil && !selfTerminated(waitErr) {
		return nil, &Error{Command: append([]string{name}, args...), Stderr: stderr.String(), Err: waitErr}
	}

	return hops, nil
}

// Kill terminates the currently-running child, if any, unconditionally.
func (r *Runner) Kill() {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	killProcessGroup(cmd)
}
