package agent

import (
	"context"
	"fmt"
	"io"
)

// Run starts a single agent carrying claim, prints its listening port as a
// single line on stdout so a parent process (the launcher) can learn it, and
// then serves indefinitely until ctx is canceled.
func Run(ctx context.Context, claim bool, stdout io.Writer) error {
	a, err := New(claim)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := fmt.Fprintf(stdout, "%d\n", a.Port()); err != nil {
		return fmt.Errorf("agent: could not report port: %w", err)
	}

	return a.Serve(ctx)
}
