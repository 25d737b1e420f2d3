package agent

import (
	"context"

	"golang.org/x/sync/errgroup"

	"ultron/internal/logging"
)

// Mission is one independent investigation.
type Mission struct {
	Name   string
	Root   string
	Prompt string
}

// Outcome pairs a mission with its finished session, or with the
// configuration error that prevented it from starting.
type Outcome struct {
	Mission Mission
	Session *Session
	Err     error
}

// RunAll runs missions in at most parallelism worker slots. Sessions share
// nothing but the registry and backend; outcomes keep mission order.
func (l *Loop) RunAll(ctx context.Context, missions []Mission, parallelism int) []Outcome {
	if parallelism < 1 {
		parallelism = 1
	}
	outcomes := make([]Outcome, len(missions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, m := range missions {
		g.Go(func() error {
			logging.AgentDebug("Starting mission %q (%d/%d)", m.Name, i+1, len(missions))
			session, err := l.Run(gctx, m.Root, m.Prompt)
			outcomes[i] = Outcome{Mission: m, Session: session, Err: err}
			// Configuration errors stay on the outcome so one bad root
			// does not cancel the other missions.
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
