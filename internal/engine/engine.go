// Package engine runs the case filing and proceeding edit workflows. Each
// workflow is a session object owned by one editor; sessions share only the
// repo's cache.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"writline/internal/events"
	"writline/internal/repo"
)

// Recorder appends workflow events to the journal. events.Writer implements it.
type Recorder interface {
	Append(ctx context.Context, e events.Event) error
}

type Engine struct {
	Repo    repo.Repo
	Journal Recorder
	Log     *zap.SugaredLogger
	Now     func() time.Time
}

func New(r repo.Repo, journal Recorder, log *zap.SugaredLogger) Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return Engine{Repo: r, Journal: journal, Log: log, Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.SugaredLogger {
	if e.Log == nil {
		return zap.NewNop().Sugar()
	}
	return e.Log
}

// record journals an event. Journal failures are logged and never fail the workflow.
func (e Engine) record(ctx context.Context, ev events.Event, err error) {
	switch {
	case errors.Is(err, ErrSessionClosed):
		ev.Outcome = "discarded"
	case err != nil:
		ev.Outcome = "failed"
		if ev.Payload == nil {
			ev.Payload = events.EventPayload{}
		}
		ev.Payload["error"] = err.Error()
	}
	e.log().Debugw("workflow event", "type", ev.Type, "session", ev.SessionID, "fir", ev.FIRID, "outcome", ev.Outcome)
	if e.Journal == nil {
		return
	}
	if ev.TS == "" {
		ev.TS = e.now().UTC().Format(time.RFC3339)
	}
	if jerr := e.Journal.Append(context.WithoutCancel(ctx), ev); jerr != nil {
		e.log().Warnw("journal append failed", "type", ev.Type, "error", jerr)
	}
}
