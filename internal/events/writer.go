// Package events keeps the local journal of what workflow sessions did: every
// state transition and every write sent to the case-record service.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EventPayload map[string]any

type Event struct {
	ID         int64        `json:"id"`
	TS         string       `json:"ts"`
	Type       string       `json:"type"`
	SessionID  string       `json:"session_id,omitempty"`
	FIRID      string       `json:"fir_id,omitempty"`
	EntityKind string       `json:"entity_kind"`
	EntityID   string       `json:"entity_id,omitempty"`
	Outcome    string       `json:"outcome"`
	Payload    EventPayload `json:"payload"`
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, e Event) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if e.TS == "" {
		e.TS = w.Now().UTC().Format(time.RFC3339)
	}
	if e.Outcome == "" {
		e.Outcome = "ok"
	}
	if e.Payload == nil {
		e.Payload = EventPayload{}
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,session_id,fir_id,entity_kind,entity_id,outcome,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		e.TS, e.Type, nullable(e.SessionID), nullable(e.FIRID), e.EntityKind, nullable(e.EntityID), e.Outcome, string(data))
	return err
}

type Filter struct {
	Type      string
	FIRID     string
	SessionID string
}

// Tail returns the latest n events matching f, newest first.
func (w Writer) Tail(ctx context.Context, n int, f Filter) ([]Event, error) {
	if n <= 0 {
		n = 20
	}
	var where []string
	var args []any
	if f.Type != "" {
		where = append(where, "type=?")
		args = append(args, f.Type)
	}
	if f.FIRID != "" {
		where = append(where, "fir_id=?")
		args = append(args, f.FIRID)
	}
	if f.SessionID != "" {
		where = append(where, "session_id=?")
		args = append(args, f.SessionID)
	}
	q := `SELECT id,ts,type,COALESCE(session_id,''),COALESCE(fir_id,''),entity_kind,COALESCE(entity_id,''),outcome,payload_json FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	rows, err := w.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.SessionID, &e.FIRID, &e.EntityKind, &e.EntityID, &e.Outcome, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("event %d payload: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
