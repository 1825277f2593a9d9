package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/tokenledger/internal/audit"
)

// WriteCall appends a call record. Failed calls are written in their own
// transaction after the state changes were rolled back.
func (t *Tx) WriteCall(ctx context.Context, c audit.Call) error {
	args, err := audit.MarshalCanonical(nonNilArgs(c.Args))
	if err != nil {
		return fmt.Errorf("write call: %w", err)
	}
	result, err := audit.MarshalCanonical(nonNilFields(c.Result))
	if err != nil {
		return fmt.Errorf("write call: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO calls
		(id, seq, flow_token, op, caller, args, timestamp, outcome, error_code, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.Seq,
		c.FlowToken,
		c.Op,
		c.Caller,
		string(args),
		c.Timestamp,
		c.Outcome,
		c.ErrorCode,
		string(result),
	)
	if err != nil {
		return fmt.Errorf("write call: %w", err)
	}
	return nil
}

// WriteEvents appends the events of one call. The call must be written first.
func (t *Tx) WriteEvents(ctx context.Context, events []audit.Event) error {
	for _, ev := range events {
		fields, err := audit.MarshalCanonical(nonNilFields(ev.Fields))
		if err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO events (id, seq, idx, flow_token, kind, fields, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ev.ID, ev.Seq, ev.Index, ev.FlowToken, ev.Kind, string(fields), ev.Timestamp)
		if err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	return nil
}

// LastSeq returns the highest call seq, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM calls`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}

// ReadCalls returns every call ordered by seq.
func (s *Store) ReadCalls(ctx context.Context) ([]audit.Call, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, flow_token, op, caller, args, timestamp, outcome, error_code, result
		FROM calls
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []audit.Call{}
	for rows.Next() {
		var (
			c            audit.Call
			args, result string
		)
		if err := rows.Scan(&c.ID, &c.Seq, &c.FlowToken, &c.Op, &c.Caller, &args, &c.Timestamp, &c.Outcome, &c.ErrorCode, &result); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &c.Args); err != nil {
			return nil, fmt.Errorf("decode call %d args: %w", c.Seq, err)
		}
		if c.Result, err = decodeFields(result); err != nil {
			return nil, fmt.Errorf("decode call %d result: %w", c.Seq, err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// EventFilter narrows ReadEvents. Zero values match everything.
type EventFilter struct {
	Kind    string
	FromSeq int64
}

// ReadEvents returns events ordered by (seq, index).
func (s *Store) ReadEvents(ctx context.Context, f EventFilter) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, idx, flow_token, kind, fields, timestamp
		FROM events
		WHERE (? = '' OR kind = ?) AND seq >= ?
		ORDER BY seq ASC, idx ASC
	`, f.Kind, f.Kind, f.FromSeq)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []audit.Event{}
	for rows.Next() {
		var (
			ev     audit.Event
			fields string
		)
		if err := rows.Scan(&ev.ID, &ev.Seq, &ev.Index, &ev.FlowToken, &ev.Kind, &fields, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Fields, err = decodeFields(fields); err != nil {
			return nil, fmt.Errorf("decode event %d/%d: %w", ev.Seq, ev.Index, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// decodeFields parses stored canonical JSON. Numbers come back as int64 so a
// decoded record re-encodes to the same bytes.
func decodeFields(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	out, err := normalizeNumbers(m)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func normalizeNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %s", val)
		}
		return n, nil
	case map[string]any:
		for k, item := range val {
			norm, err := normalizeNumbers(item)
			if err != nil {
				return nil, err
			}
			val[k] = norm
		}
		return val, nil
	case []any:
		for i, item := range val {
			norm, err := normalizeNumbers(item)
			if err != nil {
				return nil, err
			}
			val[i] = norm
		}
		return val, nil
	default:
		return v, nil
	}
}

func nonNilArgs(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilFields(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
