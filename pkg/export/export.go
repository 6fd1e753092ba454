// Package export implements spec.md §4.13: streaming CSV/JSON export of a
// tenant's event log over a time range, in fixed-size batches so peak
// memory stays O(batchSize) regardless of the range's total row count.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/store"
)

// BatchSize is the page size used to walk the event log without loading
// the full range into memory.
const BatchSize = 5000

// Format is the closed set of export formats.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Request describes one export: a tenant's event log between From and To.
type Request struct {
	TenantID string
	From     time.Time
	To       time.Time
	Format   Format
}

// csvHeader is the fixed header row emitted before any data row. Field
// order matches eventmodel.Event's wire field order.
var csvHeader = []string{
	"id", "timestamp", "sessionId", "agentId", "tenantId", "eventType",
	"severity", "payload", "metadata", "prevHash", "hash",
}

// Exporter streams a tenant's event log to an io.Writer in the requested
// format.
type Exporter struct {
	reader store.EventReader
}

func New(reader store.EventReader) *Exporter {
	return &Exporter{reader: reader}
}

// Export validates req and writes the export to w. Unknown formats are
// rejected before any output is written.
func (e *Exporter) Export(ctx context.Context, req Request, w io.Writer) error {
	switch req.Format {
	case FormatCSV:
		return e.exportCSV(ctx, req, w)
	case FormatJSON:
		return e.exportJSON(ctx, req, w)
	default:
		return fmt.Errorf("export: unknown format %q", req.Format)
	}
}

// exportCSV emits a UTF-8 BOM, a header row, then RFC 4180 rows — handled
// by encoding/csv, which already quotes any field containing a comma,
// quote, or line break and doubles internal quotes.
func (e *Exporter) exportCSV(ctx context.Context, req Request, w io.Writer) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("export: write BOM: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}

	err := e.walk(ctx, req, func(ev *eventmodel.Event) error {
		row, err := csvRow(ev)
		if err != nil {
			return err
		}
		return cw.Write(row)
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(ev *eventmodel.Event) ([]string, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("export: marshal payload for event %q: %w", ev.ID, err)
	}
	var metadata []byte
	if ev.Metadata != nil {
		metadata, err = json.Marshal(ev.Metadata)
		if err != nil {
			return nil, fmt.Errorf("export: marshal metadata for event %q: %w", ev.ID, err)
		}
	}
	prevHash := ""
	if ev.PrevHash != nil {
		prevHash = *ev.PrevHash
	}
	return []string{
		ev.ID,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.SessionID,
		ev.AgentID,
		ev.TenantID,
		string(ev.EventType),
		string(ev.Severity),
		string(payload),
		string(metadata),
		prevHash,
		ev.Hash,
	}, nil
}

// exportJSON emits {"exportedAt","range":{"from","to"},"events":[...],
// "totalEvents"} with events written one at a time as they're fetched,
// never buffering the full array.
func (e *Exporter) exportJSON(ctx context.Context, req Request, w io.Writer) error {
	enc := json.NewEncoder(w)

	if _, err := fmt.Fprintf(w, `{"exportedAt":`); err != nil {
		return err
	}
	if err := enc.Encode(time.Now().UTC()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, `,"range":{"from":`); err != nil {
		return err
	}
	if err := enc.Encode(req.From.UTC()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, `,"to":`); err != nil {
		return err
	}
	if err := enc.Encode(req.To.UTC()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, `},"events":[`); err != nil {
		return err
	}

	total := 0
	first := true
	err := e.walk(ctx, req, func(ev *eventmodel.Event) error {
		if !first {
			if _, err := w.Write([]byte{','}); err != nil {
				return err
			}
		}
		first = false
		total++
		return enc.Encode(ev)
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, `],"totalEvents":%d}`, total)
	return err
}

// walk pages through req's event range in BatchSize-row batches, calling
// fn for each event in timestamp order.
func (e *Exporter) walk(ctx context.Context, req Request, fn func(*eventmodel.Event) error) error {
	from, to := req.From, req.To
	offset := 0
	for {
		page, err := e.reader.QueryEvents(ctx, req.TenantID, store.EventFilter{
			From:   &from,
			To:     &to,
			Limit:  BatchSize,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("export: query events: %w", err)
		}
		for _, ev := range page.Events {
			if err := fn(ev); err != nil {
				return fmt.Errorf("export: write event %q: %w", ev.ID, err)
			}
		}
		if !page.HasMore || len(page.Events) == 0 {
			return nil
		}
		offset += len(page.Events)
	}
}
