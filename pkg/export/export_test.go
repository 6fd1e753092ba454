package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agentlens/backend/pkg/eventmodel"
	"github.com/agentlens/backend/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvents(t *testing.T, s *store.MemoryStore, n int) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, s.InsertEvents(context.Background(), "t1", []*eventmodel.Event{{
			ID:        "e" + string(rune('a'+i)),
			SessionID: "s1",
			AgentID:   "agent-1",
			TenantID:  "t1",
			EventType: eventmodel.EventCustom,
			Severity:  eventmodel.SeverityInfo,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Payload:   map[string]any{"note": "hello, \"world\"\nline2"},
		}}))
	}
}

func TestExportCSV_EmitsBOMHeaderAndQuotedRows(t *testing.T) {
	s := store.NewMemoryStore()
	seedEvents(t, s, 3)
	e := New(s)

	var buf bytes.Buffer
	req := Request{TenantID: "t1", From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), Format: FormatCSV}
	require.NoError(t, e.Export(context.Background(), req, &buf))

	out := buf.Bytes()
	assert.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}), "must start with a UTF-8 BOM")

	r := csv.NewReader(bytes.NewReader(out[3:]))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4, "header + 3 rows")
	assert.Equal(t, csvHeader, records[0])
	assert.Contains(t, records[1][7], `hello, \"world\"`)
}

func TestExportCSV_RespectsTimeRange(t *testing.T) {
	s := store.NewMemoryStore()
	seedEvents(t, s, 5)
	e := New(s)

	var buf bytes.Buffer
	from := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC)
	req := Request{TenantID: "t1", From: from, To: to, Format: FormatCSV}
	require.NoError(t, e.Export(context.Background(), req, &buf))

	r := csv.NewReader(bytes.NewReader(buf.Bytes()[3:]))
	records, err := r.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3, "header + events at offsets 1s and 2s")
}

func TestExportJSON_ProducesValidEnvelopeWithTotalCount(t *testing.T) {
	s := store.NewMemoryStore()
	seedEvents(t, s, 4)
	e := New(s)

	var buf bytes.Buffer
	req := Request{TenantID: "t1", From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), Format: FormatJSON}
	require.NoError(t, e.Export(context.Background(), req, &buf))

	var envelope struct {
		ExportedAt  time.Time         `json:"exportedAt"`
		Range       map[string]string `json:"range"`
		Events      []json.RawMessage `json:"events"`
		TotalEvents int               `json:"totalEvents"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &envelope))
	assert.Len(t, envelope.Events, 4)
	assert.Equal(t, 4, envelope.TotalEvents)
}

func TestExportJSON_EmptyRangeStillProducesValidEnvelope(t *testing.T) {
	s := store.NewMemoryStore()
	e := New(s)

	var buf bytes.Buffer
	req := Request{TenantID: "t1", From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), Format: FormatJSON}
	require.NoError(t, e.Export(context.Background(), req, &buf))

	var envelope struct {
		Events      []json.RawMessage `json:"events"`
		TotalEvents int               `json:"totalEvents"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &envelope))
	assert.Empty(t, envelope.Events)
	assert.Equal(t, 0, envelope.TotalEvents)
}

func TestExport_RejectsUnknownFormat(t *testing.T) {
	s := store.NewMemoryStore()
	e := New(s)
	var buf bytes.Buffer
	err := e.Export(context.Background(), Request{TenantID: "t1", Format: "xml"}, &buf)
	assert.Error(t, err)
}

func TestExportCSV_PagesAcrossBatchBoundary(t *testing.T) {
	s := store.NewMemoryStore()
	const n = BatchSize + 10
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, s.InsertEvents(context.Background(), "t1", []*eventmodel.Event{{
			ID: "e", SessionID: "s1", AgentID: "agent-1", TenantID: "t1",
			EventType: eventmodel.EventCustom, Severity: eventmodel.SeverityInfo,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Payload:   map[string]any{},
		}}))
	}
	e := New(s)
	var buf bytes.Buffer
	req := Request{TenantID: "t1", From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), Format: FormatCSV}
	require.NoError(t, e.Export(context.Background(), req, &buf))

	lineCount := strings.Count(buf.String(), "\r\n")
	assert.Equal(t, n+1, lineCount, "header plus every event, spanning more than one BatchSize page")
}
