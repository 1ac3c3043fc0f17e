package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/awestray/backlay/internal/domain"
)

type memWriter struct {
	puts  map[string]string
	types map[string]string
	err   error
}

func newMemWriter() *memWriter {
	return &memWriter{puts: make(map[string]string), types: make(map[string]string)}
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.puts[path] = string(b)
	m.types[path] = contentType
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

type oppSource struct {
	rows []domain.Opportunity
	err  error
}

func (s oppSource) ListClosedBefore(context.Context, time.Time) ([]domain.Opportunity, error) {
	return s.rows, s.err
}

type execSource struct {
	rows []domain.ExecutionRecord
	err  error
}

func (s execSource) ListBefore(context.Context, time.Time) ([]domain.ExecutionRecord, error) {
	return s.rows, s.err
}

type snapSource struct {
	rows []domain.PriceSnapshot
	err  error
}

func (s snapSource) ListBefore(context.Context, time.Time) ([]domain.PriceSnapshot, error) {
	return s.rows, s.err
}

type memAudit struct {
	events  []string
	details []map[string]any
	err     error
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	m.details = append(m.details, detail)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func closedOpp(id string, closedAt time.Time) domain.Opportunity {
	o := domain.Opportunity{
		ID:         id,
		Key:        domain.MakeOutcomeKey("1.234", "Arsenal"),
		Sport:      "soccer",
		Event:      "Arsenal v Tottenham",
		Runner:     "Arsenal",
		BackPrice:  2.10,
		LayPrice:   2.02,
		OpenMargin: 0.028,
		PeakMargin: 0.034,
		OpenedAt:   closedAt.Add(-40 * time.Minute),
		LastSeen:   closedAt,
	}
	o.Close(closedAt)
	return o
}

func TestArchiveOpportunitiesWritesMonthlyJSONL(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	writer := newMemWriter()
	audit := &memAudit{}
	a := NewArchiver(writer, oppSource{rows: []domain.Opportunity{
		closedOpp("opp-1", cutoff.Add(-20*24*time.Hour)),
		closedOpp("opp-2", cutoff.Add(-10*24*time.Hour)),
	}}, execSource{}, snapSource{}, audit)

	n, err := a.ArchiveOpportunities(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	const path = "archive/opportunities/2026-03.jsonl"
	body, ok := writer.puts[path]
	if !ok {
		t.Fatalf("object %s not written, have %v", path, writer.puts)
	}
	if writer.types[path] != "application/x-ndjson" {
		t.Fatalf("content type = %s", writer.types[path])
	}

	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("jsonl lines = %d", len(lines))
	}
	var first domain.Opportunity
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if first.ID != "opp-1" || first.Key != domain.MakeOutcomeKey("1.234", "Arsenal") {
		t.Fatalf("decoded = %+v", first)
	}

	if len(audit.events) != 1 || audit.events[0] != "archive.opportunities" {
		t.Fatalf("audit events = %v", audit.events)
	}
	detail := audit.details[0]
	if detail["path"] != path || detail["count"] != int64(2) {
		t.Fatalf("audit detail = %v", detail)
	}
}

func TestArchiveSnapshotsPartitionsByCutoffHour(t *testing.T) {
	cutoff := time.Date(2026, 3, 13, 12, 0, 0, 0, time.UTC)
	writer := newMemWriter()
	a := NewArchiver(writer, oppSource{}, execSource{}, snapSource{rows: []domain.PriceSnapshot{{
		Key: domain.MakeOutcomeKey("1.234", "Arsenal"),
		At:  cutoff.Add(-30 * time.Minute),
	}}}, &memAudit{})

	n, err := a.ArchiveSnapshots(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d", n)
	}
	if _, ok := writer.puts["archive/snapshots/2026-03-13T12.jsonl"]; !ok {
		t.Fatalf("objects = %v", writer.puts)
	}
}

func TestArchiveEmptyUploadsNothing(t *testing.T) {
	writer := newMemWriter()
	audit := &memAudit{}
	a := NewArchiver(writer, oppSource{}, execSource{}, snapSource{}, audit)

	n, err := a.ArchiveExecutions(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 0 || len(writer.puts) != 0 || len(audit.events) != 0 {
		t.Fatalf("empty archive side effects: n=%d puts=%v audit=%v", n, writer.puts, audit.events)
	}
}

func TestArchiveQueryFailure(t *testing.T) {
	writer := newMemWriter()
	a := NewArchiver(writer, oppSource{err: errors.New("db gone")}, execSource{}, snapSource{}, &memAudit{})

	if _, err := a.ArchiveOpportunities(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if len(writer.puts) != 0 {
		t.Fatalf("objects written despite query failure: %v", writer.puts)
	}
}

func TestArchiveUploadFailure(t *testing.T) {
	writer := newMemWriter()
	writer.err = errors.New("bucket unreachable")
	audit := &memAudit{}
	a := NewArchiver(writer, oppSource{rows: []domain.Opportunity{closedOpp("opp-1", time.Now())}}, execSource{}, snapSource{}, audit)

	if _, err := a.ArchiveOpportunities(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if len(audit.events) != 0 {
		t.Fatalf("audit logged despite failed upload: %v", audit.events)
	}
}

func TestArchiveAuditFailureStillReportsCount(t *testing.T) {
	writer := newMemWriter()
	audit := &memAudit{err: errors.New("audit table gone")}
	a := NewArchiver(writer, oppSource{}, execSource{rows: []domain.ExecutionRecord{{
		ID:  "exec-1",
		Key: domain.MakeOutcomeKey("1.234", "Arsenal"),
	}}}, snapSource{}, audit)

	n, err := a.ArchiveExecutions(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err == nil {
		t.Fatal("expected error")
	}
	// The object is durable even though the audit write failed.
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	if _, ok := writer.puts["archive/executions/2026-03.jsonl"]; !ok {
		t.Fatalf("objects = %v", writer.puts)
	}
}
