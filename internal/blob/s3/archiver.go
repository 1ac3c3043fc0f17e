package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/awestray/backlay/internal/domain"
)

// Narrow store interfaces required by the archiver: only the time-ranged
// queries it actually calls. The Postgres stores satisfy them implicitly.

// OpportunityArchiveSource provides read access to finished opportunity
// episodes for archival.
type OpportunityArchiveSource interface {
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error)
}

// ExecutionArchiveSource provides read access to execution attempts for
// archival.
type ExecutionArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error)
}

// SnapshotArchiveSource provides read access to price snapshots for
// archival.
type SnapshotArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.PriceSnapshot, error)
}

// Archiver implements domain.Archiver: it queries the stores for rows older
// than a cutoff, serializes them to JSONL, and uploads the result. Every
// upload is recorded in the audit log. Deleting the archived rows from the
// primary store is intentionally not done here; that is a separate step
// owned by the caller once the archive is verified.
type Archiver struct {
	writer domain.BlobWriter
	opps   OpportunityArchiveSource
	execs  ExecutionArchiveSource
	snaps  SnapshotArchiveSource
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver over the given stores.
func NewArchiver(
	writer domain.BlobWriter,
	opps OpportunityArchiveSource,
	execs ExecutionArchiveSource,
	snaps SnapshotArchiveSource,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer: writer,
		opps:   opps,
		execs:  execs,
		snaps:  snaps,
		audit:  audit,
	}
}

// ArchiveOpportunities uploads all closed episodes older than the cutoff to
// archive/opportunities/YYYY-MM.jsonl and returns the archived count.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opps.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	return archiveRecords(ctx, a, "opportunities", monthlyPath("opportunities", before), before, opps)
}

// ArchiveExecutions uploads all execution attempts older than the cutoff to
// archive/executions/YYYY-MM.jsonl and returns the archived count.
func (a *Archiver) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	execs, err := a.execs.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	return archiveRecords(ctx, a, "executions", monthlyPath("executions", before), before, execs)
}

// ArchiveSnapshots uploads price samples older than the cutoff. Snapshots
// expire on an hourly window, so the path carries the cutoff hour; each
// prune run then writes a distinct object for its expiring slice.
func (a *Archiver) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.snaps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	path := fmt.Sprintf("archive/snapshots/%s.jsonl", before.UTC().Format("2006-01-02T15"))
	return archiveRecords(ctx, a, "snapshots", path, before, snaps)
}

// archiveRecords serializes the records as JSONL, writes the object, and
// logs the archival event. Empty record sets upload nothing.
func archiveRecords[T any](ctx context.Context, a *Archiver, kind, path string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return count, nil
}

// monthlyPath builds the object key for an archive slice, partitioned by the
// year-month of the cutoff.
func monthlyPath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

// marshalJSONL serializes records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
