package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

// auditArchiveLimit bounds how many audit rows one day's archive reads back.
const auditArchiveLimit = 10000

// ReportArchiver uploads day summaries and, when an audit store is attached,
// that session's audit trail.
type ReportArchiver struct {
	writer   domain.BlobWriter
	audit    domain.AuditStore
	partSize int64
}

// NewReportArchiver creates a ReportArchiver. audit may be nil.
func NewReportArchiver(writer domain.BlobWriter, audit domain.AuditStore) *ReportArchiver {
	return &ReportArchiver{
		writer:   writer,
		audit:    audit,
		partSize: minPartSize,
	}
}

// ArchiveDaySummary writes sum as JSON to reports/YYYY/MM/DD/<id>.json and
// returns the object key. The session's audit entries follow as JSONL next
// to it; failing to archive them is reported but the summary key is still
// returned.
func (a *ReportArchiver) ArchiveDaySummary(ctx context.Context, sum domain.DaySummary) (string, error) {
	body, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal day summary: %w", err)
	}

	path := reportPath(sum.SessionDate, sum.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive day summary: %w", err)
	}

	if a.audit == nil {
		return path, nil
	}
	if err := a.archiveAudit(ctx, sum.SessionDate); err != nil {
		return path, err
	}
	return path, nil
}

func (a *ReportArchiver) archiveAudit(ctx context.Context, day time.Time) error {
	entries, err := a.audit.List(ctx, auditArchiveLimit)
	if err != nil {
		return fmt.Errorf("s3blob: archive audit query: %w", err)
	}

	y, m, d := day.UTC().Date()
	var todays []domain.AuditEntry
	for _, e := range entries {
		ey, em, ed := e.CreatedAt.UTC().Date()
		if ey == y && em == m && ed == d {
			todays = append(todays, e)
		}
	}
	if len(todays) == 0 {
		return nil
	}

	buf, err := marshalJSONL(todays)
	if err != nil {
		return fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}
	path := auditPath(day)
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), a.partSize); err != nil {
		return fmt.Errorf("s3blob: archive audit upload: %w", err)
	}
	return nil
}

// reportPath partitions reports by session date:
//
//	reports/2026/03/02/<id>.json
func reportPath(day time.Time, id string) string {
	return fmt.Sprintf("reports/%s/%s.json", day.UTC().Format("2006/01/02"), id)
}

func auditPath(day time.Time) string {
	return fmt.Sprintf("reports/%s/audit.jsonl", day.UTC().Format("2006/01/02"))
}

// marshalJSONL serialises records as newline-delimited JSON.
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
