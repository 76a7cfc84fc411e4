package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyades-labs/tokengate/internal/domain"
)

// ReceiptArchiveStore provides read access to settled receipts for archival
// purposes. The Postgres ReceiptStore satisfies it through its ListBefore
// method.
type ReceiptArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Receipt, error)
}

// DecisionArchiveStore provides read access to policy decisions for archival
// purposes.
type DecisionArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Decision, error)
}

// ArchiveImpl implements domain.Archiver by querying the domain stores for
// old records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here. That is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	receipts  ReceiptArchiveStore
	decisions DecisionArchiveStore
	audit     domain.AuditStore
	prefix    string
}

// NewArchiver creates a new ArchiveImpl. Uploaded keys are placed under the
// given prefix, partitioned by record kind and year-month.
func NewArchiver(
	writer domain.BlobWriter,
	receipts ReceiptArchiveStore,
	decisions DecisionArchiveStore,
	audit domain.AuditStore,
	prefix string,
) *ArchiveImpl {
	if prefix == "" {
		prefix = "archive"
	}
	return &ArchiveImpl{
		writer:    writer,
		receipts:  receipts,
		decisions: decisions,
		audit:     audit,
		prefix:    prefix,
	}
}

// ArchiveReceipts queries all receipts settled before the cutoff, serializes
// them to JSONL, and uploads the file to {prefix}/receipts/YYYY-MM.jsonl.
// The archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveReceipts(ctx context.Context, before time.Time) (int64, error) {
	receipts, err := a.receipts.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive receipts query: %w", err)
	}
	if len(receipts) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(receipts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive receipts marshal: %w", err)
	}

	path := a.archivePath("receipts", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive receipts upload: %w", err)
	}

	count := int64(len(receipts))

	if err := a.audit.Log(ctx, "archive.receipts", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive receipts audit log: %w", err)
	}

	return count, nil
}

// ArchiveDecisions queries all policy decisions recorded before the cutoff,
// serializes them to JSONL, and uploads the file to
// {prefix}/decisions/YYYY-MM.jsonl. The archival event is recorded in the
// audit log and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveDecisions(ctx context.Context, before time.Time) (int64, error) {
	decisions, err := a.decisions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions query: %w", err)
	}
	if len(decisions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(decisions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions marshal: %w", err)
	}

	path := a.archivePath("decisions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions upload: %w", err)
	}

	count := int64(len(decisions))

	if err := a.audit.Log(ctx, "archive.decisions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive decisions audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/receipts/2025-01.jsonl
//	archive/decisions/2025-01.jsonl
func (a *ArchiveImpl) archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("%s/%s/%s.jsonl", a.prefix, kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
