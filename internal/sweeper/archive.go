package sweeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"shiksha/internal/types"
)

// ArchiveDB lists and deletes aged notification send rows.
// Implemented by db.SendRepository.
type ArchiveDB interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.NotificationSend, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ArchiveStore is the cold-storage upload for exported send batches.
type ArchiveStore interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// ArchiveService exports notification_sends rows past the retention window
// as zstd-compressed JSONL batches, then deletes them. Rows are only deleted
// after their batch has been durably uploaded, so a crash mid-run loses no
// data; the next run re-exports the same rows under a new batch key.
type ArchiveService struct {
	db        ArchiveDB
	store     ArchiveStore // nil if cold storage not configured
	batchSize int
	logger    *slog.Logger
}

// NewArchiveService creates an ArchiveService. A nil store disables the task:
// rows are retained until storage is configured, never silently dropped.
func NewArchiveService(db ArchiveDB, store ArchiveStore, batchSize int, logger *slog.Logger) *ArchiveService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveService{
		db:        db,
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ArchiveSends exports and deletes sends older than retention, batch by
// batch, until no aged rows remain. Returns the total rows archived.
func (s *ArchiveService) ArchiveSends(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	if s.store == nil {
		s.logger.WarnContext(ctx, "archive store not configured, skipping send archival")
		return 0, nil
	}

	cutoff := now.Add(-retention)
	var total int64
	for {
		sends, err := s.db.ListOlderThan(ctx, cutoff, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("list aged sends: %w", err)
		}
		if len(sends) == 0 {
			break
		}

		data, err := encodeBatch(sends)
		if err != nil {
			return total, fmt.Errorf("encode send batch: %w", err)
		}

		key := fmt.Sprintf("sends/%s/batch_%s.jsonl.zst", cutoff.Format("2006/01"), uuid.NewString())
		if err := s.store.Upload(ctx, key, data); err != nil {
			return total, fmt.Errorf("upload send batch %s: %w", key, err)
		}

		ids := make([]string, len(sends))
		for i, send := range sends {
			ids[i] = send.ID
		}
		deleted, err := s.db.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("delete archived sends: %w", err)
		}
		total += deleted

		s.logger.InfoContext(ctx, "send batch archived",
			"key", key,
			"rows", deleted,
			"compressed_bytes", len(data),
		)

		if len(sends) < s.batchSize {
			break
		}
	}
	return total, nil
}

// encodeBatch serializes sends as one JSON object per line and compresses
// the result with zstd.
func encodeBatch(sends []types.NotificationSend) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}

	for _, send := range sends {
		line, err := json.Marshal(send)
		if err != nil {
			enc.Close()
			return nil, err
		}
		if _, err := enc.Write(append(line, '\n')); err != nil {
			enc.Close()
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
