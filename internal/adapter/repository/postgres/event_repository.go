package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/trafficlens/trafficlens/internal/domain"
)

// EventRepository implements domain.EventStore on PostgreSQL. Batches go in
// through the COPY protocol inside a transaction: a failure anywhere rolls
// the whole batch back. Cursor rows are plain append-only inserts.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger.With("component", "postgres_repository")}
}

var eventColumns = []string{
	"ts", "client_address", "subnet_key", "site", "method", "path",
	"query_string", "status", "response_size", "user_agent", "headers",
	"country", "city", "latitude", "longitude",
	"asn", "asn_org", "datacenter_provider",
	"has_sec_fetch_headers", "has_client_hints", "is_mobile",
	"bot_sender_email", "bot_signature_agent",
	"has_proxy_worker_header", "proxy_worker_domain", "is_exploit_path",
	"is_bot", "category", "identity_name", "detection_tier", "reason",
}

// WriteEventBatch writes one batch of fully-enriched events atomically.
func (r *EventRepository) WriteEventBatch(ctx context.Context, events []domain.NormalizedEvent) error {
	if len(events) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	stmt, err := txn.Prepare(pq.CopyIn("traffic_events", eventColumns...))
	if err != nil {
		return fmt.Errorf("failed to prepare COPY: %w", err)
	}

	for i := range events {
		ev := &events[i]
		headers, err := json.Marshal(ev.Headers)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to marshal headers for audit column: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			ev.Timestamp, ev.ClientAddress, nullStr(ev.SubnetKey), ev.Site,
			ev.Method, ev.Path, nullStr(ev.QueryString), ev.Status,
			ev.ResponseSize, nullStr(ev.UserAgent), headers,
			nullStr(ev.Country), nullStr(ev.City), ev.Latitude, ev.Longitude,
			nullUint(ev.ASN), nullStr(ev.ASNOrg), nullStr(ev.DatacenterProvider),
			ev.HasSecFetchHeaders, ev.HasClientHints, ev.IsMobile,
			nullStr(ev.BotSenderEmail), nullStr(ev.BotSignatureAgent),
			ev.HasProxyWorkerHeader, nullStr(ev.ProxyWorkerDomain), ev.IsExploitPath,
			ev.IsBot, string(ev.Category), nullStr(ev.IdentityName),
			nullInt(ev.DetectionTier), ev.Reason,
		)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to stage event in COPY: %w", err)
		}
	}

	// Flush the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("failed to flush COPY: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close COPY statement: %w", err)
	}

	return txn.Commit()
}

// LatestCursor returns the most recent cursor row, or (nil, nil) when no run
// has completed yet.
func (r *EventRepository) LatestCursor(ctx context.Context) (*domain.IngestionCursor, error) {
	const query = `
		SELECT last_processed_at, last_record_id, records_processed, duration_ms, created_at
		FROM ingestion_cursors
		ORDER BY created_at DESC
		LIMIT 1;
	`

	var c domain.IngestionCursor
	err := r.db.QueryRowContext(ctx, query).Scan(
		&c.LastProcessedTimestamp, &c.LastRecordID, &c.RecordsProcessed,
		&c.DurationMs, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest cursor: %w", err)
	}
	return &c, nil
}

// AppendCursor appends a new cursor row.
func (r *EventRepository) AppendCursor(ctx context.Context, cursor domain.IngestionCursor) error {
	const query = `
		INSERT INTO ingestion_cursors (last_processed_at, last_record_id, records_processed, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`

	createdAt := cursor.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		cursor.LastProcessedTimestamp, cursor.LastRecordID,
		cursor.RecordsProcessed, cursor.DurationMs, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append cursor: %w", err)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(i), Valid: i != 0}
}

func nullUint(u uint) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(u), Valid: u != 0}
}
