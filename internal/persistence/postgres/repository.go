// Package postgres provides the Postgres-backed plan store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightcap/clip-in/internal/domain"
	"github.com/lightcap/clip-in/internal/observability"
)

// Repository provides Postgres-backed persistence for plan entries, provider
// links and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `entry_id, user_id, ride_id, scheduled_date::text, order_index, status, COALESCE(matched_workout_id, ''), completed_at, created_at, updated_at`

func scanEntry(row pgx.Row) (domain.PlanEntry, error) {
	var entry domain.PlanEntry
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.RideID,
		&entry.ScheduledDate,
		&entry.OrderIndex,
		&entry.Status,
		&entry.MatchedWorkoutID,
		&entry.CompletedAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	return entry, err
}

// FetchEligibleEntries returns the user's entries still open for matching:
// status unmatched and no workout reference set. Ordering is left to the
// caller; the matching engine sorts candidates itself.
func (r *Repository) FetchEligibleEntries(ctx context.Context, userID string) ([]domain.PlanEntry, error) {
	query := `SELECT ` + entryColumns + `
        FROM plan_entries
        WHERE user_id=$1 AND status='unmatched' AND matched_workout_id IS NULL`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.PlanEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkMatched transitions an entry to matched and records the workout
// reference, guarded so a concurrently matched entry is left untouched. The
// plan.entry_matched outbox event is written in the same transaction. A
// vanished or already-matched entry yields domain.ErrEntryConflict; the
// unique index on matched_workout_id backstops double-matching across runs.
func (r *Repository) MarkMatched(ctx context.Context, entryID string, match domain.Match) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const update = `UPDATE plan_entries
        SET status='matched', matched_workout_id=$2, completed_at=$3, updated_at=NOW()
        WHERE entry_id=$1 AND status='unmatched' AND matched_workout_id IS NULL
        RETURNING user_id, ride_id, scheduled_date::text`

	var userID, rideID, scheduledDate string
	err = tx.QueryRow(ctx, update, entryID, match.WorkoutID, match.CompletedAt.UTC()).Scan(&userID, &rideID, &scheduledDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = fmt.Errorf("%w: %s", domain.ErrEntryConflict, entryID)
		}
		return err
	}

	if err = insertOutbox(ctx, tx, userID, entryID, "plan.entry_matched", entryMatchedEvent{
		EntryID:       entryID,
		UserID:        userID,
		RideID:        rideID,
		ScheduledDate: scheduledDate,
		WorkoutID:     match.WorkoutID,
		CompletedAt:   match.CompletedAt.UTC(),
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordEntryMatched(match.CompletedAt)
	return nil
}

// CreateEntry persists a new unmatched entry and its outbox event.
func (r *Repository) CreateEntry(ctx context.Context, entry domain.PlanEntry) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insert = `INSERT INTO plan_entries (entry_id, user_id, ride_id, scheduled_date, order_index, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, insert,
		entry.ID,
		entry.UserID,
		entry.RideID,
		entry.ScheduledDate,
		entry.OrderIndex,
		entry.Status,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, entry.UserID, entry.ID, "plan.entry_created", entryCreatedEvent{
		EntryID:       entry.ID,
		UserID:        entry.UserID,
		RideID:        entry.RideID,
		ScheduledDate: entry.ScheduledDate,
		OrderIndex:    entry.OrderIndex,
		CreatedAt:     entry.CreatedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListEntries returns the user's entries within [from, to], ordered by
// scheduled date then order index, paged by cursor.
func (r *Repository) ListEntries(ctx context.Context, userID, from, to string, cursor *domain.Cursor, limit int) ([]domain.PlanEntry, *domain.Cursor, error) {
	args := []interface{}{userID, from, to, limit}
	query := `SELECT ` + entryColumns + `
        FROM plan_entries
        WHERE user_id=$1 AND scheduled_date BETWEEN $2::date AND $3::date`

	if cursor != nil {
		query += ` AND (scheduled_date, order_index, entry_id) > ($5::date, $6, $7)`
		args = append(args, cursor.Date, cursor.Order, cursor.ID)
	}

	query += ` ORDER BY scheduled_date, order_index, entry_id LIMIT $4`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	entries := make([]domain.PlanEntry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(entries) == limit {
		last := entries[len(entries)-1]
		next = &domain.Cursor{Date: last.ScheduledDate, Order: last.OrderIndex, ID: last.ID}
	}
	return entries, next, nil
}

// ReorderEntries rewrites order indexes for the user's entries on one date to
// match the supplied slice positions. All IDs must belong to the user and the
// date, otherwise nothing is changed.
func (r *Repository) ReorderEntries(ctx context.Context, userID, date string, entryIDs []string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const update = `UPDATE plan_entries
        SET order_index=$4, updated_at=NOW()
        WHERE entry_id=$1 AND user_id=$2 AND scheduled_date=$3::date`

	for position, entryID := range entryIDs {
		tag, execErr := tx.Exec(ctx, update, entryID, userID, date, position)
		if execErr != nil {
			err = execErr
			return err
		}
		if tag.RowsAffected() == 0 {
			err = fmt.Errorf("%w: %s", domain.ErrEntryNotFound, entryID)
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetLink fetches the user's provider link.
func (r *Repository) GetLink(ctx context.Context, userID string) (*domain.ProviderLink, error) {
	const query = `SELECT user_id, provider_user_id, time_zone, updated_at
        FROM provider_links WHERE user_id=$1`

	var link domain.ProviderLink
	err := r.pool.QueryRow(ctx, query, userID).Scan(&link.UserID, &link.ProviderUserID, &link.TimeZone, &link.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

// PutLink creates or replaces the user's provider link.
func (r *Repository) PutLink(ctx context.Context, link domain.ProviderLink) error {
	const upsert = `INSERT INTO provider_links (user_id, provider_user_id, time_zone, updated_at)
        VALUES ($1,$2,$3,NOW())
        ON CONFLICT (user_id) DO UPDATE SET provider_user_id=EXCLUDED.provider_user_id, time_zone=EXCLUDED.time_zone, updated_at=NOW()`

	_, err := r.pool.Exec(ctx, upsert, link.UserID, link.ProviderUserID, link.TimeZone)
	return err
}

// RecordRun appends a reconciliation run summary to the audit log.
func (r *Repository) RecordRun(ctx context.Context, run domain.ReconcileRun) error {
	const insert = `INSERT INTO reconcile_runs (user_id, trigger_kind, success, matched, failed, error, ran_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	ranAt := run.RanAt
	if ranAt.IsZero() {
		ranAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, insert, run.UserID, run.Trigger, run.Success, run.Matched, run.Failed, run.Err, ranAt)
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, userID, aggregateID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"plan_entry",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		dedupeKey,
	)
	return err
}

type entryMatchedEvent struct {
	EntryID       string    `json:"entry_id"`
	UserID        string    `json:"user_id"`
	RideID        string    `json:"ride_id"`
	ScheduledDate string    `json:"scheduled_date"`
	WorkoutID     string    `json:"workout_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

type entryCreatedEvent struct {
	EntryID       string    `json:"entry_id"`
	UserID        string    `json:"user_id"`
	RideID        string    `json:"ride_id"`
	ScheduledDate string    `json:"scheduled_date"`
	OrderIndex    int       `json:"order_index"`
	CreatedAt     time.Time `json:"created_at"`
}

type eventMeta struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]eventMeta{
	"plan.entry_matched": {Topic: "plan_events", SchemaSubject: "plan_events-value"},
	"plan.entry_created": {Topic: "plan_events", SchemaSubject: "plan_events-value"},
}
