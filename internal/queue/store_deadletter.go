package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MoveToDeadLetter removes an action from the queue and, when keep is true,
// records it in dead_letters within the same transaction. removed is false if
// the action was already gone.
func (s *Store) MoveToDeadLetter(ctx context.Context, action Action, reason string, keep bool) (removed bool, err error) {
	if !keep {
		return s.DeleteByID(ctx, action.ID)
	}
	ctx = ensureContext(ctx)
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	droppedAt := time.Now().UnixMilli()
	err = retryOnBusy(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `DELETE FROM queued_actions WHERE id = ?`, action.ID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = affected > 0
		if !removed {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO dead_letters (`+actionColumns+`, dropped_at, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			action.ID,
			action.Kind,
			action.Endpoint,
			string(action.Method),
			nullablePayload(action.Payload),
			action.CreatedAt,
			action.Attempts,
			droppedAt,
			reason,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return false, fmt.Errorf("dead-letter action %s: %w", action.ID, err)
	}
	return removed, nil
}

// ListDeadLetters returns dropped actions, most recently dropped first.
func (s *Store) ListDeadLetters(ctx context.Context) ([]DeadLetter, error) {
	ctx = ensureContext(ctx)
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var letters []DeadLetter
	err = retryOnBusy(ctx, func() error {
		rows, err := db.QueryContext(ctx,
			`SELECT `+actionColumns+`, dropped_at, reason FROM dead_letters ORDER BY dropped_at DESC, id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		letters = letters[:0]
		for rows.Next() {
			var (
				letter  DeadLetter
				method  string
				payload sql.NullString
				reason  sql.NullString
			)
			if err := rows.Scan(
				&letter.ID,
				&letter.Kind,
				&letter.Endpoint,
				&method,
				&payload,
				&letter.CreatedAt,
				&letter.Attempts,
				&letter.DroppedAt,
				&reason,
			); err != nil {
				return fmt.Errorf("scan dead letter: %w", err)
			}
			letter.Method = Method(method)
			if payload.Valid {
				letter.Payload = []byte(payload.String)
			}
			letter.Reason = reason.String
			letters = append(letters, letter)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return letters, nil
}

// ClearDeadLetters purges the dead_letters table.
func (s *Store) ClearDeadLetters(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM dead_letters`)
	if err != nil {
		return 0, fmt.Errorf("clear dead letters: %w", err)
	}
	return res.RowsAffected()
}
