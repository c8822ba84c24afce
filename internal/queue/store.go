package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const actionColumns = "id, kind, endpoint, method, payload, created_at, attempts"

// Insert persists a new action with the attempts it carries (normally zero).
func (s *Store) Insert(ctx context.Context, action Action) error {
	if action.ID == "" {
		return errors.New("insert action: empty id")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO queued_actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		action.ID,
		action.Kind,
		action.Endpoint,
		string(action.Method),
		nullablePayload(action.Payload),
		action.CreatedAt,
		action.Attempts,
	)
	if err != nil {
		return fmt.Errorf("insert action %s: %w", action.ID, err)
	}
	return nil
}

// ListAll returns every queued action ordered oldest first.
func (s *Store) ListAll(ctx context.Context) ([]Action, error) {
	ctx = ensureContext(ctx)
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var actions []Action
	err = retryOnBusy(ctx, func() error {
		rows, err := db.QueryContext(ctx,
			`SELECT `+actionColumns+` FROM queued_actions ORDER BY created_at ASC, id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		actions = actions[:0]
		for rows.Next() {
			action, err := scanAction(rows)
			if err != nil {
				return err
			}
			actions = append(actions, action)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return actions, nil
}

// DeleteByID removes an action. Deleting an id that is not present is not an error.
func (s *Store) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queued_actions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete action %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete action rows affected: %w", err)
	}
	return affected > 0, nil
}

// IncrementAttempts atomically adds one to the attempt counter and returns the
// new value. found is false when no such action exists.
func (s *Store) IncrementAttempts(ctx context.Context, id string) (attempts int, found bool, err error) {
	ctx = ensureContext(ctx)
	db, err := s.conn(ctx)
	if err != nil {
		return 0, false, err
	}
	err = retryOnBusy(ctx, func() error {
		return db.QueryRowContext(ctx,
			`UPDATE queued_actions SET attempts = attempts + 1 WHERE id = ? RETURNING attempts`, id,
		).Scan(&attempts)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("increment attempts %s: %w", id, err)
	}
	return attempts, true, nil
}

// Clear removes every queued action and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queued_actions`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of queued actions.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = retryOnBusy(ctx, func() error {
		return db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queued_actions`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return n, nil
}

func scanAction(scanner interface{ Scan(dest ...any) error }) (Action, error) {
	var (
		action  Action
		method  string
		payload sql.NullString
	)
	if err := scanner.Scan(
		&action.ID,
		&action.Kind,
		&action.Endpoint,
		&method,
		&payload,
		&action.CreatedAt,
		&action.Attempts,
	); err != nil {
		return Action{}, err
	}
	action.Method = Method(method)
	if payload.Valid {
		action.Payload = []byte(payload.String)
	}
	return action, nil
}

func nullablePayload(payload []byte) any {
	if len(payload) == 0 {
		return nil
	}
	return string(payload)
}
