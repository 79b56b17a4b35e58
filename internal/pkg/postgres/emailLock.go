package postgres

import (
	"context"
	"fmt"

	"github.com/airenas/memoir/internal/pkg/persistence"
)

// LockEmailTable marks the email as being sent
// Returns ErrLocked if it is being sent or was sent already
func (db *DB) LockEmailTable(ctx context.Context, id, key string) error {
	cmd, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, key, value, created) VALUES($1, $2, 1, $3)
	ON CONFLICT (id, key) DO UPDATE SET value = 1 WHERE email_lock.value = 0`, id, key, db.now())
	if err != nil {
		return fmt.Errorf("can't lock email: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return persistence.ErrLocked
	}
	return nil
}

// UnLockEmailTable stores the final lock value, 0 allows a retry
func (db *DB) UnLockEmailTable(ctx context.Context, id, key string, value *int) error {
	v := 0
	if value != nil {
		v = *value
	}
	if _, err := db.pool.Exec(ctx, `UPDATE email_lock SET value = $3 WHERE id = $1 AND key = $2`, id, key, v); err != nil {
		return fmt.Errorf("can't unlock email: %w", err)
	}
	return nil
}
