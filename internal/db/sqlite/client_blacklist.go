package sqlite

import (
	"context"
	"fmt"
)

func (c *sqliteClient) IsBlacklisted(ctx context.Context, userID int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM blacklist WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("check blacklist for %d: %w", userID, err)
	}
	return count > 0, nil
}

func (c *sqliteClient) AddToBlacklist(ctx context.Context, userID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	result, err := c.db.ExecContext(ctx, `INSERT OR IGNORE INTO blacklist (user_id) VALUES (?)`, userID)
	if err != nil {
		return false, fmt.Errorf("insert blacklist entry %d: %w", userID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
