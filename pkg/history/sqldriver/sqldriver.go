// Package sqldriver implements history.Driver over database/sql. The sqlite
// and postgres packages open the connection and pick the dialect.
package sqldriver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/papercomputeco/studio/pkg/history"
)

// Driver implements history.Driver on a *sql.DB.
type Driver struct {
	DB      *sql.DB
	dialect Dialect
}

// New creates the schema on db and returns a driver for it.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", dialect.Name, err)
		}
	}
	return &Driver{DB: db, dialect: dialect}, nil
}

func (d *Driver) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, d.dialect.rebind(query), args...)
}

func (d *Driver) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, d.dialect.rebind(query), args...)
}

func (d *Driver) AppendMessage(ctx context.Context, m history.ChatMessage) error {
	res, err := d.exec(ctx,
		`INSERT INTO chat_messages (id, role, content, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Role, m.Content, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return inserted(res, m.ID)
}

func (d *Driver) Messages(ctx context.Context, limit int) ([]history.ChatMessage, error) {
	q := `SELECT id, role, content, created_at FROM chat_messages ORDER BY seq ASC`
	var args []any
	if limit > 0 {
		q = `SELECT id, role, content, created_at FROM (
			SELECT seq, id, role, content, created_at FROM chat_messages ORDER BY seq DESC LIMIT ?
		) AS recent ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := d.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []history.ChatMessage
	for rows.Next() {
		var m history.ChatMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (d *Driver) ClearMessages(ctx context.Context) error {
	if _, err := d.exec(ctx, `DELETE FROM chat_messages`); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

func (d *Driver) PruneMessages(ctx context.Context, keep int) (int, error) {
	return d.prune(ctx, "chat_messages", keep)
}

func (d *Driver) AddImage(ctx context.Context, img history.GeneratedImage) error {
	res, err := d.exec(ctx,
		`INSERT INTO generated_images (id, prompt, url, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		img.ID, img.Prompt, img.URL, img.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert image: %w", err)
	}
	return inserted(res, img.ID)
}

func (d *Driver) Images(ctx context.Context, limit int) ([]history.GeneratedImage, error) {
	q := `SELECT id, prompt, url, created_at FROM generated_images ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var imgs []history.GeneratedImage
	for rows.Next() {
		var img history.GeneratedImage
		if err := rows.Scan(&img.ID, &img.Prompt, &img.URL, &img.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		imgs = append(imgs, img)
	}
	return imgs, rows.Err()
}

func (d *Driver) DeleteImage(ctx context.Context, id string) error {
	res, err := d.exec(ctx, `DELETE FROM generated_images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	if n == 0 {
		return history.NotFoundError{ID: id}
	}
	return nil
}

func (d *Driver) ClearImages(ctx context.Context) error {
	if _, err := d.exec(ctx, `DELETE FROM generated_images`); err != nil {
		return fmt.Errorf("failed to clear images: %w", err)
	}
	return nil
}

func (d *Driver) PruneImages(ctx context.Context, keep int) (int, error) {
	return d.prune(ctx, "generated_images", keep)
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

func (d *Driver) prune(ctx context.Context, table string, keep int) (int, error) {
	keep = max(keep, 0)
	res, err := d.exec(ctx,
		`DELETE FROM `+table+` WHERE seq NOT IN (SELECT seq FROM `+table+` ORDER BY seq DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", table, err)
	}
	return int(n), nil
}

func inserted(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", history.ErrDuplicate, id)
	}
	return nil
}
