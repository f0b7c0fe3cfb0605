package subscription

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "airabot/pkg/logx"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store is the sqlite-backed subscription table.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert inserts the subscription, or overwrites title and progress when
// the (chat, series) pair already exists. Re-subscribing is idempotent.
func (s *Store) Upsert(ctx context.Context, sub Subscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(chat_id, anime_id, title, episodes) VALUES(?,?,?,?)
		 ON CONFLICT(chat_id, anime_id) DO UPDATE SET title=excluded.title, episodes=excluded.episodes`,
		sub.ChatID, sub.AnimeID, sub.Title, sub.Episodes,
	)
	return err
}

// Remove deletes one subscription. It reports whether a row was deleted,
// so callers can tell "unsubscribed" apart from "was never subscribed".
func (s *Store) Remove(ctx context.Context, chatID string, animeID int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = ? AND anime_id = ?`,
		chatID, animeID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveByTitle deletes the chat's subscriptions whose stored title matches
// case-insensitively. Reports whether at least one row was deleted.
func (s *Store) RemoveByTitle(ctx context.Context, chatID, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = ? AND LOWER(title) = LOWER(?)`,
		chatID, title,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveAll deletes every subscription for the chat and returns how many
// rows were removed.
func (s *Store) RemoveAll(ctx context.Context, chatID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = ?`, chatID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListForChat returns the chat's subscriptions ordered by title.
func (s *Store) ListForChat(ctx context.Context, chatID string) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, anime_id, title, episodes FROM subscriptions
		 WHERE chat_id = ? ORDER BY title COLLATE NOCASE`, chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubs(rows)
}

// ListAllGroupedByChat returns a snapshot of every subscription, grouped
// by chat. The map is a point-in-time copy; mutating it does not touch
// the store.
func (s *Store) ListAllGroupedByChat(ctx context.Context) (map[string][]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, anime_id, title, episodes FROM subscriptions
		 ORDER BY chat_id, title COLLATE NOCASE`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs, err := scanSubs(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Subscription)
	for _, sub := range subs {
		out[sub.ChatID] = append(out[sub.ChatID], sub)
	}
	return out, nil
}

// SetProgress records that episodes up to n have been announced for the
// series, across ALL chats subscribed to it. Progress tracks the series,
// not the individual chat.
func (s *Store) SetProgress(ctx context.Context, animeID, episodes int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET episodes = ? WHERE anime_id = ?`,
		episodes, animeID,
	)
	return err
}

func scanSubs(rows *sql.Rows) ([]Subscription, error) {
	var out []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ChatID, &sub.AnimeID, &sub.Title, &sub.Episodes); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
