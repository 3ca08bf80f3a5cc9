package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// BlacklistItem is one blacklisted info hash.
type BlacklistItem struct {
	InfoHash string
	Reason   string
	AddedAt  time.Time
}

func normalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// AddBlacklist blacklists hash. Adding an existing hash updates its reason.
func (s *Store) AddBlacklist(ctx context.Context, hash, reason string) error {
	hash = normalizeHash(hash)
	if hash == "" {
		return fmt.Errorf("blacklist: empty info hash")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO blacklisted_items (info_hash, reason, added_at) VALUES (?, ?, ?)
         ON CONFLICT(info_hash) DO UPDATE SET reason = excluded.reason`,
		hash, nullableString(reason), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("blacklist %s: %w", hash, err)
	}
	return nil
}

// RemoveBlacklist removes hash and reports whether it was present.
func (s *Store) RemoveBlacklist(ctx context.Context, hash string) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM blacklisted_items WHERE info_hash = ?", normalizeHash(hash))
	if err != nil {
		return false, fmt.Errorf("remove blacklist %s: %w", hash, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListBlacklist returns blacklisted hashes ordered by hash.
func (s *Store) ListBlacklist(ctx context.Context) ([]BlacklistItem, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT info_hash, reason, added_at FROM blacklisted_items ORDER BY info_hash")
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	defer rows.Close()

	var items []BlacklistItem
	for rows.Next() {
		var (
			item   BlacklistItem
			reason sql.NullString
			added  string
		)
		if err := rows.Scan(&item.InfoHash, &reason, &added); err != nil {
			return nil, fmt.Errorf("scan blacklist: %w", err)
		}
		item.Reason = reason.String
		item.AddedAt = parseTime(added)
		items = append(items, item)
	}
	return items, rows.Err()
}

// BlacklistSet returns the blacklist as a set for filtering.
func (s *Store) BlacklistSet(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT info_hash FROM blacklisted_items")
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan blacklist: %w", err)
		}
		set[hash] = struct{}{}
	}
	return set, rows.Err()
}
