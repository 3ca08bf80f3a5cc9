package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PageRecord is one row of the page ledger.
type PageRecord struct {
	Page        string
	EntryCount  int
	ProcessedAt time.Time
}

// ProcessedPages returns every recorded page with its entry count.
func (s *Store) ProcessedPages(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT page, entry_count FROM parsed_pages")
	if err != nil {
		return nil, fmt.Errorf("query parsed pages: %w", err)
	}
	defer rows.Close()

	pages := make(map[string]int)
	for rows.Next() {
		var (
			page  string
			count int
		)
		if err := rows.Scan(&page, &count); err != nil {
			return nil, fmt.Errorf("scan parsed page: %w", err)
		}
		pages[page] = count
	}
	return pages, rows.Err()
}

// RecordPage marks page as processed. Re-recording a page replaces its count.
func (s *Store) RecordPage(ctx context.Context, page string, entryCount int) error {
	page = strings.TrimSpace(page)
	if page == "" {
		return fmt.Errorf("record page: empty page id")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO parsed_pages (page, entry_count, processed_at) VALUES (?, ?, ?)
         ON CONFLICT(page) DO UPDATE SET entry_count = excluded.entry_count, processed_at = excluded.processed_at`,
		page, entryCount, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record page %s: %w", page, err)
	}
	return nil
}

// ListPages returns the ledger ordered by page id.
func (s *Store) ListPages(ctx context.Context) ([]PageRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT page, entry_count, processed_at FROM parsed_pages ORDER BY page")
	if err != nil {
		return nil, fmt.Errorf("list parsed pages: %w", err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		var (
			rec PageRecord
			raw string
		)
		if err := rows.Scan(&rec.Page, &rec.EntryCount, &raw); err != nil {
			return nil, fmt.Errorf("scan parsed page: %w", err)
		}
		rec.ProcessedAt = parseTime(raw)
		pages = append(pages, rec)
	}
	return pages, rows.Err()
}

// ForgetPage removes page from the ledger so the next sync re-reads it.
// It reports whether the page was recorded.
func (s *Store) ForgetPage(ctx context.Context, page string) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM parsed_pages WHERE page = ?", strings.TrimSpace(page))
	if err != nil {
		return false, fmt.Errorf("forget page %s: %w", page, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
