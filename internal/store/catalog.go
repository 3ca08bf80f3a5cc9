package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"dmmsync/internal/catalog"
	"dmmsync/internal/media"
)

const catalogImportBatch = 10000

const upsertTitleSQL = `INSERT INTO imdb_titles (imdb_id, title, normalized_title, year, category, adult)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(imdb_id) DO UPDATE SET
    title = excluded.title,
    normalized_title = excluded.normalized_title,
    year = excluded.year,
    category = excluded.category,
    adult = excluded.adult`

// ImportCatalog loads an IMDb title.basics dump into the catalog snapshot,
// committing every catalogImportBatch titles.
func (s *Store) ImportCatalog(ctx context.Context, r io.Reader, includeAdult bool) (catalog.TSVStats, error) {
	ctx = ensureContext(ctx)
	pending := make([]catalog.Entry, 0, catalogImportBatch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := s.UpsertTitles(ctx, pending); err != nil {
			return err
		}
		pending = pending[:0]
		return ctx.Err()
	}

	stats, err := catalog.ReadBasicsTSV(r, includeAdult, func(entry catalog.Entry) error {
		pending = append(pending, entry)
		if len(pending) >= catalogImportBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	return stats, flush()
}

// UpsertTitles writes entries to the catalog snapshot in one transaction.
func (s *Store) UpsertTitles(ctx context.Context, entries []catalog.Entry) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertTitleSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ImdbID, e.Title, e.NormalizedTitle, e.Year, string(e.Category), boolToInt(e.Adult)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert %d titles: %w", len(entries), err)
	}
	return nil
}

// LoadCatalog reads the catalog snapshot in rowid order. Adult titles are
// left out unless includeAdult is set.
func (s *Store) LoadCatalog(ctx context.Context, includeAdult bool) ([]catalog.Entry, error) {
	query := "SELECT imdb_id, title, normalized_title, year, category, adult FROM imdb_titles"
	if !includeAdult {
		query += " WHERE adult = 0"
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var entries []catalog.Entry
	for rows.Next() {
		var (
			e        catalog.Entry
			category string
			adult    int
		)
		if err := rows.Scan(&e.ImdbID, &e.Title, &e.NormalizedTitle, &e.Year, &category, &adult); err != nil {
			return nil, fmt.Errorf("scan catalog title: %w", err)
		}
		e.Category = media.Category(category)
		e.Adult = adult != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CatalogCount returns the number of titles in the snapshot.
func (s *Store) CatalogCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM imdb_titles").Scan(&count); err != nil {
		return 0, fmt.Errorf("count catalog: %w", err)
	}
	return count, nil
}
