package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dmmsync/internal/media"
	"dmmsync/internal/services"
)

const upsertTorrentSQL = `INSERT INTO torrents (
    info_hash, raw_title, title, normalized_title, year, category, resolution, codec,
    source, release_group, container, edition, seasons_json, episodes_json,
    languages_json, hdr_json, audio_json, size, adult, imdb_id, ingested_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(info_hash) DO UPDATE SET
    raw_title = excluded.raw_title,
    title = excluded.title,
    normalized_title = excluded.normalized_title,
    year = excluded.year,
    category = excluded.category,
    resolution = excluded.resolution,
    codec = excluded.codec,
    source = excluded.source,
    release_group = excluded.release_group,
    container = excluded.container,
    edition = excluded.edition,
    seasons_json = excluded.seasons_json,
    episodes_json = excluded.episodes_json,
    languages_json = excluded.languages_json,
    hdr_json = excluded.hdr_json,
    audio_json = excluded.audio_json,
    size = excluded.size,
    adult = excluded.adult,
    imdb_id = COALESCE(excluded.imdb_id, torrents.imdb_id),
    updated_at = excluded.updated_at`

const torrentColumns = "info_hash, raw_title, title, normalized_title, year, category, resolution, codec, source, release_group, container, edition, seasons_json, episodes_json, languages_json, hdr_json, audio_json, size, adult, imdb_id, ingested_at"

// StoreTorrents upserts records keyed by info hash in a single transaction.
// A later write without an identifier keeps a previously matched one.
func (s *Store) StoreTorrents(ctx context.Context, records []*media.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := formatTime(time.Now())
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertTorrentSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range records {
			if r == nil {
				continue
			}
			args, err := torrentArgs(r, now)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("upsert %s: %w", r.InfoHash, err)
			}
		}
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, "store", "store torrents", fmt.Sprintf("%d records", len(records)), err)
	}
	return nil
}

func torrentArgs(r *media.Record, now string) ([]any, error) {
	lists := [][]byte{}
	for _, value := range []any{r.Seasons, r.Episodes, r.Languages, r.HDR, r.Audio} {
		encoded, err := jsonList(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", r.InfoHash, err)
		}
		lists = append(lists, encoded)
	}
	ingested := now
	if !r.IngestedAt.IsZero() {
		ingested = formatTime(r.IngestedAt)
	}
	return []any{
		r.InfoHash, r.RawTitle, r.Title, r.NormalizedTitle, r.Year, string(r.Category),
		nullableString(r.Resolution), nullableString(r.Codec), nullableString(r.Source),
		nullableString(r.Group), nullableString(r.Container), nullableString(r.Edition),
		nullableJSON(lists[0]), nullableJSON(lists[1]), nullableJSON(lists[2]),
		nullableJSON(lists[3]), nullableJSON(lists[4]),
		r.Size, boolToInt(r.Adult), nullableString(r.ImdbID), ingested, now,
	}, nil
}

func jsonList(value any) ([]byte, error) {
	switch v := value.(type) {
	case []int:
		if len(v) == 0 {
			return nil, nil
		}
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(value)
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

// GetTorrent returns the stored record for hash, or nil when absent.
func (s *Store) GetTorrent(ctx context.Context, hash string) (*media.Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+torrentColumns+" FROM torrents WHERE info_hash = ?", normalizeHash(hash))
	record, err := scanTorrent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get torrent: %w", err)
	}
	return record, nil
}

// TorrentCounts returns how many torrents are stored and how many of them
// carry a catalog identifier.
func (s *Store) TorrentCounts(ctx context.Context) (total, matched int, err error) {
	err = s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1), COUNT(imdb_id) FROM torrents").Scan(&total, &matched)
	if err != nil {
		return 0, 0, fmt.Errorf("count torrents: %w", err)
	}
	return total, matched, nil
}

// TorrentPage returns up to limit non-adult torrents with an info hash
// greater than after, in hash order. With missingOnly set only torrents
// without an identifier are returned. Pass the last hash of one page as
// after to fetch the next; an empty page means the scan is complete.
func (s *Store) TorrentPage(ctx context.Context, after string, limit int, missingOnly bool) ([]*media.Record, error) {
	query := "SELECT " + torrentColumns + " FROM torrents WHERE info_hash > ? AND adult = 0"
	if missingOnly {
		query += " AND imdb_id IS NULL"
	}
	query += " ORDER BY info_hash LIMIT ?"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, after, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "list torrents", "", err)
	}
	defer rows.Close()

	var records []*media.Record
	for rows.Next() {
		record, err := scanTorrent(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "store", "list torrents", "", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "list torrents", "", err)
	}
	return records, nil
}

// SetImdbIDs overwrites the identifier of each torrent in ids, keyed by info
// hash. An empty identifier clears it. Unlike StoreTorrents this replaces a
// previous match, so a retag can drop identifiers the catalog no longer
// supports. It returns how many rows actually changed.
func (s *Store) SetImdbIDs(ctx context.Context, ids map[string]string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := formatTime(time.Now())
	changed := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		changed = 0
		stmt, err := tx.PrepareContext(ctx,
			"UPDATE torrents SET imdb_id = ?, updated_at = ? WHERE info_hash = ? AND imdb_id IS NOT ?")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for hash, imdbID := range ids {
			id := nullableString(imdbID)
			result, err := stmt.ExecContext(ctx, id, now, normalizeHash(hash), id)
			if err != nil {
				return fmt.Errorf("update %s: %w", hash, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			changed += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "store", "set imdb ids", fmt.Sprintf("%d torrents", len(ids)), err)
	}
	return changed, nil
}

func scanTorrent(scanner interface{ Scan(dest ...any) error }) (*media.Record, error) {
	var (
		r           media.Record
		category    string
		resolution  sql.NullString
		codec       sql.NullString
		source      sql.NullString
		group       sql.NullString
		container   sql.NullString
		edition     sql.NullString
		seasons     sql.NullString
		episodes    sql.NullString
		languages   sql.NullString
		hdr         sql.NullString
		audio       sql.NullString
		imdbID      sql.NullString
		adult       int
		ingestedRaw string
	)
	if err := scanner.Scan(
		&r.InfoHash, &r.RawTitle, &r.Title, &r.NormalizedTitle, &r.Year, &category,
		&resolution, &codec, &source, &group, &container, &edition,
		&seasons, &episodes, &languages, &hdr, &audio,
		&r.Size, &adult, &imdbID, &ingestedRaw,
	); err != nil {
		return nil, err
	}
	r.Category = media.Category(category)
	r.Resolution = resolution.String
	r.Codec = codec.String
	r.Source = source.String
	r.Group = group.String
	r.Container = container.String
	r.Edition = edition.String
	r.Adult = adult != 0
	r.ImdbID = imdbID.String
	r.IngestedAt = parseTime(ingestedRaw)

	decode := func(raw sql.NullString, target any) error {
		if !raw.Valid || raw.String == "" {
			return nil
		}
		return json.Unmarshal([]byte(raw.String), target)
	}
	for _, field := range []struct {
		raw    sql.NullString
		target any
	}{
		{seasons, &r.Seasons},
		{episodes, &r.Episodes},
		{languages, &r.Languages},
		{hdr, &r.HDR},
		{audio, &r.Audio},
	} {
		if err := decode(field.raw, field.target); err != nil {
			return nil, fmt.Errorf("decode %s lists: %w", r.InfoHash, err)
		}
	}
	return &r, nil
}
