package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmmsync/internal/media"
	"dmmsync/internal/services"
)

const defaultChunk = 500

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS torrents (
    info_hash TEXT PRIMARY KEY,
    raw_title TEXT NOT NULL,
    title TEXT NOT NULL,
    normalized_title TEXT NOT NULL,
    year INTEGER NOT NULL DEFAULT 0,
    category TEXT NOT NULL,
    resolution TEXT,
    codec TEXT,
    source TEXT,
    release_group TEXT,
    container TEXT,
    edition TEXT,
    seasons INTEGER[],
    episodes INTEGER[],
    languages TEXT[],
    hdr TEXT[],
    audio TEXT[],
    size BIGINT NOT NULL,
    adult BOOLEAN NOT NULL DEFAULT FALSE,
    imdb_id TEXT,
    ingested_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_torrents_imdb_id ON torrents (imdb_id)`,
}

const upsertSQL = `INSERT INTO torrents
    (info_hash, raw_title, title, normalized_title, year, category, resolution, codec,
     source, release_group, container, edition, seasons, episodes, languages, hdr, audio,
     size, adult, imdb_id, ingested_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
ON CONFLICT (info_hash) DO UPDATE SET
    raw_title = EXCLUDED.raw_title,
    title = EXCLUDED.title,
    normalized_title = EXCLUDED.normalized_title,
    year = EXCLUDED.year,
    category = EXCLUDED.category,
    resolution = EXCLUDED.resolution,
    codec = EXCLUDED.codec,
    source = EXCLUDED.source,
    release_group = EXCLUDED.release_group,
    container = EXCLUDED.container,
    edition = EXCLUDED.edition,
    seasons = EXCLUDED.seasons,
    episodes = EXCLUDED.episodes,
    languages = EXCLUDED.languages,
    hdr = EXCLUDED.hdr,
    audio = EXCLUDED.audio,
    size = EXCLUDED.size,
    adult = EXCLUDED.adult,
    imdb_id = COALESCE(EXCLUDED.imdb_id, torrents.imdb_id),
    updated_at = EXCLUDED.updated_at`

// Sink upserts torrents into PostgreSQL.
type Sink struct {
	pool  *pgxpool.Pool
	chunk int
}

// Open connects to dsn, sizes the pool to maxConns and ensures the torrents
// table exists.
func Open(ctx context.Context, dsn string, maxConns int) (*Sink, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure torrents table: %w", err)
		}
	}
	return &Sink{pool: pool, chunk: defaultChunk}, nil
}

// Close releases the pool.
func (s *Sink) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// StoreTorrents upserts records keyed by info hash, one batch round trip per
// chunk.
func (s *Sink) StoreTorrents(ctx context.Context, records []*media.Record) error {
	now := time.Now().UTC()
	for start := 0; start < len(records); start += s.chunk {
		end := min(start+s.chunk, len(records))
		batch := buildBatch(records[start:end], now)
		if batch.Len() == 0 {
			continue
		}
		if err := s.sendBatch(ctx, batch); err != nil {
			return services.Wrap(services.ErrStorage, "store", "postgres upsert", fmt.Sprintf("%d records", len(records)), err)
		}
	}
	return nil
}

func (s *Sink) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := s.pool.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func buildBatch(records []*media.Record, now time.Time) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, r := range records {
		if r == nil || strings.TrimSpace(r.InfoHash) == "" {
			continue
		}
		batch.Queue(upsertSQL, upsertArgs(r, now)...)
	}
	return batch
}

func upsertArgs(r *media.Record, now time.Time) []any {
	ingested := r.IngestedAt
	if ingested.IsZero() {
		ingested = now
	}
	return []any{
		r.InfoHash, r.RawTitle, r.Title, r.NormalizedTitle, r.Year, string(r.Category),
		nullable(r.Resolution), nullable(r.Codec), nullable(r.Source), nullable(r.Group),
		nullable(r.Container), nullable(r.Edition),
		r.Seasons, r.Episodes, r.Languages, r.HDR, r.Audio,
		r.Size, r.Adult, nullable(r.ImdbID), ingested, now,
	}
}

func nullable(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
