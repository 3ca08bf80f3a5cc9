package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"dmmsync/internal/media"
	"dmmsync/internal/services"
)

func TestBuildBatchSkipsRecordsWithoutHash(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	batch := buildBatch([]*media.Record{
		{InfoHash: "abc123", Title: "The Matrix", Category: media.CategoryMovie, Size: 1},
		nil,
		{InfoHash: "  ", Title: "blank"},
	}, now)
	if batch.Len() != 1 {
		t.Fatalf("expected 1 queued upsert, got %d", batch.Len())
	}
}

func TestUpsertArgsNullsEmptyFields(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	args := upsertArgs(&media.Record{InfoHash: "abc123", Resolution: "1080p", Category: media.CategoryMovie}, now)
	if len(args) != 22 {
		t.Fatalf("expected 22 args, got %d", len(args))
	}
	if res, ok := args[6].(*string); !ok || res == nil || *res != "1080p" {
		t.Fatalf("resolution arg = %#v", args[6])
	}
	if codec, ok := args[7].(*string); !ok || codec != nil {
		t.Fatalf("empty codec should be NULL, got %#v", args[7])
	}
	if imdb, ok := args[19].(*string); !ok || imdb != nil {
		t.Fatalf("empty imdb id should be NULL, got %#v", args[19])
	}
	if ingested, ok := args[20].(time.Time); !ok || !ingested.Equal(now) {
		t.Fatalf("zero ingestion time should default to now, got %#v", args[20])
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), " ", 2); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestSinkAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("DMMSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DMMSYNC_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	sink, err := Open(ctx, dsn, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sink.Close()

	record := &media.Record{
		InfoHash:        "dmmsync-test-abc123",
		RawTitle:        "The Matrix 1999",
		Title:           "The Matrix",
		NormalizedTitle: "the matrix",
		Year:            1999,
		Category:        media.CategoryMovie,
		Languages:       []string{"en"},
		Size:            1000,
		ImdbID:          "tt0133093",
	}
	for i := 0; i < 2; i++ {
		if err := sink.StoreTorrents(ctx, []*media.Record{record}); err != nil {
			t.Fatalf("StoreTorrents #%d: %v", i, err)
		}
	}
	t.Cleanup(func() {
		_, _ = sink.pool.Exec(context.Background(), "DELETE FROM torrents WHERE info_hash = $1", record.InfoHash)
	})

	var imdb string
	if err := sink.pool.QueryRow(ctx, "SELECT imdb_id FROM torrents WHERE info_hash = $1", record.InfoHash).Scan(&imdb); err != nil {
		t.Fatalf("select: %v", err)
	}
	if imdb != "tt0133093" {
		t.Fatalf("imdb_id = %q", imdb)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := sink.StoreTorrents(cancelled, []*media.Record{record}); !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected ErrStorage on cancelled context, got %v", err)
	}
}
