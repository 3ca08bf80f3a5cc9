package ingest_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/gofrs/flock"

	"dmmsync/internal/ingest"
	"dmmsync/internal/media"
	"dmmsync/internal/services"
	"dmmsync/internal/store"
	"dmmsync/internal/testsupport"
)

const matrixHash = "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678"

const matrixPayload = `{"torrents":[` +
	`{"filename":"The.Matrix.1999.1080p.BluRay.x264-GROUP","hash":"A1B2C3D4E5F60718293A4B5C6D7E8F9012345678","bytes":8589934592},` +
	`{"filename":"Some.Unknown.Film.2031.720p.WEB","hash":"ffffffffffffffffffffffffffffffffffffffff","bytes":1024}` +
	`]}`

func seedCatalog(t *testing.T, st *store.Store) {
	t.Helper()
	path := testsupport.WriteBasicsTSV(t, t.TempDir()+"/title.basics.tsv",
		"tt0133093\tmovie\tThe Matrix\tThe Matrix\t0\t1999\t\\N\t136\tAction,Sci-Fi",
		"tt0234215\tmovie\tThe Matrix Reloaded\tThe Matrix Reloaded\t0\t2003\t\\N\t138\tAction,Sci-Fi",
	)
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open tsv: %v", err)
	}
	defer f.Close()
	if _, err := st.ImportCatalog(context.Background(), f, false); err != nil {
		t.Fatalf("ImportCatalog: %v", err)
	}
}

func TestRunnerSyncsPagesAndMatchesCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(10), testsupport.WithQueueSizes(2))
	st := testsupport.MustOpenStore(t, cfg)
	seedCatalog(t, st)
	testsupport.WritePage(t, cfg.Paths.PagesDir, "page-1.html", matrixPayload)

	runner, err := ingest.NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RunID == "" || result.CatalogSize != 2 || result.Pages.Pages != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	summary := result.Summary
	if summary.Discovered != 2 || summary.Stored != 2 || summary.Matched != 1 || !summary.Balanced() {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	record, err := st.GetTorrent(context.Background(), matrixHash)
	if err != nil {
		t.Fatalf("GetTorrent: %v", err)
	}
	if record == nil || record.ImdbID != "tt0133093" || record.Year != 1999 || record.Category != media.CategoryMovie {
		t.Fatalf("unexpected stored record: %+v", record)
	}

	// Recorded pages are skipped on the next run.
	again, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Summary.Discovered != 0 || again.Pages.Skipped != 1 {
		t.Fatalf("expected page to be skipped, got %+v", again)
	}
	if again.RunID == result.RunID {
		t.Fatal("run ids must differ between runs")
	}
}

func TestRunnerMatchesBareTitleAndYear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedCatalog(t, st)
	testsupport.WritePage(t, cfg.Paths.PagesDir, "page-1.html",
		`{"torrents":[{"filename":"The.Matrix.1999","hash":"abc123","bytes":1000}]}`)

	runner, err := ingest.NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Summary.Stored != 1 || result.Summary.Matched != 1 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	record, err := st.GetTorrent(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetTorrent: %v", err)
	}
	if record == nil || record.ImdbID != "tt0133093" || record.Category != media.CategoryMovie || record.Size != 1000 {
		t.Fatalf("unexpected stored record: %+v", record)
	}
}

func TestRunnerHonorsBlacklistAndDisabledMatching(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMatchingDisabled())
	st := testsupport.MustOpenStore(t, cfg)
	seedCatalog(t, st)
	if err := st.AddBlacklist(context.Background(), matrixHash, "fake"); err != nil {
		t.Fatalf("AddBlacklist: %v", err)
	}
	testsupport.WritePage(t, cfg.Paths.PagesDir, "page-1.html", matrixPayload)

	runner, err := ingest.NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Summary.Blacklisted != 1 || result.Summary.Stored != 1 || result.Summary.Matched != 0 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	if record, _ := st.GetTorrent(context.Background(), matrixHash); record != nil {
		t.Fatalf("blacklisted torrent was stored: %+v", record)
	}
	if total, matched, _ := st.TorrentCounts(context.Background()); total != 1 || matched != 0 {
		t.Fatalf("counts = %d/%d, want 1/0", total, matched)
	}
}

type failingSink struct{}

func (failingSink) StoreTorrents(context.Context, []*media.Record) error {
	return services.ErrStorage
}

func TestRunnerReportsSinkFailuresInSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WritePage(t, cfg.Paths.PagesDir, "page-1.html", matrixPayload)

	runner, err := ingest.NewRunner(cfg, nil, ingest.WithSink(failingSink{}))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Summary.Failed != 2 || result.Summary.Stored != 0 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
}

func TestRunnerRefusesConcurrentSync(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	held := flock.New(cfg.LockPath())
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer held.Unlock()

	runner, err := ingest.NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := runner.Run(context.Background()); !errors.Is(err, ingest.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRetagMatchesStoredTorrentsAfterCatalogImport(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBatchSize(2))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	records := []*media.Record{
		{InfoHash: "aa01", RawTitle: "The Matrix 1999", Title: "The Matrix", NormalizedTitle: "the matrix", Year: 1999, Category: media.CategoryMovie, Size: 1},
		{InfoHash: "aa02", RawTitle: "The Matrix Reloaded 2003", Title: "The Matrix Reloaded", NormalizedTitle: "the matrix reloaded", Year: 2003, Category: media.CategoryMovie, Size: 1},
		{InfoHash: "aa03", RawTitle: "Nothing Like It 2010", Title: "Nothing Like It", NormalizedTitle: "nothing like it", Year: 2010, Category: media.CategoryMovie, Size: 1, ImdbID: "tt7777777"},
		{InfoHash: "aa04", RawTitle: "The Matrix 1999 XXX", Title: "The Matrix", NormalizedTitle: "the matrix", Year: 1999, Category: media.CategoryMovie, Size: 1, Adult: true},
	}
	if err := st.StoreTorrents(ctx, records); err != nil {
		t.Fatalf("StoreTorrents: %v", err)
	}
	seedCatalog(t, st)

	runner, err := ingest.NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	missing, err := runner.Retag(ctx, false)
	if err != nil {
		t.Fatalf("Retag missing: %v", err)
	}
	if missing.Scanned != 2 || missing.Matched != 2 || missing.Changed != 2 {
		t.Fatalf("unexpected missing-only result: %+v", missing)
	}
	for hash, want := range map[string]string{"aa01": "tt0133093", "aa02": "tt0234215", "aa03": "tt7777777", "aa04": ""} {
		got, err := st.GetTorrent(ctx, hash)
		if err != nil || got == nil || got.ImdbID != want {
			t.Fatalf("%s: got %+v (%v), want imdb %q", hash, got, err, want)
		}
	}

	all, err := runner.Retag(ctx, true)
	if err != nil {
		t.Fatalf("Retag all: %v", err)
	}
	if all.Scanned != 3 || all.Matched != 2 || all.Changed != 1 {
		t.Fatalf("unexpected retag-all result: %+v", all)
	}
	if got, _ := st.GetTorrent(ctx, "aa03"); got == nil || got.ImdbID != "" {
		t.Fatalf("unsupported identifier should be cleared, got %+v", got)
	}
}

func TestRetagRequiresMatching(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMatchingDisabled())
	runner, err := ingest.NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := runner.Retag(context.Background(), false); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

