package hashlist_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"dmmsync/internal/hashlist"
	"dmmsync/internal/lzstring"
	"dmmsync/internal/media"
	"dmmsync/internal/services"
)

func pageHTML(host, payload string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>hashlist</title></head>
<body>
<iframe src="https://%s/hashlist#%s" width="100%%" height="100%%"></iframe>
</body></html>`, host, payload)
}

func TestExtractTorrentsObject(t *testing.T) {
	payload := lzstring.Encode(`{"torrents":[{"filename":"The.Matrix.1999","hash":"ABC123","bytes":1000}]}`)
	result, err := hashlist.NewExtractor("").Extract(pageHTML(hashlist.DefaultHost, payload))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if result.Miss {
		t.Fatal("expected payload to be found")
	}
	want := []media.Entry{{InfoHash: "abc123", Name: "The Matrix 1999", Size: 1000}}
	if len(result.Entries) != 1 || result.Entries[0] != want[0] {
		t.Fatalf("entries = %+v, want %+v", result.Entries, want)
	}
}

func TestExtractBareArrayDedupesAndDropsEmpty(t *testing.T) {
	raw := `[
		{"filename":"Show.S01E01.1080p","hash":"ff00","bytes":5},
		{"filename":"Show.S01E01.720p","hash":"FF00","bytes":3},
		{"filename":"Empty.File","hash":"ff01","bytes":0},
		{"filename":"","hash":"ff02","bytes":9},
		{"filename":"No.Hash","hash":"","bytes":9},
		{"filename":"Big.File","hash":"ff03","bytes":4.7e9},
		"not an object"
	]`
	result, err := hashlist.NewExtractor("").Extract(pageHTML(hashlist.DefaultHost, lzstring.Encode(raw)))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", result.Entries)
	}
	if result.Entries[0].Name != "Show S01E01 1080p" {
		t.Fatalf("first occurrence should win, got %q", result.Entries[0].Name)
	}
	if result.Entries[1].InfoHash != "ff03" || result.Entries[1].Size != 4_700_000_000 {
		t.Fatalf("unexpected float-sized entry: %+v", result.Entries[1])
	}
	for _, entry := range result.Entries {
		if !entry.Valid() {
			t.Fatalf("invalid entry extracted: %+v", entry)
		}
	}
}

func TestExtractMissAndOtherHosts(t *testing.T) {
	extractor := hashlist.NewExtractor("")
	tests := map[string]string{
		"no iframe":     "<html><body><p>nothing here</p></body></html>",
		"foreign host":  pageHTML("example.com", lzstring.Encode("[]")),
		"not hashlist":  `<iframe src="https://debridmediamanager.com/library#abc"></iframe>`,
		"empty html":    "",
		"iframe no src": "<iframe></iframe>",
	}
	for name, page := range tests {
		t.Run(name, func(t *testing.T) {
			result, err := extractor.Extract(page)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.Miss || len(result.Entries) != 0 {
				t.Fatalf("expected miss, got %+v", result)
			}
		})
	}
}

func TestExtractCustomHost(t *testing.T) {
	payload := lzstring.Encode(`[{"filename":"a","hash":"h","bytes":1}]`)
	result, err := hashlist.NewExtractor("mirror.test").Extract(pageHTML("mirror.test", payload))
	if err != nil || len(result.Entries) != 1 {
		t.Fatalf("expected one entry from mirror host, got %+v err=%v", result, err)
	}
}

func TestExtractErrors(t *testing.T) {
	extractor := hashlist.NewExtractor("")

	_, err := extractor.Extract(pageHTML(hashlist.DefaultHost, "!!!"))
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if !errors.Is(err, lzstring.ErrDecode) {
		t.Fatalf("expected codec error in chain, got %v", err)
	}

	_, err = extractor.Extract(pageHTML(hashlist.DefaultHost, lzstring.Encode(`{"torrents": [`)))
	if !errors.Is(err, services.ErrPayload) {
		t.Fatalf("expected payload error, got %v", err)
	}
}

func TestParseEntriesShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", 0},
		{"scalar", "42", 0},
		{"object without torrents", `{"title":"x"}`, 0},
		{"torrents not array", `{"torrents":{"a":1}}`, 0},
		{"array", `[{"filename":"a","hash":"1","bytes":1}]`, 1},
		{"object", `{"torrents":[{"filename":"a","hash":"1","bytes":1},{"filename":"b","hash":"2","bytes":2}]}`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := hashlist.ParseEntries([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseEntries error: %v", err)
			}
			if len(entries) != tt.want {
				t.Fatalf("got %d entries, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestFilterRemovesBlacklisted(t *testing.T) {
	build := func() map[string]media.Entry {
		return map[string]media.Entry{
			"a": {InfoHash: "a", Name: "A", Size: 1},
			"b": {InfoHash: "b", Name: "B", Size: 1},
			"c": {InfoHash: "c", Name: "C", Size: 1},
		}
	}

	small := map[string]struct{}{"b": {}}
	large := map[string]struct{}{"a": {}, "c": {}, "x": {}, "y": {}, "z": {}}

	got, removed := hashlist.Filter(build(), small)
	if removed != 1 || len(got) != 2 {
		t.Fatalf("small blacklist: removed=%d left=%v", removed, got)
	}
	if _, ok := got["b"]; ok {
		t.Fatal("blacklisted hash survived")
	}

	got, removed = hashlist.Filter(build(), large)
	if removed != 2 || len(got) != 1 {
		t.Fatalf("large blacklist: removed=%d left=%v", removed, got)
	}
	if _, ok := got["b"]; !ok {
		t.Fatal("non-blacklisted hash removed")
	}

	got, removed = hashlist.Filter(build(), nil)
	if removed != 0 || len(got) != 3 {
		t.Fatalf("nil blacklist should be a no-op, removed=%d", removed)
	}
}

type memoryLedger struct {
	mu       sync.Mutex
	pages    map[string]int
	failNext bool
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{pages: make(map[string]int)}
}

func (l *memoryLedger) ProcessedPages(context.Context) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.pages))
	for k, v := range l.pages {
		out[k] = v
	}
	return out, nil
}

func (l *memoryLedger) RecordPage(_ context.Context, page string, count int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext {
		l.failNext = false
		return errors.New("disk full")
	}
	l.pages[page] = count
	return nil
}

func writePage(t *testing.T, dir, name, rawJSON string) {
	t.Helper()
	html := pageHTML(hashlist.DefaultHost, lzstring.Encode(rawJSON))
	if err := os.WriteFile(filepath.Join(dir, name), []byte(html), 0o644); err != nil {
		t.Fatalf("write page: %v", err)
	}
}

func collect(t *testing.T, producer *hashlist.Producer, ctx context.Context) ([]media.Item, error) {
	t.Helper()
	out := make(chan media.Item, 64)
	var err error
	done := make(chan struct{})
	go func() {
		err = producer.Produce(ctx, out)
		close(out)
		close(done)
	}()
	var items []media.Item
	for item := range out {
		items = append(items, item)
	}
	<-done
	return items, err
}

func TestDiscoverPagesSkipsIndexAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.html", "a.html", "index.html", "404.html", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.html"), 0o755); err != nil {
		t.Fatal(err)
	}

	pages, err := hashlist.DiscoverPages(dir)
	if err != nil {
		t.Fatalf("DiscoverPages error: %v", err)
	}
	want := []string{filepath.Join(dir, "a.html"), filepath.Join(dir, "b.html")}
	if len(pages) != len(want) || pages[0] != want[0] || pages[1] != want[1] {
		t.Fatalf("pages = %v, want %v", pages, want)
	}

	if _, err := hashlist.DiscoverPages(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestProducerIsIdempotentAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "p1.html", `{"torrents":[{"filename":"The.Matrix.1999","hash":"abc123","bytes":1000}]}`)
	writePage(t, dir, "p2.html", `[{"filename":"Heat.1995","hash":"def456","bytes":2000},{"filename":"Alien.1979","hash":"aa11","bytes":5}]`)
	if err := os.WriteFile(filepath.Join(dir, "p3.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	ledger := newMemoryLedger()
	producer := hashlist.NewProducer(dir, nil, ledger, nil)

	items, err := collect(t, producer, context.Background())
	if err != nil {
		t.Fatalf("first run error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("first run emitted %d items, want 3", len(items))
	}
	stats := producer.Stats()
	if stats.Pages != 3 || stats.Misses != 1 || stats.Entries != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if ledger.pages["p1.html"] != 1 || ledger.pages["p2.html"] != 2 || ledger.pages["p3.html"] != 0 {
		t.Fatalf("unexpected ledger contents: %v", ledger.pages)
	}

	items, err = collect(t, producer, context.Background())
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("second run emitted %d items, want 0", len(items))
	}
	if producer.Stats().Skipped != 3 {
		t.Fatalf("expected 3 skipped pages, got %+v", producer.Stats())
	}
}

func TestProducerRecordsUndecodablePage(t *testing.T) {
	dir := t.TempDir()
	html := pageHTML(hashlist.DefaultHost, "Ibg")
	if err := os.WriteFile(filepath.Join(dir, "broken.html"), []byte(html), 0o644); err != nil {
		t.Fatal(err)
	}
	ledger := newMemoryLedger()
	producer := hashlist.NewProducer(dir, nil, ledger, nil)

	items, err := collect(t, producer, context.Background())
	if err != nil {
		t.Fatalf("Produce error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %+v", items)
	}
	if count, ok := ledger.pages["broken.html"]; !ok || count != 0 {
		t.Fatalf("broken page should be recorded with zero entries, ledger=%v", ledger.pages)
	}
	if producer.Stats().Failures != 1 {
		t.Fatalf("expected one failure, got %+v", producer.Stats())
	}
}

func TestProducerContinuesWhenLedgerWriteFails(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "p1.html", `[{"filename":"A","hash":"a1","bytes":1}]`)
	ledger := newMemoryLedger()
	ledger.failNext = true

	items, err := collect(t, hashlist.NewProducer(dir, nil, ledger, nil), context.Background())
	if err != nil {
		t.Fatalf("Produce error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("entries should still be emitted, got %d", len(items))
	}
	if _, ok := ledger.pages["p1.html"]; ok {
		t.Fatal("failed ledger write should leave the page unrecorded")
	}
}

func TestProducerStopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "p1.html", `[{"filename":"A","hash":"a1","bytes":1}]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ledger := newMemoryLedger()
	items, err := collect(t, hashlist.NewProducer(dir, nil, ledger, nil), ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(items) != 0 || len(ledger.pages) != 0 {
		t.Fatalf("cancelled run should not touch pages: items=%d ledger=%v", len(items), ledger.pages)
	}
}
