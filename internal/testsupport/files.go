package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dmmsync/internal/hashlist"
	"dmmsync/internal/lzstring"
)

// PageHTML wraps payload the way published hashlist pages embed it.
func PageHTML(payload string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>hashlist</title></head>
<body><iframe src="https://%s/hashlist#%s"></iframe></body></html>
`, hashlist.DefaultHost, lzstring.Encode(payload))
}

// WritePage writes a hashlist page named name into dir whose payload decodes
// to payload. It returns the page path.
func WritePage(t testing.TB, dir, name, payload string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(PageHTML(payload)), 0o644); err != nil {
		t.Fatalf("write page %s: %v", path, err)
	}
	return path
}

// WriteBasicsTSV writes an IMDb title.basics file with a header and rows.
// Each row is a tab-separated line without its trailing newline.
func WriteBasicsTSV(t testing.TB, path string, rows ...string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	var b strings.Builder
	b.WriteString("tconst\ttitleType\tprimaryTitle\toriginalTitle\tisAdult\tstartYear\tendYear\truntimeMinutes\tgenres\n")
	for _, row := range rows {
		b.WriteString(row)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
