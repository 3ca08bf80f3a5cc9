package hashlist

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dmmsync/internal/lzstring"
	"dmmsync/internal/media"
	"dmmsync/internal/services"
)

// DefaultHost serves the hashlist viewer that pages embed.
const DefaultHost = "debridmediamanager.com"

// Result is the outcome of extracting one page.
type Result struct {
	Entries []media.Entry
	// Miss is set when the page carries no hashlist iframe at all.
	Miss bool
}

// Extractor pulls torrent entries out of hashlist pages.
type Extractor struct {
	prefix string
}

// NewExtractor returns an Extractor for iframes served from host. An empty
// host selects DefaultHost.
func NewExtractor(host string) *Extractor {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultHost
	}
	return &Extractor{prefix: "https://" + host + "/hashlist#"}
}

// Payload returns the compact fragment of the first hashlist iframe in page.
func (e *Extractor) Payload(page string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", false
	}
	var payload string
	found := false
	doc.Find("iframe[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		fragment, ok := strings.CutPrefix(strings.TrimSpace(src), e.prefix)
		if !ok {
			return true
		}
		payload = fragment
		found = true
		return false
	})
	return payload, found
}

// Extract decodes the page payload into entries. A page without a payload is
// a Miss, not an error. Decode and JSON failures are returned wrapped in
// services.ErrDecode and services.ErrPayload with no entries; the caller
// still records the page.
func (e *Extractor) Extract(page string) (Result, error) {
	payload, ok := e.Payload(page)
	if !ok {
		return Result{Miss: true}, nil
	}
	decoded, err := lzstring.Decode(payload)
	if err != nil {
		return Result{}, services.Wrap(services.ErrDecode, "extract", "decode payload", "", err)
	}
	entries, err := ParseEntries([]byte(decoded))
	if err != nil {
		return Result{}, services.Wrap(services.ErrPayload, "extract", "parse payload", "", err)
	}
	return Result{Entries: entries}, nil
}

type rawEntry struct {
	Filename string      `json:"filename"`
	Hash     string      `json:"hash"`
	Bytes    json.Number `json:"bytes"`
}

// ParseEntries reads either a bare array of entries or an object holding a
// "torrents" array. Other top-level shapes produce no entries. Entries that
// fail to decode individually are skipped.
func ParseEntries(data []byte) ([]media.Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
	case '{':
		var wrapper struct {
			Torrents json.RawMessage `json:"torrents"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, err
		}
		if len(wrapper.Torrents) == 0 || wrapper.Torrents[0] != '[' {
			return nil, nil
		}
		if err := json.Unmarshal(wrapper.Torrents, &items); err != nil {
			return nil, err
		}
	default:
		var scalar any
		if err := json.Unmarshal(trimmed, &scalar); err != nil {
			return nil, err
		}
		return nil, nil
	}

	entries := make([]media.Entry, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		var raw rawEntry
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		entry, ok := raw.entry()
		if !ok {
			continue
		}
		if _, dup := seen[entry.InfoHash]; dup {
			continue
		}
		seen[entry.InfoHash] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r rawEntry) entry() (media.Entry, bool) {
	name := strings.TrimSpace(strings.ReplaceAll(r.Filename, ".", " "))
	hash := strings.ToLower(strings.TrimSpace(r.Hash))
	if name == "" || hash == "" {
		return media.Entry{}, false
	}
	size, err := r.Bytes.Int64()
	if err != nil {
		f, ferr := r.Bytes.Float64()
		if ferr != nil {
			return media.Entry{}, false
		}
		size = int64(f)
	}
	if size <= 0 {
		return media.Entry{}, false
	}
	return media.Entry{InfoHash: hash, Name: name, Size: size}, true
}
