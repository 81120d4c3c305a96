package crawler

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// DedupStore is the single source of truth for "seen" state: the canonical
// URLs queued or visited this run, the canonical URLs stored by this or a
// prior (checkpointed) run, and every stored content fingerprint. All checks
// are atomic with respect to concurrent workers.
type DedupStore struct {
	hasher Hasher

	mu     sync.Mutex
	seen   map[string]struct{} // queued or visited this run
	hashes map[string]struct{} // stored content fingerprints
	stored map[string]string   // stored canonical URL -> fingerprint
}

// NewDedupStore builds an empty store.
func NewDedupStore(hasher Hasher) *DedupStore {
	return &DedupStore{
		hasher: hasher,
		seen:   make(map[string]struct{}),
		hashes: make(map[string]struct{}),
		stored: make(map[string]string),
	}
}

// MarkURL records a canonical URL as queued/visited, returning true when it
// was not seen before. This is the frontier's membership check.
func (d *DedupStore) MarkURL(canonical string) bool {
	if canonical == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[canonical]; ok {
		return false
	}
	d.seen[canonical] = struct{}{}
	return true
}

// Fingerprint computes the content hash of whitespace-normalized text. Exact
// hashing is the dedup baseline; no fuzzy similarity is applied.
func (d *DedupStore) Fingerprint(text string) string {
	return d.hasher.Hash([]byte(normalizeWhitespace(text)))
}

// Accept atomically admits a record for storage. It returns the content
// fingerprint and, on rejection, the reason: duplicate-content when the
// fingerprint was stored before (this run or a loaded checkpoint), or
// duplicate-url when the canonical URL was already stored. Two workers racing
// the same canonical URL cannot both succeed.
func (d *DedupStore) Accept(canonical, text string) (hash string, reason string) {
	hash = d.Fingerprint(text)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.hashes[hash]; dup {
		return hash, ReasonDuplicateContent
	}
	if _, dup := d.stored[canonical]; dup {
		return hash, ReasonDuplicateURL
	}
	d.hashes[hash] = struct{}{}
	d.stored[canonical] = hash
	d.seen[canonical] = struct{}{}
	return hash, ""
}

// LoadCheckpoint reads a newline-delimited list of canonical URLs and
// content hashes (tab separated; hash optional) from a prior run. Loaded
// hashes suppress re-storing unchanged content; loaded URLs suppress
// re-storing changed content at an already-stored URL. The frontier's seen
// set is left untouched so resumed runs still traverse for link discovery.
func (d *DedupStore) LoadCheckpoint(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	d.mu.Lock()
	defer d.mu.Unlock()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		url, hash, _ := strings.Cut(line, "\t")
		if url == "" {
			continue
		}
		d.stored[url] = hash
		if hash != "" {
			d.hashes[hash] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	return nil
}

// SaveCheckpoint writes the stored URL/hash pairs, one per line, in sorted
// order for stable diffs.
func (d *DedupStore) SaveCheckpoint(w io.Writer) error {
	d.mu.Lock()
	urls := make([]string, 0, len(d.stored))
	for url := range d.stored {
		urls = append(urls, url)
	}
	pairs := make(map[string]string, len(d.stored))
	for url, hash := range d.stored {
		pairs[url] = hash
	}
	d.mu.Unlock()

	sort.Strings(urls)
	bw := bufio.NewWriter(w)
	for _, url := range urls {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", url, pairs[url]); err != nil {
			return fmt.Errorf("write checkpoint line: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	return nil
}

// StoredCount returns the number of stored canonical URLs.
func (d *DedupStore) StoredCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stored)
}
