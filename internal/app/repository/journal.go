package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/peppidesu/landmower/internal/app/model"
	"go.uber.org/zap"
)

const (
	opPut   = "put"
	opUsage = "usage"
	opDel   = "del"

	// compaction kicks in once the journal carries this many records beyond
	// twice the live set.
	compactSlack = 1024

	maxJournalLine = 1024 * 1024
)

var errJournalClosed = errors.New("journal is closed")

// journalEntry is one line in the journal file.
type journalEntry struct {
	Op       string     `json:"op"`
	Key      string     `json:"key"`
	URL      string     `json:"link,omitempty"`
	Created  *time.Time `json:"created,omitempty"`
	LastUsed *time.Time `json:"last_used,omitempty"`
	Used     int64      `json:"used,omitempty"`
}

// journalRepository persists links to an append-only file of JSON lines.
// Every mutation is flushed before it returns; replaying the file rebuilds
// the full state. Records obsoleted by deletes and usage updates are trimmed
// by rewriting the file once it grows well past the live set.
type journalRepository struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	log   *zap.Logger
	lines int
	live  int
	slack int
}

// NewJournalRepository opens (or creates) the journal at path. Call LoadAll
// before the first write so a torn record from an earlier crash is repaired
// rather than appended after.
func NewJournalRepository(path string, log *zap.Logger) (LinkRepository, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &journalRepository{
		path:  path,
		file:  file,
		log:   log,
		slack: compactSlack,
	}, nil
}

func (r *journalRepository) Create(ctx context.Context, link *model.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := link.Created
	lastUsed := link.LastUsed
	if err := r.append(journalEntry{
		Op:       opPut,
		Key:      link.Key,
		URL:      link.URL,
		Created:  &created,
		LastUsed: &lastUsed,
		Used:     link.Used,
	}); err != nil {
		return err
	}
	r.live++
	return r.maybeCompact()
}

func (r *journalRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.append(journalEntry{Op: opDel, Key: key}); err != nil {
		return err
	}
	if r.live > 0 {
		r.live--
	}
	return r.maybeCompact()
}

func (r *journalRepository) UpdateUsage(ctx context.Context, updates []UsageUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]journalEntry, 0, len(updates))
	for _, u := range updates {
		lastUsed := u.LastUsed
		entries = append(entries, journalEntry{
			Op:       opUsage,
			Key:      u.Key,
			LastUsed: &lastUsed,
			Used:     u.Used,
		})
	}
	if err := r.append(entries...); err != nil {
		return err
	}
	return r.maybeCompact()
}

// LoadAll replays the journal into the current link set. A torn final record
// left behind by a crash mid-append is dropped and truncated away; corruption
// anywhere else is fatal.
func (r *journalRepository) LoadAll(ctx context.Context) ([]model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: open for replay: %w", err)
	}
	defer file.Close()

	links := make(map[string]model.Link)
	var (
		lines       int
		validOffset int64
		tornErr     error
	)

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	for sc.Scan() {
		if tornErr != nil {
			// a bad record followed by more data is corruption, not a crash
			return nil, tornErr
		}
		line := sc.Bytes()
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			tornErr = fmt.Errorf("journal: corrupt record at line %d: %w", lines+1, err)
			continue
		}
		if err := applyEntry(links, entry); err != nil {
			return nil, fmt.Errorf("journal: line %d: %w", lines+1, err)
		}
		lines++
		validOffset += int64(len(line)) + 1
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: read: %w", err)
	}

	if tornErr != nil {
		if r.file == nil {
			return nil, errJournalClosed
		}
		if err := r.file.Truncate(validOffset); err != nil {
			return nil, fmt.Errorf("journal: truncate torn record: %w", err)
		}
		r.log.Warn("dropped torn journal record",
			zap.String("path", r.path),
			zap.Int64("offset", validOffset),
		)
	} else if lines > 0 {
		if info, err := file.Stat(); err == nil && info.Size() == validOffset-1 {
			// the final newline was lost in a crash; restore the separator
			if _, err := r.file.Write([]byte("\n")); err != nil {
				return nil, fmt.Errorf("journal: restore separator: %w", err)
			}
		}
	}

	result := make([]model.Link, 0, len(links))
	for _, link := range links {
		result = append(result, link)
	}
	r.lines = lines
	r.live = len(links)
	return result, nil
}

func (r *journalRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Sync()
	if closeErr := r.file.Close(); err == nil {
		err = closeErr
	}
	r.file = nil
	return err
}

// append writes the entries as one flushed write. Callers hold r.mu.
func (r *journalRepository) append(entries ...journalEntry) error {
	if r.file == nil {
		return errJournalClosed
	}

	var buf bytes.Buffer
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("journal: encode record: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if _, err := r.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("journal: fsync: %w", err)
	}
	r.lines += len(entries)
	return nil
}

func (r *journalRepository) maybeCompact() error {
	if r.lines <= r.live*2+r.slack {
		return nil
	}
	return r.compact()
}

// compact rewrites the journal as one put per live link, swapping the new
// file in atomically. Callers hold r.mu.
func (r *journalRepository) compact() error {
	links, err := readJournalState(r.path)
	if err != nil {
		return fmt.Errorf("journal: compact replay: %w", err)
	}

	tmp := r.path + ".compact"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: create compact file: %w", err)
	}

	w := bufio.NewWriter(file)
	for _, link := range links {
		created := link.Created
		lastUsed := link.LastUsed
		data, err := json.Marshal(journalEntry{
			Op:       opPut,
			Key:      link.Key,
			URL:      link.URL,
			Created:  &created,
			LastUsed: &lastUsed,
			Used:     link.Used,
		})
		if err != nil {
			file.Close()
			return fmt.Errorf("journal: encode compact record: %w", err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("journal: write compact file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("journal: fsync compact file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("journal: close compact file: %w", err)
	}

	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("journal: swap compact file: %w", err)
	}

	old := r.file
	handle, err := os.OpenFile(r.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		r.file = nil
		return fmt.Errorf("journal: reopen after compaction: %w", err)
	}
	r.file = handle
	if old != nil {
		old.Close()
	}

	dropped := r.lines - len(links)
	r.lines = len(links)
	r.live = len(links)
	r.log.Info("journal compacted",
		zap.String("path", r.path),
		zap.Int("live", r.live),
		zap.Int("dropped_records", dropped),
	)
	return nil
}

// readJournalState strictly replays the journal at path into its live links.
func readJournalState(path string) (map[string]model.Link, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	links := make(map[string]model.Link)
	line := 0
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	for sc.Scan() {
		line++
		var entry journalEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("corrupt record at line %d: %w", line, err)
		}
		if err := applyEntry(links, entry); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return links, nil
}

func applyEntry(links map[string]model.Link, entry journalEntry) error {
	switch entry.Op {
	case opPut:
		link := model.Link{Key: entry.Key, URL: entry.URL, Used: entry.Used}
		if entry.Created != nil {
			link.Created = *entry.Created
		}
		if entry.LastUsed != nil {
			link.LastUsed = *entry.LastUsed
		}
		links[entry.Key] = link
	case opUsage:
		link, ok := links[entry.Key]
		if !ok {
			// usage syncs can trail a delete; the counters died with the link
			return nil
		}
		link.Used = entry.Used
		if entry.LastUsed != nil {
			link.LastUsed = *entry.LastUsed
		}
		links[entry.Key] = link
	case opDel:
		delete(links, entry.Key)
	default:
		return fmt.Errorf("unknown op %q", entry.Op)
	}
	return nil
}
