// Package store implements the link index: the single synchronization point
// between lookups, mutations and durable storage. All reads are served from
// memory; every mutation reaches the repository before it becomes visible.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/peppidesu/landmower/internal/app/keygen"
	"github.com/peppidesu/landmower/internal/app/model"
	"github.com/peppidesu/landmower/internal/app/repository"
	"github.com/peppidesu/landmower/internal/app/validate"
	"go.uber.org/zap"
)

const (
	DefaultKeyLength   = 7
	DefaultMaxAttempts = 5

	// issued-keys filter sizing; false positives only cost a retry
	bloomCapacity = 100_000
	bloomFPRate   = 0.001
)

// Config tunes key handling for a Store.
type Config struct {
	KeyLength   int
	MaxAttempts int
	Blacklist   []string
}

// record is the in-memory state of one link. The counters are atomics so
// resolution never takes the writer lock; syncedUsed remembers the value most
// recently handed to the repository.
type record struct {
	key        string
	url        string
	created    time.Time
	used       atomic.Int64
	lastUsed   atomic.Int64 // unix nanoseconds
	syncedUsed atomic.Int64
}

func (r *record) snapshot() model.Link {
	return model.Link{
		Key:      r.key,
		URL:      r.url,
		Created:  r.created,
		LastUsed: time.Unix(0, r.lastUsed.Load()).UTC(),
		Used:     r.used.Load(),
	}
}

// touch bumps the usage counter and raises lastUsed to now if it is ahead.
func (r *record) touch(now time.Time) {
	r.used.Add(1)
	ts := now.UnixNano()
	for {
		cur := r.lastUsed.Load()
		if cur >= ts || r.lastUsed.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// Store owns the link index. Construct with New, then call Recover before
// serving lookups so the index reflects persisted state.
type Store struct {
	mu     sync.RWMutex
	links  map[string]*record
	byURL  map[string][]string
	issued *bloom.BloomFilter

	// serializes counter persistence so an older snapshot can never
	// overwrite a newer one in the repository
	syncMu sync.Mutex

	repo repository.LinkRepository
	gen  keygen.Generator
	log  *zap.Logger

	keyLength   int
	maxAttempts int
	blacklist   map[string]struct{}
}

// New builds a Store over the given repository.
func New(cfg Config, repo repository.LinkRepository, gen keygen.Generator, log *zap.Logger) *Store {
	if gen == nil {
		gen = keygen.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	keyLength := cfg.KeyLength
	if keyLength <= 0 {
		keyLength = DefaultKeyLength
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	blacklist := make(map[string]struct{}, len(cfg.Blacklist))
	for _, key := range cfg.Blacklist {
		blacklist[key] = struct{}{}
	}

	return &Store{
		links:       make(map[string]*record),
		byURL:       make(map[string][]string),
		issued:      bloom.NewWithEstimates(bloomCapacity, bloomFPRate),
		repo:        repo,
		gen:         gen,
		log:         log,
		keyLength:   keyLength,
		maxAttempts: maxAttempts,
		blacklist:   blacklist,
	}
}

// Recover loads every persisted link into the index. It must complete before
// the store serves traffic; a failure leaves the store unusable.
func (s *Store) Recover(ctx context.Context) error {
	links, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("store: recover: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.links = make(map[string]*record, len(links))
	s.byURL = make(map[string][]string, len(links))
	for i := range links {
		link := &links[i]
		rec := &record{key: link.Key, url: link.URL, created: link.Created}
		rec.used.Store(link.Used)
		rec.syncedUsed.Store(link.Used)
		lastUsed := link.LastUsed
		if lastUsed.IsZero() {
			lastUsed = link.Created
		}
		rec.lastUsed.Store(lastUsed.UnixNano())

		s.links[link.Key] = rec
		s.byURL[link.URL] = append(s.byURL[link.URL], link.Key)
		s.issued.AddString(link.Key)
	}

	s.log.Info("link index recovered", zap.Int("links", len(s.links)))
	return nil
}

// Add validates, persists and indexes a new link. An empty key requests a
// generated one. Validation problems come back as *FieldErrors; anything
// else is operational and leaves no state behind.
func (s *Store) Add(ctx context.Context, key, url string) (*model.Link, error) {
	fieldErrs := &FieldErrors{Link: checkURL(url)}
	if key != "" {
		fieldErrs.Key = s.checkCustomKey(key)
	}
	if fieldErrs.any() {
		return nil, fieldErrs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if _, taken := s.links[key]; taken {
			return nil, &FieldErrors{Key: "Key already in use"}
		}
	} else {
		generated, err := s.generateKey()
		if err != nil {
			return nil, err
		}
		key = generated
	}

	now := time.Now().UTC()
	link := &model.Link{Key: key, URL: url, Created: now, LastUsed: now}
	if err := s.repo.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("store: persist link: %w", err)
	}

	rec := &record{key: key, url: url, created: now}
	rec.lastUsed.Store(now.UnixNano())
	s.links[key] = rec
	s.byURL[url] = append(s.byURL[url], key)
	s.issued.AddString(key)

	snapshot := rec.snapshot()
	return &snapshot, nil
}

// ValidateAdd runs exactly the checks Add runs, without touching anything.
// A nil result means an immediate Add with the same arguments would have
// been accepted, racing writers aside.
func (s *Store) ValidateAdd(key, url string) error {
	fieldErrs := &FieldErrors{Link: checkURL(url)}
	if key != "" {
		fieldErrs.Key = s.checkCustomKey(key)
		if fieldErrs.Key == "" {
			s.mu.RLock()
			_, taken := s.links[key]
			s.mu.RUnlock()
			if taken {
				fieldErrs.Key = "Key already in use"
			}
		}
	}
	if fieldErrs.any() {
		return fieldErrs
	}
	return nil
}

// Get returns a copy of the entry for key.
func (s *Store) Get(key string) (*model.Link, error) {
	s.mu.RLock()
	rec, ok := s.links[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrLinkNotFound
	}
	snapshot := rec.snapshot()
	return &snapshot, nil
}

// List returns a copy of every entry, newest first.
func (s *Store) List() []model.Link {
	s.mu.RLock()
	links := make([]model.Link, 0, len(s.links))
	for _, rec := range s.links {
		links = append(links, rec.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(links, func(i, j int) bool {
		if links[i].Created.Equal(links[j].Created) {
			return links[i].Key < links[j].Key
		}
		return links[i].Created.After(links[j].Created)
	})
	return links
}

// FindByURL returns every entry pointing at url, oldest first.
func (s *Store) FindByURL(url string) []model.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byURL[url]
	links := make([]model.Link, 0, len(keys))
	for _, key := range keys {
		if rec, ok := s.links[key]; ok {
			links = append(links, rec.snapshot())
		}
	}
	return links
}

// Len reports the number of live links.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

// Delete removes the entry for key from the repository and the index.
// Readers observe either the full entry or its absence, never a half state.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.links[key]
	if !ok {
		return ErrLinkNotFound
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("store: delete link: %w", err)
	}

	delete(s.links, key)
	s.byURL[rec.url] = removeKey(s.byURL[rec.url], key)
	if len(s.byURL[rec.url]) == 0 {
		delete(s.byURL, rec.url)
	}
	return nil
}

// Resolve returns the target URL for key and bumps its usage counters. The
// bump is immediate and exact; durability follows through SyncUsage.
func (s *Store) Resolve(key string) (string, error) {
	s.mu.RLock()
	rec, ok := s.links[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrLinkNotFound
	}
	rec.touch(time.Now().UTC())
	return rec.url, nil
}

// SyncUsage persists the current counters for the given keys. Unknown keys
// are skipped, and values are read at call time, so replayed or duplicated
// requests settle on the same state.
func (s *Store) SyncUsage(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	recs := make([]*record, 0, len(keys))
	updates := make([]repository.UsageUpdate, 0, len(keys))
	s.mu.RLock()
	for _, key := range keys {
		rec, ok := s.links[key]
		if !ok {
			continue
		}
		recs = append(recs, rec)
		updates = append(updates, repository.UsageUpdate{
			Key:      key,
			Used:     rec.used.Load(),
			LastUsed: time.Unix(0, rec.lastUsed.Load()).UTC(),
		})
	}
	s.mu.RUnlock()

	if len(updates) == 0 {
		return nil
	}
	if err := s.repo.UpdateUsage(ctx, updates); err != nil {
		return fmt.Errorf("store: persist usage: %w", err)
	}
	for i, rec := range recs {
		markSynced(&rec.syncedUsed, updates[i].Used)
	}
	return nil
}

// SyncAll persists counters for every link whose in-memory usage is ahead of
// the repository.
func (s *Store) SyncAll(ctx context.Context) error {
	s.mu.RLock()
	dirty := make([]string, 0, len(s.links))
	for key, rec := range s.links {
		if rec.used.Load() != rec.syncedUsed.Load() {
			dirty = append(dirty, key)
		}
	}
	s.mu.RUnlock()

	if len(dirty) == 0 {
		return nil
	}
	return s.SyncUsage(ctx, dirty)
}

// generateKey draws candidates until one is neither blacklisted nor ever
// issued before. Callers hold the write lock.
func (s *Store) generateKey() (string, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		key, err := s.gen.Generate(s.keyLength)
		if err != nil {
			return "", fmt.Errorf("store: generate key: %w", err)
		}
		if _, banned := s.blacklist[key]; banned {
			continue
		}
		if s.issued.TestString(key) {
			continue
		}
		return key, nil
	}
	return "", ErrKeyspaceExhausted
}

func (s *Store) checkCustomKey(key string) string {
	switch err := validate.Key(key); {
	case err == nil:
	case errors.Is(err, validate.ErrKeyTooShort):
		return fmt.Sprintf("Key cannot be less than %d characters", validate.MinKeyLength)
	case errors.Is(err, validate.ErrKeyTooLong):
		return fmt.Sprintf("Key cannot be more than %d characters", validate.MaxKeyLength)
	default:
		return "Key can only contain a-z, 0-9 or -"
	}
	if _, banned := s.blacklist[key]; banned {
		return fmt.Sprintf("Key '%s' is disallowed", key)
	}
	return ""
}

func checkURL(url string) string {
	switch err := validate.URL(url); {
	case err == nil:
		return ""
	case errors.Is(err, validate.ErrURLEmpty):
		return "Link cannot be empty"
	default:
		return "Invalid URL"
	}
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

func markSynced(synced *atomic.Int64, value int64) {
	for {
		cur := synced.Load()
		if cur >= value || synced.CompareAndSwap(cur, value) {
			return
		}
	}
}
