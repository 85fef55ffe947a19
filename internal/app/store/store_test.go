package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/peppidesu/landmower/internal/app/keygen"
	"github.com/peppidesu/landmower/internal/app/model"
	"github.com/peppidesu/landmower/internal/app/repository"
)

type mockRepository struct {
	mu          sync.Mutex
	createCalls int
	usageCalls  int
	usageSeen   [][]repository.UsageUpdate

	createFn      func(ctx context.Context, link *model.Link) error
	deleteFn      func(ctx context.Context, key string) error
	updateUsageFn func(ctx context.Context, updates []repository.UsageUpdate) error
	loadAllFn     func(ctx context.Context) ([]model.Link, error)
}

func (m *mockRepository) Create(ctx context.Context, link *model.Link) error {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

func (m *mockRepository) UpdateUsage(ctx context.Context, updates []repository.UsageUpdate) error {
	m.mu.Lock()
	m.usageCalls++
	m.usageSeen = append(m.usageSeen, updates)
	m.mu.Unlock()
	if m.updateUsageFn != nil {
		return m.updateUsageFn(ctx, updates)
	}
	return nil
}

func (m *mockRepository) LoadAll(ctx context.Context) ([]model.Link, error) {
	if m.loadAllFn != nil {
		return m.loadAllFn(ctx)
	}
	return nil, nil
}

func (m *mockRepository) Close() error { return nil }

type stubGenerator struct {
	mu   sync.Mutex
	keys []string
}

func (g *stubGenerator) Generate(length int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.keys) == 0 {
		return "", errors.New("stub generator drained")
	}
	key := g.keys[0]
	g.keys = g.keys[1:]
	return key, nil
}

func newTestStore(t *testing.T, cfg Config, repo repository.LinkRepository, gen keygen.Generator) *Store {
	t.Helper()
	if repo == nil {
		repo = repository.NewMemoryRepository()
	}
	s := New(cfg, repo, gen, nil)
	if err := s.Recover(context.Background()); err != nil {
		t.Fatalf("Recover error: %v", err)
	}
	return s
}

func fieldErrs(t *testing.T, err error) *FieldErrors {
	t.Helper()
	var fe *FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FieldErrors, got %v", err)
	}
	return fe
}

func TestStore_AddGeneratedKey(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)

	link, err := s.Add(context.Background(), "", "https://example.com")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if len(link.Key) != DefaultKeyLength {
		t.Fatalf("generated key %q has length %d, want %d", link.Key, len(link.Key), DefaultKeyLength)
	}
	for _, c := range link.Key {
		if !strings.ContainsRune(keygen.Alphabet, c) {
			t.Fatalf("generated key %q contains %q outside the alphabet", link.Key, c)
		}
	}
	if link.Used != 0 {
		t.Fatalf("fresh link has used = %d, want 0", link.Used)
	}
	if !link.LastUsed.Equal(link.Created) {
		t.Fatalf("fresh link has last_used %v != created %v", link.LastUsed, link.Created)
	}
}

func TestStore_AddCustomKey(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)

	link, err := s.Add(context.Background(), "my-key", "https://example.com")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if link.Key != "my-key" || link.URL != "https://example.com" {
		t.Fatalf("Add returned %+v", link)
	}

	got, err := s.Get("my-key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if *got != *link {
		t.Fatalf("Get = %+v, Add returned %+v", got, link)
	}
}

func TestStore_GetIsPure(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)

	if _, err := s.Add(context.Background(), "my-key", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	first, err := s.Get("my-key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	second, err := s.Get("my-key")
	if err != nil {
		t.Fatalf("second Get error: %v", err)
	}
	if *first != *second {
		t.Fatalf("consecutive Gets disagree: %+v vs %+v", first, second)
	}
	if second.Used != 0 {
		t.Fatalf("Get bumped the usage counter to %d", second.Used)
	}

	// snapshots are copies, not references into the index
	first.URL = "https://tampered.example.com"
	got, err := s.Get("my-key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.URL != "https://example.com" {
		t.Fatalf("mutating a snapshot leaked into the store: %q", got.URL)
	}
}

func TestStore_AddDuplicateKey(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)
	ctx := context.Background()

	if _, err := s.Add(ctx, "my-key", "https://example.com"); err != nil {
		t.Fatalf("first Add error: %v", err)
	}
	_, err := s.Add(ctx, "my-key", "https://example.org")
	fe := fieldErrs(t, err)
	if fe.Key != "Key already in use" {
		t.Fatalf("duplicate Add key message = %q", fe.Key)
	}
	if fe.Link != "" {
		t.Fatalf("duplicate Add blamed the link: %q", fe.Link)
	}
}

func TestStore_AddFieldAttribution(t *testing.T) {
	repo := &mockRepository{}
	s := newTestStore(t, Config{Blacklist: []string{"admin"}}, repo, nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		key      string
		url      string
		wantKey  string
		wantLink string
	}{
		{"empty link", "", "", "", "Link cannot be empty"},
		{"malformed link", "", "not a url", "", "Invalid URL"},
		{"short key", "ab", "https://example.com", "Key cannot be less than 3 characters", ""},
		{"bad characters", "My_Key", "https://example.com", "Key can only contain a-z, 0-9 or -", ""},
		{"blacklisted", "admin", "https://example.com", "Key 'admin' is disallowed", ""},
		{"both fields", "ab", "not a url", "Key cannot be less than 3 characters", "Invalid URL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Add(ctx, tc.key, tc.url)
			fe := fieldErrs(t, err)
			if fe.Key != tc.wantKey || fe.Link != tc.wantLink {
				t.Fatalf("Add(%q, %q) = {key: %q, link: %q}, want {key: %q, link: %q}",
					tc.key, tc.url, fe.Key, fe.Link, tc.wantKey, tc.wantLink)
			}
		})
	}

	if repo.createCalls != 0 {
		t.Fatalf("rejected adds still reached the repository %d times", repo.createCalls)
	}
	if s.Len() != 0 {
		t.Fatalf("rejected adds left %d entries behind", s.Len())
	}
}

func TestStore_ValidateAddMatchesAdd(t *testing.T) {
	ctx := context.Background()
	inputs := []struct{ key, url string }{
		{"", "https://example.com"},
		{"good-key", "https://example.com"},
		{"ab", "https://example.com"},
		{"", "not a url"},
		{"admin", "https://example.com"},
	}

	for _, in := range inputs {
		verdictStore := newTestStore(t, Config{Blacklist: []string{"admin"}}, nil, nil)
		addStore := newTestStore(t, Config{Blacklist: []string{"admin"}}, nil, nil)

		verdict := verdictStore.ValidateAdd(in.key, in.url)
		_, addErr := addStore.Add(ctx, in.key, in.url)

		if (verdict == nil) != (addErr == nil) {
			t.Fatalf("ValidateAdd(%q, %q) = %v but Add = %v", in.key, in.url, verdict, addErr)
		}
		if verdict != nil {
			vf, af := fieldErrs(t, verdict), fieldErrs(t, addErr)
			if *vf != *af {
				t.Fatalf("ValidateAdd(%q, %q) = %+v but Add = %+v", in.key, in.url, vf, af)
			}
		}
		if verdictStore.Len() != 0 {
			t.Fatalf("ValidateAdd(%q, %q) created state", in.key, in.url)
		}
	}
}

func TestStore_ValidateAddSeesTakenKeys(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)
	ctx := context.Background()

	if err := s.ValidateAdd("my-key", "https://example.com"); err != nil {
		t.Fatalf("ValidateAdd on a free key: %v", err)
	}
	if _, err := s.Add(ctx, "my-key", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	fe := fieldErrs(t, s.ValidateAdd("my-key", "https://example.com"))
	if fe.Key != "Key already in use" {
		t.Fatalf("ValidateAdd key message = %q", fe.Key)
	}
}

func TestStore_AddPersistFailure(t *testing.T) {
	repo := &mockRepository{
		createFn: func(ctx context.Context, link *model.Link) error {
			return errors.New("disk on fire")
		},
	}
	s := newTestStore(t, Config{}, repo, nil)

	_, err := s.Add(context.Background(), "my-key", "https://example.com")
	if err == nil {
		t.Fatal("Add succeeded although persistence failed")
	}
	var fe *FieldErrors
	if errors.As(err, &fe) {
		t.Fatalf("persistence failure surfaced as validation: %v", fe)
	}
	if _, err := s.Get("my-key"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("failed add left the key visible: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("failed add left %d entries behind", s.Len())
	}
}

func TestStore_GenerateSkipsCollisions(t *testing.T) {
	gen := &stubGenerator{keys: []string{"takenkk", "freshkk"}}
	s := newTestStore(t, Config{}, nil, gen)
	ctx := context.Background()

	if _, err := s.Add(ctx, "takenkk", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	link, err := s.Add(ctx, "", "https://example.org")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if link.Key != "freshkk" {
		t.Fatalf("generator reused a taken key, got %q", link.Key)
	}
}

func TestStore_GenerateSkipsBlacklist(t *testing.T) {
	gen := &stubGenerator{keys: []string{"badword", "goodkey"}}
	s := newTestStore(t, Config{Blacklist: []string{"badword"}}, nil, gen)

	link, err := s.Add(context.Background(), "", "https://example.com")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if link.Key != "goodkey" {
		t.Fatalf("generator issued a blacklisted key, got %q", link.Key)
	}
}

func TestStore_GenerateExhausted(t *testing.T) {
	gen := &stubGenerator{keys: []string{"stuckkk", "stuckkk", "stuckkk"}}
	s := newTestStore(t, Config{MaxAttempts: 3}, nil, gen)
	ctx := context.Background()

	if _, err := s.Add(ctx, "stuckkk", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	_, err := s.Add(ctx, "", "https://example.org")
	if !errors.Is(err, ErrKeyspaceExhausted) {
		t.Fatalf("expected ErrKeyspaceExhausted, got %v", err)
	}
}

func TestStore_GeneratedKeysNotReissued(t *testing.T) {
	gen := &stubGenerator{keys: []string{"gone123", "gone123", "newkey1"}}
	s := newTestStore(t, Config{}, nil, gen)
	ctx := context.Background()

	first, err := s.Add(ctx, "", "https://example.com")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if first.Key != "gone123" {
		t.Fatalf("stub delivered %q", first.Key)
	}
	if err := s.Delete(ctx, "gone123"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	second, err := s.Add(ctx, "", "https://example.org")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if second.Key != "newkey1" {
		t.Fatalf("deleted key was issued again, got %q", second.Key)
	}
}

func TestStore_CustomKeyFreeAfterDelete(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)
	ctx := context.Background()

	if _, err := s.Add(ctx, "my-key", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := s.Delete(ctx, "my-key"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	link, err := s.Add(ctx, "my-key", "https://example.org")
	if err != nil {
		t.Fatalf("re-adding a deleted custom key: %v", err)
	}
	if link.URL != "https://example.org" {
		t.Fatalf("re-added key points at %q", link.URL)
	}
}

func TestStore_ResolveBumpsCounters(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)
	ctx := context.Background()

	link, err := s.Add(ctx, "my-key", "https://example.com")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	for i := 0; i < 2; i++ {
		target, err := s.Resolve("my-key")
		if err != nil {
			t.Fatalf("Resolve error: %v", err)
		}
		if target != "https://example.com" {
			t.Fatalf("Resolve = %q", target)
		}
	}

	got, err := s.Get("my-key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Used != 2 {
		t.Fatalf("used = %d after two resolves, want 2", got.Used)
	}
	if got.LastUsed.Before(link.Created) {
		t.Fatalf("last_used %v went backwards from %v", got.LastUsed, link.Created)
	}
}

func TestStore_ResolveMissing(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)
	if _, err := s.Resolve("nothing"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestStore_ConcurrentResolves(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)
	ctx := context.Background()

	if _, err := s.Add(ctx, "my-key", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	const workers, perWorker = 8, 250
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := s.Resolve("my-key"); err != nil {
					t.Errorf("Resolve error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := s.Get("my-key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Used != workers*perWorker {
		t.Fatalf("used = %d after %d resolves", got.Used, workers*perWorker)
	}
}

func TestStore_ConcurrentSameKeyAdds(t *testing.T) {
	repo := &mockRepository{}
	s := newTestStore(t, Config{}, repo, nil)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(ctx, "contested", "https://example.com")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		if fe := fieldErrs(t, err); fe.Key != "Key already in use" {
			t.Fatalf("loser saw %q", fe.Key)
		}
		losses++
	}
	if wins != 1 || losses != workers-1 {
		t.Fatalf("wins = %d, losses = %d, want 1 and %d", wins, losses, workers-1)
	}
	if repo.createCalls != 1 {
		t.Fatalf("repository saw %d creates, want 1", repo.createCalls)
	}
}

func TestStore_DeleteVisibility(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)
	ctx := context.Background()

	if _, err := s.Add(ctx, "my-key", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := s.Delete(ctx, "my-key"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	if _, err := s.Get("my-key"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if _, err := s.Resolve("my-key"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("Resolve after delete: %v", err)
	}
	if got := s.FindByURL("https://example.com"); len(got) != 0 {
		t.Fatalf("FindByURL after delete returned %d entries", len(got))
	}
	if err := s.Delete(ctx, "my-key"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestStore_FindByURL(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)
	ctx := context.Background()

	for _, key := range []string{"first", "second"} {
		if _, err := s.Add(ctx, key, "https://example.com"); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	if _, err := s.Add(ctx, "other", "https://example.org"); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	got := s.FindByURL("https://example.com")
	if len(got) != 2 || got[0].Key != "first" || got[1].Key != "second" {
		t.Fatalf("FindByURL = %+v", got)
	}

	if err := s.Delete(ctx, "first"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	got = s.FindByURL("https://example.com")
	if len(got) != 1 || got[0].Key != "second" {
		t.Fatalf("FindByURL after delete = %+v", got)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t, Config{}, nil, nil)
	ctx := context.Background()

	for _, key := range []string{"one", "two", "three"} {
		if _, err := s.Add(ctx, key, "https://example.com/"+key); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}

	links := s.List()
	if len(links) != 3 {
		t.Fatalf("List returned %d links", len(links))
	}
	for i := 1; i < len(links); i++ {
		if links[i-1].Created.Before(links[i].Created) {
			t.Fatalf("List not ordered newest first: %v before %v", links[i-1].Created, links[i].Created)
		}
	}
}

func TestStore_SyncUsagePersistsCounters(t *testing.T) {
	repo := repository.NewMemoryRepository()
	s := newTestStore(t, Config{}, repo, nil)
	ctx := context.Background()

	if _, err := s.Add(ctx, "my-key", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Resolve("my-key"); err != nil {
			t.Fatalf("Resolve error: %v", err)
		}
	}
	if err := s.SyncUsage(ctx, []string{"my-key", "never-existed"}); err != nil {
		t.Fatalf("SyncUsage error: %v", err)
	}

	restarted := newTestStore(t, Config{}, repo, nil)
	got, err := restarted.Get("my-key")
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if got.Used != 3 {
		t.Fatalf("used = %d after restart, want 3", got.Used)
	}
	if _, err := restarted.Resolve("my-key"); err != nil {
		t.Fatalf("Resolve after restart: %v", err)
	}
	if got, _ := restarted.Get("my-key"); got.Used != 4 {
		t.Fatalf("used = %d after restart and resolve, want 4", got.Used)
	}
}

func TestStore_SyncAllFlushesOnlyDirty(t *testing.T) {
	repo := &mockRepository{}
	s := newTestStore(t, Config{}, repo, nil)
	ctx := context.Background()

	if _, err := s.Add(ctx, "hot", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, err := s.Add(ctx, "cold", "https://example.org"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, err := s.Resolve("hot"); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	if err := s.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll error: %v", err)
	}
	if repo.usageCalls != 1 || len(repo.usageSeen[0]) != 1 || repo.usageSeen[0][0].Key != "hot" {
		t.Fatalf("first SyncAll persisted %+v", repo.usageSeen)
	}

	if err := s.SyncAll(ctx); err != nil {
		t.Fatalf("second SyncAll error: %v", err)
	}
	if repo.usageCalls != 1 {
		t.Fatalf("clean SyncAll still hit the repository (%d calls)", repo.usageCalls)
	}
}

func TestStore_JournalRestartRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.jsonl")
	ctx := context.Background()

	repo, err := repository.NewJournalRepository(path, nil)
	if err != nil {
		t.Fatalf("NewJournalRepository error: %v", err)
	}
	s := newTestStore(t, Config{}, repo, nil)
	added, err := s.Add(ctx, "my-key", "https://example.com")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	repo2, err := repository.NewJournalRepository(path, nil)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer repo2.Close()
	restarted := newTestStore(t, Config{}, repo2, nil)

	got, err := restarted.Get("my-key")
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if got.Key != added.Key || got.URL != added.URL || !got.Created.Equal(added.Created) {
		t.Fatalf("restarted entry %+v, want %+v", got, added)
	}
	if got.Used != 0 {
		t.Fatalf("used = %d after restart, want 0", got.Used)
	}

	if _, err := restarted.Resolve("my-key"); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if err := restarted.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll error: %v", err)
	}
	if err := repo2.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	repo3, err := repository.NewJournalRepository(path, nil)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer repo3.Close()
	final := newTestStore(t, Config{}, repo3, nil)
	if got, _ := final.Get("my-key"); got == nil || got.Used != 1 {
		t.Fatalf("after second restart got %+v, want used 1", got)
	}
}

func TestStore_RecoverFailureSurfaces(t *testing.T) {
	repo := &mockRepository{
		loadAllFn: func(ctx context.Context) ([]model.Link, error) {
			return nil, errors.New("medium gone")
		},
	}
	s := New(Config{}, repo, nil, nil)
	if err := s.Recover(context.Background()); err == nil {
		t.Fatal("Recover swallowed the load failure")
	}
}
