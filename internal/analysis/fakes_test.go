package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]Record
	created   []NewRecord
	updates   []Update
	createErr error
	updateErr error
	seq       int
	// calls records the order of store and provider interactions.
	calls *[]string
}

func newFakeStore(calls *[]string) *fakeStore {
	return &fakeStore{records: make(map[string]Record), calls: calls}
}

func (f *fakeStore) Create(_ context.Context, rec NewRecord) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.note("create")
	if f.createErr != nil {
		return Record{}, f.createErr
	}
	f.seq++
	r := Record{
		ID:        fmt.Sprintf("rec-%d", f.seq),
		OwnerID:   rec.OwnerID,
		URL:       rec.URL,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
	}
	f.created = append(f.created, rec)
	f.records[r.ID] = r
	return r, nil
}

func (f *fakeStore) Update(_ context.Context, id string, upd Update) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.note("update:" + string(upd.Status))
	if f.updateErr != nil {
		return Record{}, f.updateErr
	}
	r, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if r.Status.Terminal() {
		return Record{}, ErrTerminal
	}
	r.Status = upd.Status
	r.CompletedAt = upd.CompletedAt
	r.ErrorMessage = upd.ErrorMessage
	if upd.Sections != nil {
		r.Sections = *upd.Sections
	}
	f.updates = append(f.updates, upd)
	f.records[id] = r
	return r, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListByOwner(context.Context, string, int, int) ([]Record, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) note(call string) {
	if f.calls != nil {
		*f.calls = append(*f.calls, call)
	}
}

type fakeProber struct {
	code  int
	err   error
	urls  []string
	calls *[]string
}

func (f *fakeProber) Probe(_ context.Context, url string) (int, error) {
	f.urls = append(f.urls, url)
	if f.calls != nil {
		*f.calls = append(*f.calls, "probe")
	}
	return f.code, f.err
}

type fakeCrawler struct {
	result       CrawlResult
	err          error
	instructions string
	called       int
	calls        *[]string
}

func (f *fakeCrawler) Crawl(_ context.Context, _ string, instructions string) (CrawlResult, error) {
	f.called++
	f.instructions = instructions
	if f.calls != nil {
		*f.calls = append(*f.calls, "crawl")
	}
	return f.result, f.err
}

type fakeSummarizer struct {
	text    string
	err     error
	prompts []string
	calls   *[]string
}

func (f *fakeSummarizer) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.calls != nil {
		*f.calls = append(*f.calls, "generate")
	}
	return f.text, f.err
}

type fakeBlobStore struct {
	objects map[string]string
	err     error
}

func (f *fakeBlobStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[path] = string(data)
	return "mem://" + path, nil
}

type fakePublisher struct {
	topics   []string
	payloads []any
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return "msg-1", f.err
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }
