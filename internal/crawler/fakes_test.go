package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

type fakeElement struct {
	text     string
	attrs    map[string]string
	children map[string][]Element
}

func (e fakeElement) Text() string { return e.text }

func (e fakeElement) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e fakeElement) Locate(selector string) []Element {
	return e.children[selector]
}

func link(href, text string) fakeElement {
	return fakeElement{text: text, attrs: map[string]string{"href": href}}
}

type fakePage struct {
	elements map[string][]Element
	links    []Link
}

// fakeSession serves canned pages keyed by URL.
type fakeSession struct {
	mu         sync.Mutex
	pages      map[string]fakePage
	fail       map[string]error
	evaluate   bool
	current    string
	visited    []string
	closed     bool
	onNavigate func(url string)
}

func newFakeSession() *fakeSession {
	return &fakeSession{pages: map[string]fakePage{}, fail: map[string]error{}}
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.visited = append(s.visited, url)
	hook := s.onNavigate
	s.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	if err, ok := s.fail[url]; ok {
		return err
	}
	if _, ok := s.pages[url]; !ok {
		return fmt.Errorf("404 %s", url)
	}
	s.current = url
	return nil
}

func (s *fakeSession) Locate(_ context.Context, selector string) ([]Element, error) {
	return s.pages[s.current].elements[selector], nil
}

func (s *fakeSession) Evaluate(_ context.Context, _ string, out any) error {
	if !s.evaluate {
		return ErrEvaluateUnsupported
	}
	raw, err := json.Marshal(s.pages[s.current].links)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

type recordingObserver struct {
	mu       sync.Mutex
	pages    []int
	officers int
	failures int
}

func (o *recordingObserver) PageDone(_ SearchUnit, page, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pages = append(o.pages, page)
}

func (o *recordingObserver) OfficerDone(_ SearchUnit, _ string, _ int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.officers++
	if err != nil {
		o.failures++
	}
}

type stubPacer struct {
	waits  int
	pauses int
	err    error
}

func (p *stubPacer) Wait(context.Context, string) error {
	p.waits++
	return p.err
}

func (p *stubPacer) Pause(context.Context) {
	p.pauses++
}

// memStore is a minimal CheckpointStore for partition tests.
type memStore struct {
	data    map[SearchUnit][]OfficerRecord
	corrupt map[SearchUnit]bool
	broken  error
}

func (m *memStore) Exists(_ context.Context, unit SearchUnit) (bool, error) {
	if m.broken != nil {
		return false, m.broken
	}
	if m.corrupt[unit] {
		return false, &CorruptCheckpointError{Unit: unit, Err: errors.New("truncated")}
	}
	_, ok := m.data[unit]
	return ok, nil
}

func (m *memStore) Load(_ context.Context, unit SearchUnit) ([]OfficerRecord, error) {
	recs, ok := m.data[unit]
	if !ok {
		return nil, ErrCheckpointNotFound
	}
	return recs, nil
}

func (m *memStore) Save(_ context.Context, unit SearchUnit, records []OfficerRecord) error {
	if _, ok := m.data[unit]; ok {
		return ErrCheckpointExists
	}
	m.data[unit] = records
	return nil
}

func (m *memStore) Replace(_ context.Context, unit SearchUnit, records []OfficerRecord) error {
	m.data[unit] = records
	return nil
}

func (m *memStore) List(context.Context) ([]SearchUnit, error) {
	out := make([]SearchUnit, 0, len(m.data))
	for unit := range m.data {
		out = append(out, unit)
	}
	return out, nil
}
