package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
)

type memPrefs struct {
	mu    sync.Mutex
	prefs map[string]*model.NotificationPreference
	fail  bool
}

func newMemPrefs() *memPrefs {
	return &memPrefs{prefs: make(map[string]*model.NotificationPreference)}
}

func (m *memPrefs) Get(_ context.Context, memberID string) (*model.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("store down")
	}
	p, ok := m.prefs[memberID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPrefs) entry(memberID string) *model.NotificationPreference {
	p, ok := m.prefs[memberID]
	if !ok {
		p = &model.NotificationPreference{MemberID: memberID}
		m.prefs[memberID] = p
	}
	return p
}

func (m *memPrefs) SetSound(_ context.Context, memberID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(memberID).SoundEnabled = &enabled
	return nil
}

func (m *memPrefs) SetPush(_ context.Context, memberID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(memberID).PushEnabled = &enabled
	return nil
}

type staticProfiles map[string]string

func (s staticProfiles) GetByID(_ context.Context, id string) (*model.Profile, error) {
	name, ok := s[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &model.Profile{ID: id, DisplayName: name}, nil
}

type fakeChime struct {
	mu    sync.Mutex
	plays [][]Tone
}

func (f *fakeChime) Play(_ context.Context, tones []Tone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, tones)
	return nil
}

func (f *fakeChime) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plays)
}

type fakeNotifier struct {
	mu        sync.Mutex
	shown     []Notification
	dismissed []string
	requests  int
	onRequest func()
}

func (f *fakeNotifier) Show(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, n)
	return nil
}

func (f *fakeNotifier) Dismiss(_ context.Context, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, tag)
	return nil
}

func (f *fakeNotifier) RequestPermission(context.Context) error {
	f.mu.Lock()
	f.requests++
	cb := f.onRequest
	f.mu.Unlock()
	if cb != nil {
		go cb()
	}
	return nil
}

func (f *fakeNotifier) snapshot() (shown []Notification, dismissed []string, requests int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.shown...), append([]string(nil), f.dismissed...), f.requests
}
