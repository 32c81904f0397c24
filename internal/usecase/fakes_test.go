package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type memAccounts struct {
	mu     sync.Mutex
	rows   map[string]entity.UserAccount
	nextID int64
	decErr error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[string]entity.UserAccount{}}
}

func (m *memAccounts) put(a entity.UserAccount) entity.UserAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	m.rows[a.UserID] = a
	return a
}

func (m *memAccounts) get(userID string) entity.UserAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[userID]
}

func (m *memAccounts) GetByUserID(_ context.Context, userID string) (entity.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[userID]
	if !ok {
		return entity.UserAccount{}, repository.ErrAccountNotFound
	}
	return a, nil
}

func (m *memAccounts) Create(_ context.Context, a entity.UserAccount) (entity.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[a.UserID]; ok {
		return existing, nil
	}
	m.nextID++
	a.ID = m.nextID
	m.rows[a.UserID] = a
	return a, nil
}

func (m *memAccounts) DecrementTokens(_ context.Context, userID string, count int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decErr != nil {
		return false, m.decErr
	}
	a, ok := m.rows[userID]
	if !ok || a.ImageGenerationTokens <= 0 {
		return false, nil
	}
	a.ImageGenerationTokens -= count
	m.rows[userID] = a
	return true, nil
}

func (m *memAccounts) SetNextRegeneration(_ context.Context, userID string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[userID]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.NextTokenRegeneration = &next
	m.rows[userID] = a
	return nil
}

func (m *memAccounts) Regenerate(_ context.Context, userID string, count int, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[userID]
	if !ok {
		return repository.ErrAccountNotFound
	}
	if a.ImageGenerationTokens < count {
		a.ImageGenerationTokens = count
	}
	a.NextTokenRegeneration = &next
	m.rows[userID] = a
	return nil
}

type memImages struct {
	mu     sync.Mutex
	rows   []entity.GeneratedImage
	nextID int64
	clock  time.Time
	events []string
}

func (m *memImages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memImages) List(_ context.Context, q repository.ImageQuery) ([]entity.GeneratedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.GeneratedImage
	for _, r := range m.rows {
		if r.UserAccountID != q.UserAccountID {
			continue
		}
		match := true
		for _, kw := range q.Keywords {
			if !strings.Contains(strings.ToLower(r.Prompt), kw) {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memImages) SaveBatch(_ context.Context, account entity.UserAccount, images []entity.NewGeneratedImage) ([]entity.GeneratedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.GeneratedImage, 0, len(images))
	for _, img := range images {
		m.nextID++
		m.clock = m.clock.Add(time.Second)
		row := entity.GeneratedImage{
			ID:            m.nextID,
			UserAccountID: account.ID,
			Prompt:        img.Prompt,
			Key:           img.Key,
			BlurHash:      img.BlurHash,
			CreatedAt:     m.clock,
		}
		m.rows = append(m.rows, row)
		m.events = append(m.events, entity.EventImageGenerated)
		out = append(out, row)
	}
	return out, nil
}

func (m *memImages) Delete(_ context.Context, account entity.UserAccount, id int64) (entity.GeneratedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for n, r := range m.rows {
		if r.ID == id && r.UserAccountID == account.ID {
			m.rows = append(m.rows[:n], m.rows[n+1:]...)
			m.events = append(m.events, entity.EventImageDeleted)
			return r, nil
		}
	}
	return entity.GeneratedImage{}, repository.ErrImageNotFound
}

func (m *memImages) Keys(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, len(m.rows))
	for n, r := range m.rows {
		keys[n] = r.Key
	}
	return keys, nil
}

// memStore restores the image rows when the transaction function fails.
type memStore struct {
	images    *memImages
	rollbacks int
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) Close() {}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.images.mu.Lock()
	rows := append([]entity.GeneratedImage(nil), m.images.rows...)
	events := append([]string(nil), m.images.events...)
	m.images.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.images.mu.Lock()
		m.images.rows, m.images.events = rows, events
		m.images.mu.Unlock()
		m.rollbacks++
		return err
	}
	return nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int
	failErr error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Upload(_ context.Context, blobs []repository.Blob, _ map[string]string) ([]repository.StoredObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	out := make([]repository.StoredObject, len(blobs))
	for n, b := range blobs {
		m.seq++
		key := fmt.Sprintf("obj-%d.png", m.seq)
		m.objects[key] = b.Data
		out[n] = repository.StoredObject{Key: key, URL: m.URLFor(key)}
	}
	return out, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return repository.ErrObjectNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *memStorage) URLFor(key string) string { return "http://files/" + key }

func (m *memStorage) Open(context.Context, string) (io.ReadCloser, repository.ObjectInfo, error) {
	return nil, repository.ObjectInfo{}, errors.New("not implemented")
}

func (m *memStorage) List(context.Context) ([]repository.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repository.ObjectInfo, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, repository.ObjectInfo{Key: k})
	}
	return out, nil
}

type stubProvider struct {
	flagged   bool
	genErr    error
	decodeErr error
	improved  string
	moderated int
	generated int
}

func (s *stubProvider) GenerateRaw(context.Context, string, string) ([]byte, error) {
	s.generated++
	if s.genErr != nil {
		return nil, s.genErr
	}
	return []byte(`{"data":[{"b64_json":"aW1n"}]}`), nil
}

func (s *stubProvider) DecodeImages(_ context.Context, body []byte) ([]repository.Blob, error) {
	if s.decodeErr != nil {
		return nil, s.decodeErr
	}
	return []repository.Blob{{Data: body, ContentType: "image/png"}}, nil
}

func (s *stubProvider) Moderate(context.Context, string) (bool, error) {
	s.moderated++
	return s.flagged, nil
}

func (s *stubProvider) ImprovePrompt(_ context.Context, prompt string) (string, error) {
	if s.improved == "" {
		return prompt + ", highly detailed", nil
	}
	return s.improved, nil
}

type memPending struct {
	mu       sync.Mutex
	putErr   error
	entries  map[string]entity.PendingRequest
	watchers map[string][]chan entity.PendingRequest
}

func newMemPending() *memPending {
	return &memPending{
		entries:  map[string]entity.PendingRequest{},
		watchers: map[string][]chan entity.PendingRequest{},
	}
}

func (m *memPending) Put(_ context.Context, id string, req entity.PendingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[id] = req
	return nil
}

func (m *memPending) Get(_ context.Context, id string) (entity.PendingRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.entries[id]
	return req, ok, nil
}

func (m *memPending) Claim(_ context.Context, id string) (entity.PendingRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.entries[id]
	if !ok || req.Status != entity.PendingWaiting {
		return req, false, nil
	}
	prev := req
	req.Status = entity.PendingProcessing
	m.entries[id] = req
	return prev, true, nil
}

func (m *memPending) Resolve(_ context.Context, id string, req entity.PendingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = req
	for _, ch := range m.watchers[id] {
		ch <- req
	}
	delete(m.watchers, id)
	return nil
}

func (m *memPending) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *memPending) Watch(_ context.Context, id string) (<-chan entity.PendingRequest, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan entity.PendingRequest, 1)
	m.watchers[id] = append(m.watchers[id], ch)
	return ch, func() {}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]byte
	err      error
}

func (r *recordingPublisher) PublishRequest(_ context.Context, id string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.messages == nil {
		r.messages = map[string][]byte{}
	}
	r.messages[id] = payload
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type idempotencyKey struct {
	account int64
	key     string
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[idempotencyKey]entity.IdempotencyKey
}

func (m *memIdempotency) Get(_ context.Context, account int64, key string) (entity.IdempotencyKey, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[idempotencyKey{account, key}]
	return k, ok, nil
}

func (m *memIdempotency) Save(_ context.Context, key entity.IdempotencyKey) (entity.IdempotencyKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[idempotencyKey]entity.IdempotencyKey{}
	}
	id := idempotencyKey{key.UserAccountID, key.Key}
	if prev, ok := m.keys[id]; ok {
		if prev.RequestHash != key.RequestHash {
			return entity.IdempotencyKey{}, repository.ErrIdempotencyKeyConflict
		}
		return prev, nil
	}
	m.keys[id] = key
	return key, nil
}

func (m *memIdempotency) Delete(_ context.Context, account int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, idempotencyKey{account, key})
	return nil
}

func (m *memIdempotency) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, k := range m.keys {
		if k.CreatedAt.Before(before) {
			delete(m.keys, id)
			n++
		}
	}
	return n, nil
}

func (m *memIdempotency) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
