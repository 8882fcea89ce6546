package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/platform/storage"
	"github.com/mobilia/backoffice/internal/repositories"
)

type repoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string       { return "repository error" }
func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

type stubProductRepository struct {
	products map[string]domain.BaseProduct
	listErr  error
	calls    []string
}

func newStubProducts(products ...domain.BaseProduct) *stubProductRepository {
	repo := &stubProductRepository{products: map[string]domain.BaseProduct{}}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (s *stubProductRepository) FindByID(_ context.Context, id string) (domain.BaseProduct, error) {
	s.calls = append(s.calls, id)
	product, ok := s.products[id]
	if !ok {
		return domain.BaseProduct{}, repoError{notFound: true}
	}
	return product, nil
}

func (s *stubProductRepository) List(context.Context, repositories.ProductListFilter) ([]domain.BaseProduct, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.BaseProduct
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type stubSpecialProductRepository struct {
	mu        sync.Mutex
	items     map[string]domain.CompositeProduct
	insertErr error
	lastList  repositories.SpecialProductListFilter
	page      repositories.SpecialProductPage
}

func newStubSpecialProducts() *stubSpecialProductRepository {
	return &stubSpecialProductRepository{items: map[string]domain.CompositeProduct{}}
}

func (s *stubSpecialProductRepository) Insert(_ context.Context, product domain.CompositeProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, exists := s.items[product.ID]; exists {
		return repoError{conflict: true}
	}
	s.items[product.ID] = product
	return nil
}

func (s *stubSpecialProductRepository) Update(_ context.Context, product domain.CompositeProduct) (domain.CompositeProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[product.ID]
	if !ok {
		return domain.CompositeProduct{}, repoError{notFound: true}
	}
	product.CreatedAt = existing.CreatedAt
	s.items[product.ID] = product
	return product, nil
}

func (s *stubSpecialProductRepository) FindByID(_ context.Context, id string) (domain.CompositeProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.items[id]
	if !ok {
		return domain.CompositeProduct{}, repoError{notFound: true}
	}
	return product, nil
}

func (s *stubSpecialProductRepository) List(_ context.Context, filter repositories.SpecialProductListFilter) (repositories.SpecialProductPage, error) {
	s.lastList = filter
	return s.page, nil
}

func (s *stubSpecialProductRepository) UpdateCombinationImage(_ context.Context, id string, key domain.CombinationKey, image string, at time.Time) (domain.CompositeProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.items[id]
	if !ok {
		return domain.CompositeProduct{}, repoError{notFound: true}
	}
	idx := product.CombinationIndex(key)
	if idx < 0 {
		return domain.CompositeProduct{}, repositories.ErrCombinationNotFound
	}
	combinations := append([]domain.CombinationRecord(nil), product.Combinations...)
	combinations[idx].FinalImage = image
	product.Combinations = combinations
	product.UpdatedAt = at
	s.items[id] = product
	return product, nil
}

type stubPublisher struct {
	events []SpecialProductEvent
	err    error
}

func (p *stubPublisher) PublishSpecialProductEvent(_ context.Context, event SpecialProductEvent) (string, error) {
	p.events = append(p.events, event)
	if p.err != nil {
		return "", p.err
	}
	return "msg-1", nil
}

type stubMetrics struct {
	generated []int
	uploads   []string
	saves     []string
}

func (m *stubMetrics) CombinationsGenerated(count int) { m.generated = append(m.generated, count) }
func (m *stubMetrics) UploadCompleted(outcome string)  { m.uploads = append(m.uploads, outcome) }
func (m *stubMetrics) SaveCompleted(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.saves = append(m.saves, operation+":"+outcome)
}

type stubObjectStore struct {
	objects map[string][]byte
	putErr  error
	exists  map[string]bool
}

func newStubObjectStore() *stubObjectStore {
	return &stubObjectStore{objects: map[string][]byte{}, exists: map[string]bool{}}
}

func (s *stubObjectStore) Put(_ context.Context, object, contentType string, body io.Reader, maxBytes int64) (storage.Object, error) {
	if s.putErr != nil {
		return storage.Object{}, s.putErr
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return storage.Object{}, err
	}
	if int64(len(data)) > maxBytes {
		return storage.Object{}, storage.ErrObjectTooLarge
	}
	s.objects[object] = data
	return storage.Object{Bucket: "test", Name: object, ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *stubObjectStore) Exists(_ context.Context, object string) (bool, error) {
	if _, ok := s.objects[object]; ok {
		return true, nil
	}
	return s.exists[object], nil
}

func (s *stubObjectStore) PublicURL(object string) string {
	return "https://cdn.example.com/" + object
}

type recordedEvent struct {
	name   string
	fields map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) log(_ context.Context, event string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: event, fields: fields})
}

func (r *eventRecorder) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.name == name {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")
