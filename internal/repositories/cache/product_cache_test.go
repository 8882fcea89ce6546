package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/repositories"
)

type stubProductRepository struct {
	mu        sync.Mutex
	products  map[string]domain.BaseProduct
	findCalls int
	listCalls int
}

func (s *stubProductRepository) FindByID(_ context.Context, id string) (domain.BaseProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	product, ok := s.products[id]
	if !ok {
		return domain.BaseProduct{}, errors.New("not found")
	}
	return product, nil
}

func (s *stubProductRepository) List(_ context.Context, filter repositories.ProductListFilter) ([]domain.BaseProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []domain.BaseProduct
	for _, id := range []string{"legs", "top"} {
		if product, ok := s.products[id]; ok {
			out = append(out, product)
		}
	}
	if len(filter.IDs) > 0 {
		return out[:1], nil
	}
	return out, nil
}

type blockingRepository struct {
	*stubProductRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRepository) FindByID(ctx context.Context, id string) (domain.BaseProduct, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.stubProductRepository.FindByID(ctx, id)
}

type memoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet error
	failSet error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	data, ok := m.data[key]
	if !ok {
		return nil, errMiss
	}
	return data, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func newStubRepository() *stubProductRepository {
	stock := 4
	return &stubProductRepository{products: map[string]domain.BaseProduct{
		"top":  {ID: "top", Name: "Tabletop", Variants: []domain.Variant{{Name: "size", Value: "L", Stock: &stock}}},
		"legs": {ID: "legs", Name: "Legs"},
	}}
}

func TestProductCacheFindByIDReadsThrough(t *testing.T) {
	inner := newStubRepository()
	mem := newMemoryStore()
	cache, err := newProductCache(inner, mem, WithTTL(time.Minute), WithPrefix("test:"))
	if err != nil {
		t.Fatalf("newProductCache: %v", err)
	}

	for i := 0; i < 3; i++ {
		product, err := cache.FindByID(context.Background(), "top")
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if product.Name != "Tabletop" || product.Variants[0].Stock == nil || *product.Variants[0].Stock != 4 {
			t.Fatalf("unexpected product %+v", product)
		}
	}
	if inner.findCalls != 1 {
		t.Fatalf("expected one inner call, got %d", inner.findCalls)
	}
	if mem.ttls["test:id:top"] != time.Minute {
		t.Errorf("expected ttl applied, got %v", mem.ttls["test:id:top"])
	}
	if stats := cache.Stats(); stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestProductCacheSharesConcurrentMisses(t *testing.T) {
	inner := &blockingRepository{stubProductRepository: newStubRepository(), entered: make(chan struct{}), release: make(chan struct{})}
	cache, _ := newProductCache(inner, newMemoryStore())

	const readers = 5
	var wg sync.WaitGroup
	errs := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.FindByID(context.Background(), "top")
			errs <- err
		}()
	}
	<-inner.entered
	// Give the other readers time to join the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
	}
	if inner.findCalls > 2 {
		t.Fatalf("expected concurrent misses to share a load, got %d inner calls", inner.findCalls)
	}
}

func TestProductCacheDoesNotCacheErrors(t *testing.T) {
	inner := newStubRepository()
	cache, _ := newProductCache(inner, newMemoryStore())

	for i := 0; i < 2; i++ {
		if _, err := cache.FindByID(context.Background(), "missing"); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.findCalls != 2 {
		t.Fatalf("expected every miss to reach the repository, got %d", inner.findCalls)
	}
}

func TestProductCacheFailsOpen(t *testing.T) {
	inner := newStubRepository()
	mem := newMemoryStore()
	mem.failGet = errors.New("connection refused")
	mem.failSet = errors.New("connection refused")
	var events []string
	cache, _ := newProductCache(inner, mem, WithLogger(func(_ context.Context, event string, fields map[string]any) {
		events = append(events, event+":"+fields["op"].(string))
	}))

	products, err := cache.List(context.Background(), repositories.ProductListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected products from the repository, got %d", len(products))
	}
	if len(events) != 2 || events[0] != "product_cache.error:get" || events[1] != "product_cache.error:set" {
		t.Errorf("unexpected events %v", events)
	}
	if cache.Stats().Errors != 2 {
		t.Errorf("expected two errors, got %+v", cache.Stats())
	}
}

func TestProductCacheFilteredListBypassesCache(t *testing.T) {
	inner := newStubRepository()
	mem := newMemoryStore()
	cache, _ := newProductCache(inner, mem)

	for i := 0; i < 2; i++ {
		if _, err := cache.List(context.Background(), repositories.ProductListFilter{IDs: []string{"legs"}}); err != nil {
			t.Fatalf("List: %v", err)
		}
	}
	if inner.listCalls != 2 || len(mem.data) != 0 {
		t.Fatalf("expected filtered listing to skip the cache, calls=%d entries=%d", inner.listCalls, len(mem.data))
	}
}

func TestProductCacheAgainstRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	prefix := "backoffice-test:" + time.Now().Format("150405.000000") + ":"
	t.Cleanup(func() { client.Del(ctx, prefix+"id:top") })

	inner := newStubRepository()
	cache, err := NewProductCache(inner, client, WithPrefix(prefix))
	if err != nil {
		t.Fatalf("NewProductCache: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := cache.FindByID(ctx, "top"); err != nil {
			t.Fatalf("FindByID: %v", err)
		}
	}
	if inner.findCalls != 1 {
		t.Fatalf("expected redis hit on second read, got %d inner calls", inner.findCalls)
	}
}
