package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"barefoot_sync/internal/app"
	"barefoot_sync/internal/domain"
)

// ---- fakes ----

type fakeRepo struct {
	*fakeStore
	pv    domain.PropertyView
	page  domain.PropertyPage
	reads int
}

func (f *fakeRepo) GetProperty(ctx context.Context, id int64) (domain.PropertyView, error) {
	f.reads++
	if f.pv.ID != id {
		return domain.PropertyView{}, domain.ErrNotFound
	}
	return f.pv, nil
}

func (f *fakeRepo) SearchProperties(ctx context.Context, q domain.PropertyQuery) (domain.PropertyPage, error) {
	f.reads++
	return f.page, nil
}

// ---- tests ----

func TestGetProperty_CacheMissThenHit(t *testing.T) {
	repo := &fakeRepo{
		fakeStore: newFakeStore(),
		pv:        domain.PropertyView{ID: 42, RemoteID: "B-42", Title: "Dune House", City: ptr("Avalon")},
	}
	cache := &fakeCache{}
	q := app.NewQueryService(repo, cache, 10*time.Minute)

	// Miss (first time, populates cache)
	p, err := q.GetProperty(context.Background(), 42)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p.ID != 42 || p.Title != "Dune House" || deref(p.City) != "Avalon" {
		t.Fatalf("unexpected property: %+v", p)
	}

	// Mutate repo to ensure second read indeed comes from cache
	repo.pv.Title = "SHOULD NOT SEE THIS"

	p2, err := q.GetProperty(context.Background(), 42)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p2.Title != "Dune House" {
		t.Fatalf("expected cached title, got %s", p2.Title)
	}
	if repo.reads != 1 {
		t.Fatalf("expected 1 repo read, got %d", repo.reads)
	}
}

func TestGetProperty_NotFoundIsNotCached(t *testing.T) {
	repo := &fakeRepo{fakeStore: newFakeStore()}
	cache := &fakeCache{}
	q := app.NewQueryService(repo, cache, time.Minute)

	_, err := q.GetProperty(context.Background(), 7)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(cache.store) != 0 {
		t.Fatalf("expected nothing cached, got %v", cache.store)
	}
}

func TestSearchProperties_Cache(t *testing.T) {
	repo := &fakeRepo{
		fakeStore: newFakeStore(),
		page: domain.PropertyPage{Items: []domain.PropertyView{
			{ID: 1, Title: "Bay Cottage", Amenities: []string{"Pool"}},
		}},
	}
	cache := &fakeCache{}
	q := app.NewQueryService(repo, cache, 10*time.Minute)
	query := domain.PropertyQuery{Amenity: ptr("Pool"), Limit: 10}

	out, err := q.SearchProperties(context.Background(), query)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Title != "Bay Cottage" {
		t.Fatalf("unexpected page: %+v", out.Items)
	}

	// Change repo, call again -> should come from cache
	repo.page.Items[0].Title = "Changed"
	out2, _ := q.SearchProperties(context.Background(), query)
	if out2.Items[0].Title != "Bay Cottage" {
		t.Fatalf("expected cached title Bay Cottage, got %s", out2.Items[0].Title)
	}

	// a different filter is a different key
	_, _ = q.SearchProperties(context.Background(), domain.PropertyQuery{Amenity: ptr("WiFi"), Limit: 10})
	if repo.reads != 2 {
		t.Fatalf("expected 2 repo reads, got %d", repo.reads)
	}
}

func TestSearchProperties_EmptyPageEncodesEmptyList(t *testing.T) {
	repo := &fakeRepo{fakeStore: newFakeStore(), page: domain.PropertyPage{Items: []domain.PropertyView{}}}
	q := app.NewQueryService(repo, &fakeCache{}, time.Minute)

	out, err := q.SearchProperties(context.Background(), domain.PropertyQuery{Q: ptr("nothing"), Limit: 20})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	b, _ := json.Marshal(out)
	if string(b) != `{"items":[]}` {
		t.Fatalf("expected an empty items list, got %s", b)
	}
}

func TestQueryService_NilCache(t *testing.T) {
	repo := &fakeRepo{fakeStore: newFakeStore(), pv: domain.PropertyView{ID: 3, Title: "Loft"}}
	q := app.NewQueryService(repo, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := q.GetProperty(context.Background(), 3); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
	if repo.reads != 2 {
		t.Fatalf("expected every read to hit the repo, got %d", repo.reads)
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
