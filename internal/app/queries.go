package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"barefoot_sync/internal/domain"
)

type QueryService struct {
	repo     domain.PropertyStore
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.PropertyStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func propertyCacheKey(id int64) string { return fmt.Sprintf("property:%d", id) }

func (s *QueryService) GetProperty(ctx context.Context, id int64) (domain.PropertyView, error) {
	key := propertyCacheKey(id)
	var pv domain.PropertyView
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &pv); ok {
			return pv, nil
		}
	}
	pv, err := s.repo.GetProperty(ctx, id)
	if err != nil {
		return domain.PropertyView{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, pv, int(s.cacheTTL.Seconds()))
	}
	return pv, nil
}

// SearchProperties serves filtered listings. Pages are cached for the TTL
// only; a sync does not evict them.
func (s *QueryService) SearchProperties(ctx context.Context, q domain.PropertyQuery) (domain.PropertyPage, error) {
	key := searchCacheKey(q)
	var out domain.PropertyPage
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}

	page, err := s.repo.SearchProperties(ctx, q)
	if err != nil {
		return domain.PropertyPage{}, err
	}

	// copy slice to avoid aliasing the repo's backing array
	cp := domain.PropertyPage{NextCursor: page.NextCursor, Items: make([]domain.PropertyView, len(page.Items))}
	copy(cp.Items, page.Items)

	// optional size guard
	if s.cache != nil {
		if b, _ := json.Marshal(cp); len(b) < 1_000_000 {
			_ = s.cache.Set(ctx, key, cp, int(s.cacheTTL.Seconds()))
		}
	}
	return cp, nil
}

func searchCacheKey(q domain.PropertyQuery) string {
	b, _ := json.Marshal(q)
	sum := sha1.Sum(b)
	return "search:" + hex.EncodeToString(sum[:])
}
