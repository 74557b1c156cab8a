package cache

import (
	"testing"
	"time"

	"eval-cache/internal/domain/models"
)

func TestSelectBest_HighestScore(t *testing.T) {
	now := time.Now()
	entries := []*models.CacheEntry{
		{ID: "e1", Score: 0.5, CreatedAt: now},
		{ID: "e2", Score: 0.9, CreatedAt: now},
		{ID: "e3", Score: 0.7, CreatedAt: now},
	}

	best := selectBest(entries)
	if best == nil || best.ID != "e2" {
		t.Errorf("expected highest score entry (e2), got %v", best)
	}
}

func TestSelectBest_TieMostRecent(t *testing.T) {
	now := time.Now()
	entries := []*models.CacheEntry{
		{ID: "e1", Score: 0.9, CreatedAt: now.Add(-time.Minute)},
		{ID: "e2", Score: 0.9, CreatedAt: now},
		{ID: "e3", Score: 0.9, CreatedAt: now.Add(-time.Hour)},
	}

	best := selectBest(entries)
	if best == nil || best.ID != "e2" {
		t.Errorf("expected most recent entry (e2), got %v", best)
	}
}

func TestSelectBest_TieGreatestID(t *testing.T) {
	now := time.Now()
	entries := []*models.CacheEntry{
		{ID: "b", Score: 0.9, CreatedAt: now},
		{ID: "c", Score: 0.9, CreatedAt: now},
		{ID: "a", Score: 0.9, CreatedAt: now},
	}

	// 输入顺序不影响结果
	for i := 0; i < len(entries); i++ {
		rotated := append(append([]*models.CacheEntry{}, entries[i:]...), entries[:i]...)
		if best := selectBest(rotated); best == nil || best.ID != "c" {
			t.Errorf("rotation %d: expected c, got %v", i, best)
		}
	}
}

func TestSelectBest_Empty(t *testing.T) {
	if best := selectBest(nil); best != nil {
		t.Errorf("expected nil for no candidates, got %v", best)
	}
	if best := selectBest([]*models.CacheEntry{nil}); best != nil {
		t.Errorf("expected nil for nil candidates, got %v", best)
	}
}
