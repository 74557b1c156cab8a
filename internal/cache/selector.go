package cache

import (
	"eval-cache/internal/domain/models"
)

// selectBest 从候选条目中选出唯一的最优条目。
// 存储返回的顺序已经符合规则，这里再按 models.Outranks 比较一遍，
// 保证无论使用哪种存储，选中的都是同一条。
func selectBest(entries []*models.CacheEntry) *models.CacheEntry {
	var best *models.CacheEntry
	for _, e := range entries {
		if e == nil {
			continue
		}
		if best == nil || models.Outranks(e, best) {
			best = e
		}
	}
	return best
}
