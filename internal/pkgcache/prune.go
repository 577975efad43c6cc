package pkgcache

import (
	"os"
	"time"
)

// PruneResult summarizes the outcome of a Prune call.
type PruneResult struct {
	RemovedKeys  []string
	BytesFreed   int64
	BytesRemaining int64
}

// Prune evicts entries older than maxAge (if maxAge > 0) and then, if
// the cache still exceeds maxBytes (if maxBytes > 0), evicts further
// entries oldest-accessed first until it no longer does. Both limits
// are optional; a zero value disables that criterion.
func (c *Cache) Prune(maxAge time.Duration, maxBytes int64) (PruneResult, error) {
	entries, err := c.index.All()
	if err != nil {
		return PruneResult{}, err
	}

	result := PruneResult{}
	now := time.Now()

	kept := entries[:0:0]
	for _, e := range entries {
		if maxAge > 0 && now.Sub(e.LastAccessed) > maxAge {
			if err := c.evict(e); err != nil {
				return result, err
			}
			result.RemovedKeys = append(result.RemovedKeys, e.Key)
			result.BytesFreed += e.Size
			continue
		}
		kept = append(kept, e)
	}

	if maxBytes > 0 {
		var total int64
		for _, e := range kept {
			total += e.Size
		}
		// kept is already ordered oldest-accessed first (Index.All's
		// ordering), so evicting from the front drops the coldest
		// entries first.
		i := 0
		for total > maxBytes && i < len(kept) {
			e := kept[i]
			if err := c.evict(e); err != nil {
				return result, err
			}
			result.RemovedKeys = append(result.RemovedKeys, e.Key)
			result.BytesFreed += e.Size
			total -= e.Size
			i++
		}
		result.BytesRemaining = total
	} else {
		for _, e := range kept {
			result.BytesRemaining += e.Size
		}
	}

	return result, nil
}

func (c *Cache) evict(e IndexEntry) error {
	if err := os.RemoveAll(e.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return c.index.Delete(e.Key)
}
