package domain

import "sort"

// CountByKey is one bucket of a stats breakdown.
type CountByKey struct {
	Key   string `json:"_id"`
	Count int    `json:"count"`
}

// Stats summarises a user's active notifications. Read is always derived
// from Total and Unread.
type Stats struct {
	Total      int          `json:"total"`
	Unread     int          `json:"unread"`
	Read       int          `json:"read"`
	ByCategory []CountByKey `json:"byType"`
	ByPriority []CountByKey `json:"byPriority"`
}

// NewStats builds a Stats value from raw counts, deriving Read and ordering
// both breakdowns by count descending (ties by key for stable output).
func NewStats(total, unread int, byCategory, byPriority map[string]int) Stats {
	return Stats{
		Total:      total,
		Unread:     unread,
		Read:       total - unread,
		ByCategory: sortedCounts(byCategory),
		ByPriority: sortedCounts(byPriority),
	}
}

// StatsOf computes Stats over an in-memory slice, skipping deleted entries.
func StatsOf(notifications []Notification) Stats {
	total, unread := 0, 0
	byCategory := map[string]int{}
	byPriority := map[string]int{}
	for i := range notifications {
		n := &notifications[i]
		if n.IsDeleted {
			continue
		}
		total++
		if !n.IsRead {
			unread++
		}
		byCategory[string(n.Category)]++
		byPriority[string(n.Priority)]++
	}
	return NewStats(total, unread, byCategory, byPriority)
}

func sortedCounts(m map[string]int) []CountByKey {
	out := make([]CountByKey, 0, len(m))
	for k, v := range m {
		if v == 0 {
			continue
		}
		out = append(out, CountByKey{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
