package dedup

import (
	"sort"
	"strings"

	"github.com/bherila/k1flow/src/models"
)

// IsDuplicate reports whether two line items represent the same real-world
// transaction. The rule is symmetric and exact: same calendar date, same
// signed amount at cent precision, and equal descriptions ignoring case
// (two empty descriptions also match). When both sides carry a symbol the
// symbols must match as well, which cuts false positives for brokerage rows
// sharing date and amount.
func IsDuplicate(a, b models.LineItem) bool {
	if !a.DateOnly().Equal(b.DateOnly()) {
		return false
	}
	if a.AmountCents() != b.AmountCents() {
		return false
	}
	descA := strings.TrimSpace(a.Description)
	descB := strings.TrimSpace(b.Description)
	if !strings.EqualFold(descA, descB) {
		return false
	}
	if a.Symbol != "" && b.Symbol != "" && !strings.EqualFold(a.Symbol, b.Symbol) {
		return false
	}
	return true
}

// DetectResult partitions import candidates against the items already
// stored in the target account.
type DetectResult struct {
	NewItems   []models.LineItem `json:"new_items"`
	Duplicates []models.LineItem `json:"duplicates"`
}

// Detect classifies each candidate as new or as a duplicate of an existing
// item. This is a set-membership test: any match at all makes the candidate
// a duplicate, there is no ranking. Absence of a match is a normal outcome,
// never an error.
func Detect(candidates, existing []models.LineItem) DetectResult {
	// Index existing items by (day, cents) so each candidate only compares
	// against plausible matches.
	index := make(map[bucketKey][]models.LineItem, len(existing))
	for _, item := range existing {
		key := keyOf(item)
		index[key] = append(index[key], item)
	}

	result := DetectResult{
		NewItems:   []models.LineItem{},
		Duplicates: []models.LineItem{},
	}
	for _, cand := range candidates {
		matched := false
		for _, ex := range index[keyOf(cand)] {
			if IsDuplicate(cand, ex) {
				matched = true
				break
			}
		}
		if matched {
			result.Duplicates = append(result.Duplicates, cand)
		} else {
			result.NewItems = append(result.NewItems, cand)
		}
	}
	return result
}

type bucketKey struct {
	day   string
	cents int64
}

func keyOf(item models.LineItem) bucketKey {
	return bucketKey{day: item.DateOnly().Format("2006-01-02"), cents: item.AmountCents()}
}

// DetectGroups clusters already-persisted items that duplicate each other.
// Within each group the highest identifier is kept (identifiers are
// monotonically assigned, so the most recently inserted wins) and the rest
// become deletion candidates. Groups whose member set is covered by a
// stored "verified not duplicate" set are excluded.
func DetectGroups(existing []models.LineItem, notDuplicateSets [][]int64) []models.DuplicateGroup {
	// Bucket first; the match rule requires equal day+amount, so groups
	// can never span buckets.
	buckets := make(map[bucketKey][]models.LineItem)
	for _, item := range existing {
		key := keyOf(item)
		buckets[key] = append(buckets[key], item)
	}

	suppressed := make([]map[int64]bool, 0, len(notDuplicateSets))
	for _, set := range notDuplicateSets {
		m := make(map[int64]bool, len(set))
		for _, id := range set {
			m[id] = true
		}
		suppressed = append(suppressed, m)
	}

	var groups []models.DuplicateGroup
	for _, bucket := range buckets {
		if len(bucket) < 2 {
			continue
		}
		for _, members := range clusterBucket(bucket) {
			if len(members) < 2 {
				continue
			}
			group := buildGroup(members)
			if isSuppressed(group.MemberIDs(), suppressed) {
				continue
			}
			groups = append(groups, group)
		}
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].KeepID < groups[j].KeepID })
	return groups
}

// clusterBucket forms equivalence groups within one (day, amount) bucket
// using the pairwise duplicate rule. Buckets are small, so the quadratic
// pass is fine.
func clusterBucket(bucket []models.LineItem) [][]models.LineItem {
	assigned := make([]int, len(bucket))
	for i := range assigned {
		assigned[i] = -1
	}
	var clusters [][]models.LineItem
	for i, item := range bucket {
		if assigned[i] >= 0 {
			continue
		}
		cluster := []models.LineItem{item}
		assigned[i] = len(clusters)
		for j := i + 1; j < len(bucket); j++ {
			if assigned[j] < 0 && IsDuplicate(item, bucket[j]) {
				cluster = append(cluster, bucket[j])
				assigned[j] = len(clusters)
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

func isSuppressed(memberIDs []int64, suppressed []map[int64]bool) bool {
	for _, set := range suppressed {
		covered := true
		for _, id := range memberIDs {
			if !set[id] {
				covered = false
				break
			}
		}
		if covered {
			return true
		}
	}
	return false
}

func buildGroup(members []models.LineItem) models.DuplicateGroup {
	keep := members[0].ID
	for _, m := range members[1:] {
		if m.ID > keep {
			keep = m.ID
		}
	}
	group := models.DuplicateGroup{KeepID: keep, Items: members}
	for _, m := range members {
		if m.ID != keep {
			group.DeleteIDs = append(group.DeleteIDs, m.ID)
		}
	}
	sort.Slice(group.DeleteIDs, func(i, j int) bool { return group.DeleteIDs[i] < group.DeleteIDs[j] })
	return group
}
