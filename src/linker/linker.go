package linker

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bherila/k1flow/src/models"
)

const (
	// MaxDateDiffDays is the widest date skew allowed between the two
	// statement sides of one transfer.
	MaxDateDiffDays = 7
	// AmountTolerance guards against rounding/fee differences between the
	// two sides: the magnitudes may differ by up to 5% of the base amount.
	AmountTolerance = 0.05
)

// LinkConflict is returned when a link would create a cycle or a duplicate
// edge. No partial mutation happens on conflict.
type LinkConflict struct {
	ItemID   int64
	LinkedID int64
	Reason   string
}

func (e *LinkConflict) Error() string {
	return fmt.Sprintf("cannot link item %d with %d: %s", e.ItemID, e.LinkedID, e.Reason)
}

// Balanced reports whether an item's signed amount plus the signed amounts
// of its linked legs sums to zero at cent precision. Balanced items are
// done: they are excluded from further candidate search.
func Balanced(item models.LineItem, legs []models.LineItem) bool {
	if len(legs) == 0 {
		return false
	}
	sum := item.AmountCents()
	for _, leg := range legs {
		sum += leg.AmountCents()
	}
	return sum == 0
}

// FindCandidates proposes items from other accounts that likely represent
// the opposite leg of the same transfer. legs carries the items already
// linked to item. Opposite sign is surfaced as the strongest signal but is
// not a hard filter; same-sign pairs are still proposed, just not
// pre-selected by callers. An empty result is a normal outcome.
func FindCandidates(item models.LineItem, legs []models.LineItem, others []models.LineItem) []models.LinkablePair {
	pairs := []models.LinkablePair{}
	if Balanced(item, legs) {
		return pairs
	}

	baseMag := math.Abs(item.Amount)
	for _, other := range others {
		if other.ID == item.ID {
			continue
		}
		dateDiff := daysBetween(item.DateOnly(), other.DateOnly())
		if abs(dateDiff) > MaxDateDiffDays {
			continue
		}
		amountDiff := math.Abs(baseMag - math.Abs(other.Amount))
		// Compare at cent precision so a diff of exactly 5% stays inside
		// the tolerance.
		if centsRound(amountDiff) > centsRound(AmountTolerance*baseMag) {
			continue
		}
		pairs = append(pairs, models.LinkablePair{
			Item:             other,
			AreOppositeSigns: (item.Amount < 0) != (other.Amount < 0),
			AmountDiff:       amountDiff,
			DateDiffDays:     dateDiff,
		})
	}

	// Strongest proposals first: opposite signs, then closest amount,
	// then closest date.
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].AreOppositeSigns != pairs[j].AreOppositeSigns {
			return pairs[i].AreOppositeSigns
		}
		if pairs[i].AmountDiff != pairs[j].AmountDiff {
			return pairs[i].AmountDiff < pairs[j].AmountDiff
		}
		return abs(pairs[i].DateDiffDays) < abs(pairs[j].DateDiffDays)
	})
	return pairs
}

// Direction decides which item becomes the parent leg: the negative
// (outflow) leg is always the parent, regardless of which item initiated
// the action. When neither amount is negative the caller's first argument
// stays parent.
func Direction(a, b models.LineItem) (parent, child models.LineItem) {
	if b.Amount < 0 && a.Amount >= 0 {
		return b, a
	}
	return a, b
}

// ValidateLink checks that linking parent→child creates no cycle and no
// duplicate edge. Parent/child chains are one hop: both ends must be
// terminal with respect to further linking in the conflicting direction.
func ValidateLink(parent, child models.LineItem) error {
	if parent.ID == child.ID {
		return &LinkConflict{ItemID: parent.ID, LinkedID: child.ID, Reason: "an item may not be its own parent"}
	}
	if child.ParentID != nil {
		if *child.ParentID == parent.ID {
			return &LinkConflict{ItemID: parent.ID, LinkedID: child.ID, Reason: "link already exists"}
		}
		return &LinkConflict{ItemID: parent.ID, LinkedID: child.ID, Reason: "child is already linked to another parent"}
	}
	if len(child.ChildIDs) > 0 {
		return &LinkConflict{ItemID: parent.ID, LinkedID: child.ID, Reason: "child already has linked legs of its own"}
	}
	if parent.ParentID != nil {
		return &LinkConflict{ItemID: parent.ID, LinkedID: child.ID, Reason: "parent is itself the child leg of another transfer"}
	}
	return nil
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func centsRound(v float64) int64 {
	return int64(math.Round(v * 100))
}
