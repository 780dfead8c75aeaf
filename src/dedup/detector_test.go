package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bherila/k1flow/src/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func item(id int64, date time.Time, amount float64, desc, symbol string) models.LineItem {
	return models.LineItem{ID: id, Date: date, Amount: amount, Description: desc, Symbol: symbol}
}

func TestIsDuplicateExactMatch(t *testing.T) {
	a := item(1, day(2024, 3, 1), -42.00, "Grocery Store", "")
	b := item(2, day(2024, 3, 1), -42.00, "GROCERY STORE", "")
	assert.True(t, IsDuplicate(a, b), "description comparison is case-insensitive")
	assert.True(t, IsDuplicate(b, a), "rule is symmetric")
}

func TestIsDuplicateRejectsDifferences(t *testing.T) {
	base := item(1, day(2024, 3, 1), -42.00, "Grocery Store", "")

	differentDay := item(2, day(2024, 3, 2), -42.00, "Grocery Store", "")
	assert.False(t, IsDuplicate(base, differentDay))

	differentCents := item(3, day(2024, 3, 1), -42.01, "Grocery Store", "")
	assert.False(t, IsDuplicate(base, differentCents))

	differentDesc := item(4, day(2024, 3, 1), -42.00, "Gas Station", "")
	assert.False(t, IsDuplicate(base, differentDesc))

	oppositeSign := item(5, day(2024, 3, 1), 42.00, "Grocery Store", "")
	assert.False(t, IsDuplicate(base, oppositeSign), "amount comparison is signed")
}

func TestIsDuplicateEmptyDescriptionsMatch(t *testing.T) {
	a := item(1, day(2024, 3, 1), -10.00, "", "")
	b := item(2, day(2024, 3, 1), -10.00, "   ", "")
	assert.True(t, IsDuplicate(a, b))
}

func TestIsDuplicateSymbolRule(t *testing.T) {
	a := item(1, day(2024, 3, 1), -1500.00, "Buy", "AAPL")
	b := item(2, day(2024, 3, 1), -1500.00, "Buy", "MSFT")
	assert.False(t, IsDuplicate(a, b), "both symbols present and different")

	c := item(3, day(2024, 3, 1), -1500.00, "Buy", "")
	assert.True(t, IsDuplicate(a, c), "symbol check only applies when both sides carry one")

	d := item(4, day(2024, 3, 1), -1500.00, "Buy", "aapl")
	assert.True(t, IsDuplicate(a, d))
}

func TestDetectPartitionsCandidates(t *testing.T) {
	existing := []models.LineItem{
		item(1, day(2024, 3, 1), -42.00, "Grocery Store", ""),
		item(2, day(2024, 3, 2), -9.50, "Coffee", ""),
	}
	candidates := []models.LineItem{
		item(0, day(2024, 3, 1), -42.00, "grocery store", ""), // dup of 1
		item(0, day(2024, 3, 3), -42.00, "Grocery Store", ""), // different day
		item(0, day(2024, 3, 2), -9.50, "Coffee", ""),         // dup of 2
	}

	result := Detect(candidates, existing)
	assert.Len(t, result.Duplicates, 2)
	assert.Len(t, result.NewItems, 1)
	assert.Equal(t, day(2024, 3, 3), result.NewItems[0].Date)
}

func TestDetectEmptyInputs(t *testing.T) {
	result := Detect(nil, nil)
	assert.Empty(t, result.NewItems)
	assert.Empty(t, result.Duplicates)

	result = Detect([]models.LineItem{item(0, day(2024, 3, 1), -1, "x", "")}, nil)
	assert.Len(t, result.NewItems, 1)
}

func TestDetectIdempotence(t *testing.T) {
	// Re-running detection after the duplicates are excluded finds nothing
	// new to flag.
	existing := []models.LineItem{item(1, day(2024, 3, 1), -42.00, "Grocery Store", "")}
	candidates := []models.LineItem{item(0, day(2024, 3, 1), -42.00, "Grocery Store", "")}

	first := Detect(candidates, existing)
	require.Len(t, first.Duplicates, 1)

	second := Detect(first.NewItems, existing)
	assert.Empty(t, second.Duplicates)
	assert.Empty(t, second.NewItems)
}

func TestDetectGroupsKeepsHighestID(t *testing.T) {
	existing := []models.LineItem{
		item(10, day(2024, 3, 1), -42.00, "Grocery Store", ""),
		item(11, day(2024, 3, 1), -42.00, "grocery store", ""),
		item(12, day(2024, 3, 1), -42.00, "GROCERY STORE", ""),
		item(20, day(2024, 3, 2), -9.50, "Coffee", ""),
	}

	groups := DetectGroups(existing, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(12), groups[0].KeepID)
	assert.Equal(t, []int64{10, 11}, groups[0].DeleteIDs)
	assert.Len(t, groups[0].Items, 3)
}

func TestDetectGroupsSeparatesBySymbol(t *testing.T) {
	existing := []models.LineItem{
		item(1, day(2024, 3, 1), -1500.00, "Buy", "AAPL"),
		item(2, day(2024, 3, 1), -1500.00, "Buy", "AAPL"),
		item(3, day(2024, 3, 1), -1500.00, "Buy", "MSFT"),
		item(4, day(2024, 3, 1), -1500.00, "Buy", "MSFT"),
	}

	groups := DetectGroups(existing, nil)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(2), groups[0].KeepID)
	assert.Equal(t, int64(4), groups[1].KeepID)
}

func TestDetectGroupsSuppression(t *testing.T) {
	existing := []models.LineItem{
		item(1, day(2024, 3, 1), -42.00, "Grocery Store", ""),
		item(2, day(2024, 3, 1), -42.00, "Grocery Store", ""),
	}

	groups := DetectGroups(existing, [][]int64{{1, 2}})
	assert.Empty(t, groups, "a confirmed-distinct set covering the group suppresses it")

	groups = DetectGroups(existing, [][]int64{{1, 99}})
	assert.Len(t, groups, 1, "a set that does not cover the whole group does not suppress it")
}
