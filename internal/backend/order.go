package backend

import (
	"cmp"
	"slices"

	"github.com/hylla/kanri/internal/domain"
)

// sortByOrder orders cards by Order, then id.
func sortByOrder(cards []domain.Card) {
	slices.SortStableFunc(cards, func(a, b domain.Card) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.ID, b.Key.ID)
	})
}

// reorder moves key into statusID at index and renumbers the source and
// destination columns from zero. It returns the moved card and every card
// whose status or order changed.
func reorder(cards []domain.Card, key domain.CardKey, statusID int64, index int) (domain.Card, []domain.Card, bool) {
	byColumn := map[int64][]domain.Card{}
	var moved domain.Card
	found := false
	for _, c := range cards {
		if c.Key == key {
			moved, found = c, true
			continue
		}
		byColumn[c.StatusID] = append(byColumn[c.StatusID], c)
	}
	if !found {
		return domain.Card{}, nil, false
	}
	before := map[domain.CardKey]domain.Card{}
	for _, c := range cards {
		before[c.Key] = c
	}

	sourceID := moved.StatusID
	dest := byColumn[statusID]
	sortByOrder(dest)
	index = max(0, min(index, len(dest)))
	moved.StatusID = statusID
	dest = slices.Insert(dest, index, moved)
	byColumn[statusID] = dest

	var changed []domain.Card
	renumber := func(columnID int64) {
		col := byColumn[columnID]
		if columnID != statusID {
			sortByOrder(col)
		}
		for i := range col {
			col[i].Order = i
			prev := before[col[i].Key]
			if prev.Order != i || prev.StatusID != col[i].StatusID {
				changed = append(changed, col[i])
			}
			if col[i].Key == key {
				moved = col[i]
			}
		}
	}
	renumber(statusID)
	if sourceID != statusID {
		renumber(sourceID)
	}
	return moved, changed, true
}
