// Package board holds the in-memory board state for one project and the
// flows that mutate it: drag-and-drop moves and card creation.
package board

import (
	"slices"
	"sync"

	"github.com/hylla/kanri/internal/domain"
)

// Store holds the columns and cards of the active project.
type Store struct {
	mu         sync.RWMutex
	projectID  int64
	columns    []domain.Column
	cards      []domain.Card
	generation uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Reset replaces the whole board and bumps the generation.
func (s *Store) Reset(projectID int64, columns []domain.Column, cards []domain.Card) uint64 {
	cols := slices.Clone(columns)
	domain.SortColumns(cols)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectID = projectID
	s.columns = cols
	s.cards = cloneCards(cards)
	s.generation++
	return s.generation
}

// Clear discards the board, e.g. on navigation away or sign-out.
func (s *Store) Clear() {
	s.Reset(0, nil, nil)
}

// Generation identifies the current board load.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ProjectID returns the loaded project, 0 when empty.
func (s *Store) ProjectID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectID
}

// Columns returns the columns in render order.
func (s *Store) Columns() []domain.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.columns)
}

// Column looks up one column.
func (s *Store) Column(id int64) (domain.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.columns {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Column{}, false
}

// Cards returns every card in list order.
func (s *Store) Cards() []domain.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCards(s.cards)
}

// CardsForColumn returns the cards whose column reference is columnID, in list order.
func (s *Store) CardsForColumn(columnID int64) []domain.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Card, 0)
	for _, c := range s.cards {
		if c.StatusID == columnID {
			out = append(out, cloneCard(c))
		}
	}
	return out
}

// Card looks up one card by key.
func (s *Store) Card(key domain.CardKey) (domain.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(key)
	if idx < 0 {
		return domain.Card{}, false
	}
	return cloneCard(s.cards[idx]), true
}

// KindIndex converts a drop slot counted over every card of columnID into the
// number of cards of key's kind ahead of that slot. The server orders stories
// and tasks independently, so this is the order a move request carries.
func (s *Store) KindIndex(key domain.CardKey, columnID int64, index int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, same := 0, 0
	for _, c := range s.cards {
		if c.StatusID != columnID || c.Key == key {
			continue
		}
		if pos >= index {
			break
		}
		pos++
		if c.Key.Kind == key.Kind {
			same++
		}
	}
	return same
}

// ApplyMove sets the card's column reference and places it at kindIndex among
// the destination column's cards of the same kind. Within a column stories
// stay ahead of tasks, and Order is renumbered per kind in the source and
// destination columns the way the server does. It reports false when no card
// matches.
func (s *Store) ApplyMove(key domain.CardKey, destColumnID int64, kindIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(key)
	if idx < 0 {
		return false
	}
	card := s.cards[idx]
	sourceColumnID := card.StatusID
	rest := slices.Delete(slices.Clone(s.cards), idx, idx+1)

	card.StatusID = destColumnID
	s.cards = slices.Insert(rest, slotFor(rest, destColumnID, key.Kind, max(kindIndex, 0)), card)
	s.renumber(destColumnID, key.Kind)
	if sourceColumnID != destColumnID {
		s.renumber(sourceColumnID, key.Kind)
	}
	return true
}

// InsertCard makes card the last card of its kind in its column.
func (s *Store) InsertCard(card domain.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := slotFor(s.cards, card.StatusID, card.Key.Kind, len(s.cards))
	s.cards = slices.Insert(s.cards, at, cloneCard(card))
}

// slotFor returns the list position for the kindIndex-th card of kind in
// columnID, clamped to the end of that kind's run. Stories sort ahead of tasks.
func slotFor(cards []domain.Card, columnID int64, kind domain.CardKind, kindIndex int) int {
	seen, lastSame, firstTask, lastInColumn := 0, -1, -1, -1
	for i, c := range cards {
		if c.StatusID != columnID {
			continue
		}
		lastInColumn = i
		if c.Key.Kind == domain.CardKindTask && firstTask < 0 {
			firstTask = i
		}
		if c.Key.Kind != kind {
			continue
		}
		if seen == kindIndex {
			return i
		}
		seen++
		lastSame = i
	}
	switch {
	case lastSame >= 0:
		return lastSame + 1
	case kind == domain.CardKindStory && firstTask >= 0:
		return firstTask
	case lastInColumn >= 0:
		return lastInColumn + 1
	}
	return len(cards)
}

func (s *Store) renumber(columnID int64, kind domain.CardKind) {
	n := 0
	for i := range s.cards {
		if s.cards[i].StatusID == columnID && s.cards[i].Key.Kind == kind {
			s.cards[i].Order = n
			n++
		}
	}
}

// UpdateCard replaces the matching card in place.
func (s *Store) UpdateCard(card domain.Card) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(card.Key)
	if idx < 0 {
		return false
	}
	s.cards[idx] = cloneCard(card)
	return true
}

// RemoveCard deletes the matching card.
func (s *Store) RemoveCard(key domain.CardKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(key)
	if idx < 0 {
		return false
	}
	s.cards = slices.Delete(s.cards, idx, idx+1)
	return true
}

// LocationOf returns the column and in-column index of a card.
func (s *Store) LocationOf(key domain.CardKey) (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(key)
	if idx < 0 {
		return Location{}, false
	}
	columnID := s.cards[idx].StatusID
	pos := 0
	for _, c := range s.cards[:idx] {
		if c.StatusID == columnID {
			pos++
		}
	}
	return Location{ColumnID: columnID, Index: pos}, true
}

func (s *Store) indexOf(key domain.CardKey) int {
	return slices.IndexFunc(s.cards, func(c domain.Card) bool { return c.Key == key })
}

func cloneCards(in []domain.Card) []domain.Card {
	out := make([]domain.Card, 0, len(in))
	for _, c := range in {
		out = append(out, cloneCard(c))
	}
	return out
}

func cloneCard(c domain.Card) domain.Card {
	c.AssigneeIDs = slices.Clone(c.AssigneeIDs)
	c.Attachments = slices.Clone(c.Attachments)
	return c
}
