package board

import (
	"context"
	"errors"
	"fmt"
	"io"

	charmLog "github.com/charmbracelet/log"

	"github.com/hylla/kanri/internal/domain"
)

// ErrUnknownCard reports a drag identifier with no card on the board.
var ErrUnknownCard = errors.New("card not on board")

// Logger is satisfied by *charmLog.Logger.
type Logger interface {
	Info(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

// Mover persists a card move.
type Mover interface {
	MoveCard(ctx context.Context, key domain.CardKey, statusID int64, order int) (domain.Card, error)
}

// Location is a column plus an index within that column.
type Location struct {
	ColumnID int64
	Index    int
}

// DropEvent is emitted when a drag ends. Destination is nil when the card
// was dropped outside any column or the drag was cancelled.
type DropEvent struct {
	DraggableID string
	Source      Location
	Destination *Location
}

// Outcome describes what Drop did.
type Outcome int

const (
	// OutcomeIgnored means no request was sent and state is unchanged.
	OutcomeIgnored Outcome = iota
	// OutcomeMoved means the server acknowledged and the store was updated.
	OutcomeMoved
	// OutcomeFailed means the request failed and state is unchanged.
	OutcomeFailed
)

// Coordinator turns drop events into one persistence call plus a store mutation.
//
// Moves wait for the server: the store changes only after the PUT succeeds,
// so there is nothing to roll back on failure. Concurrent drops are not
// coordinated; whichever response arrives last decides the final state.
type Coordinator struct {
	store  *Store
	mover  Mover
	logger Logger
}

// NewCoordinator wires a coordinator. A nil logger discards output.
func NewCoordinator(store *Store, mover Mover, logger Logger) *Coordinator {
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	return &Coordinator{store: store, mover: mover, logger: logger}
}

// Drop handles one drag-end event.
func (c *Coordinator) Drop(ctx context.Context, ev DropEvent) (Outcome, error) {
	if ev.Destination == nil || *ev.Destination == ev.Source {
		return OutcomeIgnored, nil
	}
	dest := *ev.Destination

	key, err := domain.ParseCardKey(ev.DraggableID)
	if err != nil {
		c.logger.Error("drop rejected", "draggable_id", ev.DraggableID, "err", err)
		return OutcomeIgnored, err
	}
	src, ok := c.store.LocationOf(key)
	if !ok {
		c.logger.Error("drop rejected", "card", key.String(), "err", ErrUnknownCard)
		return OutcomeIgnored, fmt.Errorf("%s: %w", key, ErrUnknownCard)
	}

	order := c.store.KindIndex(key, dest.ColumnID, dest.Index)
	if src.ColumnID == dest.ColumnID && order == c.store.KindIndex(key, src.ColumnID, src.Index) {
		// Same place among cards of its kind.
		return OutcomeIgnored, nil
	}
	saved, err := c.mover.MoveCard(ctx, key, dest.ColumnID, order)
	if err != nil {
		c.logger.Error("move card failed", "card", key.String(), "dest_column", dest.ColumnID, "dest_index", dest.Index, "order", order, "err", err)
		return OutcomeFailed, fmt.Errorf("move %s: %w", key.Ref(), err)
	}
	c.store.ApplyMove(key, dest.ColumnID, order)
	if saved.Key == key {
		c.store.UpdateCard(saved)
	}
	c.logger.Info("card moved", "card", key.String(), "dest_column", dest.ColumnID, "order", order)
	return OutcomeMoved, nil
}

// MoveToColumnEnd drops a card after the last card of another column.
func (c *Coordinator) MoveToColumnEnd(ctx context.Context, key domain.CardKey, columnID int64) (Outcome, error) {
	src, ok := c.store.LocationOf(key)
	if !ok {
		return OutcomeIgnored, fmt.Errorf("%s: %w", key, ErrUnknownCard)
	}
	index := len(c.store.CardsForColumn(columnID))
	if src.ColumnID == columnID {
		index--
	}
	return c.Drop(ctx, DropEvent{
		DraggableID: key.String(),
		Source:      src,
		Destination: &Location{ColumnID: columnID, Index: index},
	})
}
