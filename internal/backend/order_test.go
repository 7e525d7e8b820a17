package backend

import (
	"testing"

	"github.com/hylla/kanri/internal/domain"
)

func TestReorderWithinColumn(t *testing.T) {
	cards := []domain.Card{
		{Key: domain.StoryKey(1), StatusID: 10, Order: 0},
		{Key: domain.StoryKey(2), StatusID: 10, Order: 1},
		{Key: domain.StoryKey(3), StatusID: 10, Order: 2},
	}
	moved, changed, ok := reorder(cards, domain.StoryKey(3), 10, 0)
	if !ok {
		t.Fatal("expected card to be found")
	}
	if moved.Order != 0 {
		t.Fatalf("expected moved order 0, got %d", moved.Order)
	}
	if len(changed) != 3 {
		t.Fatalf("expected every card renumbered, got %#v", changed)
	}
}

func TestReorderClampsIndexAndSkipsUnchanged(t *testing.T) {
	cards := []domain.Card{
		{Key: domain.StoryKey(1), StatusID: 10, Order: 0},
		{Key: domain.StoryKey(2), StatusID: 20, Order: 0},
	}
	moved, changed, ok := reorder(cards, domain.StoryKey(1), 20, 50)
	if !ok {
		t.Fatal("expected card to be found")
	}
	if moved.StatusID != 20 || moved.Order != 1 {
		t.Fatalf("unexpected moved card %#v", moved)
	}
	if len(changed) != 1 || changed[0].Key != domain.StoryKey(1) {
		t.Fatalf("expected only the moved card to change, got %#v", changed)
	}
	if _, _, ok := reorder(cards, domain.TaskKey(1), 20, 0); ok {
		t.Fatal("expected unknown key to report not found")
	}
}
