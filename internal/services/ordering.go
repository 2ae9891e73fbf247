package services

import (
	"fmt"

	"github.com/paulexconde/surveyflow/pkg/fault"
)

// OrderingAssignment moves one section to a new ordering.
type OrderingAssignment struct {
	SectionID int64 `db:"id"`
	Ordering  int   `db:"ordering"`
}

// NextOrdering returns the ordering that appends a section after all existing ones.
func NextOrdering(sections []Section) int {
	next := 0
	for _, s := range sections {
		if s.Ordering >= next {
			next = s.Ordering + 1
		}
	}
	return next
}

// PlanInsert makes room for a new section at the 0-based position among the existing
// sections. It returns the new section's ordering and the moves for existing sections whose
// ordering changes; orderings end up dense (0..n).
func PlanInsert(sections []Section, position int) (int, []OrderingAssignment, error) {
	ordered := orderedCopy(sections)
	if position < 0 || position > len(ordered) {
		return 0, nil, fault.NewClientError(
			fmt.Sprintf("position %d out of range 0..%d", position, len(ordered)), fault.ErrInvalidOrdering)
	}

	var moves []OrderingAssignment
	for i, s := range ordered {
		want := i
		if i >= position {
			want = i + 1
		}
		if s.Ordering != want {
			moves = append(moves, OrderingAssignment{SectionID: s.ID, Ordering: want})
		}
	}
	return position, moves, nil
}

// PlanReorder renumbers a survey's sections to follow ids, which must list every section
// exactly once.
func PlanReorder(sections []Section, ids []int64) ([]OrderingAssignment, error) {
	if len(ids) != len(sections) {
		return nil, fault.NewClientError(
			fmt.Sprintf("expected %d section ids, got %d", len(sections), len(ids)), fault.ErrInvalidOrdering)
	}

	known := make(map[int64]int, len(sections))
	for _, s := range sections {
		known[s.ID] = s.Ordering
	}

	seen := make(map[int64]bool, len(ids))
	moves := make([]OrderingAssignment, 0, len(ids))
	for i, id := range ids {
		if _, ok := known[id]; !ok {
			return nil, fault.NewClientError(fmt.Sprintf("section %d is not part of the survey", id), fault.ErrInvalidOrdering)
		}
		if seen[id] {
			return nil, fault.NewClientError(fmt.Sprintf("section %d listed twice", id), fault.ErrInvalidOrdering)
		}
		seen[id] = true
		moves = append(moves, OrderingAssignment{SectionID: id, Ordering: i})
	}
	return moves, nil
}

func orderedCopy(sections []Section) []Section {
	s := Survey{Sections: sections}
	ordered := make([]Section, 0, len(sections))
	for _, sec := range s.OrderedSections() {
		ordered = append(ordered, *sec)
	}
	return ordered
}
