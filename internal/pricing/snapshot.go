package pricing

import (
	"slices"

	"jewelry-backend/internal/models"
)

// Snapshot is an immutable view of the catalog rows a composition needs.
// Deleted materials may be present; the pricer decides what to do with them.
type Snapshot struct {
	materials map[uint]models.Material
}

func NewSnapshot(materials ...models.Material) Snapshot {
	s := Snapshot{materials: make(map[uint]models.Material, len(materials))}
	for _, m := range materials {
		m.Variants = slices.Clone(m.Variants)
		s.materials[m.ID] = m
	}
	return s
}

func (s Snapshot) Material(id uint) (models.Material, bool) {
	m, ok := s.materials[id]
	return m, ok
}

func (s Snapshot) Len() int {
	return len(s.materials)
}

// MaterialRefs returns the distinct material ids used by lines, in first-seen order.
func MaterialRefs(lines []models.CompositionLine) []uint {
	seen := make(map[uint]struct{}, len(lines))
	refs := make([]uint, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.MaterialRef]; ok {
			continue
		}
		seen[l.MaterialRef] = struct{}{}
		refs = append(refs, l.MaterialRef)
	}
	return refs
}
