package model

// RootFirst is an ancestor path ordered from the owning project down to the
// entity itself. Traversal queries return paths in this orientation.
type RootFirst []Item

// Path is an ancestor path ordered from the entity itself up to its owning
// project. Live events carry paths in this orientation and the reconciler
// only accepts this one.
type Path []Item

// LeafFirst reverses p into a leaf-first Path. It never modifies p.
func (p RootFirst) LeafFirst() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	for i, item := range p {
		out[len(p)-1-i] = item
	}
	return out
}

// RootFirst reverses p into a root-first path.
func (p Path) RootFirst() RootFirst {
	if p == nil {
		return nil
	}
	out := make(RootFirst, len(p))
	for i, item := range p {
		out[len(p)-1-i] = item
	}
	return out
}

// Self returns the entity the path belongs to.
func (p Path) Self() (Item, bool) {
	if len(p) == 0 {
		return Item{}, false
	}
	return p[0], true
}

// Parent returns the immediate parent of the entity.
func (p Path) Parent() (Item, bool) {
	if len(p) < 2 {
		return Item{}, false
	}
	return p[1], true
}

// Project returns the owning project, the last element of the path.
func (p Path) Project() (Item, bool) {
	if len(p) == 0 {
		return Item{}, false
	}
	return p[len(p)-1], true
}
