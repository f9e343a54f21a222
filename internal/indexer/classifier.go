package indexer

import (
	"context"

	"indexq/internal/ports"
)

var _ ports.IndexClassifier = StaticClassifier{}

// StaticClassifier owns a fixed set of index ids. An empty set owns every
// index.
type StaticClassifier struct {
	owned map[int64]struct{}
}

func NewStaticClassifier(ids []int64) StaticClassifier {
	c := StaticClassifier{owned: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		c.owned[id] = struct{}{}
	}
	return c
}

func (c StaticClassifier) IsOwnedKind(_ context.Context, relatedObjectID int64) (bool, error) {
	if len(c.owned) == 0 {
		return true, nil
	}
	_, ok := c.owned[relatedObjectID]
	return ok, nil
}
