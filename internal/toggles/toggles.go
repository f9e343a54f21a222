// Package toggles holds the process-wide feature switches of the indexer.
// Every switch can be overridden for the scope of one request through the
// context.
package toggles

import (
	"context"
	"sync/atomic"
)

type Values struct {
	Indexing           bool `toml:"indexing_enabled"`
	TaskCreation       bool `toml:"task_creation_enabled"`
	Search             bool `toml:"search_enabled"`
	ProcessImmediately bool `toml:"process_immediately"`
}

func Defaults() Values {
	return Values{Indexing: true, TaskCreation: true, Search: true, ProcessImmediately: true}
}

type Set struct {
	v atomic.Pointer[Values]
}

func New(v Values) *Set {
	s := &Set{}
	s.Store(v)
	return s
}

func (s *Set) Store(v Values) { s.v.Store(&v) }

func (s *Set) Load() Values { return *s.v.Load() }

// Overrides replace process values for one request scope. Nil leaves the
// process value in place.
type Overrides struct {
	Indexing           *bool
	TaskCreation       *bool
	Search             *bool
	ProcessImmediately *bool
}

type overridesKey struct{}

// WithOverrides layers o over any overrides already present in ctx.
func WithOverrides(ctx context.Context, o Overrides) context.Context {
	if prev, ok := ctx.Value(overridesKey{}).(Overrides); ok {
		o = merge(prev, o)
	}
	return context.WithValue(ctx, overridesKey{}, o)
}

func OverridesFrom(ctx context.Context) Overrides {
	o, _ := ctx.Value(overridesKey{}).(Overrides)
	return o
}

func merge(base, top Overrides) Overrides {
	if top.Indexing == nil {
		top.Indexing = base.Indexing
	}
	if top.TaskCreation == nil {
		top.TaskCreation = base.TaskCreation
	}
	if top.Search == nil {
		top.Search = base.Search
	}
	if top.ProcessImmediately == nil {
		top.ProcessImmediately = base.ProcessImmediately
	}
	return top
}

// Effective resolves the switches for ctx.
func (s *Set) Effective(ctx context.Context) Values {
	v := s.Load()
	o := OverridesFrom(ctx)
	pick(&v.Indexing, o.Indexing)
	pick(&v.TaskCreation, o.TaskCreation)
	pick(&v.Search, o.Search)
	pick(&v.ProcessImmediately, o.ProcessImmediately)
	return v
}

func pick(dst *bool, o *bool) {
	if o != nil {
		*dst = *o
	}
}

func (s *Set) IndexingEnabled(ctx context.Context) bool { return s.Effective(ctx).Indexing }

func (s *Set) TaskCreationEnabled(ctx context.Context) bool { return s.Effective(ctx).TaskCreation }

func (s *Set) SearchEnabled(ctx context.Context) bool { return s.Effective(ctx).Search }

func (s *Set) ProcessImmediately(ctx context.Context) bool {
	return s.Effective(ctx).ProcessImmediately
}

func Bool(b bool) *bool { return &b }
