package search

import (
	"github.com/poiesic/recall/core"
)

// Filter decides whether a resolved document is eligible for a query.
// Filters that can be malformed also implement Validate, which the
// Searcher calls before touching the index.
type Filter interface {
	Match(doc *core.Document) bool
}

type validator interface {
	Validate() error
}

// FilterFunc adapts an ordinary function to the Filter interface.
type FilterFunc func(doc *core.Document) bool

// Match calls f(doc).
func (f FilterFunc) Match(doc *core.Document) bool {
	return f(doc)
}

type ownerFilter string

func (o ownerFilter) Match(doc *core.Document) bool { return doc.OwnerID == string(o) }

func (o ownerFilter) Validate() error {
	if o == "" {
		return core.ErrOwnerRequired
	}
	return nil
}

// Owner keeps documents belonging to ownerID.
func Owner(ownerID string) Filter {
	return ownerFilter(ownerID)
}

type createdFilter core.DateRange

func (c createdFilter) Match(doc *core.Document) bool {
	return core.DateRange(c).Contains(doc.CreatedAt)
}

func (c createdFilter) Validate() error {
	return core.ValidateDateRange(core.DateRange(c))
}

// Created keeps documents created within r, inclusive on both ends.
func Created(r core.DateRange) Filter {
	return createdFilter(r)
}

type tagFilter []string

func (t tagFilter) Match(doc *core.Document) bool { return doc.HasTags(t) }

// Tags keeps documents carrying every one of tags.
func Tags(tags ...string) Filter {
	return tagFilter(tags)
}

type allFilter []Filter

func (a allFilter) Match(doc *core.Document) bool {
	for _, f := range a {
		if !f.Match(doc) {
			return false
		}
	}
	return true
}

func (a allFilter) Validate() error {
	for _, f := range a {
		if err := validateFilter(f); err != nil {
			return err
		}
	}
	return nil
}

// All keeps documents matched by every filter. Nil filters are skipped.
// All() matches everything.
func All(filters ...Filter) Filter {
	out := make(allFilter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func validateFilter(f Filter) error {
	if v, ok := f.(validator); ok {
		return v.Validate()
	}
	return nil
}
