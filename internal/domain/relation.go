package domain

import (
	"fmt"
	"strings"
	"time"
)

// RelationType identifies the kind of source-acts-on-target fact.
type RelationType string

const (
	RelationTypeUserLikeContent RelationType = "user_like_content"
)

func (t RelationType) String() string { return string(t) }

func (t RelationType) IsValid() bool {
	switch t {
	case RelationTypeUserLikeContent:
		return true
	}
	return false
}

func ParseRelationTypeFromString(s string) (RelationType, error) {
	rt := RelationType(strings.ToLower(strings.TrimSpace(s)))
	if !rt.IsValid() {
		return "", fmt.Errorf("%w: invalid relation type %q", ErrValidation, s)
	}
	return rt, nil
}

// RelationRecord is one relation row as read from the relation store.
// An absent id is represented by the empty string.
type RelationRecord struct {
	SourceID     string
	TargetID     string
	RelationType RelationType
	CreateTime   *time.Time
}

// RelationFilter narrows count and page queries to a creation window.
// The zero value selects every record.
type RelationFilter struct {
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

func (f RelationFilter) Validate() error {
	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedTo.Before(*f.CreatedFrom) {
		return fmt.Errorf("%w: created window end is before its start", ErrValidation)
	}
	return nil
}
