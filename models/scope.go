// Package models contains domain entities and business models for the randomization service
package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ScopeKind identifies which participant subset a run or round applies to
type ScopeKind string

const (
	ScopeKindClass ScopeKind = "class"
	ScopeKindGroup ScopeKind = "group"
	ScopeKindTeam  ScopeKind = "team"
)

// String returns the string representation of the scope kind
func (k ScopeKind) String() string {
	return string(k)
}

// Valid checks if the scope kind is valid
func (k ScopeKind) Valid() bool {
	switch k {
	case ScopeKindClass, ScopeKindGroup, ScopeKindTeam:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ScopeKind
func (k *ScopeKind) Scan(value any) error {
	if value == nil {
		*k = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*k = ScopeKind(v)
	case []byte:
		*k = ScopeKind(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ScopeKind", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ScopeKind
func (k ScopeKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid ScopeKind: %s", k)
	}
	return string(k), nil
}

// Scope identifies the participant subset (whole class, a group, or a team
// within a group) a run, round, or instance is bound to. It is copied onto
// each record at creation time and never re-resolved afterwards.
type Scope struct {
	Kind            ScopeKind `gorm:"column:kind;type:scope_kind;not null" json:"kind"`
	TargetID        uuid.UUID `gorm:"column:target_id;type:uuid;not null" json:"target_id"`
	DisplayName     string    `gorm:"column:display_name;size:255;not null" json:"display_name"`
	ParentGroupName *string   `gorm:"column:parent_group_name;size:255" json:"parent_group_name,omitempty"`
}

// Valid checks the tagged-union constraint: ParentGroupName is required for
// team scopes and must be absent otherwise.
func (s Scope) Valid() bool {
	if !s.Kind.Valid() || s.TargetID == uuid.Nil {
		return false
	}
	if s.Kind == ScopeKindTeam {
		return s.ParentGroupName != nil && *s.ParentGroupName != ""
	}
	return s.ParentGroupName == nil
}

// Matches reports whether the scope refers to the same participant subset
func (s Scope) Matches(kind ScopeKind, targetID uuid.UUID) bool {
	return s.Kind == kind && s.TargetID == targetID
}
