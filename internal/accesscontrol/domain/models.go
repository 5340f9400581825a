package domain

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
)

type MemberKind string

const (
	MemberUser             MemberKind = "user"
	MemberCompany          MemberKind = "company"
	MemberCompanyUserGroup MemberKind = "company_user_group"
)

func (k MemberKind) Valid() bool {
	switch k {
	case MemberUser, MemberCompany, MemberCompanyUserGroup:
		return true
	}
	return false
}

// MemberRef identifies whoever an access-control group is granted to.
type MemberRef struct {
	Kind MemberKind   `json:"kind"`
	ID   snowflake.ID `json:"id"`
}

func UserRef(id snowflake.ID) MemberRef    { return MemberRef{Kind: MemberUser, ID: id} }
func CompanyRef(id snowflake.ID) MemberRef { return MemberRef{Kind: MemberCompany, ID: id} }
func GroupRef(id snowflake.ID) MemberRef   { return MemberRef{Kind: MemberCompanyUserGroup, ID: id} }

func (r MemberRef) Valid() bool {
	return r.Kind.Valid() && r.ID != 0
}

// Group is a product access-control group. CompanyID is nil for platform-wide groups.
type Group struct {
	ID          snowflake.ID  `json:"id"`
	CompanyID   *snowflake.ID `json:"company_id,omitempty"`
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	Description string        `json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Tag is the subset of a category tag needed for tenancy checks.
type Tag struct {
	ID        snowflake.ID
	CompanyID *snowflake.ID
}

// TagSet is either a finite set of category tag ids or the sentinel covering every tag.
type TagSet struct {
	all bool
	ids map[snowflake.ID]struct{}
}

func AllTags() TagSet {
	return TagSet{all: true}
}

func NewTagSet(ids ...snowflake.ID) TagSet {
	set := TagSet{ids: make(map[snowflake.ID]struct{}, len(ids))}
	for _, id := range ids {
		set.ids[id] = struct{}{}
	}
	return set
}

func (s TagSet) All() bool { return s.all }

func (s TagSet) Contains(id snowflake.ID) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

func (s TagSet) Len() int { return len(s.ids) }

// IsEmpty is true for a finite set without tags. Such a user only sees untagged products.
func (s TagSet) IsEmpty() bool {
	return !s.all && len(s.ids) == 0
}

// IDs returns the finite members in ascending order; nil for the sentinel.
func (s TagSet) IDs() []snowflake.ID {
	if s.all {
		return nil
	}
	out := make([]snowflake.ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
