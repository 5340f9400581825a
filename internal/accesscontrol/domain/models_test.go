package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestTagSet(t *testing.T) {
	all := AllTags()
	assert.True(t, all.All())
	assert.False(t, all.IsEmpty())
	assert.Nil(t, all.IDs())

	set := NewTagSet(3, 1, 3)
	assert.Equal(t, []snowflake.ID{1, 3}, set.IDs())
	assert.True(t, set.Contains(1))
	assert.False(t, set.Contains(2))
	assert.Equal(t, 2, set.Len())

	assert.True(t, NewTagSet().IsEmpty())
	assert.True(t, TagSet{}.IsEmpty())
}

func TestMemberRefValid(t *testing.T) {
	assert.True(t, UserRef(1).Valid())
	assert.True(t, GroupRef(1).Valid())
	assert.False(t, CompanyRef(0).Valid())
	assert.False(t, MemberRef{Kind: "team", ID: 1}.Valid())
}
