package domain

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// MembershipListener is told that a user joined or left a company user group.
type MembershipListener func(ctx context.Context, groupID, userID snowflake.ID)

// MembershipEvents fans company user group membership changes out to listeners.
// A nil *MembershipEvents drops every event.
type MembershipEvents struct {
	mu        sync.RWMutex
	listeners []MembershipListener
}

func NewMembershipEvents() *MembershipEvents {
	return &MembershipEvents{}
}

func (e *MembershipEvents) Subscribe(fn MembershipListener) {
	if e == nil || fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *MembershipEvents) Publish(ctx context.Context, groupID, userID snowflake.ID) {
	if e == nil {
		return
	}
	e.mu.RLock()
	listeners := append([]MembershipListener(nil), e.listeners...)
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, groupID, userID)
	}
}
