package authorization

import (
	"context"
	"errors"

	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
)

// Service answers role capability questions against the casbin policy.
type Service interface {
	Authorize(ctx context.Context, user accountdomain.User, object string, action string) error
	Can(role accountdomain.Role, object string, action string) bool
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
