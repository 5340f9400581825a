package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
)

// Line is one requested order line. ArticleNumber is the product's merchant SKU.
type Line struct {
	ArticleNumber string `json:"articleNumber"`
	Quantity      int    `json:"quantity"`
	ItemName      string `json:"itemName"`
}

// LineBounds reports the effective quantity window applied to a line.
type LineBounds struct {
	ArticleNumber string `json:"articleNumber"`
	Quantity      int    `json:"quantity"`
	Min           int    `json:"min"`
	Max           int    `json:"max"`
	// MaxEnforced is false when the product accepts quantities above Max.
	MaxEnforced bool `json:"maxEnforced"`
	Graduated   bool `json:"graduated"`
}

type ValidationResult struct {
	Lines         []LineBounds `json:"lines"`
	TotalQuantity int          `json:"totalQuantity"`
}

// Scope names the ordering actor. Only products the actor can see in the catalog resolve.
// CompanyID narrows an admin to one company's products; non-admins are always held to
// their own company.
type Scope struct {
	Actor     accountdomain.User
	CompanyID *snowflake.ID
}

type Service interface {
	// ValidateLines checks every line in order and stops at the first failure.
	ValidateLines(ctx context.Context, scope Scope, lines []Line) (ValidationResult, error)
}

var (
	ErrEmptyOrder           = errors.New("empty_order")
	ErrNotFound             = errors.New("article_not_found")
	ErrQuantityBelowMinimum = errors.New("quantity_below_minimum")
	ErrQuantityAboveMaximum = errors.New("quantity_above_maximum")
)

// LineError describes the order line that failed validation. It unwraps to one of
// ErrNotFound, ErrQuantityBelowMinimum or ErrQuantityAboveMaximum.
type LineError struct {
	ArticleNumber string
	ItemName      string
	Quantity      int
	Bound         int
	Reason        error
}

func (e *LineError) Error() string {
	switch e.Reason {
	case ErrQuantityBelowMinimum:
		return fmt.Sprintf("article %s: quantity %d is below the minimum of %d", e.ArticleNumber, e.Quantity, e.Bound)
	case ErrQuantityAboveMaximum:
		return fmt.Sprintf("article %s: quantity %d exceeds the maximum of %d", e.ArticleNumber, e.Quantity, e.Bound)
	case ErrNotFound:
		return fmt.Sprintf("article %s not found", e.ArticleNumber)
	default:
		return fmt.Sprintf("article %s: %v", e.ArticleNumber, e.Reason)
	}
}

func (e *LineError) Unwrap() error {
	return e.Reason
}
