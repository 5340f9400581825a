package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/merchline/internal/catalog/domain"
)

var errInvalidPriceBucket = errors.New("invalid_price_bucket")

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalDecimal(value string) (*decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

func parseSnowflakeIDs(values []string) ([]snowflake.ID, error) {
	out := make([]snowflake.ID, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			id, err := parseOptionalSnowflakeID(part)
			if err != nil {
				return nil, err
			}
			if id != nil {
				out = append(out, *id)
			}
		}
	}
	return out, nil
}

// parsePriceBucket reads "min-max"; either side may be empty for an open bound.
func parsePriceBucket(value string) (catalogdomain.PriceRange, error) {
	lower, upper, ok := strings.Cut(strings.TrimSpace(value), "-")
	if !ok {
		return catalogdomain.PriceRange{}, errInvalidPriceBucket
	}
	lo, err := parseOptionalDecimal(lower)
	if err != nil {
		return catalogdomain.PriceRange{}, errInvalidPriceBucket
	}
	hi, err := parseOptionalDecimal(upper)
	if err != nil {
		return catalogdomain.PriceRange{}, errInvalidPriceBucket
	}
	bucket := catalogdomain.PriceRange{Min: lo, Max: hi}
	if bucket.IsZero() {
		return catalogdomain.PriceRange{}, errInvalidPriceBucket
	}
	if lo != nil && hi != nil && lo.GreaterThan(*hi) {
		return catalogdomain.PriceRange{}, errInvalidPriceBucket
	}
	return bucket, nil
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(c.Param(name))
	if err != nil || id == nil {
		AbortWithError(c, ErrNotFound)
		return 0, false
	}
	return *id, true
}
