package option

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	assert.Equal(t, SortAsc, ValidateSortOrder(" asc "))
	assert.Equal(t, SortDesc, ValidateSortOrder("desc"))
	assert.Equal(t, SortDesc, ValidateSortOrder(""))
	assert.Equal(t, SortDesc, ValidateSortOrder("ASC; DROP TABLE products"))
}

func TestValidateSortField(t *testing.T) {
	allowed := map[string]string{"name": "LOWER(p.name)", "createdAt": "p.created_at"}
	assert.Equal(t, "LOWER(p.name)", ValidateSortField("name", allowed, "p.created_at"))
	assert.Equal(t, "p.created_at", ValidateSortField("", allowed, "p.created_at"))
	assert.Equal(t, "p.created_at", ValidateSortField("p.id; --", allowed, "p.created_at"))
}
