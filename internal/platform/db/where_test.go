package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhereBuildsPlaceholders(t *testing.T) {
	var w Where
	w.Add("status = ?", "open").
		AddIf(false, "owner_id = ?", int64(3)).
		Add("(name ILIKE ? OR email ILIKE ?)", "%a%", "%a%")

	assert.Equal(t, " WHERE status = $1 AND (name ILIKE $2 OR email ILIKE $3)", w.SQL())
	assert.Equal(t, []any{"open", "%a%", "%a%"}, w.Args())

	clause, args := w.Page(20, 40)
	assert.Equal(t, " LIMIT $4 OFFSET $5", clause)
	assert.Equal(t, []any{"open", "%a%", "%a%", 20, 40}, args)
	assert.Len(t, w.Args(), 3)
}

func TestWhereEmpty(t *testing.T) {
	var w Where
	assert.Equal(t, "", w.SQL())
	clause, args := w.Page(10, 0)
	assert.Equal(t, " LIMIT $1 OFFSET $2", clause)
	assert.Equal(t, []any{10, 0}, args)
}
