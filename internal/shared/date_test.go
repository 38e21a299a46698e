package shared

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateJSONRoundTrip(t *testing.T) {
	var payload struct {
		Due  Date  `json:"due"`
		Opt  *Date `json:"opt"`
		Zero Date  `json:"zero"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2026-02-28","opt":"2026-03-01T18:30:00Z"}`), &payload))
	assert.Equal(t, "2026-02-28", payload.Due.String())
	require.NotNil(t, payload.Opt)
	assert.Equal(t, "2026-03-01", payload.Opt.String())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2026-02-28","opt":"2026-03-01","zero":null}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"due":"28/02/2026"}`), &payload))
}

func TestDateArithmetic(t *testing.T) {
	d, err := ParseDate("2026-01-30")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-02", d.AddDays(3).String())
	assert.Equal(t, 3, d.DaysUntil(d.AddDays(3)))
	assert.Equal(t, -2, d.DaysUntil(d.AddDays(-2)))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2026, 5, 6, 13, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-05-06", d.String())
	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())
	assert.Error(t, d.Scan(42))

	v, err := Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRoundingHelpers(t *testing.T) {
	assert.Equal(t, 10.13, RoundCents(10.126))
	assert.Equal(t, 2.0, RoundCents(1.999))
	assert.Equal(t, 33.3, Percent(1, 3))
	assert.Equal(t, 66.7, Percent(2, 3))
	assert.Equal(t, 0.0, Percent(5, 0))
}
