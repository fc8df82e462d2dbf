package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProrationCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"proration", "--old", "30", "--new", "60", "--start", "2026-01-01", "--end", "2026-01-31", "--change", "2026-01-16"})
	require.NoError(t, cmd.Execute())

	var res map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.EqualValues(t, 30, res["total_days"])
	assert.EqualValues(t, 15, res["remaining_days"])
	assert.Equal(t, "15", res["amount"])
}

func TestProrationCommandRejectsBadInput(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"proration", "--old", "abc", "--new", "60", "--start", "2026-01-01", "--end", "2026-01-31"})
	assert.Error(t, cmd.Execute())

	cmd.SetArgs([]string{"proration", "--old", "30", "--new", "60", "--start", "2026-01-31", "--end", "2026-01-01"})
	assert.Error(t, cmd.Execute())
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2026-03-04T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 10, d.Hour())

	_, err = parseDate("04/03/2026")
	assert.Error(t, err)
}
