package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/klear-accumulate/internal/paper"
)

func TestParseListings(t *testing.T) {
	listings, err := parseListings("TESTEX", "FOOBAR:5000, BAZ:120")
	require.NoError(t, err)
	assert.Equal(t, []paper.Listing{
		{Venue: "TESTEX", Symbol: "FOOBAR", Price: 5000},
		{Venue: "TESTEX", Symbol: "BAZ", Price: 120},
	}, listings)

	_, err = parseListings("TESTEX", "FOOBAR")
	assert.Error(t, err)
	_, err = parseListings("TESTEX", "FOOBAR:cheap")
	assert.Error(t, err)
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("VENUE_SECRET", "s3cret")
	t.Setenv("VENUE_ACCOUNTS", "EXB1, EXB2")
	t.Setenv("VENUE_DSN", "venue.db")

	opts, err := optionsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", opts.Secret)
	assert.Equal(t, []string{"EXB1", "EXB2"}, opts.Accounts)
	assert.Equal(t, "venue.db", opts.DSN)
}
