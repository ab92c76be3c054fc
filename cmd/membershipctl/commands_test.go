package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		value   string
		want    time.Time
		wantErr bool
	}{
		{value: "72h", want: now.Add(-72 * time.Hour)},
		{value: "2025-06-01", want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{value: "2025-06-01T09:00:00+09:00", want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{value: "-1h", wantErr: true},
		{value: "last week", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseSince(tt.value, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"metrics", "backfill", "migrate"})

	backfill, _, err := root.Find([]string{"backfill"})
	require.NoError(t, err)
	assert.Equal(t, "72h", backfill.Flag("since").DefValue)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]int{"inserted": 2}))
	assert.JSONEq(t, `{"inserted":2}`, buf.String())
}
