package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultItemsPerRound(t *testing.T) {
	cases := []struct {
		totalItems, totalRounds, want int
	}{
		{10, 5, 2},
		{10, 3, 4},
		{5, 3, 2},
		{1, 1, 1},
		{5, 0, 5},
	}
	for _, c := range cases {
		require.Equal(t, c.want, DefaultItemsPerRound(c.totalItems, c.totalRounds))
	}
}
