package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiskSelection(t *testing.T) {
	cases := []struct {
		input string
		want  []int
	}{
		{"3", []int{3}},
		{" 3 ", []int{3}},
		{"1-3", []int{1, 2, 3}},
		{"1,3,5", []int{1, 3, 5}},
		{"1 3 5", []int{1, 3, 5}},
		{"1,3-5,6", []int{1, 3, 4, 5, 6}},
		{"1 3-5 6", []int{1, 3, 4, 5, 6}},
		{"a", []int{1, 2, 3, 4, 5, 6}},
		{"ALL", []int{1, 2, 3, 4, 5, 6}},
		{"3,3,3", []int{3}},
		{"5,1", []int{1, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseDiskSelection(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseDiskSelectionRejects(t *testing.T) {
	for _, input := range []string{
		"", "  ", "0", "7", "1-7", "0-3", "3-1", "x", "1,x", "1--3", "b",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDiskSelection(input)
			require.Error(t, err)
		})
	}
}
