package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRows(t *testing.T) {
	input := `
# header comment
https://v.kuaishou.com/abc

3,https://v.kuaishou.com/def
https://v.kuaishou.com/ghi,https://v.kuaishou.com/fallback
7,,https://v.kuaishou.com/jkl
`
	rows, err := ReadRows(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, InputRow{Index: 0, URLs: []string{"https://v.kuaishou.com/abc"}}, rows[0])
	assert.Equal(t, InputRow{Index: 3, URLs: []string{"https://v.kuaishou.com/def"}}, rows[1])
	assert.Equal(t, 2, rows[2].Index)
	assert.Equal(t, []string{"https://v.kuaishou.com/ghi", "https://v.kuaishou.com/fallback"}, rows[2].URLs)
	assert.Equal(t, InputRow{Index: 7, URLs: []string{"https://v.kuaishou.com/jkl"}}, rows[3])
}

func TestReadRowsEmpty(t *testing.T) {
	rows, err := ReadRows(strings.NewReader("\n# nothing here\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFirstURL(t *testing.T) {
	assert.Equal(t, "u", InputRow{URLs: []string{"", "u", "v"}}.FirstURL())
	assert.Empty(t, InputRow{}.FirstURL())
	assert.Empty(t, InputRow{URLs: []string{""}}.FirstURL())
}
