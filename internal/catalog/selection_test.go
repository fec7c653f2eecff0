package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSelectionAndSplit(t *testing.T) {
	sections := []Section{
		{Order: 1, Title: "Intro", SlideCount: 3, IsDefault: true},
		{Order: 2, Title: "Platform", SlideCount: 2, IsDefault: false},
	}
	ComputeOffsets(sections)

	assert.Equal(t, 0, sections[0].Offset)
	assert.Equal(t, 3, sections[1].Offset)

	defaults := DefaultSelection(sections)
	assert.Equal(t, []int{1}, defaults)

	chosen, deleted, err := Split(sections, defaults)
	require.NoError(t, err)
	require.Len(t, chosen, 1)
	require.Len(t, deleted, 1)
	assert.Equal(t, 1, chosen[0].Order)
	assert.Equal(t, 2, deleted[0].Order)
}

func TestSplit_KeepsCatalogOrder(t *testing.T) {
	sections := []Section{{Order: 10}, {Order: 3}, {Order: 7}, {Order: 1}}

	chosen, deleted, err := Split(sections, []int{1, 10})
	require.NoError(t, err)
	assert.Equal(t, []Section{{Order: 10}, {Order: 1}}, chosen)
	assert.Equal(t, []Section{{Order: 3}, {Order: 7}}, deleted)
}

func TestSplit_Errors(t *testing.T) {
	sections := []Section{{Order: 1}, {Order: 2}}

	_, _, err := Split(sections, nil)
	assert.ErrorIs(t, err, ErrNoSectionsChosen)

	_, _, err = Split(sections, []int{3})
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestSplit_AllChosen(t *testing.T) {
	sections := []Section{{Order: 1}, {Order: 2}}

	chosen, deleted, err := Split(sections, []int{2, 1, 2})
	require.NoError(t, err)
	assert.Len(t, chosen, 2)
	assert.Empty(t, deleted)
}
