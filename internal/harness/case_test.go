package harness

import (
	"strings"
	"testing"

	"github.com/croncommander/clonebench/internal/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCase_OwnedCloneAppend(t *testing.T) {
	c, err := NewCase(VariantOwned, WorkloadCloneAppend, strings.Repeat("A", 16), CaseOptions{Suffix: "B"})
	require.NoError(t, err)
	defer c.Close()

	// Every iteration starts from the untouched original.
	for i := 0; i < 3; i++ {
		n, err := c.Op()
		require.NoError(t, err)
		assert.Equal(t, 17, n)
	}
	assert.Equal(t, 16, c.Bytes)
}

func TestNewCase_SharedCloneAppendAccumulates(t *testing.T) {
	c, err := NewCase(VariantShared, WorkloadCloneAppend, strings.Repeat("A", 16), CaseOptions{Suffix: "B"})
	require.NoError(t, err)
	defer c.Close()

	// All handles alias one buffer, so appends pile up.
	for want := 17; want < 20; want++ {
		n, err := c.Op()
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestNewCase_CloneOnly(t *testing.T) {
	owned, err := NewCase(VariantOwned, WorkloadClone, "ABCD", CaseOptions{Suffix: "B"})
	require.NoError(t, err)
	n, err := owned.Op()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	shared, err := NewCase(VariantShared, WorkloadClone, "ABCD", CaseOptions{})
	require.NoError(t, err)
	defer shared.Close()
	n, err = shared.Op()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "root handle plus the per-iteration clone")
}

func TestNewCase_ContendForcesConflict(t *testing.T) {
	c, err := NewCase(VariantShared, WorkloadCloneAppend, "AAAA", CaseOptions{Suffix: "B", Contend: true})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Op()
	require.ErrorIs(t, err, buffer.ErrAccessConflict)

	var conflict *buffer.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Site, "case.go:")
}

func TestNewCase_ContendIgnoredForOwned(t *testing.T) {
	c, err := NewCase(VariantOwned, WorkloadCloneAppend, "AAAA", CaseOptions{Suffix: "B", Contend: true})
	require.NoError(t, err)
	_, err = c.Op()
	assert.NoError(t, err)
}

func TestNewCase_Invalid(t *testing.T) {
	_, err := NewCase("deep-copy", WorkloadClone, "A", CaseOptions{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCase(VariantOwned, "mutate", "A", CaseOptions{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseVariantAndWorkload(t *testing.T) {
	v, err := ParseVariant("shared-cell")
	require.NoError(t, err)
	assert.Equal(t, VariantShared, v)

	_, err = ParseVariant("rc")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	w, err := ParseWorkload("clone")
	require.NoError(t, err)
	assert.Equal(t, WorkloadClone, w)
}
