package capacity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedUsage(free, total int64) func(string) (Usage, error) {
	return func(string) (Usage, error) { return Usage{Free: free, Total: total}, nil }
}

func TestCheck_Enough(t *testing.T) {
	c := NewChecker(t.TempDir(), 0)
	c.usage = fixedUsage(10_000_000_000, 100_000_000_000)

	r, err := c.Check(1_000_000_000)
	require.NoError(t, err)
	assert.True(t, r.OK)
	assert.Equal(t, int64(1_100_000_000), r.Required)
}

func TestCheck_BelowFactorNamesBothQuantities(t *testing.T) {
	c := NewChecker(t.TempDir(), 0)
	c.usage = fixedUsage(50_000_000, 1_000_000_000_000)

	r, err := c.Check(500_000_000)
	require.Error(t, err)
	assert.False(t, r.OK)
	assert.True(t, IsCapacityError(err))
	assert.Contains(t, err.Error(), "free 50 MB")
	assert.Contains(t, err.Error(), "database size 500 MB")
	assert.Contains(t, err.Error(), "required 550 MB")

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(500_000_000), ce.DBSize)
}

func TestCheck_FloorAppliesToSmallDatabases(t *testing.T) {
	c := NewChecker(t.TempDir(), 0)
	c.usage = fixedUsage(90_000_000, 1_000_000_000)

	r, err := c.Check(1_000)
	require.Error(t, err)
	assert.Equal(t, int64(DefaultMinFree), r.Required)
}

func TestCheck_UnknownSizeUsesFloorOnly(t *testing.T) {
	c := NewChecker(t.TempDir(), 0)
	c.usage = fixedUsage(200_000_000, 1_000_000_000)

	r, err := c.Check(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMinFree), r.Required)
	assert.Equal(t, int64(0), r.DBSize)
}

func TestCheck_UsageError(t *testing.T) {
	c := NewChecker(t.TempDir(), 0)
	c.usage = func(string) (Usage, error) { return Usage{}, errors.New("io error") }

	_, err := c.Check(1)
	require.Error(t, err)
	assert.False(t, IsCapacityError(err))
}

func TestDiskUsage_RealFilesystem(t *testing.T) {
	c := NewChecker(t.TempDir()+"/not/yet/created", 1)
	r, err := c.Check(0)
	require.NoError(t, err)
	assert.Greater(t, r.Total, int64(0))
}
