package sysinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	info := Collect("")

	// values are environment dependent, check ranges only
	assert.GreaterOrEqual(t, info.CPUPercent, -1)
	assert.LessOrEqual(t, info.CPUPercent, 100)
	assert.GreaterOrEqual(t, info.MemPercent, -1)
	assert.LessOrEqual(t, info.MemPercent, 100)
	assert.GreaterOrEqual(t, info.Load1, -1.0)
	assert.GreaterOrEqual(t, info.DiskFreePct, -1)
	assert.LessOrEqual(t, info.DiskFreePct, 100)
}

func TestCollect_BadDiskPath(t *testing.T) {
	info := Collect("/nonexistent/mount/point")
	assert.Equal(t, -1, info.DiskFreePct)
}
