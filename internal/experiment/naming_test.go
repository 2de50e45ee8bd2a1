package experiment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunNameLayout(t *testing.T) {
	now := time.Date(2021, 1, 9, 7, 30, 0, 0, time.UTC)
	a := RunName(now, "cal sweep/1", 42)
	b := RunName(now, "cal sweep/1", 42)

	assert.Regexp(t, `^21_01_09_0730_cal-sweep-1_42_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}
