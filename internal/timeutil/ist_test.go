package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 31, DaysIn(2024, time.March))
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 28, DaysIn(2023, time.February))
	assert.Equal(t, 30, DaysIn(2023, time.November))
	assert.Equal(t, 31, DaysIn(2023, time.December))
}

func TestStartOfMonthUsesIST(t *testing.T) {
	// 31 Mar 20:00 UTC is already 1 Apr in India.
	utc := time.Date(2024, time.March, 31, 20, 0, 0, 0, time.UTC)
	start := StartOfMonth(utc)
	assert.Equal(t, time.April, start.Month())
	assert.Equal(t, 1, start.Day())
}
