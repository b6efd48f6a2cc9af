package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysOpen(t *testing.T) {
	opened := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("open counts up to now", func(t *testing.T) {
		ncr := &NCR{OpenedDate: opened, Status: NCRStatusOpen}
		assert.Equal(t, 10, ncr.DaysOpen(opened.AddDate(0, 0, 10)))
		assert.Equal(t, 45, ncr.DaysOpen(opened.AddDate(0, 0, 45)))
	})

	t.Run("closed freezes at closed date", func(t *testing.T) {
		closed := opened.AddDate(0, 0, 5)
		ncr := &NCR{OpenedDate: opened, ClosedDate: &closed, Status: NCRStatusClosed}

		// now keeps moving, the count does not
		assert.Equal(t, 5, ncr.DaysOpen(closed.AddDate(0, 0, 30)))
		assert.Equal(t, 5, ncr.DaysOpen(closed.AddDate(1, 0, 0)))
	})

	t.Run("sub-day lifetime is zero", func(t *testing.T) {
		ncr := &NCR{OpenedDate: opened, Status: NCRStatusOpen}
		assert.Equal(t, 0, ncr.DaysOpen(opened.Add(23*time.Hour)))
	})

	t.Run("closed before opened clamps to zero", func(t *testing.T) {
		closed := opened.AddDate(0, 0, -3)
		ncr := &NCR{OpenedDate: opened, ClosedDate: &closed, Status: NCRStatusClosed}
		assert.Equal(t, 0, ncr.DaysOpen(opened.AddDate(0, 0, 90)))
	})
}

func TestSeverityAtLeast(t *testing.T) {
	assert.True(t, NCRSeverityCritical.AtLeast(NCRSeverityHigh))
	assert.True(t, NCRSeverityHigh.AtLeast(NCRSeverityHigh))
	assert.False(t, NCRSeverityMedium.AtLeast(NCRSeverityHigh))
	assert.True(t, NCRSeverityLow.AtLeast(NCRSeverityLow))
}
