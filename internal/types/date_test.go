package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddClampedDate(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		years  int
		months int
		days   int
		want   time.Time
	}{
		{
			name:   "simple month",
			start:  time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2025, time.April, 10, 9, 30, 0, 0, time.UTC),
		},
		{
			name:   "end of month clamps to shorter month",
			start:  time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "leap year february",
			start:  time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			months: 1,
			want:   time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "cross year boundary",
			start:  time.Date(2024, time.November, 15, 0, 0, 0, 0, time.UTC),
			months: 3,
			want:   time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "days only",
			start: time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
			days:  5,
			want:  time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "one year from leap day",
			start: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			years: 1,
			want:  time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddClampedDate(tt.start, tt.years, tt.months, tt.days)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestInstallmentDueDate_AnchorsOnStart(t *testing.T) {
	start := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), InstallmentDueDate(start, 1))
	assert.Equal(t, time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), InstallmentDueDate(start, 2))
	assert.Equal(t, time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC), InstallmentDueDate(start, 3))
}
