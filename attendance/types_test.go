package attendance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timwonderer/classroom-economy-sub001/attendance"
)

func TestParseTapState_AcceptedForms(t *testing.T) {
	cases := map[string]attendance.TapState{
		"active":   attendance.StateActive,
		"in":       attendance.StateActive,
		" Active ": attendance.StateActive,
		"inactive": attendance.StateInactive,
		"out":      attendance.StateInactive,
		"OUT":      attendance.StateInactive,
	}
	for input, want := range cases {
		got, err := attendance.ParseTapState(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}
}

func TestParseTapState_RejectsUnknown(t *testing.T) {
	for _, input := range []string{"", "paused", "on", "1"} {
		_, err := attendance.ParseTapState(input)
		assert.ErrorIs(t, err, attendance.ErrInvalidState, "input %q", input)
		assert.True(t, attendance.IsClientError(err))
	}
}

func TestNormalizePeriod(t *testing.T) {
	assert.Equal(t, "P3", attendance.NormalizePeriod(" p3 "))
	assert.Equal(t, "HOMEROOM", attendance.NormalizePeriod("homeroom"))
	assert.Equal(t, "", attendance.NormalizePeriod("  "))
}

func TestTapState_String(t *testing.T) {
	assert.Equal(t, "active", attendance.StateActive.String())
	assert.Equal(t, "inactive", attendance.StateInactive.String())
}
