package finance

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func attendance(statuses ...AttendanceStatus) []AttendanceRecord {
	out := make([]AttendanceRecord, 0, len(statuses))
	for i, s := range statuses {
		out = append(out, AttendanceRecord{StudentID: int64(i + 1), Status: s})
	}
	return out
}

func TestSessionTotalMixedAttendance(t *testing.T) {
	calc := NewCalculator(DefaultRatePolicy())
	res := calc.Session(attendance(StatusPresent, StatusPresent, StatusPresent, StatusAbsent, StatusAbsentVerified))

	assert.True(t, res.Total.Equal(dec("22.75")), "got %s", res.Total)
	assert.Equal(t, PresenceStats{Total: 5, Present: 3, AbsentVerified: 1, Absent: 1}, res.PresenceStats)
}

func TestSessionTotalPresentAbsentOnly(t *testing.T) {
	calc := NewCalculator(DefaultRatePolicy())
	unit := dec("8.75").Mul(dec("0.65"))
	for n := 0; n <= 12; n++ {
		statuses := make([]AttendanceStatus, 0, n)
		for i := 0; i < n; i++ {
			if i%3 == 0 {
				statuses = append(statuses, StatusAbsent)
			} else {
				statuses = append(statuses, StatusPresent)
			}
		}
		res := calc.Session(attendance(statuses...))
		want := unit.Mul(decimal.NewFromInt(int64(n)))
		assert.True(t, res.Total.Equal(want), "n=%d got %s want %s", n, res.Total, want)
		assert.Equal(t, n, res.PresenceStats.Total)
	}
}

func TestSessionTotalEmpty(t *testing.T) {
	res := NewCalculator(DefaultRatePolicy()).Session(nil)
	assert.True(t, res.Total.IsZero())
	assert.Equal(t, PresenceStats{}, res.PresenceStats)
}

func TestBreakdownUsesStudentPolicy(t *testing.T) {
	calc := NewCalculator(DefaultRatePolicy())
	lines := calc.Breakdown(attendance(StatusPresent, StatusAbsent, StatusAbsentVerified))
	require.Len(t, lines, 3)

	unit := dec("5.6875")
	assert.True(t, lines[0].Amount.Equal(unit))
	assert.True(t, lines[1].Amount.IsZero(), "unexcused absence earns nothing per student")
	assert.True(t, lines[2].Amount.Equal(unit))
	assert.Equal(t, int64(2), lines[1].StudentID)
}

func TestCustomPayablePolicy(t *testing.T) {
	policy := DefaultRatePolicy()
	policy.SessionPayable = PayablePolicy{StatusPresent: true}
	calc := NewCalculator(policy)

	res := calc.Session(attendance(StatusPresent, StatusAbsent, StatusAbsentVerified))
	assert.True(t, res.Total.Equal(dec("5.6875")))
}

func TestAverageRoundsToCents(t *testing.T) {
	assert.True(t, average(dec("39.8125"), 2).Equal(dec("19.91")))
	assert.True(t, average(dec("22.75"), 3).Equal(dec("7.58")))
	assert.True(t, average(dec("10"), 0).IsZero())
}

func TestAmountsMarshalAsNumbers(t *testing.T) {
	raw, err := json.Marshal(StudentAmount{StudentID: 1, Status: StatusPresent, Amount: dec("5.6875")})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"montant":5.6875`)
}
