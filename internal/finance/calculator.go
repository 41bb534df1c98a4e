package finance

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are rendered as JSON numbers; the web client does arithmetic on them.
	decimal.MarshalJSONWithoutQuotes = true
}

// SessionResult is the finance outcome of a single session.
type SessionResult struct {
	Total         decimal.Decimal
	PresenceStats PresenceStats
}

// Calculator converts attendance lists into amounts under a RatePolicy.
type Calculator struct {
	policy RatePolicy
	unit   decimal.Decimal
}

// NewCalculator binds a calculator to a policy.
func NewCalculator(policy RatePolicy) Calculator {
	return Calculator{policy: policy, unit: policy.UnitAmount()}
}

// Policy returns the bound rate policy.
func (c Calculator) Policy() RatePolicy {
	return c.policy
}

// Session sums the payable records of one session and counts them by status.
func (c Calculator) Session(records []AttendanceRecord) SessionResult {
	var res SessionResult
	payable := int64(0)
	for _, rec := range records {
		res.PresenceStats.Count(rec.Status)
		if c.policy.SessionPayable.Pays(rec.Status) {
			payable++
		}
	}
	res.Total = c.unit.Mul(decimal.NewFromInt(payable))
	return res
}

// Breakdown returns the per-student amounts of a session.
func (c Calculator) Breakdown(records []AttendanceRecord) []StudentAmount {
	out := make([]StudentAmount, 0, len(records))
	for _, rec := range records {
		amount := decimal.Zero
		if c.policy.StudentPayable.Pays(rec.Status) {
			amount = c.unit
		}
		out = append(out, StudentAmount{
			StudentID:   rec.StudentID,
			StudentName: rec.StudentName,
			Status:      rec.Status,
			Amount:      amount,
		})
	}
	return out
}

// average divides total by n rounded to cents; zero when n is zero.
func average(total decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(n)), 2)
}
