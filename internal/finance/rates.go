package finance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimals persisted for finance record amounts.
const AmountScale = 4

// PayablePolicy maps an attendance status to whether it earns the unit amount.
type PayablePolicy map[AttendanceStatus]bool

// Pays reports whether the status is payable.
func (p PayablePolicy) Pays(status AttendanceStatus) bool {
	return p[status]
}

// String lists payable statuses in a stable order.
func (p PayablePolicy) String() string {
	out := make([]string, 0, len(p))
	for s, ok := range p {
		if ok {
			out = append(out, string(s))
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// ParsePayablePolicy builds a policy from status names. Unknown names are rejected.
func ParsePayablePolicy(statuses []string) (PayablePolicy, error) {
	policy := make(PayablePolicy, len(statuses))
	for _, raw := range statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		s, err := ParseAttendanceStatus(raw)
		if err != nil {
			return nil, err
		}
		policy[s] = true
	}
	return policy, nil
}

// RatePolicy holds the constants converting attendance into money. It is built once at
// start-up and shared read-only by every calculator.
type RatePolicy struct {
	BaseRate         decimal.Decimal
	PresenceFraction decimal.Decimal
	// TeacherShare is the fraction of a total paid to the teacher; the rest is the
	// center's service fee.
	TeacherShare decimal.Decimal
	// SessionPayable drives session totals and stored finance records.
	SessionPayable PayablePolicy
	// StudentPayable drives the per-student amounts of detail breakdowns.
	// It historically differs from SessionPayable.
	StudentPayable PayablePolicy
}

// DefaultRatePolicy reproduces the rates the center has always used.
func DefaultRatePolicy() RatePolicy {
	return RatePolicy{
		BaseRate:         decimal.RequireFromString("8.75"),
		PresenceFraction: decimal.RequireFromString("0.65"),
		TeacherShare:     decimal.RequireFromString("0.8"),
		SessionPayable:   PayablePolicy{StatusPresent: true, StatusAbsent: true},
		StudentPayable:   PayablePolicy{StatusPresent: true, StatusAbsentVerified: true},
	}
}

// Validate rejects rates that would produce negative or nonsensical amounts.
func (p RatePolicy) Validate() error {
	if p.BaseRate.IsNegative() {
		return fmt.Errorf("finance: base rate must not be negative, got %s", p.BaseRate)
	}
	one := decimal.NewFromInt(1)
	if p.PresenceFraction.IsNegative() || p.PresenceFraction.GreaterThan(one) {
		return fmt.Errorf("finance: presence fraction must be within [0,1], got %s", p.PresenceFraction)
	}
	if p.TeacherShare.IsNegative() || p.TeacherShare.GreaterThan(one) {
		return fmt.Errorf("finance: teacher share must be within [0,1], got %s", p.TeacherShare)
	}
	// finance_records.amount is NUMERIC(14, 4); finer units would be rounded on upsert
	// and stored amounts would drift from computed totals.
	if unit := p.UnitAmount(); !unit.Equal(unit.Round(AmountScale)) {
		return fmt.Errorf("finance: unit amount %s (base rate x presence fraction) exceeds %d decimals", unit, AmountScale)
	}
	for _, policy := range []PayablePolicy{p.SessionPayable, p.StudentPayable} {
		for s := range policy {
			if !s.Valid() {
				return fmt.Errorf("finance: unknown payable status %q", s)
			}
		}
	}
	return nil
}

// UnitAmount is the amount earned by one payable attendance record.
func (p RatePolicy) UnitAmount() decimal.Decimal {
	return p.BaseRate.Mul(p.PresenceFraction)
}

// Split divides a total into the teacher share and the service fee. Both are rounded
// to millimes and always sum back to the rounded total.
func (p RatePolicy) Split(total decimal.Decimal) (teacher, fee decimal.Decimal) {
	rounded := total.Round(3)
	teacher = rounded.Mul(p.TeacherShare).Round(3)
	return teacher, rounded.Sub(teacher)
}
