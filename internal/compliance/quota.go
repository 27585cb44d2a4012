package compliance

import "github.com/Pavel2201/habit-stake/internal/models"

// Verdict is the outcome of checking one period against a habit's quota.
type Verdict struct {
	Required  int
	Actual    int
	Compliant bool
}

// Evaluate counts the successful check-ins falling inside the period and
// compares them against the required count. Failed check-ins never count
// toward the quota.
func Evaluate(required int, p Period, checkins []models.CheckIn) Verdict {
	actual := 0
	for _, c := range checkins {
		if c.Success && p.Contains(c.CompletedAt) {
			actual++
		}
	}
	return Verdict{Required: required, Actual: actual, Compliant: actual >= required}
}
