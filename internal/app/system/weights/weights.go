// Package weights validates load balancer weight sets and picks the next
// processor for a case.
package weights

import (
	"errors"
	"fmt"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Total is the sum a non-empty weight set must reach.
const Total = 100

var (
	ErrSum       = fmt.Errorf("weights must sum to %d", Total)
	ErrRange     = fmt.Errorf("each weight must be between 0 and %d", Total)
	ErrDuplicate = errors.New("processor listed more than once")
	ErrNoWinner  = errors.New("no processor has a positive weight")
)

// Entry is one requested weight.
type Entry struct {
	ProcessorID primitive.ObjectID `json:"processor_id"`
	Weight      int                `json:"weight"`
}

// Validate checks range, uniqueness and the total. An empty set is valid
// and disables assignment.
func Validate(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	seen := make(map[primitive.ObjectID]struct{}, len(entries))
	sum := 0
	for _, e := range entries {
		if e.Weight < 0 || e.Weight > Total {
			return ErrRange
		}
		if _, dup := seen[e.ProcessorID]; dup {
			return ErrDuplicate
		}
		seen[e.ProcessorID] = struct{}{}
		sum += e.Weight
	}
	if sum != Total {
		return ErrSum
	}
	return nil
}

// Pick returns the index of the processor that should receive the next
// case.
//
// With N cases assigned so far, entry i is owed weight_i*(N+1)/100 cases.
// The entry furthest below what it is owed wins; ties go to the larger
// weight, then the lower processor id. Zero weights never win. Over any
// run of 100 assignments from zeroed counters the split matches the
// weights exactly.
func Pick(entries []models.ProcessorWeight) (int, error) {
	var n int64
	for _, e := range entries {
		n += e.Assigned
	}

	best := -1
	var bestDeficit int64
	for i, e := range entries {
		if e.Weight <= 0 {
			continue
		}
		// Scaled by 100 to stay in integers.
		deficit := int64(e.Weight)*(n+1) - Total*e.Assigned
		if best < 0 || better(deficit, e, bestDeficit, entries[best]) {
			best, bestDeficit = i, deficit
		}
	}
	if best < 0 {
		return -1, ErrNoWinner
	}
	return best, nil
}

func better(d int64, e models.ProcessorWeight, bestD int64, b models.ProcessorWeight) bool {
	if d != bestD {
		return d > bestD
	}
	if e.Weight != b.Weight {
		return e.Weight > b.Weight
	}
	return e.ProcessorID.Hex() < b.ProcessorID.Hex()
}

// Sum adds up the weights of a stored set.
func Sum(entries []models.ProcessorWeight) int {
	total := 0
	for _, e := range entries {
		total += e.Weight
	}
	return total
}
