package weights

import (
	"errors"
	"testing"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func ids(n int) []primitive.ObjectID {
	out := make([]primitive.ObjectID, n)
	for i := range out {
		out[i] = primitive.NewObjectID()
	}
	return out
}

func TestValidate(t *testing.T) {
	p := ids(3)

	tests := []struct {
		name    string
		entries []Entry
		wantErr error
	}{
		{"empty disables", nil, nil},
		{"valid", []Entry{{p[0], 50}, {p[1], 30}, {p[2], 20}}, nil},
		{"zero weight allowed", []Entry{{p[0], 100}, {p[1], 0}}, nil},
		{"sum too low", []Entry{{p[0], 50}, {p[1], 30}}, ErrSum},
		{"sum too high", []Entry{{p[0], 60}, {p[1], 50}}, ErrSum},
		{"negative", []Entry{{p[0], 110}, {p[1], -10}}, ErrRange},
		{"over 100", []Entry{{p[0], 101}}, ErrRange},
		{"duplicate", []Entry{{p[0], 50}, {p[0], 50}}, ErrDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.entries)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func simulate(t *testing.T, weights []int, rounds int) []int64 {
	t.Helper()
	p := ids(len(weights))
	entries := make([]models.ProcessorWeight, len(weights))
	for i, w := range weights {
		entries[i] = models.ProcessorWeight{ProcessorID: p[i], Weight: w}
	}
	for r := 0; r < rounds; r++ {
		i, err := Pick(entries)
		if err != nil {
			t.Fatalf("Pick() error = %v", err)
		}
		entries[i].Assigned++
	}
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Assigned
	}
	return out
}

func TestPick_ConvergesExactly(t *testing.T) {
	tests := []struct {
		name    string
		weights []int
	}{
		{"50/30/20", []int{50, 30, 20}},
		{"thirds", []int{34, 33, 33}},
		{"single", []int{100}},
		{"with zero", []int{0, 70, 30}},
		{"uneven", []int{1, 2, 97}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := simulate(t, tt.weights, 100)
			for i, w := range tt.weights {
				if got[i] != int64(w) {
					t.Errorf("processor %d assigned %d, want %d (all: %v)", i, got[i], w, got)
				}
			}
		})
	}
}

func TestPick_TwoHundredRounds(t *testing.T) {
	got := simulate(t, []int{50, 30, 20}, 200)
	want := []int64{100, 60, 40}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("assigned = %v, want %v", got, want)
			break
		}
	}
}

func TestPick_NeverZeroWeight(t *testing.T) {
	p := ids(2)
	entries := []models.ProcessorWeight{
		{ProcessorID: p[0], Weight: 0},
		{ProcessorID: p[1], Weight: 100, Assigned: 1000},
	}
	i, err := Pick(entries)
	if err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	if i != 1 {
		t.Errorf("Pick() = %d, want 1", i)
	}

	if _, err := Pick([]models.ProcessorWeight{{Weight: 0}}); !errors.Is(err, ErrNoWinner) {
		t.Errorf("Pick() error = %v, want ErrNoWinner", err)
	}
	if _, err := Pick(nil); !errors.Is(err, ErrNoWinner) {
		t.Errorf("Pick(nil) error = %v, want ErrNoWinner", err)
	}
}

func TestPick_TieBreaks(t *testing.T) {
	low := primitive.NewObjectIDFromTimestamp(primitive.NewObjectID().Timestamp().AddDate(-1, 0, 0))
	high := primitive.NewObjectID()

	// Equal deficits and weights: lower id wins.
	entries := []models.ProcessorWeight{
		{ProcessorID: high, Weight: 50},
		{ProcessorID: low, Weight: 50},
	}
	if i, _ := Pick(entries); i != 1 {
		t.Errorf("Pick() = %d, want the lower id", i)
	}

	// Fresh counters: the larger weight has the larger deficit.
	entries = []models.ProcessorWeight{
		{ProcessorID: low, Weight: 40},
		{ProcessorID: high, Weight: 60},
	}
	if i, _ := Pick(entries); i != 1 {
		t.Errorf("Pick() = %d, want the larger weight", i)
	}
}

func TestSum(t *testing.T) {
	if got := Sum([]models.ProcessorWeight{{Weight: 40}, {Weight: 35}}); got != 75 {
		t.Errorf("Sum() = %d, want 75", got)
	}
}
