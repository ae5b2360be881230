package txn

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsNotSupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"illegal operation code", mongo.CommandError{Code: 20, Message: "x"}, true},
		{"wrapped code 263", fmt.Errorf("submit: %w", mongo.CommandError{Code: 263}), true},
		{"other code", mongo.CommandError{Code: 11000, Message: "duplicate key"}, false},
		{"prose", errors.New("Transaction numbers are only allowed on a replica set member or mongos"), true},
		{"single keyword", errors.New("session expired"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotSupported(tt.err); got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
