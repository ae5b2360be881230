package indexes

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestKeyDoc(t *testing.T) {
	got := keyDoc([]string{"brand_id", "-_id"})
	want := bson.D{{Key: "brand_id", Value: 1}, {Key: "_id", Value: -1}}
	if keySig(got) != keySig(want) {
		t.Errorf("keyDoc() = %v, want %v", got, want)
	}
}

func TestAllIndexNamesUnique(t *testing.T) {
	seen := map[string]string{}
	for _, ci := range all() {
		for _, m := range ci.models {
			if m.Options == nil || m.Options.Name == nil {
				t.Errorf("%s: index without name", ci.name)
				continue
			}
			name := *m.Options.Name
			if prev, ok := seen[name]; ok {
				t.Errorf("index name %q used by %s and %s", name, prev, ci.name)
			}
			seen[name] = ci.name
		}
	}
}

func TestIsDuplicateKeyErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"write exception", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}, true},
		{"command error", mongo.CommandError{Code: 11000}, true},
		{"message", errors.New("E11000 duplicate key error"), true},
		{"other", errors.New("timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateKeyErr(tt.err); got != tt.want {
				t.Errorf("isDuplicateKeyErr() = %v, want %v", got, tt.want)
			}
		})
	}
}
