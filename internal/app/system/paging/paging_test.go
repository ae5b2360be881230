package paging

import (
	"errors"
	"net/http/httptest"
	"testing"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int64
	}{
		{"", DefaultLimit},
		{"limit=10", 10},
		{"limit=0", DefaultLimit},
		{"limit=-3", DefaultLimit},
		{"limit=abc", DefaultLimit},
		{"limit=5000", MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/x?"+tt.query, nil)
			if got := Limit(r); got != tt.want {
				t.Errorf("Limit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	tests := []struct {
		query string
		want  int64
	}{
		{"", 0},
		{"offset=20", 20},
		{"offset=-1", 0},
		{"offset=999999", MaxOffset},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/x?"+tt.query, nil)
		if got := Offset(r); got != tt.want {
			t.Errorf("Offset(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestParseNewest(t *testing.T) {
	id := primitive.NewObjectID()

	n, err := ParseNewest(httptest.NewRequest("GET", "/x?cursor="+id.Hex()+"&limit=5", nil))
	if err != nil {
		t.Fatalf("ParseNewest() error = %v", err)
	}
	if n.After == nil || *n.After != id || n.Limit != 5 {
		t.Errorf("ParseNewest() = %+v", n)
	}

	if _, err := ParseNewest(httptest.NewRequest("GET", "/x?cursor=nope", nil)); !errors.Is(err, ErrBadCursor) {
		t.Errorf("bad cursor err = %v", err)
	}
}

func TestNewestApply(t *testing.T) {
	id := primitive.NewObjectID()
	filter := bson.M{"brand_id": "b"}
	find := options.Find()
	Newest{After: &id, Limit: 10}.Apply(filter, find)

	cond, ok := filter["_id"].(bson.M)
	if !ok || cond["$lt"] != id {
		t.Errorf("filter _id = %v", filter["_id"])
	}
	if find.Limit == nil || *find.Limit != 11 {
		t.Errorf("limit = %v, want 11", find.Limit)
	}
}

type row struct {
	ID   primitive.ObjectID
	Name string
}

func rows(n int) []row {
	out := make([]row, n)
	for i := range out {
		out[i] = row{ID: primitive.NewObjectID(), Name: string(rune('a' + i))}
	}
	return out
}

func TestNewestPage(t *testing.T) {
	id := func(r row) primitive.ObjectID { return r.ID }

	t.Run("has more", func(t *testing.T) {
		in := rows(4)
		p := NewestPage(in, 3, id)
		if len(p.Items) != 3 {
			t.Fatalf("len = %d, want 3", len(p.Items))
		}
		if p.NextCursor != in[2].ID.Hex() {
			t.Errorf("NextCursor = %q, want %q", p.NextCursor, in[2].ID.Hex())
		}
	})

	t.Run("last page", func(t *testing.T) {
		p := NewestPage(rows(2), 3, id)
		if len(p.Items) != 2 || p.NextCursor != "" {
			t.Errorf("page = %+v", p)
		}
	})

	t.Run("nil rows encode as empty list", func(t *testing.T) {
		p := NewestPage[row](nil, 3, id)
		if p.Items == nil {
			t.Error("Items should be non-nil")
		}
	})
}

func TestByName(t *testing.T) {
	in := rows(3)
	p := ByNamePage(in, 2, func(r row) string { return r.Name }, func(r row) primitive.ObjectID { return r.ID })
	if len(p.Items) != 2 || p.NextCursor == "" {
		t.Fatalf("page = %+v", p)
	}

	c, ok := wafflemongo.DecodeCursor(p.NextCursor)
	if !ok || c.CI != in[1].Name || c.ID != in[1].ID {
		t.Fatalf("cursor = %+v ok=%v", c, ok)
	}

	r := httptest.NewRequest("GET", "/x?cursor="+p.NextCursor, nil)
	b, err := ParseByName(r, "name_ci")
	if err != nil {
		t.Fatalf("ParseByName() error = %v", err)
	}
	filter := bson.M{}
	find := options.Find()
	b.Apply(filter, find)
	if _, ok := filter["$or"]; !ok {
		t.Errorf("filter missing keyset window: %v", filter)
	}
	if *find.Limit != DefaultLimit+1 {
		t.Errorf("limit = %d", *find.Limit)
	}
}
