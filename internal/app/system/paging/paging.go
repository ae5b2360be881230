// internal/app/system/paging/paging.go
package paging

import (
	"errors"
	"net/http"
	"strconv"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultLimit is the page size when the caller does not ask for one.
const DefaultLimit = 50

// MaxLimit caps the "limit" query parameter.
const MaxLimit = 200

// MaxOffset caps offset paging so deep scans go through cursors instead.
const MaxOffset = 10000

// ErrBadCursor is returned for a cursor that does not decode.
var ErrBadCursor = errors.New("invalid cursor")

// Limit reads the "limit" query parameter, clamped to [1, MaxLimit].
// Missing or invalid values give DefaultLimit.
func Limit(r *http.Request) int64 {
	s := query.Get(r, "limit")
	if s == "" {
		return DefaultLimit
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return int64(n)
}

// Offset reads the "offset" query parameter, clamped to [0, MaxOffset].
func Offset(r *http.Request) int64 {
	n, err := strconv.Atoi(query.Get(r, "offset"))
	if err != nil || n < 0 {
		return 0
	}
	if n > MaxOffset {
		return MaxOffset
	}
	return int64(n)
}

// Page is one window of a keyset-paged list.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Newest pages over _id descending, newest first.
// The cursor is the hex id of the last row on the previous page.
type Newest struct {
	After *primitive.ObjectID
	Limit int64
}

// ParseNewest reads "cursor" and "limit" from the request.
func ParseNewest(r *http.Request) (Newest, error) {
	n := Newest{Limit: Limit(r)}
	if c := query.Get(r, "cursor"); c != "" {
		id, err := primitive.ObjectIDFromHex(c)
		if err != nil {
			return Newest{}, ErrBadCursor
		}
		n.After = &id
	}
	return n, nil
}

// Apply adds the cursor condition to filter and sets sort and look-ahead limit.
func (n Newest) Apply(filter bson.M, find *options.FindOptions) {
	if n.After != nil {
		filter["_id"] = bson.M{"$lt": *n.After}
	}
	find.SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(n.Limit + 1)
}

// NewestPage trims the look-ahead row and sets the next cursor.
func NewestPage[T any](rows []T, limit int64, idFn func(T) primitive.ObjectID) Page[T] {
	p := Page[T]{Items: rows}
	if p.Items == nil {
		p.Items = []T{}
	}
	if int64(len(rows)) > limit {
		p.Items = rows[:limit]
		p.NextCursor = idFn(p.Items[len(p.Items)-1]).Hex()
	}
	return p
}

// ByName pages ascending over a folded sort key and _id.
type ByName struct {
	Field  string
	Cursor *wafflemongo.Cursor
	Limit  int64
}

// ParseByName reads "cursor" and "limit" for a list sorted by field.
func ParseByName(r *http.Request, field string) (ByName, error) {
	b := ByName{Field: field, Limit: Limit(r)}
	if s := query.Get(r, "cursor"); s != "" {
		c, ok := wafflemongo.DecodeCursor(s)
		if !ok {
			return ByName{}, ErrBadCursor
		}
		b.Cursor = &c
	}
	return b, nil
}

// Apply adds the keyset window to filter and sets sort and look-ahead limit.
func (b ByName) Apply(filter bson.M, find *options.FindOptions) {
	if b.Cursor != nil {
		window := wafflemongo.KeysetWindow(b.Field, "gt", b.Cursor.CI, b.Cursor.ID)
		if existing, ok := filter["$or"]; ok {
			filter["$and"] = bson.A{bson.M{"$or": existing}, window}
			delete(filter, "$or")
		} else {
			filter["$or"] = window["$or"]
		}
	}
	find.SetSort(bson.D{{Key: b.Field, Value: 1}, {Key: "_id", Value: 1}}).SetLimit(b.Limit + 1)
}

// ByNamePage trims the look-ahead row and encodes the next cursor.
func ByNamePage[T any](rows []T, limit int64, keyFn func(T) string, idFn func(T) primitive.ObjectID) Page[T] {
	p := Page[T]{Items: rows}
	if p.Items == nil {
		p.Items = []T{}
	}
	if int64(len(rows)) > limit {
		p.Items = rows[:limit]
		last := p.Items[len(p.Items)-1]
		p.NextCursor = wafflemongo.EncodeCursor(keyFn(last), idFn(last))
	}
	return p
}
