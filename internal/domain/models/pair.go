// internal/domain/models/pair.go
package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CountryPair is a (from, to) jurisdiction and the services sold for it.
type CountryPair struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID   primitive.ObjectID `bson:"brand_id" json:"-"`
	FromCode  string             `bson:"from_code" json:"from_code"`
	ToCode    string             `bson:"to_code" json:"to_code"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
	Notes     string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Offerings []Offering         `bson:"offerings" json:"offerings"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Offering prices one service type at one service level for a pair.
// Fees are in minor currency units (cents).
type Offering struct {
	ServiceTypeID  primitive.ObjectID `bson:"service_type_id" json:"service_type_id"`
	ServiceLevelID primitive.ObjectID `bson:"service_level_id" json:"service_level_id"`
	GovernmentFee  int64              `bson:"government_fee" json:"government_fee"`
	ServiceFee     int64              `bson:"service_fee" json:"service_fee"`
	IsActive       bool               `bson:"is_active" json:"is_active"`
}

// Quote is the price of an application, frozen into a case on submit.
type Quote struct {
	GovernmentFee int64     `bson:"government_fee" json:"government_fee"`
	ServiceFee    int64     `bson:"service_fee" json:"service_fee"`
	Total         int64     `bson:"total" json:"total"`
	Currency      string    `bson:"currency" json:"currency"`
	QuotedAt      time.Time `bson:"quoted_at" json:"quoted_at"`
}

var (
	// ErrPairInactive is returned when quoting against a disabled pair.
	ErrPairInactive = errors.New("country pair is not available")
	// ErrOfferingUnavailable is returned when the pair does not sell the
	// requested type/level combination.
	ErrOfferingUnavailable = errors.New("service is not offered for this country pair")
)

// FindOffering returns the offering for a type/level combination.
func (p CountryPair) FindOffering(typeID, levelID primitive.ObjectID) (Offering, bool) {
	for _, o := range p.Offerings {
		if o.ServiceTypeID == typeID && o.ServiceLevelID == levelID {
			return o, true
		}
	}
	return Offering{}, false
}

// Quote prices a type/level combination on this pair.
func (p CountryPair) Quote(typeID, levelID primitive.ObjectID, currency string, now time.Time) (Quote, error) {
	if !p.IsActive {
		return Quote{}, ErrPairInactive
	}
	o, ok := p.FindOffering(typeID, levelID)
	if !ok || !o.IsActive {
		return Quote{}, ErrOfferingUnavailable
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Quote{
		GovernmentFee: o.GovernmentFee,
		ServiceFee:    o.ServiceFee,
		Total:         o.GovernmentFee + o.ServiceFee,
		Currency:      currency,
		QuotedAt:      now.UTC(),
	}, nil
}
