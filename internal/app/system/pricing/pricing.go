// Package pricing turns a country pair and a service type/level choice
// into a quote, and lists what a pair currently sells.
package pricing

import (
	"context"
	"errors"
	"sort"
	"time"

	catalogstore "github.com/dalemusser/visadesk/internal/app/store/catalog"
	pairstore "github.com/dalemusser/visadesk/internal/app/store/pairs"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrPairNotFound is returned when no pair matches the request.
var ErrPairNotFound = errors.New("country pair not found")

type Service struct {
	pairs   *pairstore.Store
	catalog *catalogstore.Store
	now     func() time.Time
}

func New(db *mongo.Database) *Service {
	return &Service{
		pairs:   pairstore.New(db),
		catalog: catalogstore.New(db),
		now:     time.Now,
	}
}

// Request names the pair by id, or by from/to codes when PairID is nil.
type Request struct {
	PairID  *primitive.ObjectID
	From    string
	To      string
	TypeID  primitive.ObjectID
	LevelID primitive.ObjectID
}

// Result is a priced choice with the records it was priced from.
type Result struct {
	Pair  models.CountryPair
	Type  models.ServiceType
	Level models.ServiceLevel
	Quote models.Quote
}

func (s *Service) pair(ctx context.Context, brandID primitive.ObjectID, req Request) (models.CountryPair, error) {
	var (
		p   models.CountryPair
		err error
	)
	if req.PairID != nil {
		p, err = s.pairs.Get(ctx, brandID, *req.PairID)
	} else {
		p, err = s.pairs.Find(ctx, brandID, req.From, req.To)
	}
	if errors.Is(err, pairstore.ErrNotFound) {
		return models.CountryPair{}, ErrPairNotFound
	}
	return p, err
}

// Quote prices req for the brand. The pair, the offering, the service
// type and the service level must all be active.
func (s *Service) Quote(ctx context.Context, brandID primitive.ObjectID, currency string, req Request) (Result, error) {
	p, err := s.pair(ctx, brandID, req)
	if err != nil {
		return Result{}, err
	}
	q, err := p.Quote(req.TypeID, req.LevelID, currency, s.now())
	if err != nil {
		return Result{}, err
	}

	st, err := s.catalog.GetType(ctx, brandID, req.TypeID)
	if errors.Is(err, catalogstore.ErrNotFound) {
		return Result{}, models.ErrOfferingUnavailable
	}
	if err != nil {
		return Result{}, err
	}
	lvl, err := s.catalog.GetLevel(ctx, brandID, req.LevelID)
	if errors.Is(err, catalogstore.ErrNotFound) {
		return Result{}, models.ErrOfferingUnavailable
	}
	if err != nil {
		return Result{}, err
	}
	if !st.IsActive || !lvl.IsActive {
		return Result{}, models.ErrOfferingUnavailable
	}
	return Result{Pair: p, Type: st, Level: lvl, Quote: q}, nil
}

// Offer is one purchasable line of a pair.
type Offer struct {
	ServiceType   models.ServiceType  `json:"service_type"`
	ServiceLevel  models.ServiceLevel `json:"service_level"`
	GovernmentFee int64               `json:"government_fee"`
	ServiceFee    int64               `json:"service_fee"`
	Total         int64               `json:"total"`
	Currency      string              `json:"currency"`
}

// Offers lists the active offerings of an active pair whose type and
// level are active, ordered like the catalog.
func (s *Service) Offers(ctx context.Context, brandID primitive.ObjectID, currency, from, to string) ([]Offer, error) {
	p, err := s.pair(ctx, brandID, Request{From: from, To: to})
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrPairNotFound
	}
	if currency == "" {
		currency = models.DefaultCurrency
	}

	typeIDs := make([]primitive.ObjectID, 0, len(p.Offerings))
	levelIDs := make([]primitive.ObjectID, 0, len(p.Offerings))
	for _, o := range p.Offerings {
		typeIDs = append(typeIDs, o.ServiceTypeID)
		levelIDs = append(levelIDs, o.ServiceLevelID)
	}
	types, err := s.catalog.TypesByID(ctx, brandID, typeIDs)
	if err != nil {
		return nil, err
	}
	levels, err := s.catalog.LevelsByID(ctx, brandID, levelIDs)
	if err != nil {
		return nil, err
	}

	out := []Offer{}
	for _, o := range p.Offerings {
		st, okT := types[o.ServiceTypeID]
		lvl, okL := levels[o.ServiceLevelID]
		if !o.IsActive || !okT || !okL || !st.IsActive || !lvl.IsActive {
			continue
		}
		out = append(out, Offer{
			ServiceType:   st,
			ServiceLevel:  lvl,
			GovernmentFee: o.GovernmentFee,
			ServiceFee:    o.ServiceFee,
			Total:         o.GovernmentFee + o.ServiceFee,
			Currency:      currency,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ServiceType.SortOrder != b.ServiceType.SortOrder {
			return a.ServiceType.SortOrder < b.ServiceType.SortOrder
		}
		if a.ServiceType.Name != b.ServiceType.Name {
			return a.ServiceType.Name < b.ServiceType.Name
		}
		return a.ServiceLevel.SortOrder < b.ServiceLevel.SortOrder
	})
	return out, nil
}
