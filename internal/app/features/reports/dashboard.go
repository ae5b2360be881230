package reports

import (
	"context"
	"net/http"
	"sync"
	"time"

	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stat is one independent dashboard figure.
type stat struct {
	name string
	run  func(ctx context.Context) (any, error)
}

// settle runs every stat, at most limit at a time, each under its own
// timeout. A failing stat lands in errs and never cancels the others.
func settle(ctx context.Context, stats []stat, limit int, timeout time.Duration) (map[string]any, map[string]string) {
	var (
		mu      sync.Mutex
		results = make(map[string]any, len(stats))
		errs    = map[string]string{}
	)
	var g errgroup.Group
	g.SetLimit(limit)
	for _, s := range stats {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			v, err := s.run(sctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[s.name] = err.Error()
				return nil
			}
			results[s.name] = v
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

type revenueRow struct {
	casestore.LevelRevenue
	Name string `json:"name"`
}

type workloadRow struct {
	casestore.Workload
	Name string `json:"name"`
}

type unreadSummary struct {
	Total int64 `json:"total"`
	Cases int   `json:"cases"`
}

func (h *Handler) stats(brand *tenant.Info, rg casestore.Range) []stat {
	return []stat{
		{"cases_by_status", func(ctx context.Context) (any, error) {
			return h.cases.CountByStatus(ctx, brand.ID, rg)
		}},
		{"submitted_per_day", func(ctx context.Context) (any, error) {
			return h.cases.SubmittedPerDay(ctx, brand.ID, rg)
		}},
		{"revenue_by_level", func(ctx context.Context) (any, error) {
			rows, err := h.cases.RevenueByLevel(ctx, brand.ID, rg)
			if err != nil {
				return nil, err
			}
			ids := make([]primitive.ObjectID, 0, len(rows))
			for _, row := range rows {
				ids = append(ids, row.LevelID)
			}
			levels, err := h.catalog.LevelsByID(ctx, brand.ID, ids)
			if err != nil {
				return nil, err
			}
			out := make([]revenueRow, 0, len(rows))
			for _, row := range rows {
				out = append(out, revenueRow{LevelRevenue: row, Name: levels[row.LevelID].Name})
			}
			return map[string]any{"currency": brand.Currency, "levels": out}, nil
		}},
		{"top_pairs", func(ctx context.Context) (any, error) {
			return h.cases.TopPairs(ctx, brand.ID, rg, 10)
		}},
		{"processor_workload", func(ctx context.Context) (any, error) {
			rows, err := h.cases.OpenByProcessor(ctx, brand.ID)
			if err != nil {
				return nil, err
			}
			ids := make([]primitive.ObjectID, 0, len(rows))
			for _, row := range rows {
				ids = append(ids, row.ProcessorID)
			}
			names, err := h.users.Names(ctx, ids)
			if err != nil {
				return nil, err
			}
			out := make([]workloadRow, 0, len(rows))
			for _, row := range rows {
				out = append(out, workloadRow{Workload: row, Name: names[row.ProcessorID]})
			}
			return out, nil
		}},
		{"unread_messages", func(ctx context.Context) (any, error) {
			cases, err := h.cases.ForStaffChat(ctx, brand.ID, nil)
			if err != nil {
				return nil, err
			}
			counts, err := h.messages.Unread(ctx, brand.ID, cases, models.SideStaff)
			if err != nil {
				return nil, err
			}
			var sum unreadSummary
			for _, n := range counts {
				sum.Total += n
				sum.Cases++
			}
			return sum, nil
		}},
	}
}

// dashboard answers with every statistic that finished plus an errors
// map. It is a 500 only when nothing could be computed.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	rg, msg := parseRange(r)
	if msg != "" {
		jsonutil.BadRequest(w, msg)
		return
	}

	h.serve(w, r, brand, h.stats(brand, rg))
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, brand *tenant.Info, stats []stat) {
	results, errs := settle(r.Context(), stats, fanOutLimit, h.statTimeout)
	for name, e := range errs {
		h.logger.Warn("dashboard statistic failed",
			zap.String("brand", brand.Slug), zap.String("stat", name), zap.String("error", e))
	}
	if len(results) == 0 {
		jsonutil.InternalError(w, "dashboard statistics are unavailable")
		return
	}
	results["errors"] = errs
	jsonutil.OK(w, results)
}
