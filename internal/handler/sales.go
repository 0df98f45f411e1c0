package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/giftible/marketplace/internal/domain/auth"
	"github.com/giftible/marketplace/internal/domain/finance"
)

type salesResponse struct {
	GrossSales decimal.Decimal `json:"gross_sales"`
	NetSales   decimal.Decimal `json:"net_sales"`
}

// totalSales returns platform-wide gross and net sales. Admin only: the
// platform aggregate is not an NGO concern.
func (h *Handler) totalSales(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := id.Require(auth.CapViewSales); err != nil {
		respondError(w, r, err)
		return
	}
	if id.Role != auth.RoleAdmin {
		respondError(w, r, auth.ErrForbidden)
		return
	}

	h.writeSales(w, r, finance.Scope{})
}

// ngoSales returns one NGO's gross and net sales. NGOs may only query
// themselves; a foreign id answers 404 so other sellers are not probeable.
func (h *Handler) ngoSales(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := id.Require(auth.CapViewSales); err != nil {
		respondError(w, r, err)
		return
	}
	ngoID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ngo id")
		return
	}
	if id.Role == auth.RoleNGO && ngoID != id.UserID {
		respondError(w, r, finance.ErrNGONotFound)
		return
	}

	if _, err := h.finance.NetSalesForNGO(r.Context(), ngoID); err != nil {
		respondError(w, r, err)
		return
	}
	h.writeSales(w, r, finance.Scope{NGOID: ngoID})
}

// productSales returns one product's gross and net sales. Admin only.
func (h *Handler) productSales(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := id.Require(auth.CapViewSales); err != nil {
		respondError(w, r, err)
		return
	}
	if id.Role != auth.RoleAdmin {
		respondError(w, r, auth.ErrForbidden)
		return
	}
	productID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	h.writeSales(w, r, finance.Scope{ProductID: productID})
}

// writeSales fetches the two independent aggregates concurrently; report
// handlers always run on the pool, never inside a transaction.
func (h *Handler) writeSales(w http.ResponseWriter, r *http.Request, scope finance.Scope) {
	var gross, net decimal.Decimal

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		gross, err = h.finance.GrossSales(ctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		net, err = h.finance.NetSales(ctx, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, salesResponse{GrossSales: gross, NetSales: net})
}

type monthlyBucketView struct {
	Month string          `json:"month"`
	Sales decimal.Decimal `json:"sales"`
}

// monthlySales returns the net sales trend, one bucket per month. NGOs
// are scoped to themselves; admins may pass ?ngo_id= or omit it for the
// platform trend.
func (h *Handler) monthlySales(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := id.Require(auth.CapViewSales); err != nil {
		respondError(w, r, err)
		return
	}

	ngoID := queryInt64(r, "ngo_id")
	if id.Role == auth.RoleNGO {
		ngoID = id.UserID
	}
	months := int(queryInt64(r, "months"))

	buckets, err := h.finance.MonthlySales(r.Context(), ngoID, months)
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]monthlyBucketView, len(buckets))
	for i, b := range buckets {
		views[i] = monthlyBucketView{Month: b.Month.Format("2006-01"), Sales: b.Sales}
	}
	writeJSON(w, http.StatusOK, views)
}

type productSalesView struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	NGOName   string          `json:"ngo_name"`
	Total     decimal.Decimal `json:"total"`
}

// rangeSales returns the per-product net sales breakdown for a date
// range. The end date is inclusive of the whole day.
func (h *Handler) rangeSales(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := id.Require(auth.CapViewSales); err != nil {
		respondError(w, r, err)
		return
	}

	from, to, err := dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := finance.RangeFilter{
		From:   from,
		To:     to,
		NGOID:  queryInt64(r, "ngo_id"),
		Limit:  int(queryInt64(r, "limit")),
		Offset: int(queryInt64(r, "offset")),
	}
	if id.Role == auth.RoleNGO {
		f.NGOID = id.UserID
	}

	sales, err := h.finance.ProductSalesInRange(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]productSalesView, len(sales))
	for i, s := range sales {
		views[i] = productSalesView{
			ProductID: s.ProductID,
			Name:      s.Name,
			NGOName:   s.NGOName,
			Total:     s.Total,
		}
	}
	writeJSON(w, http.StatusOK, views)
}

// dateRange parses from/to query parameters as YYYY-MM-DD dates. The to
// bound is extended to the end of its day.
func dateRange(r *http.Request) (from, to time.Time, err error) {
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, errInvalidDate
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, errInvalidDate
		}
		to = to.Add(24*time.Hour - time.Second)
	}
	return from, to, nil
}

var errInvalidDate = errors.New("dates must use the YYYY-MM-DD format")

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}
