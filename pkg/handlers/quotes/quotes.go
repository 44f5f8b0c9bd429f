// Package quotes serves fuel pricing and QR decoding for the attendant's scanner.
package quotes

import (
	"errors"
	"io"
	"net/http"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/fuel"
	"github.com/chris/fuelpay/pkg/handlers/respond"
	"github.com/chris/fuelpay/pkg/mapping"
	"github.com/chris/fuelpay/pkg/money"
	"github.com/chris/fuelpay/pkg/qr"
	"github.com/chris/fuelpay/pkg/txerrors"
)

const maxQrBytes = 4 << 10

// QuotesHandler prices fuel from the catalog.
type QuotesHandler struct {
	Catalog *fuel.Catalog
}

// NewQuotesHandler creates a QuotesHandler.
func NewQuotesHandler(catalog *fuel.Catalog) *QuotesHandler {
	return &QuotesHandler{Catalog: catalog}
}

// CreateQuote prices a volume, or finds the volume an amount buys.
func (h *QuotesHandler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req api.QuoteRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err, nil)
		return
	}

	var (
		q   fuel.Quote
		err error
	)
	switch {
	case req.Liters != nil && req.Amount == nil:
		q, err = h.Catalog.QuoteLiters(req.FuelType, *req.Liters)
	case req.Amount != nil && req.Liters == nil:
		var cents int64
		if cents, err = money.FromDecimal(*req.Amount); err == nil {
			q, err = h.Catalog.QuoteAmount(req.FuelType, cents)
		}
	default:
		err = errors.New("exactly one of liters or amount is required")
	}
	if err != nil {
		respond.Error(w, txerrors.Validationf("%v", err), nil)
		return
	}
	respond.JSON(w, http.StatusOK, mapping.ToApiQuote(q))
}

// ParseQr validates a scanned wallet payload.
func (h *QuotesHandler) ParseQr(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxQrBytes))
	if err != nil {
		respond.Error(w, txerrors.Validationf("failed to read body: %v", err), nil)
		return
	}
	p, err := qr.Parse(data)
	if err != nil {
		respond.Error(w, err, nil)
		return
	}
	respond.JSON(w, http.StatusOK, mapping.ToApiQrPayload(p))
}
