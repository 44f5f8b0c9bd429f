package ledger

import (
	"net/http"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/handlers/respond"
	"github.com/chris/fuelpay/pkg/mapping"
	"github.com/chris/fuelpay/pkg/storage"
)

// DefaultLimit is the page size when the request sets none.
const DefaultLimit int32 = 20

// LedgerHandler holds the dependencies for ledger-related handlers.
type LedgerHandler struct {
	Store storage.LedgerReader
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(store storage.LedgerReader) *LedgerHandler {
	return &LedgerHandler{Store: store}
}

// ListLedgerEntries returns the newest balance movements first.
func (h *LedgerHandler) ListLedgerEntries(w http.ResponseWriter, r *http.Request, params api.ListLedgerEntriesParams) {
	limit := DefaultLimit
	if params.Limit != nil && *params.Limit > 0 {
		limit = *params.Limit
	}

	domainEntries, err := h.Store.ListLedgerEntries(r.Context(), limit)
	if err != nil {
		respond.Error(w, err, nil)
		return
	}

	apiEntries := make([]*api.LedgerEntry, len(domainEntries))
	for i := range domainEntries {
		apiEntries[i] = mapping.ToApiLedgerEntry(&domainEntries[i])
	}
	respond.JSON(w, http.StatusOK, apiEntries)
}
