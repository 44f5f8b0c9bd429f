package wallets

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/chris/fuelpay/pkg/api"
	"github.com/chris/fuelpay/pkg/handlers/respond"
	"github.com/chris/fuelpay/pkg/mapping"
	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/money"
	"github.com/chris/fuelpay/pkg/txerrors"
)

// WalletStore is the wallet CRUD surface.
type WalletStore interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	DeleteWallet(ctx context.Context, userID string) error
	ListWallets(ctx context.Context) ([]models.Wallet, error)
}

// TopUpper credits balances.
type TopUpper interface {
	TopUp(ctx context.Context, userID string, amount int64, at time.Time) (*models.Wallet, error)
}

// WalletsHandler holds the dependencies for wallet-related handlers.
type WalletsHandler struct {
	Store   WalletStore
	Settler TopUpper
	Now     func() time.Time
}

// NewWalletsHandler creates a new WalletsHandler.
func NewWalletsHandler(store WalletStore, settler TopUpper) *WalletsHandler {
	return &WalletsHandler{Store: store, Settler: settler, Now: time.Now}
}

// CreateWallet handles the logic for creating a new wallet.
func (h *WalletsHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var newWallet api.NewWallet
	if err := respond.Decode(r, &newWallet); err != nil {
		respond.Error(w, err, nil)
		return
	}

	domainWallet, err := mapping.ToDomainNewWallet(&newWallet, h.Now().UTC())
	if err != nil {
		respond.Error(w, err, nil)
		return
	}

	created, err := h.Store.CreateWallet(r.Context(), domainWallet)
	if err != nil {
		respond.Error(w, err, nil)
		return
	}
	respond.JSON(w, http.StatusCreated, mapping.ToApiWallet(created))
}

// DeleteWallet handles the logic for deleting a user's wallet.
func (h *WalletsHandler) DeleteWallet(w http.ResponseWriter, r *http.Request, userId string) {
	if err := h.Store.DeleteWallet(r.Context(), userId); err != nil {
		respond.Error(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWallets returns every wallet, newest first.
func (h *WalletsHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	domainWallets, err := h.Store.ListWallets(r.Context())
	if err != nil {
		respond.Error(w, err, nil)
		return
	}

	sort.Slice(domainWallets, func(i, j int) bool {
		return domainWallets[i].CreatedAt.After(domainWallets[j].CreatedAt)
	})

	apiWallets := make([]*api.Wallet, len(domainWallets))
	for i := range domainWallets {
		apiWallets[i] = mapping.ToApiWallet(&domainWallets[i])
	}
	respond.JSON(w, http.StatusOK, apiWallets)
}

// GetWalletByUserId handles the logic for retrieving a user's wallet.
func (h *WalletsHandler) GetWalletByUserId(w http.ResponseWriter, r *http.Request, userId string) {
	domainWallet, err := h.Store.GetWallet(r.Context(), userId)
	if err != nil {
		respond.Error(w, err, nil)
		return
	}
	respond.JSON(w, http.StatusOK, mapping.ToApiWallet(domainWallet))
}

// TopUpWallet credits the wallet.
func (h *WalletsHandler) TopUpWallet(w http.ResponseWriter, r *http.Request, userId string) {
	var body api.TopUp
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, err, nil)
		return
	}
	amount, err := money.FromDecimal(body.Amount)
	if err != nil {
		respond.Error(w, txerrors.Validationf("%v", err), nil)
		return
	}

	wallet, err := h.Settler.TopUp(r.Context(), userId, amount, h.Now().UTC())
	if err != nil {
		respond.Error(w, err, nil)
		return
	}
	respond.JSON(w, http.StatusOK, mapping.ToApiWallet(wallet))
}
