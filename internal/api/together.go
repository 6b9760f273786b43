package api

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"castwatch/internal/model"
	"castwatch/internal/store"
)

type profileResponse struct {
	User               model.User                  `json:"user"`
	RecentAttestations []model.TogetherAttestation `json:"recent_attestations"`
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		h.writeError(w, http.StatusBadRequest, "invalid wallet address format")
		return
	}

	user, found, err := h.store.GetUserByAddress(r.Context(), address)
	if err != nil {
		h.logger.Error("get user", zap.String("address", address), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "user not found")
		return
	}

	recent, err := h.store.RecentAttestations(r.Context(), address, 20)
	if err != nil {
		h.logger.Error("recent attestations", zap.String("address", address), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load attestations")
		return
	}

	h.writeJSON(w, http.StatusOK, profileResponse{
		User:               user,
		RecentAttestations: recent,
	})
}

type attestationsResponse struct {
	Address1     string                      `json:"address_1"`
	Address2     string                      `json:"address_2"`
	Attestations []model.TogetherAttestation `json:"attestations"`
	Count        int                         `json:"count"`
}

func (h *Handler) handleAttestations(w http.ResponseWriter, r *http.Request) {
	addr1 := r.URL.Query().Get("address_1")
	addr2 := r.URL.Query().Get("address_2")
	if !common.IsHexAddress(addr1) || !common.IsHexAddress(addr2) {
		h.writeError(w, http.StatusBadRequest, "address_1 and address_2 must be valid wallet addresses")
		return
	}

	atts, err := h.store.AttestationsForPair(r.Context(), addr1, addr2)
	if err != nil {
		h.logger.Error("attestations for pair", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to load attestations")
		return
	}

	a1, a2 := store.CanonicalPair(addr1, addr2)
	h.writeJSON(w, http.StatusOK, attestationsResponse{
		Address1:     a1,
		Address2:     a2,
		Attestations: atts,
		Count:        len(atts),
	})
}

type togetherRequest struct {
	WalletAddress  string `json:"wallet_address"`
	PartnerAddress string `json:"partner_address"`
}

type togetherResponse struct {
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
}

// handleTogether records a one-directional together request. When the
// partner has already requested the reverse direction the response reports
// "matched"; the matcher worker picks the pair up and submits the
// transaction on-chain.
func (h *Handler) handleTogether(w http.ResponseWriter, r *http.Request) {
	var req togetherRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.WalletAddress) || !common.IsHexAddress(req.PartnerAddress) {
		h.writeError(w, http.StatusBadRequest, "invalid wallet address format")
		return
	}
	if common.HexToAddress(req.WalletAddress) == common.HexToAddress(req.PartnerAddress) {
		h.writeError(w, http.StatusBadRequest, "cannot request together with yourself")
		return
	}

	requester, err := h.store.GetOrCreateUser(r.Context(), req.WalletAddress)
	if err != nil {
		h.logger.Error("get or create requester", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	partner, err := h.store.GetOrCreateUser(r.Context(), req.PartnerAddress)
	if err != nil {
		h.logger.Error("get or create partner", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	pending, err := h.store.UpsertPendingConnection(r.Context(), requester.ID, partner.ID, h.now().Add(h.pendingTTL))
	if err != nil {
		h.logger.Error("upsert pending connection", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to record request")
		return
	}

	matched, err := h.store.HasPendingBetween(r.Context(), partner.ID, requester.ID)
	if err != nil {
		h.logger.Error("check reverse pending", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to check match")
		return
	}

	status := "pending"
	if matched {
		status = "matched"
	}
	h.logger.Info("together request",
		zap.String("from", requester.WalletAddress),
		zap.String("to", partner.WalletAddress),
		zap.String("status", status))
	h.writeJSON(w, http.StatusOK, togetherResponse{
		Status:    status,
		ExpiresAt: pending.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
