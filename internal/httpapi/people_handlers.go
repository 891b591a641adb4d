package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"lojinha.app/internal/identity"
	"lojinha.app/internal/obs"
	"lojinha.app/internal/stream"
	"lojinha.app/internal/tenant"
)

type redeemRequest struct {
	Code string `json:"code"`
}

type resolvePrincipalsRequest struct {
	IDs []string `json:"ids"`
}

type resolvePrincipalsResponse struct {
	Principals []identity.Principal `json:"principals"`
}

func (a *API) handleRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	member, err := a.tenants.Redeem(r.Context(), req.Code, tenant.Redeemer{
		ID:    principal.ID,
		Nome:  principal.DisplayName,
		Email: principal.Email,
	})
	if err != nil {
		obs.CountRedemption(redemptionResult(err))
		handleTenantError(w, r, err)
		return
	}
	obs.CountRedemption("ok")

	a.audit(r.Context(), "loja.invite.redeem", "loja", member.LojaID, map[string]string{
		"usuario_id": member.UsuarioID,
	})
	a.publish(stream.StoreEvent{
		LojaID:    member.LojaID,
		Type:      stream.EventInviteRedeemed,
		ActorID:   principal.ID,
		SubjectID: member.UsuarioID,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"loja_id": member.LojaID,
	})
}

func redemptionResult(err error) string {
	switch {
	case errors.Is(err, tenant.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, tenant.ErrExpired):
		return "expired"
	case errors.Is(err, tenant.ErrNotFound):
		return "not_found"
	case errors.Is(err, tenant.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func (a *API) handleEmployeeResource(w http.ResponseWriter, r *http.Request) {
	credentialID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/employees/"), "/")
	if credentialID == "" {
		writeError(w, r, http.StatusBadRequest, "credential id is required")
		return
	}
	if strings.Contains(credentialID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := a.tenants.RemoveEmployee(r.Context(), credentialID, principal.ID); err != nil {
		handleTenantError(w, r, err)
		return
	}

	a.audit(r.Context(), "loja.employee.remove", "credential", credentialID, nil)
	a.publish(stream.StoreEvent{
		Type:      stream.EventMemberRemoved,
		ActorID:   principal.ID,
		SubjectID: credentialID,
	})

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handlePrincipalsResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	if a.dir == nil {
		writeError(w, r, http.StatusInternalServerError, "identity directory is not configured")
		return
	}
	var req resolvePrincipalsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "ids are required")
		return
	}
	if len(req.IDs) > 100 {
		writeError(w, r, http.StatusBadRequest, "at most 100 ids per request")
		return
	}

	principals, err := a.dir.Resolve(r.Context(), req.IDs)
	if err != nil {
		if errors.Is(err, identity.ErrNotConfigured) {
			writeError(w, r, http.StatusInternalServerError, "identity directory is not configured")
			return
		}
		writeError(w, r, http.StatusBadGateway, "identity directory request failed")
		return
	}
	if principals == nil {
		principals = []identity.Principal{}
	}
	writeJSON(w, http.StatusOK, resolvePrincipalsResponse{Principals: principals})
}
