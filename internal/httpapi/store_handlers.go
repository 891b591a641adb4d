package httpapi

import (
	"net/http"
	"strings"
	"time"

	"lojinha.app/internal/stream"
	"lojinha.app/internal/tenant"
)

type createStoreRequest struct {
	Nome     string `json:"nome"`
	CNPJ     string `json:"cnpj"`
	Endereco string `json:"endereco"`
	Telefone string `json:"telefone"`
}

type updateStoreRequest struct {
	Nome     *string `json:"nome"`
	CNPJ     *string `json:"cnpj"`
	Endereco *string `json:"endereco"`
	Telefone *string `json:"telefone"`
}

type issueInviteRequest struct {
	TTLHours int `json:"ttl_hours"`
}

type issueInviteResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type roleResponse struct {
	Role        tenant.Role `json:"nivel_acesso"`
	DefaultPage string      `json:"default_page,omitempty"`
}

func (a *API) handleStores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req createStoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	loja, err := a.tenants.CreateStore(r.Context(), principal.ID, tenant.NewStore{
		Nome:     req.Nome,
		CNPJ:     req.CNPJ,
		Endereco: req.Endereco,
		Telefone: req.Telefone,
	}, tenant.DisplayAttrs{
		Nome:  principal.DisplayName,
		Email: principal.Email,
	})
	if err != nil {
		handleTenantError(w, r, err)
		return
	}

	a.audit(r.Context(), "loja.create", "loja", loja.ID, map[string]string{
		"nome": loja.Nome,
	})
	a.publish(stream.StoreEvent{
		LojaID:  loja.ID,
		Type:    stream.EventStoreCreated,
		ActorID: principal.ID,
	})

	w.Header().Set("Location", "/v1/stores/"+loja.ID)
	writeJSON(w, http.StatusCreated, loja)
}

func (a *API) handleStoreScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/stores/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	lojaID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getStore(w, r, lojaID)
		case http.MethodPatch:
			a.updateStore(w, r, lojaID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		}
	case len(parts) == 2 && parts[1] == "invites":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.issueInvite(w, r, lojaID)
	case len(parts) == 2 && parts[1] == "members":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listMembers(w, r, lojaID)
	case len(parts) == 2 && parts[1] == "role":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getRole(w, r, lojaID)
	case len(parts) == 2 && parts[1] == "events":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.streamEvents(w, r, lojaID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getStore(w http.ResponseWriter, r *http.Request, lojaID string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	loja, err := a.tenants.GetStore(r.Context(), lojaID, principal.ID)
	if err != nil {
		handleTenantError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loja)
}

func (a *API) updateStore(w http.ResponseWriter, r *http.Request, lojaID string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req updateStoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	loja, err := a.tenants.UpdateStore(r.Context(), lojaID, principal.ID, tenant.StoreUpdate{
		Nome:     req.Nome,
		CNPJ:     req.CNPJ,
		Endereco: req.Endereco,
		Telefone: req.Telefone,
	})
	if err != nil {
		handleTenantError(w, r, err)
		return
	}
	a.audit(r.Context(), "loja.update", "loja", loja.ID, nil)
	writeJSON(w, http.StatusOK, loja)
}

func (a *API) issueInvite(w http.ResponseWriter, r *http.Request, lojaID string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req issueInviteRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.TTLHours < 0 {
		writeError(w, r, http.StatusBadRequest, "ttl_hours must be >= 0")
		return
	}

	ttl := time.Duration(req.TTLHours) * time.Hour
	invite, err := a.tenants.IssueCode(r.Context(), lojaID, principal.ID, ttl)
	if err != nil {
		handleTenantError(w, r, err)
		return
	}

	a.audit(r.Context(), "loja.invite.issue", "invite", invite.ID, map[string]string{
		"loja_id":    lojaID,
		"expires_at": invite.ExpiresAt.Format(time.RFC3339),
	})
	a.publish(stream.StoreEvent{
		LojaID:  lojaID,
		Type:    stream.EventInviteIssued,
		ActorID: principal.ID,
	})

	writeJSON(w, http.StatusOK, issueInviteResponse{
		Code:      invite.Code,
		ExpiresAt: invite.ExpiresAt,
	})
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request, lojaID string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	members, err := a.tenants.Members(r.Context(), lojaID, principal.ID)
	if err != nil {
		handleTenantError(w, r, err)
		return
	}
	if members == nil {
		members = []*tenant.Membership{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": members,
	})
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request, lojaID string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	role, err := a.tenants.ResolveRole(r.Context(), lojaID, principal.ID)
	if err != nil {
		handleTenantError(w, r, err)
		return
	}
	resp := roleResponse{Role: role}
	if role.Valid() {
		resp.DefaultPage = tenant.DefaultPage
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) publish(evt stream.StoreEvent) {
	if a.events == nil {
		return
	}
	a.events.Publish(evt)
}
