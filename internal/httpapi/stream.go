package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"lojinha.app/internal/tenant"
)

// streamEvents serves the store activity feed over Server-Sent Events.
// Owners and managers only; events for other stores are filtered out.
func (a *API) streamEvents(w http.ResponseWriter, r *http.Request, lojaID string) {
	if a.events == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	role, err := a.tenants.ResolveRole(r.Context(), lojaID, principal.ID)
	if err != nil {
		handleTenantError(w, r, err)
		return
	}
	if role != tenant.RoleOwner && role != tenant.RoleManager {
		handleTenantError(w, r, tenant.ErrForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.events.Subscribe(ctx)

	// Initial comment establishes the stream on the client side.
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		if event.LojaID != "" && event.LojaID != lojaID {
			continue
		}
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
