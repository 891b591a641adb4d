// Smoke test against a running lojinha-api: creates a store, issues an
// invite code, redeems it as an employee, and verifies the code is burned.
// Requires LOJINHA_AUTH_SECRET to match the target server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"lojinha.app/internal/auth"
)

func main() {
	base := os.Getenv("LOJINHA_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	ownerToken := mustToken("smoke-owner", "Smoke Owner")
	empToken := mustToken("smoke-emp", "Smoke Employee")

	client := &http.Client{Timeout: 5 * time.Second}

	var loja struct {
		ID string `json:"id"`
	}
	status := call(client, ownerToken, http.MethodPost, base+"/v1/stores",
		map[string]any{"nome": fmt.Sprintf("Loja Smoke %d", time.Now().Unix())}, &loja)
	if status != http.StatusCreated {
		log.Fatalf("create store: unexpected status %d", status)
	}

	var invite struct {
		Code string `json:"code"`
	}
	status = call(client, ownerToken, http.MethodPost, base+"/v1/stores/"+loja.ID+"/invites", nil, &invite)
	if status != http.StatusOK {
		log.Fatalf("issue invite: unexpected status %d", status)
	}

	var redeemed struct {
		OK     bool   `json:"ok"`
		LojaID string `json:"loja_id"`
	}
	status = call(client, empToken, http.MethodPost, base+"/v1/invites/redeem",
		map[string]any{"code": invite.Code}, &redeemed)
	if status != http.StatusOK || !redeemed.OK || redeemed.LojaID != loja.ID {
		log.Fatalf("redeem failed: status=%d body=%+v", status, redeemed)
	}

	var errBody struct {
		Kind string `json:"kind"`
	}
	status = call(client, empToken, http.MethodPost, base+"/v1/invites/redeem",
		map[string]any{"code": invite.Code}, &errBody)
	if status != http.StatusBadRequest || errBody.Kind != "already_used" {
		log.Fatalf("second redemption not rejected: status=%d kind=%q", status, errBody.Kind)
	}

	var role struct {
		Role string `json:"nivel_acesso"`
	}
	status = call(client, empToken, http.MethodGet, base+"/v1/stores/"+loja.ID+"/role", nil, &role)
	if status != http.StatusOK || role.Role != "funcionario" {
		log.Fatalf("role probe: status=%d role=%q", status, role.Role)
	}

	fmt.Printf("smoke test passed: loja=%s code=%s\n", loja.ID, invite.Code)
}

func mustToken(id, name string) string {
	token, err := auth.GenerateToken(auth.Principal{ID: id, DisplayName: name}, 10*time.Minute)
	if err != nil {
		log.Fatalf("generate token for %s: %v", id, err)
	}
	return token
}

func call(client *http.Client, token, method, url string, body any, out any) int {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}
