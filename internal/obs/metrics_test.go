package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/stores":                    "/v1/stores",
		"/v1/stores/abc":                "/v1/stores/:id",
		"/v1/stores/abc/invites":        "/v1/stores/:id/invites",
		"/v1/stores/abc/members":        "/v1/stores/:id/members",
		"/v1/stores/abc/role":           "/v1/stores/:id/role",
		"/v1/stores/abc/events":         "/v1/stores/:id/events",
		"/v1/stores/abc/extra":          "/v1/stores/abc/extra",
		"/v1/employees/cred-1":          "/v1/employees/:id",
		"/v1/invites/redeem":            "/v1/invites/redeem",
		"/v1/principals/resolve":        "/v1/principals/resolve",
		"/v1/stores/abc/role?x=1":       "/v1/stores/:id/role",
		"/v1/stores/abc/invites?ttl=48": "/v1/stores/:id/invites",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
