package auth

import (
	"context"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	t.Setenv("LOJINHA_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := GenerateToken(Principal{
		ID:          "user-42",
		Email:       "dona@example.com",
		DisplayName: "Dona Maria",
	}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	principal, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if principal.ID != "user-42" {
		t.Fatalf("unexpected principal id: %s", principal.ID)
	}
	if principal.Email != "dona@example.com" {
		t.Fatalf("unexpected email: %s", principal.Email)
	}
	if principal.DisplayName != "Dona Maria" {
		t.Fatalf("unexpected display name: %s", principal.DisplayName)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Setenv("LOJINHA_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	for _, token := range []string{"", "   ", "not.a.jwt", "a.b"} {
		if _, err := ParseAndValidate(token); err == nil {
			t.Fatalf("expected error for token %q", token)
		}
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	t.Setenv("LOJINHA_AUTH_SECRET", "secret-one")
	ResetSecretForTests()
	token, err := GenerateToken(Principal{ID: "user-1"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	t.Setenv("LOJINHA_AUTH_SECRET", "secret-two")
	ResetSecretForTests()
	if _, err := ParseAndValidate(token); err == nil {
		t.Fatal("expected validation failure with rotated secret")
	}
}

func TestMissingSecretFailsGeneration(t *testing.T) {
	t.Setenv("LOJINHA_AUTH_SECRET", "")
	ResetSecretForTests()
	if _, err := GenerateToken(Principal{ID: "user-1"}, time.Minute); err == nil {
		t.Fatal("expected error when secret is unset")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("unexpected principal in empty context")
	}

	ctx = ContextWithPrincipal(ctx, Principal{ID: "user-7", Email: "u7@example.com"})
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.ID != "user-7" {
		t.Fatalf("unexpected principal: %+v ok=%v", principal, ok)
	}
}
