package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testSecret = []byte("test-operator-secret-0123456789ab")

func TestOperatorTokenRoundTrip(t *testing.T) {
	token, err := GenerateOperatorToken(testSecret, "org-1", "ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := ParseOperatorToken(testSecret, token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.OrgID != "org-1" {
		t.Errorf("org = %q, want org-1", claims.OrgID)
	}
	if claims.Subject != "ops@example.com" {
		t.Errorf("subject = %q, want ops@example.com", claims.Subject)
	}
}

func TestParseOperatorTokenWrongSecret(t *testing.T) {
	token, err := GenerateOperatorToken(testSecret, "org-1", "ops", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := ParseOperatorToken([]byte("another-secret-another-secret-00"), token); err == nil {
		t.Fatal("expected error for token signed with different secret")
	}
}

func TestParseOperatorTokenExpired(t *testing.T) {
	token, err := GenerateOperatorToken(testSecret, "org-1", "ops", -time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := ParseOperatorToken(testSecret, token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestRequireOperator(t *testing.T) {
	var gotOrg string
	handler := RequireOperator(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = OrgFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := GenerateOperatorToken(testSecret, "org-42", "ops", time.Hour)
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if gotOrg != "org-42" {
			t.Errorf("org from context = %q, want org-42", gotOrg)
		}
	})
}
