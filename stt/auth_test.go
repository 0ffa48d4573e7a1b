package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

func TestTokenClientToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Query().Get("type") != "rt" {
			t.Errorf("type query = %q, want rt", r.URL.Query().Get("type"))
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]int
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["ttl"] != 60 {
			t.Errorf("ttl = %d, want 60", body["ttl"])
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"key_value":"session-token"}`))
	}))
	defer srv.Close()

	tc := NewTokenClient(srv.URL, "secret", 0, nil)
	tok, err := tc.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok != "session-token" {
		t.Errorf("Token() = %q, want session-token", tok)
	}
}

func TestTokenClientFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		apiKey string
	}{
		{"empty key", http.StatusOK, `{"key_value":"x"}`, ""},
		{"rejected", http.StatusUnauthorized, `{"detail":"bad key"}`, "secret"},
		{"missing field", http.StatusOK, `{"other":"x"}`, "secret"},
		{"bad json", http.StatusOK, `nope`, "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewTokenClient(srv.URL, tt.apiKey, time.Minute, nil).Token(context.Background())
			if !types.IsKind(err, types.KindAuth) {
				t.Errorf("Token() error = %v, want auth error", err)
			}
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).
		SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, ok := TokenExpiry(signed)
	if !ok || !got.Equal(exp) {
		t.Errorf("TokenExpiry() = %v, %v, want %v, true", got, ok, exp)
	}

	if _, ok := TokenExpiry("opaque-token"); ok {
		t.Error("TokenExpiry(opaque) ok = true, want false")
	}
}

func TestTokenClientRejectsExpiringToken(t *testing.T) {
	tests := []struct {
		name    string
		exp     time.Duration
		wantErr bool
	}{
		{"expired", -time.Minute, true},
		{"inside margin", 2 * time.Second, true},
		{"fresh", time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"exp": time.Now().Add(tt.exp).Unix(),
			}).SignedString([]byte("k"))
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]string{"key_value": signed})
			}))
			defer srv.Close()

			tok, err := NewTokenClient(srv.URL, "secret", time.Minute, nil).Token(context.Background())
			if tt.wantErr {
				if !types.IsKind(err, types.KindAuth) {
					t.Errorf("Token() error = %v, want auth error", err)
				}
				return
			}
			if err != nil || tok != signed {
				t.Errorf("Token() = %q, %v, want the issued token", tok, err)
			}
		})
	}
}
