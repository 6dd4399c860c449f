package stardocksdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterStoresToken(t *testing.T) {
	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/players":
			json.NewEncoder(w).Encode(Registration{Player: Player{ID: "p1", Name: "ada"}, Token: "tok"})
		case "/v1/me":
			sawAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(Player{ID: "p1", Name: "ada", Credits: 1000})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	if _, err := c.Register(context.Background(), "ada"); err != nil {
		t.Fatalf("register: %v", err)
	}
	me, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if sawAuth != "Bearer tok" || me.Credits != 1000 {
		t.Fatalf("auth %q, me %+v", sawAuth, me)
	}
}

func TestErrorsCarryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"code":"rejected","message":"insufficient credits"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Trade(context.Background(), "s1", "food", "buy", 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected api error, got %v", err)
	}
}
