package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewNormalizesBaseURL(t *testing.T) {
	c, err := New("localhost:4000/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.baseURL != "http://localhost:4000" {
		t.Fatalf("unexpected base url %q", c.baseURL)
	}
	c, err = New("")
	if err != nil || c.baseURL != "http://localhost:4000" {
		t.Fatalf("expected default base url, got %q %v", c.baseURL, err)
	}
}

func TestLoginAndSelectTeam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != "sam@example.com" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid email or password"}`))
				return
			}
			_, _ = w.Write([]byte(`{"user":{"id":"u-1","email":"sam@example.com"},"tokens":{"access_token":"a","refresh_token":"r","expires_in":900,"token_type":"Bearer"}}`))
		case "/workspace/selection/team":
			if r.Header.Get("Authorization") != "Bearer a" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"selected_team_id":"2","selected_team":{"id":"2","name":"Monsters Inc","role":"Admin"},"selected_project":null}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := c.Login(context.Background(), "sam@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Tokens.AccessToken != "a" || resp.Tokens.ExpiresIn != 900 || resp.User.ID != "u-1" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	sel, err := c.SelectTeam(context.Background(), "a", "2")
	if err != nil {
		t.Fatalf("SelectTeam: %v", err)
	}
	if sel.Team == nil || sel.Team.Role != "Admin" || sel.Project != nil {
		t.Fatalf("unexpected selection %+v", sel)
	}

	_, err = c.Login(context.Background(), "nobody@example.com", "pw")
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Message != "invalid email or password" {
		t.Fatalf("expected APIError 401, got %v", err)
	}
}
