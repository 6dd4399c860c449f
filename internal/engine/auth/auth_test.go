package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := Tokens{Secret: "s3cret", TTL: time.Hour, Now: func() time.Time { return now }}
	raw, err := tok.Issue("p-1", "ada")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := tok.Parse(raw)
	if err != nil || id != "p-1" {
		t.Fatalf("parse: %s, %v", id, err)
	}

	other := Tokens{Secret: "other", Now: tok.Now}
	if _, err := other.Parse(raw); err == nil {
		t.Fatalf("expected signature failure")
	}

	later := Tokens{Secret: "s3cret", Now: func() time.Time { return now.Add(2 * time.Hour) }}
	if _, err := later.Parse(raw); err == nil {
		t.Fatalf("expected expiry failure")
	}
}

func TestIssueRequiresSecret(t *testing.T) {
	if _, err := (Tokens{}).Issue("p-1", ""); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

func TestRequire(t *testing.T) {
	if err := Require("ship", "s1", "p1", "p1"); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	err := Require("ship", "s1", "p1", "p2")
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.Kind != "ship" || fe.ID != "s1" {
		t.Fatalf("got %v", err)
	}
}
