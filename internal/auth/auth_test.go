package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignParseRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign(Identity{Subject: "p1", Role: RolePassenger}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	id, err := v.Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	if id.Subject != "p1" || id.Role != RolePassenger {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").Sign(Identity{Subject: "d1", Role: RoleDriver}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewVerifier("secret-b").Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign(Identity{Subject: "d1", Role: RoleDriver}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken for expired token, got %v", err)
	}
}

func TestFromAuthorizationHeader(t *testing.T) {
	v := NewVerifier("test-secret")
	token, _ := v.Sign(Identity{Subject: "p1", Role: RolePassenger}, time.Hour)

	if _, err := v.FromAuthorizationHeader(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty header: want ErrMissingToken, got %v", err)
	}
	if _, err := v.FromAuthorizationHeader(token); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("missing Bearer prefix: want ErrMissingToken, got %v", err)
	}
	id, err := v.FromAuthorizationHeader("Bearer " + token)
	if err != nil {
		t.Fatal(err)
	}
	if id.Subject != "p1" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}
