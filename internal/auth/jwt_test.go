package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	token, exp, err := IssueDeviceToken("CLASSROOM-1", "aura-backend", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) <= 0 {
		t.Fatal("expiry must be in the future")
	}

	claims, err := Parse(token, "secret", "aura-backend")
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "CLASSROOM-1" || claims.Role != "device" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongKeyOrIssuer(t *testing.T) {
	token, _, err := IssueDeviceToken("CLASSROOM-1", "aura-backend", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token, "other-secret", "aura-backend"); err == nil {
		t.Fatal("wrong key must fail")
	}
	if _, err := Parse(token, "secret", "someone-else"); err == nil {
		t.Fatal("wrong issuer must fail")
	}
}
