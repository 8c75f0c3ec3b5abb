package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

var (
	accessKey  = SigningKey{Secret: []byte("access-secret"), TTL: 30 * time.Second}
	refreshKey = SigningKey{Secret: []byte("refresh-secret"), TTL: 7 * 24 * time.Hour}
	issueTime  = time.Date(2024, 5, 1, 12, 0, 0, 500_000_000, time.UTC)
)

func newTestIssuer(t *testing.T) (*Issuer, *timex.ManualClock) {
	t.Helper()
	clock := timex.NewManualClock(issueTime)
	iss, err := NewIssuer(accessKey, refreshKey, clock)
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}
	return iss, clock
}

func TestIssueAndValidate_Success(t *testing.T) {
	t.Parallel()

	iss, _ := newTestIssuer(t)

	tok, err := iss.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	got, err := iss.ValidateAccess(tok.Token)
	if err != nil {
		t.Fatalf("ValidateAccess error: %v", err)
	}
	if got != "user-123" {
		t.Fatalf("userID mismatch: got %q want %q", got, "user-123")
	}
}

func TestIssue_SingleClockSample(t *testing.T) {
	t.Parallel()

	iss, _ := newTestIssuer(t)

	tok, err := iss.IssueRefresh("u1")
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}

	wantIat := issueTime.Truncate(time.Second)
	if !tok.IssuedAt.Equal(wantIat) {
		t.Fatalf("IssuedAt: got %v want %v", tok.IssuedAt, wantIat)
	}
	if d := tok.ExpiresAt.Sub(tok.IssuedAt); d != refreshKey.TTL {
		t.Fatalf("exp-iat: got %v want %v", d, refreshKey.TTL)
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.Token, claims); err != nil {
		t.Fatalf("ParseUnverified error: %v", err)
	}
	if claims.IssuedAt.Unix() != tok.IssuedAt.Unix() || claims.ExpiresAt.Unix() != tok.ExpiresAt.Unix() {
		t.Fatalf("embedded claims %v/%v differ from returned %v/%v",
			claims.IssuedAt, claims.ExpiresAt, tok.IssuedAt, tok.ExpiresAt)
	}
	if claims.UserID != "u1" || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidate_Expiry(t *testing.T) {
	t.Parallel()

	iss, clock := newTestIssuer(t)

	tok, err := iss.IssueAccess("u1")
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	clock.Set(tok.ExpiresAt.Add(-time.Second))
	if _, err := iss.ValidateAccess(tok.Token); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}

	clock.Set(tok.ExpiresAt.Add(time.Second))
	_, err = iss.ValidateAccess(tok.Token)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
	if !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expired token must classify as unauthorized, got %v", err)
	}
}

func TestValidate_NamespaceSeparation(t *testing.T) {
	t.Parallel()

	iss, _ := newTestIssuer(t)

	access, err := iss.IssueAccess("u1")
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	refresh, err := iss.IssueRefresh("u1")
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}

	if _, err := iss.ValidateAccess(refresh.Token); !errors.Is(err, common.ErrTokenInvalidSignature) {
		t.Fatalf("refresh as access: expected ErrTokenInvalidSignature, got %v", err)
	}
	if _, err := iss.ValidateRefresh(access.Token); !errors.Is(err, common.ErrTokenInvalidSignature) {
		t.Fatalf("access as refresh: expected ErrTokenInvalidSignature, got %v", err)
	}
}

func TestValidate_WrongAlgorithm(t *testing.T) {
	t.Parallel()

	iss, _ := newTestIssuer(t)

	now := issueTime.Truncate(time.Second)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})
	s, err := tok.SignedString(accessKey.Secret)
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}

	if _, err := iss.ValidateAccess(s); !errors.Is(err, common.ErrTokenInvalidSignature) {
		t.Fatalf("expected ErrTokenInvalidSignature, got %v", err)
	}
}

func TestValidate_Malformed(t *testing.T) {
	t.Parallel()

	iss, _ := newTestIssuer(t)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1"})
	noExpStr, err := noExp.SignedString(accessKey.Secret)
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}

	noUser := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(issueTime.Add(time.Minute))},
	})
	noUserStr, err := noUser.SignedString(accessKey.Secret)
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}

	for name, tok := range map[string]string{
		"garbage":    "not-a-token",
		"empty":      "",
		"two parts":  "abc.def",
		"no exp":     noExpStr,
		"no user id": noUserStr,
	} {
		if _, err := iss.ValidateAccess(tok); !errors.Is(err, common.ErrTokenMalformed) {
			t.Errorf("%s: expected ErrTokenMalformed, got %v", name, err)
		}
	}
}

func TestIssue_SameSecondTokensDiffer(t *testing.T) {
	t.Parallel()

	iss, _ := newTestIssuer(t)

	a, err := iss.IssueRefresh("u1")
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}
	b, err := iss.IssueRefresh("u1")
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}
	if a.Token == b.Token {
		t.Fatalf("tokens issued in the same second must differ")
	}
}

func TestNewIssuer_Rejects(t *testing.T) {
	t.Parallel()

	clock := timex.NewManualClock(issueTime)

	cases := map[string][2]SigningKey{
		"empty access":  {{TTL: time.Second}, refreshKey},
		"empty refresh": {accessKey, {TTL: time.Second}},
		"same secret":   {accessKey, {Secret: accessKey.Secret, TTL: time.Hour}},
		"zero ttl":      {{Secret: []byte("a")}, refreshKey},
	}
	for name, keys := range cases {
		if _, err := NewIssuer(keys[0], keys[1], clock); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindAccess.String() != "access" || KindRefresh.String() != "refresh" || Kind(7).String() != "kind(7)" {
		t.Fatalf("unexpected kind names")
	}
}

func TestIssuePair_SharesInstant(t *testing.T) {
	t.Parallel()

	iss, _ := newTestIssuer(t)

	access, refresh, err := iss.IssuePair("u1")
	if err != nil {
		t.Fatalf("IssuePair error: %v", err)
	}
	if !access.IssuedAt.Equal(refresh.IssuedAt) {
		t.Fatalf("pair issued at different instants: %v vs %v", access.IssuedAt, refresh.IssuedAt)
	}
	if access.ExpiresAt.Sub(access.IssuedAt) != accessKey.TTL || refresh.ExpiresAt.Sub(refresh.IssuedAt) != refreshKey.TTL {
		t.Fatalf("unexpected lifetimes: %+v %+v", access, refresh)
	}
	if _, err := iss.ValidateAccess(access.Token); err != nil {
		t.Fatalf("access from pair invalid: %v", err)
	}
	if _, err := iss.ValidateRefresh(refresh.Token); err != nil {
		t.Fatalf("refresh from pair invalid: %v", err)
	}
}
