package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind selects one of the two signing contexts.
type Kind int

const (
	KindAccess Kind = iota
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SigningKey is the secret and lifetime of one token kind.
type SigningKey struct {
	Secret []byte
	TTL    time.Duration
}

// Claims is the payload of both token kinds. ID (jti) keeps two tokens issued
// to the same user within one second distinct.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token together with the instants embedded in it.
type IssuedToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer creates and validates HS256 tokens. It is immutable after
// construction and safe for concurrent use.
type Issuer struct {
	clock  timex.Clock
	keys   map[Kind]SigningKey
	parser *jwt.Parser
}

// NewIssuer returns an Issuer for the given access and refresh keys. Both
// secrets must be set and must differ.
func NewIssuer(access, refresh SigningKey, clock timex.Clock) (*Issuer, error) {
	if len(access.Secret) == 0 || len(refresh.Secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	if string(access.Secret) == string(refresh.Secret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if access.TTL <= 0 || refresh.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	return &Issuer{
		clock: clock,
		keys:  map[Kind]SigningKey{KindAccess: access, KindRefresh: refresh},
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(clock.Now),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}, nil
}

func (i *Issuer) IssueAccess(userID string) (IssuedToken, error) {
	return i.Issue(userID, KindAccess)
}

func (i *Issuer) IssueRefresh(userID string) (IssuedToken, error) {
	return i.Issue(userID, KindRefresh)
}

// Issue signs a token of the given kind. The clock is read once; iat and exp
// are derived from the same instant.
func (i *Issuer) Issue(userID string, kind Kind) (IssuedToken, error) {
	return i.issueAt(userID, kind, i.now())
}

// IssuePair signs an access and a refresh token from a single clock sample.
func (i *Issuer) IssuePair(userID string) (access IssuedToken, refresh IssuedToken, err error) {
	now := i.now()
	if access, err = i.issueAt(userID, KindAccess, now); err != nil {
		return IssuedToken{}, IssuedToken{}, err
	}
	if refresh, err = i.issueAt(userID, KindRefresh, now); err != nil {
		return IssuedToken{}, IssuedToken{}, err
	}
	return access, refresh, nil
}

func (i *Issuer) now() time.Time {
	return i.clock.Now().UTC().Truncate(time.Second)
}

func (i *Issuer) issueAt(userID string, kind Kind, now time.Time) (IssuedToken, error) {
	key, ok := i.keys[kind]
	if !ok {
		return IssuedToken{}, fmt.Errorf("unknown token kind %s", kind)
	}

	exp := now.Add(key.TTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	s, err := token.SignedString(key.Secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	return IssuedToken{Token: s, IssuedAt: now, ExpiresAt: exp}, nil
}

func (i *Issuer) ValidateAccess(token string) (string, error) {
	return i.Validate(token, KindAccess)
}

func (i *Issuer) ValidateRefresh(token string) (string, error) {
	return i.Validate(token, KindRefresh)
}

// Validate checks the signature against the secret of kind and requires
// exp > now. It returns the user id carried by the token.
func (i *Issuer) Validate(token string, kind Kind) (string, error) {
	key, ok := i.keys[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %s", kind)
	}

	claims := &Claims{}
	_, err := i.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return key.Secret, nil
	})
	if err != nil {
		return "", mapJWTError(err)
	}

	if claims.UserID == "" {
		return "", common.ErrTokenMalformed
	}

	return claims.UserID, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return common.ErrTokenInvalidSignature
	default:
		return fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}
}
