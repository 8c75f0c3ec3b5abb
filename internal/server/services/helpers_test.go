package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTTL  = 30 * time.Second
	refreshTTL = 7 * 24 * time.Hour
	resetTTL   = time.Hour
)

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return m.err
}

func (m *fakeMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type testEnv struct {
	clock     *timex.ManualClock
	rm        repomanager.RepositoryManager
	vault     *auth.Vault
	issuer    *auth.Issuer
	sessions  *SessionRegistry
	recovery  *RecoveryRegistry
	users     *UserService
	passwords *PasswordService
	mailer    *fakeMailer
}

func newTestEnvWith(t *testing.T, tx dbx.Transactor, rm repomanager.RepositoryManager) *testEnv {
	t.Helper()

	clock := timex.NewManualClock(testStart)

	vault, err := auth.NewVault(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewVault error: %v", err)
	}
	issuer, err := auth.NewIssuer(
		auth.SigningKey{Secret: []byte("access-secret"), TTL: accessTTL},
		auth.SigningKey{Secret: []byte("refresh-secret"), TTL: refreshTTL},
		clock,
	)
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}

	sessions := NewSessionRegistry(rm, clock)
	recovery := NewRecoveryRegistry(rm, clock, resetTTL)
	mailer := &fakeMailer{}
	log := logging.Nop{}

	return &testEnv{
		clock:     clock,
		rm:        rm,
		vault:     vault,
		issuer:    issuer,
		sessions:  sessions,
		recovery:  recovery,
		users:     NewUserService(tx, rm, vault, issuer, sessions, log),
		passwords: NewPasswordService(tx, rm, vault, recovery, sessions, mailer, "http://front", time.Second, log),
		mailer:    mailer,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, dbx.NopTransactor{}, repomanager.NewInMemoryRepositoryManager())
}

func aliceInput() RegisterInput {
	return RegisterInput{
		FirstName:       "Alice",
		LastName:        "Liddell",
		Email:           "alice@example.com",
		Password:        "Secret123!",
		PasswordConfirm: "Secret123!",
	}
}
