package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func newManager(t *testing.T, pin string, users *userStoreStub) *AuthManager {
	t.Helper()
	var userStore UserStore
	if users != nil {
		userStore = users
	}
	manager, err := NewAuthManager(context.Background(), testSecret, time.Hour, pin, userStore, nil)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	return manager
}

func legacyAdmin() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewAuthManager(context.Background(), "too-short", time.Hour, "482913", nil, nil); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := legacyAdmin()
	manager := newManager(t, "482913", users)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, _ := users.ListUsers(context.Background())
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
}

func TestTokenRoundTripCarriesRoleAndName(t *testing.T) {
	users := legacyAdmin()
	users.users["kasir1"] = domain.UserAccount{Username: "kasir1", DisplayName: "Kasir Satu", Password: "secret99", Role: domain.RoleCashier, Active: true}
	manager := newManager(t, "482913", users)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "KASIR1 ", Password: "secret99"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "kasir1" || actor.Role != domain.RoleCashier || actor.DisplayName != "Kasir Satu" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other, err := NewAuthManager(context.Background(), strings.Repeat("x", 40), time.Hour, "", nil, nil)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token from another secret to be rejected, got %v", err)
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"old": {Username: "old", Password: "secret99", Role: domain.RoleCashier, Active: false},
	}}
	manager := newManager(t, "482913", users)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "old", Password: "secret99"}); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected inactive account error, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "old", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	users := legacyAdmin()
	manager := newManager(t, "482913", users)

	cashier, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{
		Username:    "KasirBaru",
		DisplayName: "Kasir Baru",
		Password:    "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Username != "kasirbaru" || cashier.Role != domain.RoleCashier {
		t.Fatalf("unexpected cashier %+v", cashier)
	}

	found, ok := users.users["kasirbaru"]
	if !ok {
		t.Fatalf("expected cashier to be saved")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "kasirbaru", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}

	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "kasirbaru", Password: "pass1234"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "ab", Password: "pass1234"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for short username, got %v", err)
	}

	cashiers := manager.ListCashiers(context.Background())
	if len(cashiers) != 1 || cashiers[0].DisplayName != "Kasir Baru" {
		t.Fatalf("unexpected cashier list %+v", cashiers)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := newManager(t, "654321", &userStoreStub{users: map[string]domain.UserAccount{}})

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}

	unset := newManager(t, "", nil)
	if unset.ValidateManagerPIN("654321") {
		t.Fatalf("expected no pin to validate when none is configured")
	}
}
