package httpapi

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"konterhp/backend/internal/domain"
	"konterhp/backend/internal/store"
	"konterhp/backend/internal/store/memory"
)

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	repo := memory.New()
	err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "legacy",
		Password:  "plain-secret",
		Role:      domain.RoleAgent,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plain-secret"}); err != nil {
		t.Fatalf("login with legacy password failed: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected one user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected stored password upgraded to bcrypt, got %q", users[0].Password)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.New())

	user, err := auth.CreateUser(domain.UserCreateRequest{Username: "dewi", Password: "secret123", Role: domain.RoleAgent})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Role != domain.RoleAgent {
		t.Fatalf("expected agent role, got %s", user.Role)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "dewi", Password: "wrong"}); err == nil {
		t.Fatalf("expected login failure with wrong password")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "dewi", Password: "secret123"}); err != nil {
		t.Fatalf("login with correct password failed: %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.New())

	if _, err := auth.CreateUser(domain.UserCreateRequest{Username: "ab", Password: "secret123", Role: domain.RoleAgent}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short username, got %v", err)
	}
	if _, err := auth.CreateUser(domain.UserCreateRequest{Username: "valid", Password: "123", Role: domain.RoleAgent}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if _, err := auth.CreateUser(domain.UserCreateRequest{Username: "valid", Password: "secret123", Role: "superuser"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown role, got %v", err)
	}

	if _, err := auth.CreateUser(domain.UserCreateRequest{Username: "valid", Password: "secret123", Role: domain.RoleManager}); err != nil {
		t.Fatalf("create valid user failed: %v", err)
	}
	if _, err := auth.CreateUser(domain.UserCreateRequest{Username: "valid", Password: "secret123", Role: domain.RoleManager}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
}

func TestSetupFirstAdminConflictsAfterFirst(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.New())

	if _, err := auth.SetupFirstAdmin(domain.SetupAdminRequest{Username: "boss", Password: "secret123"}); err != nil {
		t.Fatalf("first setup failed: %v", err)
	}
	if _, err := auth.SetupFirstAdmin(domain.SetupAdminRequest{Username: "other", Password: "secret123"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on second setup, got %v", err)
	}
}

func TestAssignRoleUnknownUser(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.New())

	if _, err := auth.AssignRole("ghost", domain.RoleManager); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	repo := memory.New()
	signer := NewAuthManager("secret-one", time.Hour, repo)
	if _, err := signer.SetupFirstAdmin(domain.SetupAdminRequest{Username: "boss", Password: "secret123"}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	resp, err := signer.Login(domain.LoginRequest{Username: "boss", Password: "secret123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	verifier := NewAuthManager("secret-two", time.Hour, repo)
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token rejection with different secret")
	}

	actor, err := signer.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse with signing secret failed: %v", err)
	}
	if actor.Username != "boss" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}
