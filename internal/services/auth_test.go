package services

import (
	"testing"

	types "github.com/verdantcare/verdant-backend/internal/domain"
	pkgerr "github.com/verdantcare/verdant-backend/internal/pkg/errors"
	"github.com/verdantcare/verdant-backend/internal/repos"
	"github.com/verdantcare/verdant-backend/internal/repos/testutil"
	"gorm.io/gorm"
)

func newAuthService(t *testing.T) (AuthService, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	profiles := NewProfileService(log, repos.NewProfileRepo(db, log))
	svc := NewAuthService(log, db, repos.NewUserRepo(db, log), repos.NewUserTokenRepo(db, log), profiles)
	return svc, db
}

func TestRegisterAndLogin(t *testing.T) {
	svc, db := newAuthService(t)

	reg, err := svc.Register(t.Context(), RegisterInput{
		Email:     "  Casey@Example.COM ",
		Password:  "correct-horse",
		FirstName: "Casey",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.User.Email != "casey@example.com" {
		t.Errorf("email = %q, want lowercased", reg.User.Email)
	}
	if reg.Token == "" {
		t.Fatal("signup must return a token")
	}
	if reg.User.Password == "correct-horse" {
		t.Fatal("password stored in cleartext")
	}

	// Signup pre-creates the interaction profile.
	var profile types.InteractionProfile
	if err := db.First(&profile, "user_id = ?", reg.User.ID).Error; err != nil {
		t.Errorf("profile not pre-created: %v", err)
	}

	login, err := svc.Login(t.Context(), "casey@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.User.ID != reg.User.ID {
		t.Error("login resolved a different user")
	}

	if _, err := svc.Login(t.Context(), "casey@example.com", "wrong"); pkgerr.KindOf(err) != pkgerr.KindAuth {
		t.Errorf("wrong password: got %v, want auth error", err)
	}
	if _, err := svc.Login(t.Context(), "nobody@example.com", "x"); pkgerr.KindOf(err) != pkgerr.KindAuth {
		t.Errorf("unknown email: got %v, want auth error", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService(t)

	if _, err := svc.Register(t.Context(), RegisterInput{Email: "not-an-email", Password: "longenough"}); pkgerr.KindOf(err) != pkgerr.KindValidation {
		t.Errorf("bad email: got %v, want validation", err)
	}
	if _, err := svc.Register(t.Context(), RegisterInput{Email: "a@b.com", Password: "short"}); pkgerr.KindOf(err) != pkgerr.KindValidation {
		t.Errorf("short password: got %v, want validation", err)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	svc, _ := newAuthService(t)

	if _, err := svc.Register(t.Context(), RegisterInput{Email: "dup@example.com", Password: "longenough"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(t.Context(), RegisterInput{Email: "DUP@example.com", Password: "longenough"})
	if pkgerr.KindOf(err) != pkgerr.KindConflict {
		t.Errorf("duplicate email: got %v, want conflict", err)
	}
}

func TestTokenResolveAndRotate(t *testing.T) {
	svc, db := newAuthService(t)

	reg, err := svc.Register(t.Context(), RegisterInput{Email: "rot@example.com", Password: "longenough"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, err := svc.ResolveToken(t.Context(), reg.Token)
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if user.ID != reg.User.ID {
		t.Error("token resolved wrong user")
	}

	rotated, err := svc.RotateToken(t.Context(), reg.User.ID)
	if err != nil {
		t.Fatalf("RotateToken: %v", err)
	}
	if rotated.Token == reg.Token {
		t.Fatal("rotation returned the same token")
	}

	// The old token is dead; exactly one row remains.
	if _, err := svc.ResolveToken(t.Context(), reg.Token); pkgerr.KindOf(err) != pkgerr.KindAuth {
		t.Errorf("old token after rotate: got %v, want auth error", err)
	}
	var count int64
	if err := db.Model(&types.UserToken{}).Where("user_id = ?", reg.User.ID).Count(&count).Error; err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if count != 1 {
		t.Errorf("token rows = %d, want 1", count)
	}
}

func TestResolveTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthService(t)
	if _, err := svc.ResolveToken(t.Context(), ""); pkgerr.KindOf(err) != pkgerr.KindAuth {
		t.Errorf("empty token: got %v, want auth error", err)
	}
	if _, err := svc.ResolveToken(t.Context(), "deadbeef"); pkgerr.KindOf(err) != pkgerr.KindAuth {
		t.Errorf("unknown token: got %v, want auth error", err)
	}
}
