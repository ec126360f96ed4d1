package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/auth"
	"github.com/sakif/habit-tracker/internal/logging"
	"github.com/sakif/habit-tracker/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. The other service
// tests run against SQLite; these stay on a fake so failures can be injected.
type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int
	// set to a non-nil error to simulate a database failure
	createErr error
	upsertErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) insert(user *model.User) {
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("an account with this email already exists")
		}
	}
	f.insert(user)
	return nil
}

func (f *fakeUserRepo) UpsertGitHubUser(_ context.Context, user *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, u := range f.users {
		if u.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			if user.Email != "" {
				u.Email = user.Email
			}
			*user = *u
			return nil
		}
	}
	for _, u := range f.users {
		if user.Email != "" && u.Email == user.Email && u.GitHubID == nil {
			u.GitHubID = user.GitHubID
			*user = *u
			return nil
		}
	}
	f.insert(user)
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFoundByName("user with email", email)
}

func (f *fakeUserRepo) FindUsersByDisplayName(_ context.Context, name string) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if u.DisplayName == name {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) UpdateDisplayName(_ context.Context, id, name string) error {
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.DisplayName = name
	return nil
}

// newTestAuthService returns an AuthService wired with fake dependencies.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// Cost 4 is the bcrypt minimum; keeps tests fast.
	ps := auth.NewPasswordServiceForTest(4)

	return NewAuthService(repo, ts, ps, logging.Discard())
}

// =========================================================================
// SignUp / SignIn TESTS
// =========================================================================

func TestSignUp_CreatesUserAndToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.SignUp(context.Background(), "  Alice ", "Alice@Example.com", "password123")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if result.User.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, want %q", result.User.DisplayName, "Alice")
	}
	if result.User.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lower-cased", result.User.Email)
	}
	if result.User.PasswordHash == "password123" || result.User.PasswordHash == "" {
		t.Error("password was not hashed")
	}

	userID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("token subject = %q, want %q", userID, result.User.ID)
	}
}

func TestSignUp_Validation(t *testing.T) {
	tests := []struct {
		name      string
		display   string
		email     string
		password  string
		wantField string
	}{
		{"empty name", "  ", "a@example.com", "password123", "displayName"},
		{"long name", strings.Repeat("x", MaxDisplayNameLength+1), "a@example.com", "password123", "displayName"},
		{"empty email", "alice", "", "password123", "email"},
		{"bad email", "alice", "not-an-email", "password123", "email"},
		{"email with name part", "alice", "Alice <a@example.com>", "password123", "email"},
		{"short password", "alice", "a@example.com", "short", "password"},
		{"long password", "alice", "a@example.com", strings.Repeat("p", auth.MaxPasswordBytes+1), "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAuthService(t, newFakeUserRepo())

			_, err := svc.SignUp(context.Background(), tt.display, tt.email, tt.password)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("SignUp() error = %v, want validation error", err)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, "alice", "a@example.com", "password123"); err != nil {
		t.Fatalf("first SignUp() error = %v", err)
	}
	_, err := svc.SignUp(ctx, "alice2", "A@example.com", "password456")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second SignUp() error = %v, want ErrConflict", err)
	}
}

func TestSignIn(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()
	signedUp, err := svc.SignUp(ctx, "alice", "a@example.com", "password123")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	result, err := svc.SignIn(ctx, " A@example.com ", "password123")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if result.User.ID != signedUp.User.ID {
		t.Errorf("SignIn() user = %q, want %q", result.User.ID, signedUp.User.ID)
	}

	rejected := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "a@example.com", "password124"},
		{"unknown email", "b@example.com", "password123"},
		{"empty password", "a@example.com", ""},
		{"empty email", "", "password123"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignIn(ctx, tt.email, tt.password)
			if !errors.Is(err, apperror.ErrUnauthorized) {
				t.Fatalf("SignIn() error = %v, want ErrUnauthorized", err)
			}
			if err.Error() != errBadCredentials.Error() {
				t.Errorf("SignIn() message = %q; should not reveal which part was wrong", err.Error())
			}
		})
	}
}

func TestSignIn_GitHubOnlyAccountHasNoPassword(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()
	if _, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 3, Login: "octo", Email: "octo@example.com"}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := svc.SignIn(ctx, "octo@example.com", "anything-at-all")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("SignIn() error = %v, want ErrUnauthorized", err)
	}
}

// =========================================================================
// LoginOrRegisterGitHub TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:    42,
		Login: "octocat",
		Name:  "The Octocat",
		Email: "Octocat@GitHub.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if result.Token == "" {
		t.Fatal("LoginOrRegisterGitHub() returned empty Token")
	}
	if result.User.DisplayName != "The Octocat" {
		t.Errorf("DisplayName = %q, want %q", result.User.DisplayName, "The Octocat")
	}
	if result.User.Email != "octocat@github.com" {
		t.Errorf("Email = %q, want lower-cased", result.User.Email)
	}
	if result.User.GitHubID == nil || *result.User.GitHubID != 42 {
		t.Errorf("GitHubID = %v, want 42", result.User.GitHubID)
	}
}

func TestLoginOrRegisterGitHub_ReturningUserKeepsID(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	first, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "old-login"})
	if err != nil {
		t.Fatalf("first login error: %v", err)
	}
	second, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "new-login", Email: "new@example.com"})
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}

	if second.User.ID != first.User.ID {
		t.Errorf("ID changed from %q to %q", first.User.ID, second.User.ID)
	}
	if second.User.DisplayName != "old-login" {
		t.Errorf("DisplayName = %q; a returning user keeps their chosen name", second.User.DisplayName)
	}
	if len(repo.users) != 1 {
		t.Errorf("repo holds %d users, want 1", len(repo.users))
	}
}

func TestLoginOrRegisterGitHub_LinksPasswordAccount(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)
	ctx := context.Background()

	signedUp, err := svc.SignUp(ctx, "alice", "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	linked, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 5, Login: "alice-gh", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if linked.User.ID != signedUp.User.ID {
		t.Errorf("GitHub login created %q instead of linking %q", linked.User.ID, signedUp.User.ID)
	}
}

func TestLoginOrRegisterGitHub_TruncatesLongNames(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:   8,
		Name: strings.Repeat("é", MaxDisplayNameLength+10),
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if n := len([]rune(result.User.DisplayName)); n != MaxDisplayNameLength {
		t.Errorf("DisplayName has %d runes, want %d", n, MaxDisplayNameLength)
	}
}

func TestLoginOrRegisterGitHub_NilGitHubUser(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Fatal("LoginOrRegisterGitHub() should return error for nil GitHubUser")
	}
}

func TestLoginOrRegisterGitHub_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.upsertErr = errors.New("database is on fire")
	svc := newTestAuthService(t, repo)

	_, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"})
	if !errors.Is(err, repo.upsertErr) {
		t.Fatalf("LoginOrRegisterGitHub() error = %v, want wrapped repository error", err)
	}
}

// =========================================================================
// GetUserByID / Rename TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()
	result, err := svc.SignUp(ctx, "findme", "findme@example.com", "password123")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.GetUserByID(ctx, result.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.DisplayName != "findme" {
		t.Errorf("DisplayName = %q, want %q", user.DisplayName, "findme")
	}

	if _, err := svc.GetUserByID(ctx, ""); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("GetUserByID(\"\") error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.GetUserByID(ctx, "non-existent-id"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRename(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()
	result, _ := svc.SignUp(ctx, "alice", "alice@example.com", "password123")

	user, err := svc.Rename(ctx, result.User.ID, " Alicia ")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if user.DisplayName != "Alicia" {
		t.Errorf("DisplayName = %q, want %q", user.DisplayName, "Alicia")
	}

	if _, err := svc.Rename(ctx, result.User.ID, ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Rename(\"\") error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// ValidateToken TESTS
// =========================================================================

func TestValidateToken_InvalidToken(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.ValidateToken("this.is.garbage")
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("ValidateToken() error = %v, want ErrUnauthorized", err)
	}
}
