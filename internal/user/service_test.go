package user

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	users map[string]*User // by id
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*User)}
}

func (f *fakeStore) Create(ctx context.Context, u *User) error {
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) ByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) ByID(ctx context.Context, id string) (*User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) UpdateDeviceToken(ctx context.Context, id string, token *string, at time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.DeviceToken = token
	return nil
}

func (f *fakeStore) UpdatePreferences(ctx context.Context, id string, pushEnabled, emailEnabled bool, at time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PushEnabled = pushEnabled
	u.EmailEnabled = emailEnabled
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	return NewService(store, "test-secret", time.Hour), store
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name   string
		params RegisterParams
	}{
		{"bad email", RegisterParams{Email: "nope", Password: "longenough", DisplayName: "Ada"}},
		{"short password", RegisterParams{Email: "a@b.c", Password: "short", DisplayName: "Ada"}},
		{"blank name", RegisterParams{Email: "a@b.c", Password: "longenough", DisplayName: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.params); err == nil {
				t.Error("err = nil, want validation error")
			}
		})
	}
}

func TestRegisterNormalizesAndHashes(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.Register(context.Background(), RegisterParams{
		Email: " Ada@Example.COM ", Password: "correct horse", DisplayName: " Ada ",
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "ada@example.com" {
		t.Errorf("email = %q", u.Email)
	}
	if u.DisplayName != "Ada" {
		t.Errorf("display name = %q", u.DisplayName)
	}
	if u.PasswordHash == "correct horse" || u.PasswordHash == "" {
		t.Error("password stored unhashed")
	}
	if !u.PushEnabled || !u.EmailEnabled {
		t.Error("delivery preferences should default on")
	}
}

func TestLoginAndVerifyToken(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterParams{
		Email: "ada@example.com", Password: "correct horse", DisplayName: "Ada",
	}); err != nil {
		t.Fatal(err)
	}

	u, token, err := svc.Login(ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != u.ID {
		t.Errorf("claims user = %q, want %q", claims.UserID, u.ID)
	}
	if claims.IsAdmin {
		t.Error("claims admin = true for regular user")
	}
}

func TestLoginCollapsesFailureModes(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterParams{
		Email: "ada@example.com", Password: "correct horse", DisplayName: "Ada",
	}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrBadCredential) {
		t.Errorf("wrong password err = %v, want ErrBadCredential", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "correct horse"); !errors.Is(err, ErrBadCredential) {
		t.Errorf("unknown email err = %v, want ErrBadCredential", err)
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestService()

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.VerifyToken(token); err == nil {
			t.Errorf("VerifyToken(%q) = nil error", token)
		}
	}
}

func TestVerifyTokenRejectsForeignSecret(t *testing.T) {
	svc, _ := newTestService()
	other := NewService(newFakeStore(), "other-secret", time.Hour)

	if _, err := other.Register(context.Background(), RegisterParams{
		Email: "ada@example.com", Password: "correct horse", DisplayName: "Ada",
	}); err != nil {
		t.Fatal(err)
	}
	_, token, err := other.Login(context.Background(), "ada@example.com", "correct horse")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.VerifyToken(token); err == nil {
		t.Error("token signed with another secret verified")
	}
}
