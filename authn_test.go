package apigate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/groundline/apigate/token"
)

type fakeUser struct {
	name     string
	password string
	allowed  map[string]bool

	accessErr error
	loginErr  error
	logins    int
}

func (u *fakeUser) Name() string { return u.name }

func (u *fakeUser) VerifyPassword(password string) bool {
	return password == u.password
}

func (u *fakeUser) HasAccess(ctx context.Context, operationID string) (bool, error) {
	if u.accessErr != nil {
		return false, u.accessErr
	}
	return u.allowed[operationID], nil
}

func (u *fakeUser) RecordLogin(ctx context.Context) error {
	u.logins++
	return u.loginErr
}

type fakeStore struct {
	users map[string]*fakeUser
	err   error
}

func (s *fakeStore) FindByName(ctx context.Context, name string) (User, error) {
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[name]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

type fakeSink struct {
	tokens []string
}

func (s *fakeSink) SetToken(raw string, expires time.Time) {
	s.tokens = append(s.tokens, raw)
}

type captureLogger struct {
	lines []string
}

func (l *captureLogger) logf(level, format string, args ...interface{}) {
	l.lines = append(l.lines, level+": "+fmt.Sprintf(format, args...))
}

func (l *captureLogger) Debugf(format string, args ...interface{}) { l.logf("DEBUG", format, args...) }
func (l *captureLogger) Infof(format string, args ...interface{})  { l.logf("INFO", format, args...) }
func (l *captureLogger) Warnf(format string, args ...interface{})  { l.logf("WARN", format, args...) }
func (l *captureLogger) Errorf(format string, args ...interface{}) { l.logf("ERROR", format, args...) }

func newTestAuthenticator(t *testing.T, store UserStore, now time.Time) (*Authenticator, *token.Codec) {
	t.Helper()
	codec, err := token.NewCodec(token.Config{
		Secret:     "super-secret-test-key",
		Algorithm:  "HS256",
		Expiration: 8 * time.Hour,
		Refresh:    time.Hour,
	}, token.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	authn := NewAuthenticator(store, codec, &captureLogger{})
	authn.now = func() time.Time { return now }
	return authn, codec
}

func singleUserStore(name, password string) *fakeStore {
	return &fakeStore{users: map[string]*fakeUser{
		name: {name: name, password: password},
	}}
}

func TestAuthenticateNoCredential(t *testing.T) {
	authn, _ := newTestAuthenticator(t, singleUserStore("alice", "secret"), time.Now())

	if p := authn.Authenticate(context.Background(), Credentials{}, nil); p != nil {
		t.Errorf("expected nil principal, got %+v", p)
	}
}

func TestAuthenticatePassword(t *testing.T) {
	store := singleUserStore("alice", "secret")
	authn, _ := newTestAuthenticator(t, store, time.Now())

	principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindBasic, Name: "alice", Password: "secret"}, nil)
	if principal == nil {
		t.Fatal("expected a principal")
	}
	if principal.Name != "alice" {
		t.Errorf("principal name = %q", principal.Name)
	}
	if principal.TokenExpiry != nil {
		t.Errorf("password login must not carry a token expiry, got %v", principal.TokenExpiry)
	}
	if store.users["alice"].logins != 1 {
		t.Errorf("logins = %d, want 1", store.users["alice"].logins)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	store := singleUserStore("alice", "secret")
	authn, _ := newTestAuthenticator(t, store, time.Now())

	principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindBasic, Name: "alice", Password: "wrong"}, nil)
	if principal != nil {
		t.Fatalf("expected denial, got %+v", principal)
	}
	if store.users["alice"].logins != 0 {
		t.Error("failed login must not be recorded")
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	authn, _ := newTestAuthenticator(t, singleUserStore("alice", "secret"), time.Now())

	principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindParamPassword, Name: "mallory", Password: "secret"}, nil)
	if principal != nil {
		t.Fatalf("expected denial, got %+v", principal)
	}
}

func TestAuthenticateRecordLoginFailureIsTolerated(t *testing.T) {
	store := singleUserStore("alice", "secret")
	store.users["alice"].loginErr = errors.New("storage offline")
	authn, _ := newTestAuthenticator(t, store, time.Now())

	principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindBasic, Name: "alice", Password: "secret"}, nil)
	if principal == nil {
		t.Fatal("login bookkeeping failure must not deny authentication")
	}
}

func TestAuthenticateToken(t *testing.T) {
	now := time.Now()
	authn, codec := newTestAuthenticator(t, singleUserStore("alice", "secret"), now)

	raw, claims, err := codec.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}

	sink := &fakeSink{}
	principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindBearer, Token: raw}, sink)
	if principal == nil {
		t.Fatal("expected a principal")
	}
	if principal.Name != "alice" {
		t.Errorf("principal name = %q", principal.Name)
	}
	if principal.TokenExpiry == nil || !principal.TokenExpiry.Equal(claims.ExpiresAt) {
		t.Errorf("token expiry = %v, want %v", principal.TokenExpiry, claims.ExpiresAt)
	}
	if len(sink.tokens) != 0 {
		t.Errorf("fresh token must not be refreshed, sink got %d tokens", len(sink.tokens))
	}
}

func TestAuthenticateTokenRefreshWhenStale(t *testing.T) {
	issuedAt := time.Now()
	store := singleUserStore("alice", "secret")
	_, codec := newTestAuthenticator(t, store, issuedAt)

	raw, _, err := codec.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}

	// Past the refresh threshold but well within the token lifetime.
	authn, _ := newTestAuthenticator(t, store, issuedAt.Add(2*time.Hour))

	sink := &fakeSink{}
	principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindBearer, Token: raw}, sink)
	if principal == nil {
		t.Fatal("expected a principal")
	}
	if len(sink.tokens) != 1 {
		t.Fatalf("expected exactly one refreshed token, got %d", len(sink.tokens))
	}
	if sink.tokens[0] == raw {
		t.Error("refreshed token equals the presented one")
	}

	// The replacement must verify and carry the same subject.
	refreshed, err := authn.codec.Verify(sink.tokens[0])
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.Subject != "alice" {
		t.Errorf("refreshed subject = %q", refreshed.Subject)
	}
}

func TestAuthenticateTokenNoRefreshWithoutSink(t *testing.T) {
	issuedAt := time.Now()
	store := singleUserStore("alice", "secret")
	_, codec := newTestAuthenticator(t, store, issuedAt)

	raw, _, err := codec.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}

	authn, _ := newTestAuthenticator(t, store, issuedAt.Add(2*time.Hour))
	if principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindBearer, Token: raw}, nil); principal == nil {
		t.Fatal("expected a principal")
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	issuedAt := time.Now()
	store := singleUserStore("alice", "secret")
	_, codec := newTestAuthenticator(t, store, issuedAt)

	raw, _, err := codec.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}

	authn, _ := newTestAuthenticator(t, store, issuedAt.Add(9*time.Hour))
	sink := &fakeSink{}
	if principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindBearer, Token: raw}, sink); principal != nil {
		t.Fatalf("expired token must deny, got %+v", principal)
	}
	if len(sink.tokens) != 0 {
		t.Error("expired token must not be refreshed")
	}
}

func TestAuthenticateGarbageToken(t *testing.T) {
	authn, _ := newTestAuthenticator(t, singleUserStore("alice", "secret"), time.Now())

	if principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindBearer, Token: "not.a.token"}, nil); principal != nil {
		t.Fatalf("expected denial, got %+v", principal)
	}
}

func TestAuthenticateTokenForDeletedUser(t *testing.T) {
	now := time.Now()
	store := singleUserStore("alice", "secret")
	authn, codec := newTestAuthenticator(t, store, now)

	raw, _, err := codec.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}
	delete(store.users, "alice")

	if principal := authn.Authenticate(context.Background(),
		Credentials{Kind: KindBearer, Token: raw}, nil); principal != nil {
		t.Fatalf("token for a removed user must deny, got %+v", principal)
	}
}
