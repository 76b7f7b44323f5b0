// Package store ships UserStore implementations for the gate: an in-memory
// store for tests and small deployments, and a Postgres-backed one.
//
// Both verify passwords with bcrypt and evaluate operation access from
// per-user permission globs, e.g. "reports/*" grants every operation under
// reports/.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zpatrick/rbac"
	"golang.org/x/crypto/bcrypt"

	"github.com/groundline/apigate"
)

const accessAction = "invoke"

// Memory is an in-memory UserStore.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*memoryUser
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[string]*memoryUser)}
}

// AddUser registers a user with a bcrypt-hashed password and permission
// globs over operation identifiers.
func (s *Memory) AddUser(name, password string, permissions ...string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[name] = &memoryUser{
		store: s,
		name:  name,
		hash:  hash,
		role:  permissionRole(name, permissions),
	}
	return nil
}

// MustAddUser is AddUser panicking on error, for wiring up fixtures.
func (s *Memory) MustAddUser(name, password string, permissions ...string) {
	if err := s.AddUser(name, password, permissions...); err != nil {
		panic(err)
	}
}

// FindByName implements apigate.UserStore.
func (s *Memory) FindByName(ctx context.Context, name string) (apigate.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	if !ok {
		return nil, apigate.ErrUserNotFound
	}
	return u, nil
}

// LastLogin returns the time of the user's last recorded password login.
func (s *Memory) LastLogin(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	if !ok {
		return time.Time{}, false
	}
	return u.lastLogin, !u.lastLogin.IsZero()
}

type memoryUser struct {
	store     *Memory
	name      string
	hash      []byte
	role      rbac.Role
	lastLogin time.Time
}

func (u *memoryUser) Name() string {
	return u.name
}

func (u *memoryUser) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(u.hash, []byte(password)) == nil
}

func (u *memoryUser) HasAccess(ctx context.Context, operationID string) (bool, error) {
	return u.role.Can(accessAction, operationID)
}

func (u *memoryUser) RecordLogin(ctx context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.lastLogin = time.Now()
	return nil
}

func permissionRole(name string, globs []string) rbac.Role {
	permissions := make([]rbac.Permission, 0, len(globs))
	for _, g := range globs {
		permissions = append(permissions, rbac.NewGlobPermission(accessAction, g))
	}
	return rbac.Role{RoleID: name, Permissions: permissions}
}
