package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"gomhangpro/backend/internal/cache"
	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/store"
	"gomhangpro/backend/internal/store/memory"
)

// countingRepo wraps the memory store and counts directory lookups so
// cache behavior is observable.
type countingRepo struct {
	store.Repository
	mu      sync.Mutex
	lookups int
}

func (r *countingRepo) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()
	return r.Repository.GetUserByID(ctx, id)
}

func (r *countingRepo) lookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

func newTestAuth(staffCache cache.StaffCache) (*AuthManager, *countingRepo) {
	repo := &countingRepo{Repository: memory.NewSeeded()}
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", 15*time.Minute, 720*time.Hour, repo, staffCache)
	return auth, repo
}

func TestLoginRefreshRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(nil)
	ctx := context.Background()

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "admin@gomhang.vn", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", resp)
	}
	if resp.User.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.User.Role)
	}
	if resp.User.PasswordHash != "" {
		t.Fatalf("password hash leaked in login response")
	}

	actor, err := auth.VerifyAccess(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("verify access failed: %v", err)
	}
	if actor.ID != "user-admin" || actor.Email != "admin@gomhang.vn" {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	rotated, err := auth.Refresh(ctx, resp.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotated.AccessToken == "" || rotated.RefreshToken == "" {
		t.Fatalf("expected rotated pair")
	}
	if _, err := auth.VerifyAccess(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("rotated access token rejected: %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth, _ := newTestAuth(nil)
	ctx := context.Background()

	if _, err := auth.Login(ctx, domain.LoginRequest{Email: "admin@gomhang.vn", Password: "wrong"}); err == nil {
		t.Fatalf("expected bad password to be rejected")
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Email: "nobody@gomhang.vn", Password: "admin123"}); err == nil {
		t.Fatalf("expected unknown email to be rejected")
	}
}

func TestRefreshTokenNotAcceptedAsAccessToken(t *testing.T) {
	auth, _ := newTestAuth(nil)
	ctx := context.Background()

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "worker@gomhang.vn", Password: "worker123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := auth.VerifyAccess(ctx, resp.RefreshToken); err == nil {
		t.Fatalf("expected refresh token to be rejected on the access path")
	}
	if _, err := auth.Refresh(ctx, resp.AccessToken); err == nil {
		t.Fatalf("expected access token to be rejected on the refresh path")
	}
}

func TestAccessTokenExpires(t *testing.T) {
	auth, _ := newTestAuth(nil)
	ctx := context.Background()

	issuedAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	auth.nowFn = func() time.Time { return issuedAt }

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "worker@gomhang.vn", Password: "worker123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	auth.nowFn = func() time.Time { return issuedAt.Add(16 * time.Minute) }
	if _, err := auth.VerifyAccess(ctx, resp.AccessToken); err == nil {
		t.Fatalf("expected expired access token to be rejected")
	}

	// The refresh token is still inside its 30-day window.
	if _, err := auth.Refresh(ctx, resp.RefreshToken); err != nil {
		t.Fatalf("refresh within window failed: %v", err)
	}
}

func TestStaffCacheSkipsDirectoryLookupUntilTTL(t *testing.T) {
	staffCache := cache.NewMemoryStaffCache()
	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	staffCache.SetClock(func() time.Time { return clock })

	auth, repo := newTestAuth(staffCache)
	ctx := context.Background()

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "worker@gomhang.vn", Password: "worker123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := auth.VerifyAccess(ctx, resp.AccessToken); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	base := repo.lookupCount()

	for i := 0; i < 3; i++ {
		if _, err := auth.VerifyAccess(ctx, resp.AccessToken); err != nil {
			t.Fatalf("verify failed: %v", err)
		}
	}
	if repo.lookupCount() != base {
		t.Fatalf("expected cached staff lookups, directory hit %d extra times",
			repo.lookupCount()-base)
	}

	// Past the 5-minute TTL the directory is consulted again.
	clock = clock.Add(staffCacheTTL + time.Second)
	if _, err := auth.VerifyAccess(ctx, resp.AccessToken); err != nil {
		t.Fatalf("verify after TTL failed: %v", err)
	}
	if repo.lookupCount() != base+1 {
		t.Fatalf("expected exactly one lookup after TTL expiry, got %d extra",
			repo.lookupCount()-base)
	}
}

func TestInactiveAccountRejected(t *testing.T) {
	auth, repo := newTestAuth(nil)
	ctx := context.Background()

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "worker@gomhang.vn", Password: "worker123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	user, err := repo.GetUserByID(ctx, "user-worker")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	deactivated := *user
	deactivated.Active = false
	if _, err := repo.UpdateUser(ctx, deactivated); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}

	if _, err := auth.VerifyAccess(ctx, resp.AccessToken); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Email: "worker@gomhang.vn", Password: "worker123"}); err == nil {
		t.Fatalf("expected inactive account login to be rejected")
	}
}
