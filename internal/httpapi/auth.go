package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"gomhangpro/backend/internal/cache"
	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/store"
)

const staffCacheTTL = 5 * time.Minute

// AuthManager issues and verifies the HS256 token pair: a short-lived
// access token plus a refresh token carrying a uuid jti.
type AuthManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	repo       store.Repository
	staffCache cache.StaffCache

	// nowFn is swapped in tests to drive token expiry.
	nowFn func() time.Time
}

type tokenClaims struct {
	jwtlib.RegisteredClaims
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"tokenType,omitempty"`
}

func NewAuthManager(secret string, accessTTL, refreshTTL time.Duration, repo store.Repository, staffCache cache.StaffCache) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
		log.Printf("[auth] WARN: AUTH_SECRET not set, using insecure default")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if staffCache == nil {
		staffCache = cache.NoopStaffCache{}
	}
	return &AuthManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		repo:       repo,
		staffCache: staffCache,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	user, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !user.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	return a.issuePair(*user)
}

// Refresh rotates the token pair. The staff record is re-read so role or
// active changes take effect at rotation time.
func (a *AuthManager) Refresh(ctx context.Context, refreshToken string) (domain.LoginResponse, error) {
	claims, err := a.parse(refreshToken)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if claims.TokenType != "refresh" || claims.ID == "" {
		return domain.LoginResponse{}, errors.New("not a refresh token")
	}

	user, err := a.lookupStaff(ctx, claims.UserID)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid or expired token")
	}
	if !user.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}
	return a.issuePair(*user)
}

// VerifyAccess validates a bearer token and resolves the actor, going
// through the staff cache so hot paths skip the directory lookup.
func (a *AuthManager) VerifyAccess(ctx context.Context, tokenStr string) (domain.Actor, error) {
	claims, err := a.parse(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}
	if claims.TokenType == "refresh" {
		return domain.Actor{}, errors.New("refresh token not accepted here")
	}

	user, err := a.lookupStaff(ctx, claims.UserID)
	if err != nil {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	if !user.Active {
		return domain.Actor{}, errors.New("account is inactive")
	}
	return domain.Actor{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (a *AuthManager) CurrentUser(ctx context.Context, actor domain.Actor) (domain.UserAccount, error) {
	user, err := a.lookupStaff(ctx, actor.ID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *user, nil
}

func (a *AuthManager) issuePair(user domain.UserAccount) (domain.LoginResponse, error) {
	now := a.nowFn()
	accessExpiry := now.Add(a.accessTTL)

	access, err := a.sign(user, accessExpiry, "", now)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := a.sign(user, now.Add(a.refreshTTL), "refresh", now)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign refresh token: %w", err)
	}

	user.PasswordHash = ""
	return domain.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry.Format(time.RFC3339),
		User:         user,
	}, nil
}

func (a *AuthManager) sign(user domain.UserAccount, expiresAt time.Time, tokenType string, now time.Time) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "gomhangpro",
		},
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TokenType: tokenType,
	}
	if tokenType == "refresh" {
		claims.ID = uuid.NewString()
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) parse(tokenStr string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.nowFn))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	if claims.UserID == "" {
		return nil, errors.New("invalid token subject")
	}
	return claims, nil
}

func (a *AuthManager) lookupStaff(ctx context.Context, userID string) (*domain.UserAccount, error) {
	key := "staff:" + userID
	if cached, ok, err := a.staffCache.Get(ctx, key); err == nil && ok {
		return cached, nil
	}
	user, err := a.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := a.staffCache.Set(ctx, key, user, staffCacheTTL); err != nil {
		log.Printf("[auth] WARN: staff cache set failed: %v", err)
	}
	return user, nil
}
