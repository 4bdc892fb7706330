package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/profiles"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid access token")
	ErrUserNotFound       = errors.New("user not found")
)

// Token is an access token issued for one browser context.
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// UserChanges holds the fields a signed-in user may change. Empty fields are
// left alone.
type UserChanges struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// Provider issues and verifies credentials. The Store owns session state;
// a Provider only knows users and tokens.
type Provider interface {
	Authenticate(ctx context.Context, contextID, email, password string) (Token, error)
	Register(ctx context.Context, contextID, email, password string) (Token, error)
	ResolveUser(ctx context.Context, accessToken string) (models.User, error)
	Refresh(ctx context.Context, accessToken string) (Token, error)
	UpdateUser(ctx context.Context, userID string, changes UserChanges) (models.User, error)
	// ContextOf returns the browser context a valid token was issued to.
	ContextOf(accessToken string) (string, error)
}

// Claims carried by access tokens. The JWT id is the browser context id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// PasswordProvider keeps bcrypt password hashes in public.users and signs
// HS256 access tokens.
type PasswordProvider struct {
	db     *sql.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewPasswordProvider(db *sql.DB, secret string, ttl time.Duration) *PasswordProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PasswordProvider{db: db, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (p *PasswordProvider) Authenticate(ctx context.Context, contextID, email, password string) (Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Token{}, ErrInvalidCredentials
	}
	var userID, hash string
	err = p.db.QueryRowContext(ctx, `SELECT id, password_hash FROM public.users WHERE email = $1`, email).Scan(&userID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Token{}, ErrInvalidCredentials
	}
	return p.issue(userID, email, contextID)
}

// Register creates the user and its free-tier profile together.
func (p *PasswordProvider) Register(ctx context.Context, contextID, email, password string) (Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Token{}, err
	}
	if len(password) < minPasswordLength {
		return Token{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Token{}, fmt.Errorf("hash password: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Token{}, fmt.Errorf("begin sign-up: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var userID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO public.users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, email, string(hash)).Scan(&userID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return Token{}, ErrEmailTaken
		}
		return Token{}, fmt.Errorf("insert user: %w", err)
	}

	var limit int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT monthly_upload_limit FROM public.plan_tiers WHERE id = 'free'), 10)
	`).Scan(&limit); err != nil {
		return Token{}, fmt.Errorf("free tier limit: %w", err)
	}
	if err := profiles.Create(ctx, tx, userID, limit, p.now().UTC().AddDate(0, 1, 0)); err != nil {
		return Token{}, err
	}
	if err := tx.Commit(); err != nil {
		return Token{}, fmt.Errorf("commit sign-up: %w", err)
	}
	return p.issue(userID, email, contextID)
}

func (p *PasswordProvider) ResolveUser(ctx context.Context, accessToken string) (models.User, error) {
	claims, err := p.parse(accessToken, true)
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	err = p.db.QueryRowContext(ctx, `
		SELECT id, email, email_verified, created_at FROM public.users WHERE id = $1
	`, claims.Subject).Scan(&u.ID, &u.Email, &u.EmailVerified, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("resolve user: %w", err)
	}
	return u, nil
}

// Refresh accepts an expired but correctly signed token and issues a new one
// for the same context.
func (p *PasswordProvider) Refresh(ctx context.Context, accessToken string) (Token, error) {
	claims, err := p.parse(accessToken, false)
	if err != nil {
		return Token{}, err
	}
	var email string
	err = p.db.QueryRowContext(ctx, `SELECT email FROM public.users WHERE id = $1`, claims.Subject).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrUserNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("refresh lookup: %w", err)
	}
	return p.issue(claims.Subject, email, claims.ID)
}

func (p *PasswordProvider) UpdateUser(ctx context.Context, userID string, changes UserChanges) (models.User, error) {
	var email, hash *string
	if strings.TrimSpace(changes.Email) != "" {
		e, err := normalizeEmail(changes.Email)
		if err != nil {
			return models.User{}, err
		}
		email = &e
	}
	if changes.Password != "" {
		if len(changes.Password) < minPasswordLength {
			return models.User{}, ErrWeakPassword
		}
		b, err := bcrypt.GenerateFromPassword([]byte(changes.Password), bcrypt.DefaultCost)
		if err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
		h := string(b)
		hash = &h
	}

	var u models.User
	err := p.db.QueryRowContext(ctx, `
		UPDATE public.users
		SET email = COALESCE($2, email),
		    password_hash = COALESCE($3, password_hash),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, email, email_verified, created_at
	`, userID, email, hash).Scan(&u.ID, &u.Email, &u.EmailVerified, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func (p *PasswordProvider) ContextOf(accessToken string) (string, error) {
	claims, err := p.parse(accessToken, true)
	if err != nil {
		return "", err
	}
	return claims.ID, nil
}

func (p *PasswordProvider) issue(userID, email, contextID string) (Token, error) {
	now := p.now()
	exp := now.Add(p.ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        contextID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, Expiry: exp}, nil
}

func (p *PasswordProvider) parse(accessToken string, validate bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	}
	if !validate {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, opts...)
	if err != nil || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
