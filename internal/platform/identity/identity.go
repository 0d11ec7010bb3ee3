package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/data/db"
	pkgerrors "github.com/yungbote/tutorbridge-backend/internal/pkg/errors"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

const minPasswordLen = 6

var (
	ErrEmailTaken         = fmt.Errorf("email already registered: %w", pkgerrors.ErrInvalidArgument)
	ErrInvalidEmail       = fmt.Errorf("invalid email: %w", pkgerrors.ErrInvalidArgument)
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, pkgerrors.ErrInvalidArgument)
	ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", pkgerrors.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("invalid or expired token: %w", pkgerrors.ErrUnauthorized)
	ErrIdentityNotFound   = fmt.Errorf("identity: %w", pkgerrors.ErrNotFound)
)

// Identity is the provider's own credential record; profiles live elsewhere.
type Identity struct {
	UID          uuid.UUID `gorm:"type:uuid;column:uid;primaryKey" json:"uid"`
	Email        string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Identity) TableName() string { return "identity" }

// Models lists the tables the provider needs migrated.
func Models() []any { return []any{&Identity{}} }

type Claims struct {
	jwt.RegisteredClaims
}

type Token struct {
	Value     string
	UID       uuid.UUID
	ExpiresAt time.Time
}

// Provider is the identity capability the gateway depends on.
type Provider interface {
	CreateIdentity(ctx context.Context, email, password string) (uuid.UUID, error)
	DeleteIdentity(ctx context.Context, uid uuid.UUID) error
	Lookup(ctx context.Context, uid uuid.UUID) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (Token, error)
	Verify(ctx context.Context, token string) (uuid.UUID, error)
	AccessTTL() time.Duration
}

type Config struct {
	JWTSecret  string
	AccessTTL  time.Duration
	Issuer     string
	BcryptCost int
}

type localProvider struct {
	db        *gorm.DB
	log       *logger.Logger
	secret    []byte
	accessTTL time.Duration
	issuer    string
	cost      int
	now       func() time.Time
}

// NewLocalProvider stores bcrypt hashes next to the documents and signs HS256 access tokens.
func NewLocalProvider(database *gorm.DB, log *logger.Logger, cfg Config) (Provider, error) {
	if database == nil {
		return nil, fmt.Errorf("identity: db required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("identity: JWT_SECRET_KEY required")
	}
	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "tutorbridge"
	}
	return &localProvider{
		db:        database,
		log:       log.With("service", "IdentityProvider"),
		secret:    []byte(cfg.JWTSecret),
		accessTTL: ttl,
		issuer:    issuer,
		cost:      cost,
		now:       time.Now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *localProvider) AccessTTL() time.Duration { return p.accessTTL }

func (p *localProvider) CreateIdentity(ctx context.Context, email, password string) (uuid.UUID, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return uuid.Nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return uuid.Nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}
	rec := &Identity{UID: uuid.New(), Email: email, PasswordHash: string(hash)}
	if err := p.db.WithContext(ctx).Create(rec).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return uuid.Nil, ErrEmailTaken
		}
		return uuid.Nil, fmt.Errorf("create identity: %w", err)
	}
	p.log.Info("Identity created", "uid", rec.UID)
	return rec.UID, nil
}

func (p *localProvider) DeleteIdentity(ctx context.Context, uid uuid.UUID) error {
	res := p.db.WithContext(ctx).Where("uid = ?", uid).Delete(&Identity{})
	if res.Error != nil {
		return fmt.Errorf("delete identity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrIdentityNotFound
	}
	p.log.Info("Identity deleted", "uid", uid)
	return nil
}

func (p *localProvider) Lookup(ctx context.Context, uid uuid.UUID) (*Identity, error) {
	var rec Identity
	err := p.db.WithContext(ctx).Where("uid = ?", uid).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	return &rec, nil
}

func (p *localProvider) SignIn(ctx context.Context, email, password string) (Token, error) {
	var rec Identity
	err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, fmt.Errorf("sign in: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}
	return p.issue(rec.UID)
}

func (p *localProvider) issue(uid uuid.UUID) (Token, error) {
	now := p.now()
	exp := now.Add(p.accessTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid.String(),
			Issuer:    p.issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, UID: uid, ExpiresAt: exp}, nil
}

func (p *localProvider) Verify(ctx context.Context, tokenString string) (uuid.UUID, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return uuid.Nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	// Deleted identities keep no valid sessions.
	if _, err := p.Lookup(ctx, uid); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return uuid.Nil, ErrInvalidToken
		}
		return uuid.Nil, err
	}
	return uid, nil
}
