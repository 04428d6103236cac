package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskboard/internal/domain"
	"taskboard/internal/kv"
)

const minPasswordLength = 6

// Local keeps accounts in the KV store and issues HS256 JWTs.
type Local struct {
	store      kv.Store
	secret     []byte
	ttl        time.Duration
	now        func() time.Time
	newID      func() string
	bcryptCost int
}

type LocalOption func(*Local)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) { l.now = now }
}

// WithBcryptCost lowers hashing cost, for tests.
func WithBcryptCost(cost int) LocalOption {
	return func(l *Local) { l.bcryptCost = cost }
}

func NewLocal(store kv.Store, secret string, ttl time.Duration, opts ...LocalOption) (*Local, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret not configured")
	}
	l := &Local{
		store:      store,
		secret:     []byte(secret),
		ttl:        ttl,
		now:        time.Now,
		newID:      uuid.NewString,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

type account struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    string `json:"createdAt"`
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

func accountKey(email string) string {
	return kv.Key("account", email)
}

// SignUp creates an account. Check-then-set is not atomic; two concurrent
// sign-ups for one email can both succeed and the later one wins.
func (l *Local) SignUp(ctx context.Context, name, email, password string) (domain.User, error) {
	if err := SignUpFields(name, email, password); err != nil {
		return domain.User{}, err
	}
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return domain.User{}, &RejectedError{Message: "unable to validate email address: invalid format"}
	}
	if len(password) < minPasswordLength {
		return domain.User{}, &RejectedError{Message: fmt.Sprintf("password should be at least %d characters", minPasswordLength)}
	}
	key := accountKey(email)
	if _, found, err := l.store.Get(ctx, key); err != nil {
		return domain.User{}, fmt.Errorf("lookup account: %w", err)
	} else if found {
		return domain.User{}, &RejectedError{Message: "a user with this email address has already been registered"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	acct := account{
		ID:           l.newID(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    l.now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(acct)
	if err != nil {
		return domain.User{}, err
	}
	if err := l.store.Set(ctx, key, data); err != nil {
		return domain.User{}, fmt.Errorf("store account: %w", err)
	}
	return domain.User{ID: acct.ID, Email: acct.Email, Name: acct.Name}, nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (Session, error) {
	if err := SignInFields(email, password); err != nil {
		return Session{}, err
	}
	raw, found, err := l.store.Get(ctx, accountKey(normalizeEmail(email)))
	if err != nil {
		return Session{}, fmt.Errorf("lookup account: %w", err)
	}
	if !found {
		return Session{}, ErrInvalidCredentials
	}
	var acct account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return Session{}, fmt.Errorf("decode account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	user := domain.User{ID: acct.ID, Email: acct.Email, Name: acct.Name}
	token, expires, err := l.issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: token, ExpiresAt: expires, User: user}, nil
}

func (l *Local) issue(user domain.User) (string, time.Time, error) {
	now := l.now().UTC()
	expires := now.Add(l.ttl)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: user.Email,
		Name:  user.Name,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(l.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expires, nil
}

func (l *Local) Verify(_ context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(l.now),
	)
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return l.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Email: c.Email, Name: displayName(c.Name, c.Email)}, nil
}
