package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-bot/internal/domain"
	"github.com/tbourn/go-inventory-bot/internal/repo"
)

// ErrUserNotFound is returned by Lookup for an unknown phone.
var ErrUserNotFound = errors.New("user not found")

// NormalizePhone strips the channel prefix and surrounding space from an
// inbound identity ("whatsapp:+521..." -> "+521...").
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ':'); i >= 0 && strings.EqualFold(s[:i], "whatsapp") {
		s = strings.TrimSpace(s[i+1:])
	}
	return s
}

// UserService provisions users keyed by phone number.
type UserService struct {
	DB *gorm.DB
}

// Provision returns the user for phone, creating it on first contact.
func (s *UserService) Provision(ctx context.Context, phone string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Provision", trace.WithAttributes(attribute.Bool("prefixed", strings.Contains(phone, ":"))))
	defer span.End()

	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, ErrInvalidUser
	}
	return repo.GetOrCreateUser(ctx, s.DB, phone)
}

// Lookup returns an existing user without creating one.
func (s *UserService) Lookup(ctx context.Context, phone string) (*domain.User, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, ErrInvalidUser
	}
	u, err := repo.GetUserByPhone(ctx, s.DB, phone)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
