package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/davomat-bot/internal/models"
	appErrors "github.com/noah-isme/davomat-bot/pkg/errors"
)

type directoryReader interface {
	Directory() (models.Directory, error)
}

// AuthService answers two questions: which role an operator identity
// carries, and whether a gateway request presents a valid transport token.
type AuthService struct {
	directory directoryReader
	secret    []byte
	ttl       time.Duration
	logger    *zap.Logger
}

// NewAuthService constructs the service.
func NewAuthService(directory directoryReader, secret string, ttl time.Duration, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{directory: directory, secret: []byte(secret), ttl: ttl, logger: logger}
}

// RoleFor classifies an operator. Admin wins when an identity appears in
// both lists. Unknown identities get RoleNone.
func (s *AuthService) RoleFor(operatorID int64) models.Role {
	dir, err := s.directory.Directory()
	if err != nil {
		s.logger.Error("directory lookup failed", zap.Int64("operator_id", operatorID), zap.Error(err))
		return models.RoleNone
	}
	for _, admin := range dir.Admins {
		if admin.ID == operatorID {
			return models.RoleAdmin
		}
	}
	for _, id := range dir.Teachers {
		if id == operatorID {
			return models.RoleTeacher
		}
	}
	return models.RoleNone
}

// IssueGatewayToken mints the bearer token handed to the transport. A zero
// TTL produces a non-expiring token.
func (s *AuthService) IssueGatewayToken() (string, error) {
	claims := jwt.MapClaims{
		"sub": "transport",
		"iat": time.Now().Unix(),
	}
	if s.ttl > 0 {
		claims["exp"] = time.Now().Add(s.ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateGatewayToken checks the transport bearer token.
func (s *AuthService) ValidateGatewayToken(raw string) error {
	_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid gateway token")
	}
	return nil
}
