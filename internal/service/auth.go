package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/faltrading/FAL-chat-service/internal/config"
	"github.com/faltrading/FAL-chat-service/internal/domain"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
	"github.com/faltrading/FAL-chat-service/pkg/jwt"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

type AuthService interface {
	// Authenticate проверяет токен сервиса аутентификации и возвращает принципала
	Authenticate(ctx context.Context, tokenString string) (*domain.Principal, error)
}

type authService struct {
	jwtCfg        config.JWTConfig
	adminUsername string
	log           logger.Logger
}

func NewAuthService(jwtCfg config.JWTConfig, adminUsername string, log logger.Logger) AuthService {
	return &authService{
		jwtCfg:        jwtCfg,
		adminUsername: adminUsername,
		log:           log,
	}
}

func (s *authService) Authenticate(ctx context.Context, tokenString string) (*domain.Principal, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, apperrors.ErrUnauthorized
	}

	claims, err := jwt.ValidateToken(tokenString, s.jwtCfg.Secret)
	if err != nil {
		s.log.Debug("Token rejected", "error", err)
		return nil, err
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", apperrors.ErrInvalidToken)
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleUser
	}
	// настроенный администратор получает роль даже без claim
	if role != domain.RoleAdmin && s.adminUsername != "" && claims.Username == s.adminUsername {
		role = domain.RoleAdmin
	}

	return &domain.Principal{
		UserID:   userID,
		Username: claims.Username,
		Role:     role,
	}, nil
}
