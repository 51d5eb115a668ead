package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/repository"
	apperrors "github.com/faltrading/FAL-chat-service/pkg/errors"
)

// accessPolicy - правила доступа к группе поверх справочника групп
type accessPolicy struct {
	directory repository.DirectoryRepository
}

// requireMember - отправка и закрепление доступны только участникам
func (a accessPolicy) requireMember(ctx context.Context, groupID uuid.UUID, principal domain.Principal) error {
	isMember, err := a.directory.MemberExists(ctx, groupID, principal.UserID)
	if err != nil {
		return err
	}
	if !isMember {
		return apperrors.ErrNotAMember
	}
	return nil
}

// requireRead - чтение доступно администратору, участнику или всем в группе по умолчанию
func (a accessPolicy) requireRead(ctx context.Context, groupID uuid.UUID, principal domain.Principal) error {
	if principal.IsAdmin() {
		return nil
	}
	isMember, err := a.directory.MemberExists(ctx, groupID, principal.UserID)
	if err != nil {
		return err
	}
	if isMember {
		return nil
	}
	isDefault, err := a.directory.IsDefaultGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !isDefault {
		return apperrors.ErrNotAMember
	}
	return nil
}
