package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/repository"
	"go.uber.org/zap"
)

// ACLService интерфейс движка прав доступа
type ACLService interface {
	Grant(ctx context.Context, linkID int64, requester models.Subject, grant *models.Grant) error
	Revoke(ctx context.Context, linkID int64, requester models.Subject, subjectType, subject string) error
	// CheckPermission возвращает ErrForbidden, если действующий уровень
	// субъекта ниже требуемого, и ErrNotFound, если ссылки не существует.
	CheckPermission(ctx context.Context, linkID int64, subject models.Subject, required models.Permission) error
	EffectivePermission(ctx context.Context, linkID int64, subject models.Subject) (models.Permission, error)
	TransferOwnership(ctx context.Context, linkID int64, requester models.Subject, newOwner string) error
	ListGrants(ctx context.Context, linkID int64, requester models.Subject) ([]models.Grant, error)

	CreateOrganization(ctx context.Context, requester models.Subject, name string) (*models.Organization, error)
	DeleteOrganization(ctx context.Context, requester models.Subject, orgID int64) error
	AddMember(ctx context.Context, requester models.Subject, orgID int64, netid string, isAdmin bool) error
	RemoveMember(ctx context.Context, requester models.Subject, orgID int64, netid string) error
	ListMembers(ctx context.Context, requester models.Subject, orgID int64) ([]models.OrganizationMember, error)
	ListOrganizations(ctx context.Context, netid string) ([]models.Organization, error)
}

type aclService struct {
	linkRepo  repository.LinkRepository
	grantRepo repository.GrantRepository
	orgRepo   repository.OrgRepository
	logger    *zap.Logger
}

func NewACLService(
	linkRepo repository.LinkRepository,
	grantRepo repository.GrantRepository,
	orgRepo repository.OrgRepository,
	logger *zap.Logger,
) ACLService {
	return &aclService{
		linkRepo:  linkRepo,
		grantRepo: grantRepo,
		orgRepo:   orgRepo,
		logger:    logger,
	}
}

// Grant выдаёт или обновляет грант (идемпотентный upsert).
// Редактор может выдавать только viewer; editor выдаёт только владелец.
func (s *aclService) Grant(ctx context.Context, linkID int64, requester models.Subject, grant *models.Grant) error {
	if grant.Permission != models.PermissionViewer && grant.Permission != models.PermissionEditor {
		return ErrInvalidGrant
	}

	link, err := s.linkRepo.GetLinkByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrNotFound
		}
		return err
	}

	requesterPerm, err := s.effective(ctx, link, requester)
	if err != nil {
		return err
	}
	if requesterPerm < models.PermissionEditor {
		return ErrForbidden
	}
	if grant.Permission == models.PermissionEditor && requesterPerm < models.PermissionOwner {
		return ErrForbidden
	}

	switch grant.SubjectType {
	case models.SubjectUser:
		// Владельцу грант не нужен и не допускается
		if grant.Subject == link.Owner {
			return ErrInvalidGrant
		}
	case models.SubjectOrg:
		orgID, err := strconv.ParseInt(grant.Subject, 10, 64)
		if err != nil {
			return ErrInvalidGrant
		}
		if _, err := s.orgRepo.GetByID(ctx, orgID); err != nil {
			if errors.Is(err, repository.ErrOrgNotFound) {
				return ErrOrgNotFound
			}
			return err
		}
	default:
		return ErrInvalidGrant
	}

	grant.LinkID = linkID
	return s.grantRepo.Upsert(ctx, grant)
}

func (s *aclService) Revoke(ctx context.Context, linkID int64, requester models.Subject, subjectType, subject string) error {
	link, err := s.linkRepo.GetLinkByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrNotFound
		}
		return err
	}

	requesterPerm, err := s.effective(ctx, link, requester)
	if err != nil {
		return err
	}
	if requesterPerm < models.PermissionEditor {
		return ErrForbidden
	}

	return s.grantRepo.Revoke(ctx, linkID, subjectType, subject)
}

func (s *aclService) CheckPermission(ctx context.Context, linkID int64, subject models.Subject, required models.Permission) error {
	perm, err := s.EffectivePermission(ctx, linkID, subject)
	if err != nil {
		return err
	}
	if perm < required {
		return ErrForbidden
	}
	return nil
}

// EffectivePermission вычисляет действующий уровень: максимум по всем
// путям (владение, прямой грант, гранты организаций, в которых субъект
// состоит прямо сейчас). Членство разрешается в момент вызова и нигде
// не кэшируется.
func (s *aclService) EffectivePermission(ctx context.Context, linkID int64, subject models.Subject) (models.Permission, error) {
	link, err := s.linkRepo.GetLinkByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return models.PermissionNone, ErrNotFound
		}
		return models.PermissionNone, err
	}
	return s.effective(ctx, link, subject)
}

func (s *aclService) effective(ctx context.Context, link *models.Link, subject models.Subject) (models.Permission, error) {
	if subject.Admin || link.Owner == subject.NetID {
		return models.PermissionOwner, nil
	}

	perm, err := s.grantRepo.GetDirect(ctx, link.ID, subject.NetID)
	if err != nil {
		return models.PermissionNone, err
	}

	orgGrants, err := s.grantRepo.ListOrgGrants(ctx, link.ID)
	if err != nil {
		return models.PermissionNone, err
	}
	for _, g := range orgGrants {
		if g.Permission <= perm {
			continue
		}
		orgID, err := strconv.ParseInt(g.Subject, 10, 64)
		if err != nil {
			s.logger.Warn("Некорректный субъект орг-гранта",
				zap.Int64("link_id", link.ID),
				zap.String("subject", g.Subject),
			)
			continue
		}
		member, err := s.orgRepo.IsMember(ctx, orgID, subject.NetID)
		if err != nil {
			return models.PermissionNone, err
		}
		if member {
			perm = g.Permission
		}
	}

	return perm, nil
}

// TransferOwnership передаёт владение; только текущий владелец может
// это сделать, сам он понижается до редактора.
func (s *aclService) TransferOwnership(ctx context.Context, linkID int64, requester models.Subject, newOwner string) error {
	link, err := s.linkRepo.GetLinkByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrNotFound
		}
		return err
	}
	if link.Owner != requester.NetID && !requester.Admin {
		return ErrForbidden
	}
	if newOwner == link.Owner {
		return nil
	}

	if err := s.linkRepo.TransferOwner(ctx, linkID, link.Owner, newOwner); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.logger.Info("Владение ссылкой передано",
		zap.Int64("link_id", linkID),
		zap.String("from", link.Owner),
		zap.String("to", newOwner),
	)
	return nil
}

func (s *aclService) ListGrants(ctx context.Context, linkID int64, requester models.Subject) ([]models.Grant, error) {
	if err := s.CheckPermission(ctx, linkID, requester, models.PermissionViewer); err != nil {
		return nil, err
	}
	return s.grantRepo.ListForLink(ctx, linkID)
}

// CreateOrganization создаёт организацию; создатель становится её
// администратором. Доступно привилегированным субъектам.
func (s *aclService) CreateOrganization(ctx context.Context, requester models.Subject, name string) (*models.Organization, error) {
	if !requester.Admin && !requester.PowerUser {
		return nil, ErrForbidden
	}
	if name == "" {
		return nil, fmt.Errorf("%w: пустое имя организации", ErrInvalidGrant)
	}

	org := &models.Organization{Name: name}
	if err := s.orgRepo.Create(ctx, org); err != nil {
		if errors.Is(err, repository.ErrOrgExists) {
			return nil, ErrOrgExists
		}
		return nil, err
	}

	if err := s.orgRepo.AddMember(ctx, org.ID, requester.NetID, true); err != nil {
		return nil, err
	}
	return org, nil
}

// DeleteOrganization удаляет организацию. Каскадных правок грантов не
// требуется: членство вычисляется при проверке, и гранты на удалённую
// организацию перестают давать доступ сразу.
func (s *aclService) DeleteOrganization(ctx context.Context, requester models.Subject, orgID int64) error {
	if !requester.Admin {
		isAdmin, err := s.orgRepo.IsAdmin(ctx, orgID, requester.NetID)
		if err != nil {
			return err
		}
		if !isAdmin {
			return ErrForbidden
		}
	}

	if err := s.orgRepo.Delete(ctx, orgID); err != nil {
		if errors.Is(err, repository.ErrOrgNotFound) {
			return ErrOrgNotFound
		}
		return err
	}
	return nil
}

func (s *aclService) AddMember(ctx context.Context, requester models.Subject, orgID int64, netid string, isAdmin bool) error {
	if err := s.requireOrgAdmin(ctx, requester, orgID); err != nil {
		return err
	}
	return s.orgRepo.AddMember(ctx, orgID, netid, isAdmin)
}

func (s *aclService) RemoveMember(ctx context.Context, requester models.Subject, orgID int64, netid string) error {
	// Выйти из организации можно самостоятельно
	if requester.NetID != netid {
		if err := s.requireOrgAdmin(ctx, requester, orgID); err != nil {
			return err
		}
	}
	return s.orgRepo.RemoveMember(ctx, orgID, netid)
}

func (s *aclService) ListMembers(ctx context.Context, requester models.Subject, orgID int64) ([]models.OrganizationMember, error) {
	if !requester.Admin {
		member, err := s.orgRepo.IsMember(ctx, orgID, requester.NetID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrForbidden
		}
	}
	return s.orgRepo.ListMembers(ctx, orgID)
}

func (s *aclService) ListOrganizations(ctx context.Context, netid string) ([]models.Organization, error) {
	return s.orgRepo.ListForMember(ctx, netid)
}

func (s *aclService) requireOrgAdmin(ctx context.Context, requester models.Subject, orgID int64) error {
	if requester.Admin {
		return nil
	}
	isAdmin, err := s.orgRepo.IsAdmin(ctx, orgID, requester.NetID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrForbidden
	}
	return nil
}
