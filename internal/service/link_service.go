package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/SergeiKhy/linkhub/internal/config"
	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/repository"
	"go.uber.org/zap"
)

// Константы сервиса
const (
	defaultCacheTTL = time.Hour
)

var (
	urlPattern   = regexp.MustCompile(`^https?://[^\s]+$`)
	aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{4,32}$`)
)

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	CreateLink(ctx context.Context, subject models.Subject, input *models.CreateLinkInput) (*models.Link, *models.Alias, error)
	AddAlias(ctx context.Context, subject models.Subject, linkID int64, customAlias *string, description string) (*models.Alias, error)
	UpdateLink(ctx context.Context, subject models.Subject, linkID int64, input *models.UpdateLinkInput) (*models.Link, error)
	DeleteLink(ctx context.Context, subject models.Subject, linkID int64) error
	DeleteAlias(ctx context.Context, subject models.Subject, aliasID int64) error
	GetLink(ctx context.Context, subject models.Subject, linkID int64) (*models.Link, []models.Alias, error)
	ListLinks(ctx context.Context, subject models.Subject) ([]models.Link, error)
	// Resolve реализует конечный автомат разрешения алиаса:
	// NotFound | Expired | Active. Шлюз репутации здесь не участвует.
	Resolve(ctx context.Context, aliasName string) (*models.Resolution, error)
}

type linkService struct {
	linkRepo    repository.LinkRepository
	cacheRepo   repository.CacheRepository
	acl         ACLService
	safety      SafetyChecker
	generator   *ShortIDGenerator
	safetyCfg   config.SafetyConfig
	maxAttempts int
	logger      *zap.Logger
}

func NewLinkService(
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	acl ACLService,
	safety SafetyChecker,
	generator *ShortIDGenerator,
	safetyCfg config.SafetyConfig,
	shortIDCfg config.ShortIDConfig,
	logger *zap.Logger,
) LinkService {
	return &linkService{
		linkRepo:    linkRepo,
		cacheRepo:   cacheRepo,
		acl:         acl,
		safety:      safety,
		generator:   generator,
		safetyCfg:   safetyCfg,
		maxAttempts: shortIDCfg.MaxAttempts,
		logger:      logger,
	}
}

// CreateLink создаёт ссылку вместе с алиасом и владельцем одной
// транзакцией хранилища.
func (s *linkService) CreateLink(ctx context.Context, subject models.Subject, input *models.CreateLinkInput) (*models.Link, *models.Alias, error) {
	if !urlPattern.MatchString(input.OriginalURL) {
		return nil, nil, ErrInvalidURL
	}
	if err := s.checkDestination(ctx, input.OriginalURL); err != nil {
		return nil, nil, err
	}

	link := &models.Link{
		Title:       input.Title,
		OriginalURL: input.OriginalURL,
		Owner:       subject.NetID,
		ExpiresAt:   input.ExpiresAt,
	}

	if input.CustomAlias != nil && *input.CustomAlias != "" {
		alias, err := s.buildCustomAlias(subject, *input.CustomAlias, input.Description)
		if err != nil {
			return nil, nil, err
		}
		if err := s.linkRepo.CreateLinkWithAlias(ctx, link, alias); err != nil {
			if errors.Is(err, repository.ErrAliasExists) {
				return nil, nil, ErrAliasTaken
			}
			return nil, nil, err
		}
		return link, alias, nil
	}

	// Сгенерированный алиас: коллизия отменяет всю транзакцию, пробуем
	// заново с новым кандидатом
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		name, err := s.generator.Generate()
		if err != nil {
			return nil, nil, err
		}
		alias := &models.Alias{Name: name, Description: input.Description}

		err = s.linkRepo.CreateLinkWithAlias(ctx, link, alias)
		if err == nil {
			return link, alias, nil
		}
		if !errors.Is(err, repository.ErrAliasExists) {
			return nil, nil, err
		}
	}

	s.logger.Error("Не удалось подобрать свободный алиас: увеличьте SHORTID_LENGTH",
		zap.Int("attempts", s.maxAttempts),
		zap.Int("length", s.generator.Length()),
	)
	return nil, nil, ErrAliasSpaceExhausted
}

// AddAlias добавляет алиас к существующей ссылке. Уникальность имени
// гарантирует хранилище, а не проверка перед вставкой.
func (s *linkService) AddAlias(ctx context.Context, subject models.Subject, linkID int64, customAlias *string, description string) (*models.Alias, error) {
	if err := s.acl.CheckPermission(ctx, linkID, subject, models.PermissionEditor); err != nil {
		return nil, err
	}

	if customAlias != nil && *customAlias != "" {
		alias, err := s.buildCustomAlias(subject, *customAlias, description)
		if err != nil {
			return nil, err
		}
		alias.LinkID = linkID
		if err := s.linkRepo.AddAlias(ctx, alias); err != nil {
			if errors.Is(err, repository.ErrAliasExists) {
				return nil, ErrAliasTaken
			}
			return nil, err
		}
		return alias, nil
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		name, err := s.generator.Generate()
		if err != nil {
			return nil, err
		}
		alias := &models.Alias{LinkID: linkID, Name: name, Description: description}

		err = s.linkRepo.AddAlias(ctx, alias)
		if err == nil {
			return alias, nil
		}
		if !errors.Is(err, repository.ErrAliasExists) {
			return nil, err
		}
	}

	s.logger.Error("Не удалось подобрать свободный алиас: увеличьте SHORTID_LENGTH",
		zap.Int("attempts", s.maxAttempts),
		zap.Int("length", s.generator.Length()),
	)
	return nil, ErrAliasSpaceExhausted
}

// UpdateLink изменяет ссылку. Смена целевого URL повторно проходит шлюз
// репутации.
func (s *linkService) UpdateLink(ctx context.Context, subject models.Subject, linkID int64, input *models.UpdateLinkInput) (*models.Link, error) {
	if err := s.acl.CheckPermission(ctx, linkID, subject, models.PermissionEditor); err != nil {
		return nil, err
	}

	link, err := s.linkRepo.GetLinkByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if input.Title != nil {
		link.Title = *input.Title
	}
	if input.ExpiresAt != nil {
		link.ExpiresAt = input.ExpiresAt
	}
	if input.OriginalURL != nil && *input.OriginalURL != link.OriginalURL {
		if !urlPattern.MatchString(*input.OriginalURL) {
			return nil, ErrInvalidURL
		}
		if err := s.checkDestination(ctx, *input.OriginalURL); err != nil {
			return nil, err
		}
		link.OriginalURL = *input.OriginalURL
	}

	if err := s.linkRepo.UpdateLink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.invalidateAliases(ctx, linkID)
	return link, nil
}

// DeleteLink скрывает ссылку. Записи визитов остаются: аналитика
// по-прежнему доступна владельцу.
func (s *linkService) DeleteLink(ctx context.Context, subject models.Subject, linkID int64) error {
	link, err := s.linkRepo.GetLinkByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrNotFound
		}
		return err
	}
	// Удаление — прерогатива владельца
	if link.Owner != subject.NetID && !subject.Admin {
		return ErrForbidden
	}

	// Гасим алиасы до сброса кэша, иначе параллельный Resolve успеет
	// закэшировать ещё живую запись заново
	aliases, err := s.linkRepo.ListAliases(ctx, linkID)
	if err != nil {
		return err
	}

	if err := s.linkRepo.SoftDeleteLink(ctx, linkID); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrNotFound
		}
		return err
	}

	for _, a := range aliases {
		if err := s.cacheRepo.DeleteResolution(ctx, a.Name); err != nil {
			s.logger.Warn("Не удалось сбросить кэш алиаса",
				zap.String("alias", a.Name), zap.Error(err))
		}
	}
	return nil
}

func (s *linkService) DeleteAlias(ctx context.Context, subject models.Subject, aliasID int64) error {
	alias, err := s.linkRepo.GetAlias(ctx, aliasID)
	if err != nil {
		if errors.Is(err, repository.ErrAliasNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.acl.CheckPermission(ctx, alias.LinkID, subject, models.PermissionEditor); err != nil {
		return err
	}

	if err := s.linkRepo.SoftDeleteAlias(ctx, aliasID); err != nil {
		if errors.Is(err, repository.ErrAliasNotFound) {
			return ErrNotFound
		}
		return err
	}

	// Кэш сбрасываем после скрытия: обратный порядок позволил бы
	// параллельному Resolve закэшировать ещё живую запись заново
	if err := s.cacheRepo.DeleteResolution(ctx, alias.Name); err != nil {
		s.logger.Warn("Не удалось сбросить кэш алиаса",
			zap.String("alias", alias.Name), zap.Error(err))
	}
	return nil
}

func (s *linkService) GetLink(ctx context.Context, subject models.Subject, linkID int64) (*models.Link, []models.Alias, error) {
	if err := s.acl.CheckPermission(ctx, linkID, subject, models.PermissionViewer); err != nil {
		return nil, nil, err
	}

	link, err := s.linkRepo.GetLinkByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	aliases, err := s.linkRepo.ListAliases(ctx, linkID)
	if err != nil {
		return nil, nil, err
	}
	return link, aliases, nil
}

func (s *linkService) ListLinks(ctx context.Context, subject models.Subject) ([]models.Link, error) {
	return s.linkRepo.ListAccessible(ctx, subject.NetID)
}

func (s *linkService) Resolve(ctx context.Context, aliasName string) (*models.Resolution, error) {
	// Сначала кэш; истечение срока проверяется и для кэшированных записей
	if res, err := s.cacheRepo.GetResolution(ctx, aliasName); err == nil {
		if res.Link.IsExpired(time.Now()) {
			return nil, ErrExpired
		}
		return res, nil
	}

	res, err := s.linkRepo.GetByAliasName(ctx, aliasName)
	if err != nil {
		if errors.Is(err, repository.ErrAliasNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if res.Link.IsExpired(time.Now()) {
		return nil, ErrExpired
	}

	ttl := defaultCacheTTL
	if res.Link.ExpiresAt != nil {
		if until := time.Until(*res.Link.ExpiresAt); until < ttl {
			ttl = until
		}
	}
	if err := s.cacheRepo.SetResolution(ctx, aliasName, res, ttl); err != nil {
		s.logger.Debug("Не удалось закэшировать алиас", zap.String("alias", aliasName), zap.Error(err))
	}

	return res, nil
}

// checkDestination применяет политику шлюза репутации. Неизвестный
// вердикт проходит или блокируется согласно SAFETY_FAIL_OPEN; выбор
// всегда логируется.
func (s *linkService) checkDestination(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, s.safetyCfg.Timeout)
	defer cancel()

	switch s.safety.Check(ctx, url) {
	case VerdictUnsafe:
		return ErrUnsafeURL
	case VerdictUnknown:
		if s.safetyCfg.FailOpen {
			s.logger.Warn("Оракул репутации недоступен, пропускаем по fail-open",
				zap.String("url", url),
			)
			return nil
		}
		s.logger.Warn("Оракул репутации недоступен, отклоняем по fail-closed",
			zap.String("url", url),
		)
		return ErrGateClosed
	default:
		return nil
	}
}

func (s *linkService) buildCustomAlias(subject models.Subject, name, description string) (*models.Alias, error) {
	// Кастомные алиасы — привилегия power user
	if !subject.PowerUser && !subject.Admin {
		return nil, ErrForbidden
	}
	if !aliasPattern.MatchString(name) {
		return nil, ErrInvalidAlias
	}
	if IsReservedAlias(name) {
		return nil, ErrReserved
	}
	return &models.Alias{Name: name, Description: description}, nil
}

func (s *linkService) invalidateAliases(ctx context.Context, linkID int64) {
	aliases, err := s.linkRepo.ListAliases(ctx, linkID)
	if err != nil {
		s.logger.Warn("Не удалось получить алиасы для сброса кэша",
			zap.Int64("link_id", linkID), zap.Error(err))
		return
	}
	for _, a := range aliases {
		if err := s.cacheRepo.DeleteResolution(ctx, a.Name); err != nil {
			s.logger.Warn("Не удалось сбросить кэш алиаса",
				zap.String("alias", a.Name), zap.Error(err))
		}
	}
}
