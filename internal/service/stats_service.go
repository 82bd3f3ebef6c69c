package service

import (
	"context"
	"errors"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/repository"
)

// StatsService отдаёт агрегированную аналитику визитов. Любой запрос
// требует хотя бы права просмотра ссылки; опциональный aliasID сужает
// выборку до одного алиаса.
type StatsService interface {
	Overview(ctx context.Context, subject models.Subject, linkID int64) (*models.LinkOverview, error)
	DailyStats(ctx context.Context, subject models.Subject, linkID int64, aliasID *int64) ([]models.DailyVisitStats, error)
	GeoStats(ctx context.Context, subject models.Subject, linkID int64, aliasID *int64) (countries, states []models.GeoStats, err error)
	ClientStats(ctx context.Context, subject models.Subject, linkID int64, aliasID *int64) (*models.ClientStats, error)
	RefererStats(ctx context.Context, subject models.Subject, linkID int64, aliasID *int64) (map[string]int64, error)
}

type statsService struct {
	visitRepo repository.VisitRepository
	linkRepo  repository.LinkRepository
	acl       ACLService
}

func NewStatsService(visitRepo repository.VisitRepository, linkRepo repository.LinkRepository, acl ACLService) StatsService {
	return &statsService{visitRepo: visitRepo, linkRepo: linkRepo, acl: acl}
}

func (s *statsService) Overview(ctx context.Context, subject models.Subject, linkID int64) (*models.LinkOverview, error) {
	if err := s.acl.CheckPermission(ctx, linkID, subject, models.PermissionViewer); err != nil {
		return nil, err
	}

	link, err := s.linkRepo.GetLinkByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	aliases, err := s.linkRepo.ListAliases(ctx, linkID)
	if err != nil {
		return nil, err
	}

	return &models.LinkOverview{
		LinkID:       link.ID,
		Title:        link.Title,
		Visits:       link.Visits,
		UniqueVisits: link.UniqueVisits,
		Aliases:      aliases,
	}, nil
}

func (s *statsService) DailyStats(ctx context.Context, subject models.Subject, linkID int64, aliasID *int64) ([]models.DailyVisitStats, error) {
	filter, err := s.authorize(ctx, subject, linkID, aliasID)
	if err != nil {
		return nil, err
	}
	return s.visitRepo.GetDailyStats(ctx, filter)
}

func (s *statsService) GeoStats(ctx context.Context, subject models.Subject, linkID int64, aliasID *int64) ([]models.GeoStats, []models.GeoStats, error) {
	filter, err := s.authorize(ctx, subject, linkID, aliasID)
	if err != nil {
		return nil, nil, err
	}

	countries, err := s.visitRepo.GetGeoStats(ctx, filter, "country")
	if err != nil {
		return nil, nil, err
	}
	states, err := s.visitRepo.GetGeoStats(ctx, filter, "state")
	if err != nil {
		return nil, nil, err
	}
	return countries, states, nil
}

func (s *statsService) ClientStats(ctx context.Context, subject models.Subject, linkID int64, aliasID *int64) (*models.ClientStats, error) {
	filter, err := s.authorize(ctx, subject, linkID, aliasID)
	if err != nil {
		return nil, err
	}
	return s.visitRepo.GetClientStats(ctx, filter)
}

func (s *statsService) RefererStats(ctx context.Context, subject models.Subject, linkID int64, aliasID *int64) (map[string]int64, error) {
	filter, err := s.authorize(ctx, subject, linkID, aliasID)
	if err != nil {
		return nil, err
	}
	return s.visitRepo.GetRefererStats(ctx, filter)
}

// authorize проверяет право просмотра и принадлежность алиаса ссылке
func (s *statsService) authorize(ctx context.Context, subject models.Subject, linkID int64, aliasID *int64) (repository.VisitFilter, error) {
	filter := repository.VisitFilter{LinkID: linkID}

	if err := s.acl.CheckPermission(ctx, linkID, subject, models.PermissionViewer); err != nil {
		return filter, err
	}

	if aliasID != nil {
		alias, err := s.linkRepo.GetAlias(ctx, *aliasID)
		if err != nil {
			if errors.Is(err, repository.ErrAliasNotFound) {
				return filter, ErrNotFound
			}
			return filter, err
		}
		if alias.LinkID != linkID {
			return filter, ErrNotFound
		}
		filter.AliasID = aliasID
	}

	return filter, nil
}
