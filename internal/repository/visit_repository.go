package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/linkhub/internal/models"
)

// VisitFilter ограничивает агрегацию одной ссылкой, опционально
// сужая её до одного алиаса этой ссылки.
type VisitFilter struct {
	LinkID  int64
	AliasID *int64
}

type VisitRepository interface {
	Insert(ctx context.Context, visit *models.Visit) error
	// HasRecentVisit — запасной путь проверки первого визита по журналу,
	// когда окно в Redis недоступно.
	HasRecentVisit(ctx context.Context, aliasID int64, fingerprint string, window time.Duration) (bool, error)
	GetDailyStats(ctx context.Context, f VisitFilter) ([]models.DailyVisitStats, error)
	GetGeoStats(ctx context.Context, f VisitFilter, resolution string) ([]models.GeoStats, error)
	GetClientStats(ctx context.Context, f VisitFilter) (*models.ClientStats, error)
	GetRefererStats(ctx context.Context, f VisitFilter) (map[string]int64, error)
	// ReconcileCounters пересчитывает производные счётчики ссылок по журналу
	// и возвращает число исправленных ссылок. Запускается периодически:
	// источник правды — журнал, а не счётчики.
	ReconcileCounters(ctx context.Context) (int64, error)
}

type visitRepository struct {
	db *PostgresDB
}

func NewVisitRepository(db *PostgresDB) VisitRepository {
	return &visitRepository{db: db}
}

func (r *visitRepository) Insert(ctx context.Context, visit *models.Visit) error {
	query := `
		INSERT INTO visits (link_id, alias_id, alias_name, fingerprint, country, state_code,
		                    user_agent, browser, platform, referer_domain, first_time, visited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		visit.LinkID,
		visit.AliasID,
		visit.AliasName,
		visit.Fingerprint,
		visit.Country,
		visit.StateCode,
		visit.UserAgent,
		visit.Browser,
		visit.Platform,
		visit.RefererDomain,
		visit.FirstTime,
		visit.VisitedAt,
	).Scan(&visit.ID)
	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

func (r *visitRepository) HasRecentVisit(ctx context.Context, aliasID int64, fingerprint string, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM visits
			WHERE alias_id = $1 AND fingerprint = $2 AND visited_at > $3
		)
	`
	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, aliasID, fingerprint, time.Now().UTC().Add(-window)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return exists, nil
}

// GetDailyStats группирует всю накопленную историю по календарным дням
// в UTC, по возрастанию. Без усечения по умолчанию.
func (r *visitRepository) GetDailyStats(ctx context.Context, f VisitFilter) ([]models.DailyVisitStats, error) {
	query := `
		SELECT to_char(visited_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE first_time) AS first_time
		FROM visits
		WHERE link_id = $1 AND ($2::bigint IS NULL OR alias_id = $2)
		GROUP BY day
		ORDER BY day
	`
	rows, err := r.db.Pool.Query(ctx, query, f.LinkID, f.AliasID)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	defer rows.Close()

	var stats []models.DailyVisitStats
	for rows.Next() {
		var s models.DailyVisitStats
		if err := rows.Scan(&s.Day, &s.Total, &s.FirstTime); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GetGeoStats группирует по странам или по штатам США. Визиты без
// геолокации здесь исключаются, в отличие от разбивки по клиентам,
// где "unknown" — отдельная корзина.
func (r *visitRepository) GetGeoStats(ctx context.Context, f VisitFilter, resolution string) ([]models.GeoStats, error) {
	var query string
	switch resolution {
	case "state":
		query = `
			SELECT state_code, COUNT(*) AS visits
			FROM visits
			WHERE link_id = $1 AND ($2::bigint IS NULL OR alias_id = $2)
			  AND country = 'United States' AND state_code <> 'unknown'
			GROUP BY state_code
			ORDER BY visits DESC
		`
	default: // country
		query = `
			SELECT country, COUNT(*) AS visits
			FROM visits
			WHERE link_id = $1 AND ($2::bigint IS NULL OR alias_id = $2)
			  AND country <> 'unknown'
			GROUP BY country
			ORDER BY visits DESC
		`
	}

	rows, err := r.db.Pool.Query(ctx, query, f.LinkID, f.AliasID)
	if err != nil {
		return nil, fmt.Errorf("failed to get geo stats: %w", err)
	}
	defer rows.Close()

	var stats []models.GeoStats
	for rows.Next() {
		var s models.GeoStats
		if err := rows.Scan(&s.Location, &s.Visits); err != nil {
			return nil, fmt.Errorf("failed to scan geo stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *visitRepository) GetClientStats(ctx context.Context, f VisitFilter) (*models.ClientStats, error) {
	query := `
		SELECT browser, platform, COUNT(*)
		FROM visits
		WHERE link_id = $1 AND ($2::bigint IS NULL OR alias_id = $2)
		GROUP BY browser, platform
	`
	rows, err := r.db.Pool.Query(ctx, query, f.LinkID, f.AliasID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client stats: %w", err)
	}
	defer rows.Close()

	stats := &models.ClientStats{
		Browser:  make(map[string]int64),
		Platform: make(map[string]int64),
	}
	for rows.Next() {
		var browser, platform string
		var count int64
		if err := rows.Scan(&browser, &platform, &count); err != nil {
			return nil, fmt.Errorf("failed to scan client stat: %w", err)
		}
		stats.Browser[browser] += count
		stats.Platform[platform] += count
	}
	return stats, rows.Err()
}

// GetRefererStats возвращает число визитов по доменам источников перехода.
// Пустые источники попадают в корзину "unknown", но если источника нет
// ни у одного визита, результат пуст.
func (r *visitRepository) GetRefererStats(ctx context.Context, f VisitFilter) (map[string]int64, error) {
	query := `
		SELECT referer_domain, COUNT(*)
		FROM visits
		WHERE link_id = $1 AND ($2::bigint IS NULL OR alias_id = $2)
		GROUP BY referer_domain
	`
	rows, err := r.db.Pool.Query(ctx, query, f.LinkID, f.AliasID)
	if err != nil {
		return nil, fmt.Errorf("failed to get referer stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	var blank int64
	for rows.Next() {
		var domain string
		var count int64
		if err := rows.Scan(&domain, &count); err != nil {
			return nil, fmt.Errorf("failed to scan referer stat: %w", err)
		}
		if domain == "" {
			blank = count
			continue
		}
		stats[domain] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stats) > 0 && blank > 0 {
		stats["unknown"] = blank
	}
	return stats, nil
}

func (r *visitRepository) ReconcileCounters(ctx context.Context) (int64, error) {
	query := `
		UPDATE links l
		SET visits = v.total, unique_visits = v.uniq
		FROM (
			SELECT link_id,
			       COUNT(*) AS total,
			       COUNT(*) FILTER (WHERE first_time) AS uniq
			FROM visits
			GROUP BY link_id
		) v
		WHERE v.link_id = l.id AND (l.visits <> v.total OR l.unique_visits <> v.uniq)
	`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
