package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/jackc/pgx/v5"
)

type LinkRepository interface {
	// CreateLinkWithAlias вставляет ссылку и, если alias не nil, алиас в одной
	// транзакции. После неё либо существуют обе строки, либо ни одной.
	// Уникальность алиаса обеспечивает частичный уникальный индекс
	// по aliases(name) WHERE NOT deleted.
	CreateLinkWithAlias(ctx context.Context, link *models.Link, alias *models.Alias) error
	AddAlias(ctx context.Context, alias *models.Alias) error
	GetLinkByID(ctx context.Context, id int64) (*models.Link, error)
	GetByAliasName(ctx context.Context, name string) (*models.Resolution, error)
	GetAlias(ctx context.Context, aliasID int64) (*models.Alias, error)
	ListAliases(ctx context.Context, linkID int64) ([]models.Alias, error)
	UpdateLink(ctx context.Context, link *models.Link) error
	SoftDeleteLink(ctx context.Context, id int64) error
	SoftDeleteAlias(ctx context.Context, aliasID int64) error
	ListAccessible(ctx context.Context, netid string) ([]models.Link, error)
	IncrementCounters(ctx context.Context, linkID int64, firstTime bool) error
	TransferOwner(ctx context.Context, linkID int64, oldOwner, newOwner string) error
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) CreateLinkWithAlias(ctx context.Context, link *models.Link, alias *models.Alias) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO links (title, original_url, owner, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, query,
		link.Title,
		link.OriginalURL,
		link.Owner,
		link.ExpiresAt,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	if alias != nil {
		alias.LinkID = link.ID
		if err := insertAlias(ctx, tx, alias); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *linkRepository) AddAlias(ctx context.Context, alias *models.Alias) error {
	return insertAlias(ctx, r.db.Pool, alias)
}

// insertAlias полагается на ограничение БД: два конкурентных запроса
// на одно имя соревнуются внутри Postgres, а не в коде приложения.
func insertAlias(ctx context.Context, q querier, alias *models.Alias) error {
	query := `
		INSERT INTO aliases (link_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, query, alias.LinkID, alias.Name, alias.Description).
		Scan(&alias.ID, &alias.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAliasExists
		}
		return fmt.Errorf("failed to create alias: %w", err)
	}
	return nil
}

// querier реализуют и *pgxpool.Pool, и pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *linkRepository) GetLinkByID(ctx context.Context, id int64) (*models.Link, error) {
	query := `
		SELECT id, title, original_url, owner, created_at, expires_at, deleted, visits, unique_visits
		FROM links
		WHERE id = $1 AND NOT deleted
	`
	link := &models.Link{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&link.ID,
		&link.Title,
		&link.OriginalURL,
		&link.Owner,
		&link.CreatedAt,
		&link.ExpiresAt,
		&link.Deleted,
		&link.Visits,
		&link.UniqueVisits,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

func (r *linkRepository) GetByAliasName(ctx context.Context, name string) (*models.Resolution, error) {
	// Скрытые алиасы и ссылки исключаются на уровне запроса
	query := `
		SELECT l.id, l.title, l.original_url, l.owner, l.created_at, l.expires_at,
		       l.visits, l.unique_visits, a.id, a.name
		FROM aliases a
		JOIN links l ON l.id = a.link_id
		WHERE a.name = $1 AND NOT a.deleted AND NOT l.deleted
	`
	res := &models.Resolution{}
	err := r.db.Pool.QueryRow(ctx, query, name).Scan(
		&res.Link.ID,
		&res.Link.Title,
		&res.Link.OriginalURL,
		&res.Link.Owner,
		&res.Link.CreatedAt,
		&res.Link.ExpiresAt,
		&res.Link.Visits,
		&res.Link.UniqueVisits,
		&res.AliasID,
		&res.Alias,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAliasNotFound
		}
		return nil, fmt.Errorf("failed to resolve alias: %w", err)
	}
	return res, nil
}

func (r *linkRepository) GetAlias(ctx context.Context, aliasID int64) (*models.Alias, error) {
	query := `
		SELECT id, link_id, name, description, created_at, deleted
		FROM aliases
		WHERE id = $1
	`
	alias := &models.Alias{}
	err := r.db.Pool.QueryRow(ctx, query, aliasID).Scan(
		&alias.ID,
		&alias.LinkID,
		&alias.Name,
		&alias.Description,
		&alias.CreatedAt,
		&alias.Deleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAliasNotFound
		}
		return nil, fmt.Errorf("failed to get alias: %w", err)
	}
	return alias, nil
}

func (r *linkRepository) ListAliases(ctx context.Context, linkID int64) ([]models.Alias, error) {
	query := `
		SELECT id, link_id, name, description, created_at, deleted
		FROM aliases
		WHERE link_id = $1 AND NOT deleted
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []models.Alias
	for rows.Next() {
		var a models.Alias
		if err := rows.Scan(&a.ID, &a.LinkID, &a.Name, &a.Description, &a.CreatedAt, &a.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

func (r *linkRepository) UpdateLink(ctx context.Context, link *models.Link) error {
	query := `
		UPDATE links
		SET title = $2, original_url = $3, expires_at = $4
		WHERE id = $1 AND NOT deleted
	`
	result, err := r.db.Pool.Exec(ctx, query, link.ID, link.Title, link.OriginalURL, link.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *linkRepository) SoftDeleteLink(ctx context.Context, id int64) error {
	query := `UPDATE links SET deleted = TRUE WHERE id = $1 AND NOT deleted`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *linkRepository) SoftDeleteAlias(ctx context.Context, aliasID int64) error {
	query := `UPDATE aliases SET deleted = TRUE WHERE id = $1 AND NOT deleted`

	result, err := r.db.Pool.Exec(ctx, query, aliasID)
	if err != nil {
		return fmt.Errorf("failed to delete alias: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAliasNotFound
	}
	return nil
}

// ListAccessible возвращает ссылки, которыми субъект владеет, на которые
// у него есть прямой грант или доступ через текущее членство в организации.
func (r *linkRepository) ListAccessible(ctx context.Context, netid string) ([]models.Link, error) {
	query := `
		SELECT DISTINCT l.id, l.title, l.original_url, l.owner, l.created_at,
		       l.expires_at, l.deleted, l.visits, l.unique_visits
		FROM links l
		LEFT JOIN grants g ON g.link_id = l.id
		WHERE NOT l.deleted AND (
			l.owner = $1
			OR (g.subject_type = 'user' AND g.subject = $1)
			OR (g.subject_type = 'org' AND g.subject IN (
				SELECT m.org_id::text FROM organization_members m WHERE m.netid = $1
			))
		)
		ORDER BY l.created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, netid)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []models.Link
	for rows.Next() {
		var l models.Link
		err := rows.Scan(&l.ID, &l.Title, &l.OriginalURL, &l.Owner, &l.CreatedAt,
			&l.ExpiresAt, &l.Deleted, &l.Visits, &l.UniqueVisits)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// IncrementCounters увеличивает производные счётчики на строке ссылки.
// Источник правды — журнал визитов, так что сбой здесь восстановим
// сверкой счётчиков.
func (r *linkRepository) IncrementCounters(ctx context.Context, linkID int64, firstTime bool) error {
	unique := 0
	if firstTime {
		unique = 1
	}
	query := `UPDATE links SET visits = visits + 1, unique_visits = unique_visits + $2 WHERE id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, linkID, unique); err != nil {
		return fmt.Errorf("failed to increment counters: %w", err)
	}
	return nil
}

func (r *linkRepository) TransferOwner(ctx context.Context, linkID int64, oldOwner, newOwner string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE links SET owner = $2 WHERE id = $1 AND owner = $3 AND NOT deleted`,
		linkID, newOwner, oldOwner)
	if err != nil {
		return fmt.Errorf("failed to transfer owner: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	// Прежний владелец автоматически становится редактором
	_, err = tx.Exec(ctx, `
		INSERT INTO grants (link_id, subject_type, subject, permission)
		VALUES ($1, 'user', $2, 'editor')
		ON CONFLICT (link_id, subject_type, subject) DO UPDATE SET permission = 'editor'
	`, linkID, oldOwner)
	if err != nil {
		return fmt.Errorf("failed to demote previous owner: %w", err)
	}

	// Прямой грант нового владельца больше не нужен
	_, err = tx.Exec(ctx,
		`DELETE FROM grants WHERE link_id = $1 AND subject_type = 'user' AND subject = $2`,
		linkID, newOwner)
	if err != nil {
		return fmt.Errorf("failed to drop new owner grant: %w", err)
	}

	return tx.Commit(ctx)
}
