package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/jackc/pgx/v5"
)

type GrantRepository interface {
	// Upsert идемпотентен: повторный грант тому же субъекту заменяет уровень.
	Upsert(ctx context.Context, grant *models.Grant) error
	// Revoke идемпотентен: отзыв отсутствующего гранта ничего не делает.
	Revoke(ctx context.Context, linkID int64, subjectType, subject string) error
	GetDirect(ctx context.Context, linkID int64, netid string) (models.Permission, error)
	ListOrgGrants(ctx context.Context, linkID int64) ([]models.Grant, error)
	ListForLink(ctx context.Context, linkID int64) ([]models.Grant, error)
}

type grantRepository struct {
	db *PostgresDB
}

func NewGrantRepository(db *PostgresDB) GrantRepository {
	return &grantRepository{db: db}
}

func (r *grantRepository) Upsert(ctx context.Context, grant *models.Grant) error {
	query := `
		INSERT INTO grants (link_id, subject_type, subject, permission)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (link_id, subject_type, subject) DO UPDATE SET permission = EXCLUDED.permission
	`
	_, err := r.db.Pool.Exec(ctx, query,
		grant.LinkID,
		grant.SubjectType,
		grant.Subject,
		grant.Permission.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert grant: %w", err)
	}
	return nil
}

func (r *grantRepository) Revoke(ctx context.Context, linkID int64, subjectType, subject string) error {
	query := `DELETE FROM grants WHERE link_id = $1 AND subject_type = $2 AND subject = $3`

	if _, err := r.db.Pool.Exec(ctx, query, linkID, subjectType, subject); err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	return nil
}

func (r *grantRepository) GetDirect(ctx context.Context, linkID int64, netid string) (models.Permission, error) {
	query := `
		SELECT permission FROM grants
		WHERE link_id = $1 AND subject_type = 'user' AND subject = $2
	`
	var perm string
	err := r.db.Pool.QueryRow(ctx, query, linkID, netid).Scan(&perm)
	if err != nil {
		// Отсутствие гранта — не ошибка, просто нет доступа.
		// Всё остальное — инфраструктурный сбой, его глотать нельзя.
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PermissionNone, nil
		}
		return models.PermissionNone, fmt.Errorf("failed to get grant: %w", err)
	}
	return models.ParsePermission(perm), nil
}

func (r *grantRepository) ListOrgGrants(ctx context.Context, linkID int64) ([]models.Grant, error) {
	return r.list(ctx,
		`SELECT link_id, subject_type, subject, permission, created_at
		 FROM grants WHERE link_id = $1 AND subject_type = 'org'`, linkID)
}

func (r *grantRepository) ListForLink(ctx context.Context, linkID int64) ([]models.Grant, error) {
	return r.list(ctx,
		`SELECT link_id, subject_type, subject, permission, created_at
		 FROM grants WHERE link_id = $1 ORDER BY created_at`, linkID)
}

func (r *grantRepository) list(ctx context.Context, query string, linkID int64) ([]models.Grant, error) {
	rows, err := r.db.Pool.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []models.Grant
	for rows.Next() {
		var g models.Grant
		var perm string
		if err := rows.Scan(&g.LinkID, &g.SubjectType, &g.Subject, &perm, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.Permission = models.ParsePermission(perm)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
