package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/jackc/pgx/v5"
)

type OrgRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	// Delete удаляет запись организации. Строки участников уходят вместе
	// с ней каскадом по FK; гранты на организацию сразу перестают работать,
	// потому что членство проверяется в момент проверки прав, переписывать
	// гранты не нужно.
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Organization, error)
	GetByName(ctx context.Context, name string) (*models.Organization, error)
	AddMember(ctx context.Context, orgID int64, netid string, isAdmin bool) error
	RemoveMember(ctx context.Context, orgID int64, netid string) error
	SetAdmin(ctx context.Context, orgID int64, netid string, isAdmin bool) error
	IsMember(ctx context.Context, orgID int64, netid string) (bool, error)
	IsAdmin(ctx context.Context, orgID int64, netid string) (bool, error)
	ListMembers(ctx context.Context, orgID int64) ([]models.OrganizationMember, error)
	ListForMember(ctx context.Context, netid string) ([]models.Organization, error)
}

type orgRepository struct {
	db *PostgresDB
}

func NewOrgRepository(db *PostgresDB) OrgRepository {
	return &orgRepository{db: db}
}

func (r *orgRepository) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (name)
		VALUES ($1)
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query, org.Name).Scan(&org.ID, &org.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrOrgExists
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (r *orgRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrOrgNotFound
	}
	return nil
}

func (r *orgRepository) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	return r.get(ctx, `SELECT id, name, created_at FROM organizations WHERE id = $1`, id)
}

func (r *orgRepository) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	return r.get(ctx, `SELECT id, name, created_at FROM organizations WHERE name = $1`, name)
}

func (r *orgRepository) get(ctx context.Context, query string, arg any) (*models.Organization, error) {
	org := &models.Organization{}
	err := r.db.Pool.QueryRow(ctx, query, arg).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

func (r *orgRepository) AddMember(ctx context.Context, orgID int64, netid string, isAdmin bool) error {
	// Повторное добавление не меняет существующую запись
	query := `
		INSERT INTO organization_members (org_id, netid, is_admin)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, netid) DO NOTHING
	`
	if _, err := r.db.Pool.Exec(ctx, query, orgID, netid, isAdmin); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (r *orgRepository) RemoveMember(ctx context.Context, orgID int64, netid string) error {
	query := `DELETE FROM organization_members WHERE org_id = $1 AND netid = $2`

	if _, err := r.db.Pool.Exec(ctx, query, orgID, netid); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

func (r *orgRepository) SetAdmin(ctx context.Context, orgID int64, netid string, isAdmin bool) error {
	query := `UPDATE organization_members SET is_admin = $3 WHERE org_id = $1 AND netid = $2`

	result, err := r.db.Pool.Exec(ctx, query, orgID, netid, isAdmin)
	if err != nil {
		return fmt.Errorf("failed to set admin flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrOrgNotFound
	}
	return nil
}

func (r *orgRepository) IsMember(ctx context.Context, orgID int64, netid string) (bool, error) {
	return r.exists(ctx,
		`SELECT 1 FROM organization_members WHERE org_id = $1 AND netid = $2`, orgID, netid)
}

func (r *orgRepository) IsAdmin(ctx context.Context, orgID int64, netid string) (bool, error) {
	return r.exists(ctx,
		`SELECT 1 FROM organization_members WHERE org_id = $1 AND netid = $2 AND is_admin`, orgID, netid)
}

func (r *orgRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := r.db.Pool.QueryRow(ctx, query, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return true, nil
}

func (r *orgRepository) ListMembers(ctx context.Context, orgID int64) ([]models.OrganizationMember, error) {
	query := `
		SELECT org_id, netid, is_admin, added_at
		FROM organization_members
		WHERE org_id = $1
		ORDER BY added_at
	`
	rows, err := r.db.Pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []models.OrganizationMember
	for rows.Next() {
		var m models.OrganizationMember
		if err := rows.Scan(&m.OrgID, &m.NetID, &m.IsAdmin, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *orgRepository) ListForMember(ctx context.Context, netid string) ([]models.Organization, error) {
	query := `
		SELECT o.id, o.name, o.created_at
		FROM organizations o
		JOIN organization_members m ON m.org_id = o.id
		WHERE m.netid = $1
		ORDER BY o.name
	`
	rows, err := r.db.Pool.Query(ctx, query, netid)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}
