package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки уровня хранилища
var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrAliasNotFound = errors.New("alias not found")
	ErrAliasExists   = errors.New("alias already exists")
	ErrGrantNotFound = errors.New("grant not found")
	ErrOrgNotFound   = errors.New("organization not found")
	ErrOrgExists     = errors.New("organization already exists")
	ErrCacheMiss     = errors.New("cache miss")
)

const uniqueViolationCode = "23505"

// isUniqueViolation проверяет, что ошибка Postgres — нарушение
// уникального ограничения
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
