package service

import (
	"errors"
)

// Ошибки уровня сервиса
var (
	ErrInvalidURL   = errors.New("невалидный URL")
	ErrInvalidAlias = errors.New("невалидный кастомный алиас")
	ErrReserved     = errors.New("алиас зарезервирован")
	ErrAliasTaken   = errors.New("алиас уже занят")
	ErrUnsafeURL    = errors.New("целевой URL признан небезопасным")
	ErrGateClosed   = errors.New("сервис проверки URL недоступен")
	ErrForbidden    = errors.New("недостаточно прав")
	ErrNotFound     = errors.New("ссылка не найдена")
	ErrExpired      = errors.New("срок действия ссылки истёк")
	ErrOrgExists    = errors.New("организация с таким именем уже существует")
	ErrOrgNotFound  = errors.New("организация не найдена")
	ErrInvalidGrant = errors.New("некорректный грант")

	// ErrAliasSpaceExhausted означает, что генератор не смог подобрать
	// свободный алиас за отведённое число попыток. Это ошибка
	// конфигурации (алфавит/длина малы для нагрузки), а не запроса.
	ErrAliasSpaceExhausted = errors.New("исчерпано пространство коротких алиасов")
)
