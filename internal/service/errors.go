// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	// Сюда же сворачивается недопустимый переход статуса: существование
	// чужих отправок не должно утекать через разницу в ошибках.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующаяся отправка).
	ErrConflict = errors.New("конфликт — отправка уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrArchiveUnavailable — object storage недоступен (транзиентная ошибка).
	ErrArchiveUnavailable = errors.New("object storage недоступен")
	// ErrSDESUnavailable — система доставки SDES недоступна (транзиентная ошибка).
	ErrSDESUnavailable = errors.New("SDES недоступен")
)
