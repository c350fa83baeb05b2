// Пакет model — доменные модели Submission Module.
package model

import "time"

// ObjectSummary — неизменяемое описание архивированного объекта в object storage.
// Записывается один раз при архивации и больше никогда не меняется.
type ObjectSummary struct {
	// Location — URI объекта в хранилище (s3://bucket/key)
	Location string
	// ContentLength — размер объекта в байтах
	ContentLength int64
	// ContentMD5 — MD5 содержимого в base64 (соглашение S3)
	ContentMD5 string
	// LastModified — время записи объекта в хранилище
	LastModified time.Time
}

// SubmissionItem — запись об одной отправке документа.
// Хранится в таблице submission_items, ключ — пара (owner, item_id).
type SubmissionItem struct {
	// ID — идентификатор отправки, уникальный в пределах owner
	ID string
	// Owner — идентификатор владельца (tenant), граница авторизации
	Owner string
	// CallbackURL — куда downstream-система сообщит итоговый статус доставки.
	// Этим ядром не вызывается — пассивные метаданные для SDES.
	CallbackURL string
	// Status — текущий статус (см. пакет domain/status)
	Status string
	// ObjectSummary — описание архивированного конверта
	ObjectSummary ObjectSummary
	// FailureReason — причина отказа, заполнена только при статусе failed
	FailureReason *string
	// SdesCorrelationID — идентификатор корреляции с уведомлением SDES.
	// Генерируется один раз при создании записи, не меняется.
	SdesCorrelationID string
	// Created — время создания записи
	Created time.Time
	// LastUpdated — время последнего изменения статуса
	LastUpdated time.Time
}

// SubmissionSummary — краткое представление отправки для административного списка.
// Производная модель, не хранится.
type SubmissionSummary struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	FailureReason *string `json:"failureReason,omitempty"`
	LastUpdated   string  `json:"lastUpdated"`
}

// SubmissionMetadata — структурированные метаданные отправки,
// попадают в manifest (metadata.xml) внутри конверта.
type SubmissionMetadata struct {
	// Source — система-источник документа
	Source string
	// TimeOfReceipt — время приёма документа источником
	TimeOfReceipt time.Time
	// FormID — идентификатор формы
	FormID string
	// CustomerID — идентификатор клиента
	CustomerID string
	// ClassificationType — классификация для маршрутизации downstream
	ClassificationType string
	// BusinessArea — бизнес-направление
	BusinessArea string
}
