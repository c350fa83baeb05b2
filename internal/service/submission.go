// submission.go — оркестратор жизненного цикла отправки.
// Приём: конверт → object storage → запись в БД → уведомление SDES.
// Частичные сбои: конверт всегда убирается, архив без записи — сирота
// (допустимо), запись без уведомления остаётся в submitted (re-drive через retry).
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/docflow/submission-module/internal/domain/model"
	"github.com/arturkryukov/docflow/submission-module/internal/domain/status"
	"github.com/arturkryukov/docflow/submission-module/internal/envelope"
	"github.com/arturkryukov/docflow/submission-module/internal/repository"
	"github.com/arturkryukov/docflow/submission-module/internal/sdes"
)

// ObjectArchiver — гейтвей архивации конвертов в object storage.
type ObjectArchiver interface {
	Put(ctx context.Context, key string, body io.ReadSeeker) (*model.ObjectSummary, error)
}

// DeliveryNotifier — канал уведомления системы доставки SDES.
type DeliveryNotifier interface {
	Notify(ctx context.Context, notification sdes.FileReady) error
}

// SubmitRequest — провалидированный запрос на приём отправки.
// Валидация полей (callbackUrl, form, metadata) выполняется на уровне API
// до вызова сервиса.
type SubmitRequest struct {
	// ID — идентификатор отправки от вызывающей стороны (пустая строка — сгенерировать)
	ID string
	// CallbackURL — куда SDES сообщит итоговый статус доставки
	CallbackURL string
	// Form — содержимое PDF-формы
	Form io.Reader
	// Metadata — структурированные метаданные отправки
	Metadata model.SubmissionMetadata
}

// SubmissionService — оркестратор отправок.
type SubmissionService struct {
	repo            repository.SubmissionItemRepository
	archiver        ObjectArchiver
	notifier        DeliveryNotifier
	builder         *envelope.Builder
	informationType string
	logger          *slog.Logger
}

// NewSubmissionService создаёт оркестратор отправок.
func NewSubmissionService(
	repo repository.SubmissionItemRepository,
	archiver ObjectArchiver,
	notifier DeliveryNotifier,
	builder *envelope.Builder,
	informationType string,
	logger *slog.Logger,
) *SubmissionService {
	return &SubmissionService{
		repo:            repo,
		archiver:        archiver,
		notifier:        notifier,
		builder:         builder,
		informationType: informationType,
		logger:          logger.With(slog.String("component", "submission_service")),
	}
}

// Submit принимает отправку: собирает конверт, архивирует его,
// создаёт запись в статусе submitted и уведомляет SDES.
// Порядок строгий: сбой архивации — запись не создаётся, SDES не вызывается;
// сбой вставки — архивный объект остаётся сиротой; сбой уведомления —
// запись остаётся в submitted и ждёт retry.
func (s *SubmissionService) Submit(ctx context.Context, owner string, req SubmitRequest) (string, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	pkg, err := s.builder.Build(id, req.Form, req.Metadata)
	if err != nil {
		return "", fmt.Errorf("сборка конверта: %w", err)
	}
	// Scratch-область убирается всегда, в том числе при отмене контекста
	defer func() {
		if cerr := pkg.Close(); cerr != nil {
			s.logger.Warn("Ошибка очистки scratch-области",
				slog.String("id", id),
				slog.String("error", cerr.Error()),
			)
		}
	}()

	body, err := pkg.Open()
	if err != nil {
		return "", fmt.Errorf("открытие конверта: %w", err)
	}
	defer body.Close()

	filename := id + ".zip"
	summary, err := s.archiver.Put(ctx, owner+"/"+filename, body)
	if err != nil {
		return "", fmt.Errorf("%w: архивация конверта: %v", ErrArchiveUnavailable, err)
	}

	item := &model.SubmissionItem{
		ID:                id,
		Owner:             owner,
		CallbackURL:       req.CallbackURL,
		Status:            string(status.StatusSubmitted),
		ObjectSummary:     *summary,
		SdesCorrelationID: uuid.NewString(),
	}

	if err := s.repo.Insert(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateItem) {
			return "", fmt.Errorf("%w: отправка '%s' уже существует", ErrConflict, id)
		}
		return "", fmt.Errorf("создание записи отправки: %w", err)
	}

	s.logger.Info("Отправка принята",
		slog.String("owner", owner),
		slog.String("id", id),
		slog.String("location", summary.Location),
		slog.String("correlation_id", item.SdesCorrelationID),
	)

	if err := s.notifyFileReady(ctx, item, filename); err != nil {
		// Запись уже существует в submitted — уведомление повторит retry
		return "", err
	}

	return id, nil
}

// List возвращает краткие представления всех отправок владельца.
func (s *SubmissionService) List(ctx context.Context, owner string) ([]model.SubmissionSummary, error) {
	items, err := s.repo.List(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("получение списка отправок: %w", err)
	}

	summaries := make([]model.SubmissionSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, model.SubmissionSummary{
			ID:            item.ID,
			Status:        item.Status,
			FailureReason: item.FailureReason,
			LastUpdated:   item.LastUpdated.UTC().Format(time.RFC3339),
		})
	}
	return summaries, nil
}

// Retry повторно взводит отправку: failed → submitted, failureReason
// сбрасывается, SDES уведомляется заново. Архивация и вставка не повторяются —
// объект и корреляционный идентификатор неизменны.
// Записи нет или статус не failed — ErrNotFound.
func (s *SubmissionService) Retry(ctx context.Context, owner, id string) (*model.SubmissionItem, error) {
	item, err := s.repo.UpdateStatus(ctx, owner, id, status.StatusSubmitted, nil)
	if err != nil {
		if errors.Is(err, repository.ErrNothingToUpdate) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("повторное взведение отправки: %w", err)
	}

	s.logger.Info("Отправка взведена повторно",
		slog.String("owner", owner),
		slog.String("id", id),
		slog.String("correlation_id", item.SdesCorrelationID),
	)

	if err := s.notifyFileReady(ctx, item, id+".zip"); err != nil {
		// Переход уже зафиксирован — следующий retry повторит уведомление
		return nil, err
	}

	return item, nil
}

// UpdateDeliveryStatus применяет статус из callback системы доставки.
// Легальность перехода проверяет хранилище атомарно; при конкурентных
// callback и retry побеждает первый, второй получает ErrNotFound.
func (s *SubmissionService) UpdateDeliveryStatus(ctx context.Context, owner, id, rawStatus string, failureReason *string) (*model.SubmissionItem, error) {
	newStatus, err := status.Parse(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	// Переход failed → submitted взводит отправку заново и доступен
	// только через Retry. Callback доставки его не выполняет.
	if newStatus == status.StatusSubmitted {
		return nil, fmt.Errorf("%w: статус %s не принимается из callback доставки", ErrValidation, newStatus)
	}

	item, err := s.repo.UpdateStatus(ctx, owner, id, newStatus, failureReason)
	if err != nil {
		if errors.Is(err, repository.ErrNothingToUpdate) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("применение статуса доставки: %w", err)
	}

	s.logger.Info("Статус доставки применён",
		slog.String("owner", owner),
		slog.String("id", id),
		slog.String("status", item.Status),
	)

	return item, nil
}

// notifyFileReady отправляет уведомление fileready в SDES по данным записи.
func (s *SubmissionService) notifyFileReady(ctx context.Context, item *model.SubmissionItem, filename string) error {
	notification := sdes.FileReady{
		InformationType:   s.informationType,
		Filename:          filename,
		ChecksumAlgorithm: "md5",
		Checksum:          item.ObjectSummary.ContentMD5,
		FileSize:          item.ObjectSummary.ContentLength,
		Location:          item.ObjectSummary.Location,
		CorrelationID:     item.SdesCorrelationID,
	}

	if err := s.notifier.Notify(ctx, notification); err != nil {
		return fmt.Errorf("%w: уведомление fileready: %v", ErrSDESUnavailable, err)
	}
	return nil
}
