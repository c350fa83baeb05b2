package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/docflow/submission-module/internal/domain/model"
	"github.com/arturkryukov/docflow/submission-module/internal/domain/status"
)

// SubmissionItemRepository — хранилище записей об отправках.
// Единственный компонент, которому разрешено изменять записи:
// остальной код работает со снимками, полученными из List/GetByID.
type SubmissionItemRepository interface {
	// Insert создаёт запись отправки.
	// Возвращает ErrDuplicateItem, если пара (owner, id) уже существует.
	Insert(ctx context.Context, item *model.SubmissionItem) error
	// GetByID возвращает отправку по паре (owner, id).
	GetByID(ctx context.Context, owner, id string) (*model.SubmissionItem, error)
	// List возвращает все отправки владельца.
	// Порядок не специфицирован, но стабилен в пределах одного вызова.
	List(ctx context.Context, owner string) ([]*model.SubmissionItem, error)
	// UpdateStatus выполняет атомарный условный переход статуса.
	// Легальность перехода встроена в предикат UPDATE: запись меняется
	// только если её текущий статус входит в набор допустимых источников
	// для newStatus. Возвращает ErrNothingToUpdate, если записи нет или
	// переход недопустим — эти случаи неразличимы.
	// failureReason записывается только при переходе в failed, иначе
	// сбрасывается в NULL.
	UpdateStatus(ctx context.Context, owner, id string, newStatus status.Status, failureReason *string) (*model.SubmissionItem, error)
}

// submissionItemRepo — реализация SubmissionItemRepository.
type submissionItemRepo struct {
	db DBTX
}

// NewSubmissionItemRepository создаёт репозиторий отправок.
func NewSubmissionItemRepository(db DBTX) SubmissionItemRepository {
	return &submissionItemRepo{db: db}
}

// itemColumns — общий список колонок для SELECT/RETURNING.
const itemColumns = `owner, item_id, callback_url, status, failure_reason,
		object_location, object_content_length, object_content_md5, object_last_modified,
		sdes_correlation_id, created_at, updated_at`

func (r *submissionItemRepo) Insert(ctx context.Context, item *model.SubmissionItem) error {
	query := `
		INSERT INTO submission_items (owner, item_id, callback_url, status, failure_reason,
			object_location, object_content_length, object_content_md5, object_last_modified,
			sdes_correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		item.Owner, item.ID, item.CallbackURL, item.Status, item.FailureReason,
		item.ObjectSummary.Location, item.ObjectSummary.ContentLength,
		item.ObjectSummary.ContentMD5, item.ObjectSummary.LastModified,
		item.SdesCorrelationID,
	).Scan(&item.Created, &item.LastUpdated)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: owner=%s, id=%s", ErrDuplicateItem, item.Owner, item.ID)
		}
		return fmt.Errorf("ошибка вставки отправки: %w", err)
	}
	return nil
}

func (r *submissionItemRepo) GetByID(ctx context.Context, owner, id string) (*model.SubmissionItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM submission_items
		WHERE owner = $1 AND item_id = $2`

	item, err := scanItem(r.db.QueryRow(ctx, query, owner, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения отправки: %w", err)
	}
	return item, nil
}

func (r *submissionItemRepo) List(ctx context.Context, owner string) ([]*model.SubmissionItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM submission_items
		WHERE owner = $1
		ORDER BY created_at, item_id`

	rows, err := r.db.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка отправок: %w", err)
	}
	defer rows.Close()

	var result []*model.SubmissionItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования отправки: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// UpdateStatus — единственная точка изменения статуса.
// Конкурентные вызовы сериализуются на уровне строки PostgreSQL:
// победитель фиксирует переход, проигравший не находит строку в допустимом
// исходном статусе и получает ErrNothingToUpdate.
func (r *submissionItemRepo) UpdateStatus(ctx context.Context, owner, id string, newStatus status.Status, failureReason *string) (*model.SubmissionItem, error) {
	// failure_reason живёт только вместе со статусом failed
	if newStatus != status.StatusFailed {
		failureReason = nil
	}

	sources := status.SourcesFor(newStatus)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: в статус %s нет допустимых переходов", ErrNothingToUpdate, newStatus)
	}
	fromStatuses := make([]string, 0, len(sources))
	for _, s := range sources {
		fromStatuses = append(fromStatuses, string(s))
	}

	// updated_at строго растёт даже при совпадении меток времени
	query := `
		UPDATE submission_items
		SET status = $3, failure_reason = $4,
			updated_at = GREATEST(now(), updated_at + interval '1 microsecond')
		WHERE owner = $1 AND item_id = $2 AND status = ANY($5)
		RETURNING ` + itemColumns

	item, err := scanItem(r.db.QueryRow(ctx, query, owner, id, string(newStatus), failureReason, fromStatuses))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("%w: owner=%s, id=%s", ErrNothingToUpdate, owner, id)
		}
		return nil, fmt.Errorf("ошибка обновления статуса отправки: %w", err)
	}
	return item, nil
}

// scanItem читает SubmissionItem из строки результата.
func scanItem(row pgx.Row) (*model.SubmissionItem, error) {
	item := &model.SubmissionItem{}
	err := row.Scan(
		&item.Owner, &item.ID, &item.CallbackURL, &item.Status, &item.FailureReason,
		&item.ObjectSummary.Location, &item.ObjectSummary.ContentLength,
		&item.ObjectSummary.ContentMD5, &item.ObjectSummary.LastModified,
		&item.SdesCorrelationID, &item.Created, &item.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}
