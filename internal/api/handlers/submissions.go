// submissions.go — обработчики /api/v1/submissions endpoints.
// Приём отправок (multipart), административный список, retry,
// callback статуса доставки от SDES.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/docflow/submission-module/internal/api/errors"
	"github.com/arturkryukov/docflow/submission-module/internal/api/middleware"
	"github.com/arturkryukov/docflow/submission-module/internal/domain/model"
	"github.com/arturkryukov/docflow/submission-module/internal/service"
)

// submitResponse — ответ на успешный приём отправки.
type submitResponse struct {
	ID string `json:"id"`
}

// itemResponse — полное представление отправки (retry, callback).
type itemResponse struct {
	ID            string              `json:"id"`
	Owner         string              `json:"owner"`
	CallbackURL   string              `json:"callbackUrl"`
	Status        string              `json:"status"`
	FailureReason *string             `json:"failureReason,omitempty"`
	ObjectSummary objectSummaryResult `json:"objectSummary"`
	CorrelationID string              `json:"sdesCorrelationId"`
	Created       string              `json:"created"`
	LastUpdated   string              `json:"lastUpdated"`
}

// objectSummaryResult — описание архивированного объекта в ответе.
type objectSummaryResult struct {
	Location      string `json:"location"`
	ContentLength int64  `json:"contentLength"`
	ContentMD5    string `json:"contentMd5"`
	LastModified  string `json:"lastModified"`
}

// mapItem конвертирует доменную модель в представление API.
func mapItem(item *model.SubmissionItem) itemResponse {
	return itemResponse{
		ID:            item.ID,
		Owner:         item.Owner,
		CallbackURL:   item.CallbackURL,
		Status:        item.Status,
		FailureReason: item.FailureReason,
		ObjectSummary: objectSummaryResult{
			Location:      item.ObjectSummary.Location,
			ContentLength: item.ObjectSummary.ContentLength,
			ContentMD5:    item.ObjectSummary.ContentMD5,
			LastModified:  item.ObjectSummary.LastModified.UTC().Format(time.RFC3339),
		},
		CorrelationID: item.SdesCorrelationID,
		Created:       item.Created.UTC().Format(time.RFC3339),
		LastUpdated:   item.LastUpdated.UTC().Format(time.RFC3339),
	}
}

// Submit — POST /api/v1/submissions.
// Приём отправки: multipart с PDF-формой и метаданными.
// Доступ: SA с scope submissions:write, owner определяется привязкой SA.
// Валидация накапливает ВСЕ нарушения, не останавливаясь на первом.
func (h *APIHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}
	if claims.Owner == "" {
		apierrors.Forbidden(w, "Service Account без привязки к owner")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		apierrors.ValidationError(w, "Некорректный multipart-запрос: "+err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	var details []string

	callbackURL := r.FormValue("callbackUrl")
	if callbackURL == "" {
		details = append(details, "callbackUrl: This field is required")
	} else if !isAbsoluteHTTPURL(callbackURL) {
		details = append(details, "callbackUrl: Must be an absolute http(s) URL")
	}

	meta := model.SubmissionMetadata{
		Source:             r.FormValue("metadata.source"),
		FormID:             r.FormValue("metadata.formId"),
		CustomerID:         r.FormValue("metadata.customerId"),
		ClassificationType: r.FormValue("metadata.classificationType"),
		BusinessArea:       r.FormValue("metadata.businessArea"),
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"metadata.source", meta.Source},
		{"metadata.formId", meta.FormID},
		{"metadata.customerId", meta.CustomerID},
		{"metadata.classificationType", meta.ClassificationType},
		{"metadata.businessArea", meta.BusinessArea},
	} {
		if field.value == "" {
			details = append(details, field.name+": This field is required")
		}
	}

	// timeOfReceipt опционален, при отсутствии — время приёма этим модулем
	meta.TimeOfReceipt = time.Now().UTC()
	if raw := r.FormValue("metadata.timeOfReceipt"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			details = append(details, "metadata.timeOfReceipt: Invalid RFC3339 timestamp")
		} else {
			meta.TimeOfReceipt = parsed.UTC()
		}
	}

	form, _, err := r.FormFile("form")
	if err != nil {
		details = append(details, "form: This field is required")
	} else {
		defer form.Close()
	}

	if len(details) > 0 {
		apierrors.ValidationErrors(w, details)
		return
	}

	id, err := h.submissions.Submit(r.Context(), claims.Owner, service.SubmitRequest{
		ID:          r.FormValue("id"),
		CallbackURL: callbackURL,
		Form:        form,
		Metadata:    meta,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConflict):
			apierrors.Conflict(w, err.Error())
		case errors.Is(err, service.ErrArchiveUnavailable):
			h.logger.Error("Object storage недоступен", "owner", claims.Owner, "error", err)
			apierrors.ArchiveUnavailable(w, "Object storage недоступен")
		case errors.Is(err, service.ErrSDESUnavailable):
			h.logger.Error("SDES недоступен", "owner", claims.Owner, "error", err)
			apierrors.SDESUnavailable(w, "SDES недоступен")
		default:
			h.logger.Error("Ошибка приёма отправки", "owner", claims.Owner, "error", err)
			apierrors.InternalError(w, "Ошибка приёма отправки")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{ID: id})
}

// ListSubmissions — GET /api/v1/submissions/{owner}.
// Возвращает краткие представления всех отправок владельца.
// Доступ: capability READ (admin, readonly или SA своего owner).
func (h *APIHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	summaries, err := h.submissions.List(r.Context(), owner)
	if err != nil {
		h.logger.Error("Ошибка получения списка отправок", "owner", owner, "error", err)
		apierrors.InternalError(w, "Ошибка получения списка отправок")
		return
	}

	writeJSON(w, http.StatusOK, summaries)
}

// RetrySubmission — POST /api/v1/submissions/{owner}/{id}/retry.
// Повторно взводит отправку из failed и заново уведомляет SDES.
// Доступ: capability WRITE (admin или SA своего owner).
func (h *APIHandler) RetrySubmission(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	id := chi.URLParam(r, "id")

	item, err := h.submissions.Retry(r.Context(), owner, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Отправка не найдена или retry недопустим")
		case errors.Is(err, service.ErrSDESUnavailable):
			h.logger.Error("SDES недоступен при retry", "owner", owner, "id", id, "error", err)
			apierrors.SDESUnavailable(w, "SDES недоступен")
		default:
			h.logger.Error("Ошибка retry отправки", "owner", owner, "id", id, "error", err)
			apierrors.InternalError(w, "Ошибка retry отправки")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, mapItem(item))
}

// statusUpdateRequest — тело callback статуса доставки от SDES.
type statusUpdateRequest struct {
	Status        string  `json:"status"`
	FailureReason *string `json:"failureReason,omitempty"`
}

// UpdateSubmissionStatus — PUT /api/v1/submissions/{owner}/{id}/status.
// Применяет статус доставки из callback SDES.
// Доступ: SA с scope submissions:callback.
func (h *APIHandler) UpdateSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	id := chi.URLParam(r, "id")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Status == "" {
		apierrors.ValidationErrors(w, []string{"status: This field is required"})
		return
	}

	item, err := h.submissions.UpdateDeliveryStatus(r.Context(), owner, id, req.Status, req.FailureReason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Отправка не найдена или переход недопустим")
		default:
			h.logger.Error("Ошибка применения статуса доставки", "owner", owner, "id", id, "error", err)
			apierrors.InternalError(w, "Ошибка применения статуса доставки")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapItem(item))
}

// isAbsoluteHTTPURL проверяет, что строка — абсолютный http(s) URL.
func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
