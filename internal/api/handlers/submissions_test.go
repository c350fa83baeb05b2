package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/docflow/submission-module/internal/api/middleware"
	"github.com/arturkryukov/docflow/submission-module/internal/domain/model"
	"github.com/arturkryukov/docflow/submission-module/internal/domain/status"
	"github.com/arturkryukov/docflow/submission-module/internal/envelope"
	"github.com/arturkryukov/docflow/submission-module/internal/repository"
	"github.com/arturkryukov/docflow/submission-module/internal/sdes"
	"github.com/arturkryukov/docflow/submission-module/internal/service"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRepo — in-memory реализация SubmissionItemRepository.
type fakeRepo struct {
	items map[string]*model.SubmissionItem
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: make(map[string]*model.SubmissionItem)}
}

func (r *fakeRepo) Insert(ctx context.Context, item *model.SubmissionItem) error {
	key := item.Owner + "/" + item.ID
	if _, exists := r.items[key]; exists {
		return repository.ErrDuplicateItem
	}
	now := time.Now().UTC()
	item.Created = now
	item.LastUpdated = now
	copied := *item
	r.items[key] = &copied
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, owner, id string) (*model.SubmissionItem, error) {
	item, ok := r.items[owner+"/"+id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (r *fakeRepo) List(ctx context.Context, owner string) ([]*model.SubmissionItem, error) {
	var result []*model.SubmissionItem
	for _, item := range r.items {
		if item.Owner == owner {
			copied := *item
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, owner, id string, newStatus status.Status, failureReason *string) (*model.SubmissionItem, error) {
	if newStatus != status.StatusFailed {
		failureReason = nil
	}
	item, ok := r.items[owner+"/"+id]
	if !ok || !status.CanTransition(status.Status(item.Status), newStatus) {
		return nil, repository.ErrNothingToUpdate
	}
	item.Status = string(newStatus)
	item.FailureReason = failureReason
	item.LastUpdated = item.LastUpdated.Add(time.Microsecond)
	copied := *item
	return &copied, nil
}

// fakeArchiver считает размер и возвращает фиксированный объект.
type fakeArchiver struct {
	err error
}

func (a *fakeArchiver) Put(ctx context.Context, key string, body io.ReadSeeker) (*model.ObjectSummary, error) {
	if a.err != nil {
		return nil, a.err
	}
	size, _ := io.Copy(io.Discard, body)
	return &model.ObjectSummary{
		Location:      "s3://docflow/" + key,
		ContentLength: size,
		ContentMD5:    "1B2M2Y8AsgTpgAmY7PhCfg==",
		LastModified:  time.Now().UTC(),
	}, nil
}

// fakeNotifier записывает отправленные уведомления.
type fakeNotifier struct {
	err           error
	notifications []sdes.FileReady
}

func (n *fakeNotifier) Notify(ctx context.Context, notification sdes.FileReady) error {
	if n.err != nil {
		return n.err
	}
	n.notifications = append(n.notifications, notification)
	return nil
}

// newTestHandler собирает APIHandler на настоящем сервисе и фейках.
func newTestHandler(t *testing.T, repo *fakeRepo, notifier *fakeNotifier) *APIHandler {
	t.Helper()
	builder, err := envelope.NewBuilder(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := service.NewSubmissionService(repo, &fakeArchiver{}, notifier, builder, "dms-submission", testLogger())
	return NewAPIHandler(nil, svc, 10<<20, testLogger())
}

// saContext создаёт контекст с claims Service Account.
func saContext(owner string, scopes ...string) context.Context {
	claims := &middleware.AuthClaims{
		SubjectType: middleware.SubjectTypeSA,
		ClientID:    "sa_portal",
		Owner:       owner,
		Scopes:      scopes,
	}
	return context.WithValue(context.Background(), middleware.ContextKeyClaims, claims)
}

// buildMultipart собирает multipart-тело отправки.
// fields — текстовые части, withForm — добавить часть form с PDF.
func buildMultipart(t *testing.T, fields map[string]string, withForm bool) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if withForm {
		part, err := mw.CreateFormFile("form", "form.pdf")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write([]byte("%PDF-1.7 тестовая форма")); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return body, mw.FormDataContentType()
}

// validFields возвращает полный набор валидных текстовых частей.
func validFields() map[string]string {
	return map[string]string{
		"callbackUrl":                 "https://caller.test/callback",
		"metadata.source":             "online-portal",
		"metadata.formId":             "SA100",
		"metadata.customerId":         "cust-42",
		"metadata.classificationType": "self-assessment",
		"metadata.businessArea":       "PSA",
		"metadata.timeOfReceipt":      "2026-03-14T10:30:00Z",
	}
}

// chiRequest создаёт запрос с URL-параметрами chi.
func chiRequest(t *testing.T, method, target string, body io.Reader, ctx context.Context, params map[string]string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body).WithContext(ctx)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// TestSubmit_Accepted — успешный приём отправки.
func TestSubmit_Accepted(t *testing.T) {
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	h := newTestHandler(t, repo, notifier)

	body, contentType := buildMultipart(t, validFields(), true)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body).
		WithContext(saContext("owner-1", "submissions:write"))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидался статус 202, получен %d, тело: %s", rec.Code, rec.Body.String())
	}

	var resp submitResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" {
		t.Fatal("ожидался непустой id в ответе")
	}

	item, err := repo.GetByID(context.Background(), "owner-1", resp.ID)
	if err != nil {
		t.Fatalf("запись отправки не найдена: %v", err)
	}
	if item.Status != string(status.StatusSubmitted) {
		t.Errorf("ожидался статус submitted, получен %s", item.Status)
	}
	if len(notifier.notifications) != 1 {
		t.Errorf("ожидалось одно уведомление SDES, получено %d", len(notifier.notifications))
	}
}

// TestSubmit_ValidationAccumulates — отсутствие callbackUrl и form
// даёт обе ошибки в details, не только первую.
func TestSubmit_ValidationAccumulates(t *testing.T) {
	h := newTestHandler(t, newFakeRepo(), &fakeNotifier{})

	fields := validFields()
	delete(fields, "callbackUrl")
	body, contentType := buildMultipart(t, fields, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body).
		WithContext(saContext("owner-1", "submissions:write"))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидался статус 400, получен %d", rec.Code)
	}

	var resp struct {
		Error struct {
			Code    string   `json:"code"`
			Details []string `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("ожидался код VALIDATION_ERROR, получен %s", resp.Error.Code)
	}

	wantDetails := []string{
		"callbackUrl: This field is required",
		"form: This field is required",
	}
	for _, want := range wantDetails {
		found := false
		for _, d := range resp.Error.Details {
			if d == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("в details нет %q: %v", want, resp.Error.Details)
		}
	}
}

// TestSubmit_RelativeCallbackURL — относительный callbackUrl отклоняется.
func TestSubmit_RelativeCallbackURL(t *testing.T) {
	h := newTestHandler(t, newFakeRepo(), &fakeNotifier{})

	fields := validFields()
	fields["callbackUrl"] = "/callback"
	body, contentType := buildMultipart(t, fields, true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body).
		WithContext(saContext("owner-1", "submissions:write"))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидался статус 400, получен %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "callbackUrl: Must be an absolute http(s) URL") {
		t.Errorf("ожидалась ошибка абсолютного URL, тело: %s", rec.Body.String())
	}
}

// TestSubmit_Duplicate — повторный id даёт 409.
func TestSubmit_Duplicate(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo, &fakeNotifier{})

	fields := validFields()
	fields["id"] = "dup-1"

	for i, wantStatus := range []int{http.StatusAccepted, http.StatusConflict} {
		body, contentType := buildMultipart(t, fields, true)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body).
			WithContext(saContext("owner-1", "submissions:write"))
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		h.Submit(rec, req)

		if rec.Code != wantStatus {
			t.Fatalf("запрос %d: ожидался статус %d, получен %d, тело: %s", i, wantStatus, rec.Code, rec.Body.String())
		}
	}
}

// TestSubmit_NoOwner — SA без привязки owner получает 403.
func TestSubmit_NoOwner(t *testing.T) {
	h := newTestHandler(t, newFakeRepo(), &fakeNotifier{})

	body, contentType := buildMultipart(t, validFields(), true)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body).
		WithContext(saContext("", "submissions:write"))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Submit(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался статус 403, получен %d", rec.Code)
	}
}

// TestListSubmissions — список отправок владельца.
func TestListSubmissions(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo, &fakeNotifier{})

	reason := "timeout"
	for _, item := range []*model.SubmissionItem{
		{ID: "l-1", Owner: "owner-1", Status: string(status.StatusCompleted), SdesCorrelationID: "c1"},
		{ID: "l-2", Owner: "owner-1", Status: string(status.StatusFailed), FailureReason: &reason, SdesCorrelationID: "c2"},
	} {
		if err := repo.Insert(context.Background(), item); err != nil {
			t.Fatal(err)
		}
	}

	req := chiRequest(t, http.MethodGet, "/api/v1/submissions/owner-1", nil,
		saContext("owner-1"), map[string]string{"owner": "owner-1"})
	rec := httptest.NewRecorder()

	h.ListSubmissions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}

	var summaries []model.SubmissionSummary
	if err := json.NewDecoder(rec.Body).Decode(&summaries); err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("ожидалось 2 отправки, получено %d", len(summaries))
	}
}

// TestRetrySubmission — retry из failed даёт 202 и повторное уведомление.
func TestRetrySubmission(t *testing.T) {
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	h := newTestHandler(t, repo, notifier)

	reason := "virus check failed"
	if err := repo.Insert(context.Background(), &model.SubmissionItem{
		ID: "r-1", Owner: "owner-1",
		Status:            string(status.StatusFailed),
		FailureReason:     &reason,
		SdesCorrelationID: "corr-1",
		ObjectSummary: model.ObjectSummary{
			Location:      "s3://docflow/owner-1/r-1.zip",
			ContentLength: 512,
			ContentMD5:    "1B2M2Y8AsgTpgAmY7PhCfg==",
			LastModified:  time.Now().UTC(),
		},
	}); err != nil {
		t.Fatal(err)
	}

	req := chiRequest(t, http.MethodPost, "/api/v1/submissions/owner-1/r-1/retry", nil,
		saContext("owner-1"), map[string]string{"owner": "owner-1", "id": "r-1"})
	rec := httptest.NewRecorder()

	h.RetrySubmission(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидался статус 202, получен %d, тело: %s", rec.Code, rec.Body.String())
	}

	var resp itemResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != string(status.StatusSubmitted) {
		t.Errorf("ожидался статус submitted, получен %s", resp.Status)
	}
	if resp.FailureReason != nil {
		t.Error("ожидался сброшенный failureReason")
	}
	if len(notifier.notifications) != 1 || notifier.notifications[0].CorrelationID != "corr-1" {
		t.Errorf("ожидалось повторное уведомление с correlationId=corr-1, получено %v", notifier.notifications)
	}
}

// TestRetrySubmission_NotFound — retry неизвестной отправки даёт 404.
func TestRetrySubmission_NotFound(t *testing.T) {
	h := newTestHandler(t, newFakeRepo(), &fakeNotifier{})

	req := chiRequest(t, http.MethodPost, "/api/v1/submissions/owner-1/missing/retry", nil,
		saContext("owner-1"), map[string]string{"owner": "owner-1", "id": "missing"})
	rec := httptest.NewRecorder()

	h.RetrySubmission(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}
}

// TestUpdateSubmissionStatus — применение статуса доставки.
func TestUpdateSubmissionStatus(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo, &fakeNotifier{})

	if err := repo.Insert(context.Background(), &model.SubmissionItem{
		ID: "c-1", Owner: "owner-1", Status: string(status.StatusSubmitted), SdesCorrelationID: "corr",
	}); err != nil {
		t.Fatal(err)
	}

	payload := `{"status":"forwarded"}`
	req := chiRequest(t, http.MethodPut, "/api/v1/submissions/owner-1/c-1/status",
		strings.NewReader(payload),
		saContext("owner-1", "submissions:callback"),
		map[string]string{"owner": "owner-1", "id": "c-1"})
	rec := httptest.NewRecorder()

	h.UpdateSubmissionStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}

	var resp itemResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != string(status.StatusForwarded) {
		t.Errorf("ожидался статус forwarded, получен %s", resp.Status)
	}
}

// TestUpdateSubmissionStatus_IllegalTransition — 404 при недопустимом переходе.
func TestUpdateSubmissionStatus_IllegalTransition(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo, &fakeNotifier{})

	if err := repo.Insert(context.Background(), &model.SubmissionItem{
		ID: "c-2", Owner: "owner-1", Status: string(status.StatusCompleted), SdesCorrelationID: "corr",
	}); err != nil {
		t.Fatal(err)
	}

	payload := `{"status":"failed","failureReason":"late rejection"}`
	req := chiRequest(t, http.MethodPut, "/api/v1/submissions/owner-1/c-2/status",
		strings.NewReader(payload),
		saContext("owner-1", "submissions:callback"),
		map[string]string{"owner": "owner-1", "id": "c-2"})
	rec := httptest.NewRecorder()

	h.UpdateSubmissionStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}
}

// TestUpdateSubmissionStatus_UnknownStatus — 400 при неизвестном статусе.
func TestUpdateSubmissionStatus_UnknownStatus(t *testing.T) {
	h := newTestHandler(t, newFakeRepo(), &fakeNotifier{})

	payload := `{"status":"delivered"}`
	req := chiRequest(t, http.MethodPut, "/api/v1/submissions/owner-1/c-1/status",
		strings.NewReader(payload),
		saContext("owner-1", "submissions:callback"),
		map[string]string{"owner": "owner-1", "id": "c-1"})
	rec := httptest.NewRecorder()

	h.UpdateSubmissionStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ожидался статус 400, получен %d", rec.Code)
	}
}

// TestUpdateSubmissionStatus_SubmittedRejected — 400 при попытке взвести
// отправку через callback: переход в submitted выполняет только retry.
func TestUpdateSubmissionStatus_SubmittedRejected(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(t, repo, &fakeNotifier{})

	reason := "rejected downstream"
	if err := repo.Insert(context.Background(), &model.SubmissionItem{
		ID: "c-2", Owner: "owner-1", Status: string(status.StatusFailed),
		FailureReason: &reason, SdesCorrelationID: "corr",
	}); err != nil {
		t.Fatal(err)
	}

	payload := `{"status":"submitted"}`
	req := chiRequest(t, http.MethodPut, "/api/v1/submissions/owner-1/c-2/status",
		strings.NewReader(payload),
		saContext("owner-1", "submissions:callback"),
		map[string]string{"owner": "owner-1", "id": "c-2"})
	rec := httptest.NewRecorder()

	h.UpdateSubmissionStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ожидался статус 400, получен %d", rec.Code)
	}
	item, _ := repo.GetByID(context.Background(), "owner-1", "c-2")
	if item.Status != string(status.StatusFailed) || item.FailureReason == nil {
		t.Errorf("запись не должна измениться: статус %s", item.Status)
	}
}
