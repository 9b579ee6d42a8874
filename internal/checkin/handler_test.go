package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creative-contact/backend/internal/middleware"
	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/internal/registrations"
)

type fakeSearcher struct {
	got  registrations.SearchFilter
	list []models.EventRegistration
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, fl registrations.SearchFilter) ([]models.EventRegistration, error) {
	f.got = fl
	return f.list, f.err
}

type checkinCall struct {
	reg     models.CheckinSummary
	before  models.RegistrationStatus
	staffID uuid.UUID
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []checkinCall
}

func (f *fakeNotifier) CheckedIn(_ context.Context, reg models.CheckinSummary, before models.RegistrationStatus, staffID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, checkinCall{reg: reg, before: before, staffID: staffID})
}

type apiBody struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(h *Handler, staffID uuid.UUID) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, staffID)
		c.Next()
	})
	r.POST("/checkin/registrations/:id", h.CheckIn)
	r.POST("/checkin/scan", h.Scan)
	r.GET("/checkin/search", h.Search)
	return r
}

func do(t *testing.T, r http.Handler, method, target string, body any) (*httptest.ResponseRecorder, apiBody) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out apiBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestHandler_CheckIn(t *testing.T) {
	t.Parallel()

	t.Run("success notifies after commit", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		id := m.add(models.StatusConfirmed)
		staff := uuid.New()
		n := &fakeNotifier{}
		r := newRouter(NewHandler(newTestEngine(m), &fakeSearcher{}, n, nil), staff)

		w, body := do(t, r, http.MethodPost, "/checkin/registrations/"+id.String(), nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, body.Success)
		var got models.CheckinSummary
		require.NoError(t, json.Unmarshal(body.Data, &got))
		assert.Equal(t, id, got.ID)
		assert.Equal(t, models.StatusCheckedIn, got.Status)

		require.Len(t, n.calls, 1)
		assert.Equal(t, staff, n.calls[0].staffID)
		assert.Equal(t, models.StatusConfirmed, n.calls[0].before)
	})

	t.Run("unknown registration is 404", func(t *testing.T) {
		t.Parallel()
		n := &fakeNotifier{}
		r := newRouter(NewHandler(newTestEngine(newMemStore()), &fakeSearcher{}, n, nil), uuid.New())

		w, body := do(t, r, http.MethodPost, "/checkin/registrations/"+uuid.NewString(), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, body.Success)
		assert.Equal(t, string(CodeInvalidID), body.Code)
		assert.Equal(t, "Invalid slot ID, expected 1 but found 0", body.Error)
		assert.Empty(t, n.calls)
	})

	t.Run("malformed id is 404", func(t *testing.T) {
		t.Parallel()
		r := newRouter(NewHandler(newTestEngine(newMemStore()), &fakeSearcher{}, nil, nil), uuid.New())

		w, body := do(t, r, http.MethodPost, "/checkin/registrations/not-a-uuid", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, string(CodeInvalidID), body.Code)
	})

	t.Run("already checked in is 409", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		id := m.add(models.StatusCheckedIn)
		n := &fakeNotifier{}
		r := newRouter(NewHandler(newTestEngine(m), &fakeSearcher{}, n, nil), uuid.New())

		w, body := do(t, r, http.MethodPost, "/checkin/registrations/"+id.String(), nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, string(CodeInvalidStatus), body.Code)
		assert.Equal(t, "Invalid status: checked-in", body.Error)
		assert.Empty(t, n.calls)
	})

	t.Run("store failure is 500 without details", func(t *testing.T) {
		t.Parallel()
		m := newMemStore()
		id := m.add(models.StatusPending)
		m.auditErr = errors.New("pq: secret internal detail")
		r := newRouter(NewHandler(newTestEngine(m), &fakeSearcher{}, nil, nil), uuid.New())

		w, body := do(t, r, http.MethodPost, "/checkin/registrations/"+id.String(), nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, string(CodeTransactionFailed), body.Code)
		assert.NotContains(t, body.Error, "secret")
	})
}

func TestHandler_Scan(t *testing.T) {
	t.Parallel()
	m := newMemStore()
	id := m.add(models.StatusPending)
	r := newRouter(NewHandler(newTestEngine(m), &fakeSearcher{}, nil, nil), uuid.New())

	w, _ := do(t, r, http.MethodPost, "/checkin/scan", ScanRequest{QR: "nonsense"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := do(t, r, http.MethodPost, "/checkin/scan", ScanRequest{QR: QRPayload(id)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	assert.Equal(t, models.StatusCheckedIn, m.regs[id].Status)
}

func TestHandler_Search(t *testing.T) {
	t.Parallel()
	slot := uuid.New()
	s := &fakeSearcher{list: []models.EventRegistration{
		{ID: uuid.New(), SlotID: slot, Name: "Grace", Status: models.StatusConfirmed},
		{ID: uuid.New(), SlotID: slot, Name: "Grace H.", Status: models.StatusCheckedIn},
	}}
	r := newRouter(NewHandler(newTestEngine(newMemStore()), s, nil, nil), uuid.New())

	w, body := do(t, r, http.MethodGet, "/checkin/search?slot_id="+slot.String()+"&q=grace", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.got.SlotID)
	assert.Equal(t, slot, *s.got.SlotID)
	assert.Equal(t, "grace", s.got.Query)
	assert.Equal(t, registrations.DefaultSearchLimit, s.got.Limit)

	var data struct {
		Registrations []SearchHit `json:"registrations"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	require.Len(t, data.Registrations, 2)
	assert.True(t, data.Registrations[0].Eligible)
	assert.False(t, data.Registrations[1].Eligible)

	w, _ = do(t, r, http.MethodGet, "/checkin/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/checkin/search?q=x&status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeInvalidID))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeInvalidStatus))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeTransactionFailed))
}
