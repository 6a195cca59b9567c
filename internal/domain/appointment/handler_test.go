package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/holisticconnect/holisticconnect/internal/platform/auth"
	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func newSessionContext(e *echo.Echo, method, target, body string, uid uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid != uuid.Nil {
		c.Set(auth.EchoUIDKey, uid.String())
		c.Set(auth.EchoRoleKey, auth.RoleClient)
	}
	return c, rec
}

func httpStatusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func mustBook(t *testing.T, svc *Service, clientID, practitionerID uuid.UUID) *Appointment {
	t.Helper()
	start := time.Now().UTC().Add(24 * time.Hour)
	a := &Appointment{
		ClientID:       clientID,
		PractitionerID: practitionerID,
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		Status:         StatusConfirmed,
	}
	if err := svc.Create(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

func decodeAppointment(t *testing.T, rec *httptest.ResponseRecorder) Appointment {
	t.Helper()
	var a Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return a
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) (pagination.Response, []Appointment) {
	t.Helper()
	var resp pagination.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("remarshal data: %v", err)
	}
	var items []Appointment
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	return resp, items
}

// -- Create --

func TestHandler_Create(t *testing.T) {
	h, _, e := newTestHandler()
	clientID := uuid.New()
	start := time.Now().UTC().Add(24 * time.Hour)

	body, _ := json.Marshal(map[string]interface{}{
		"practitioner_id": uuid.New(),
		"start_time":      start,
		"end_time":        start.Add(time.Hour),
	})
	c, rec := newSessionContext(e, http.MethodPost, "/", string(body), clientID)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	got := decodeAppointment(t, rec)
	if got.ClientID != clientID {
		t.Error("expected the session user to be booked as the client")
	}
	if got.Status != StatusPending {
		t.Errorf("expected status %q, got %q", StatusPending, got.Status)
	}
}

func TestHandler_Create_NotParticipant(t *testing.T) {
	h, _, e := newTestHandler()
	start := time.Now().UTC().Add(24 * time.Hour)

	body, _ := json.Marshal(map[string]interface{}{
		"client_id":       uuid.New(),
		"practitioner_id": uuid.New(),
		"start_time":      start,
		"end_time":        start.Add(time.Hour),
	})
	c, _ := newSessionContext(e, http.MethodPost, "/", string(body), uuid.New())
	err := h.Create(c)
	if httpStatusOf(t, err) != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

// -- Get --

func TestHandler_Get_HidesPractitionerNotesFromClient(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustBook(t, svc, uuid.New(), uuid.New())

	notes := "responds well to breathing work"
	if _, err := svc.Update(context.Background(), a.ID, UpdateRequest{PractitionerNotes: &notes}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, rec := newSessionContext(e, http.MethodGet, "/", "", a.ClientID)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := decodeAppointment(t, rec)
	if got.PractitionerNotes != nil {
		t.Error("expected practitioner notes to be hidden from the client")
	}
}

func TestHandler_Get_PractitionerSeesOwnNotes(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustBook(t, svc, uuid.New(), uuid.New())

	notes := "responds well to breathing work"
	if _, err := svc.Update(context.Background(), a.ID, UpdateRequest{PractitionerNotes: &notes}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, rec := newSessionContext(e, http.MethodGet, "/", "", a.PractitionerID)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := decodeAppointment(t, rec)
	if got.PractitionerNotes == nil || *got.PractitionerNotes != notes {
		t.Error("expected the practitioner to see their own notes")
	}
}

func TestHandler_Get_NotParticipant(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustBook(t, svc, uuid.New(), uuid.New())

	c, _ := newSessionContext(e, http.MethodGet, "/", "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	err := h.Get(c)
	if httpStatusOf(t, err) != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, _, e := newTestHandler()

	c, _ := newSessionContext(e, http.MethodGet, "/", "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	err := h.Get(c)
	if httpStatusOf(t, err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()

	c, _ := newSessionContext(e, http.MethodGet, "/", "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	err := h.Get(c)
	if httpStatusOf(t, err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

// -- Update --

func TestHandler_Update(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustBook(t, svc, uuid.New(), uuid.New())

	c, rec := newSessionContext(e, http.MethodPut, "/", `{"notes":"running late"}`, a.ClientID)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := decodeAppointment(t, rec)
	if got.Notes == nil || *got.Notes != "running late" {
		t.Errorf("expected notes to be applied, got %v", got.Notes)
	}
}

func TestHandler_Update_ClientCannotWritePractitionerNotes(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustBook(t, svc, uuid.New(), uuid.New())

	c, _ := newSessionContext(e, http.MethodPut, "/", `{"practitioner_notes":"mine now"}`, a.ClientID)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	err := h.Update(c)
	if httpStatusOf(t, err) != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestHandler_Update_NotParticipant(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustBook(t, svc, uuid.New(), uuid.New())

	c, _ := newSessionContext(e, http.MethodPut, "/", `{"notes":"x"}`, uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	err := h.Update(c)
	if httpStatusOf(t, err) != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

// -- Cancel --

func TestHandler_Cancel_AsClient(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustBook(t, svc, uuid.New(), uuid.New())

	c, rec := newSessionContext(e, http.MethodPost, "/", "", a.ClientID)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.Cancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := decodeAppointment(t, rec)
	if got.Status != StatusCancelled {
		t.Errorf("expected status %q, got %q", StatusCancelled, got.Status)
	}
	if got.CancelledBy == nil || *got.CancelledBy != ActorClient {
		t.Errorf("expected cancelled_by %q, got %v", ActorClient, got.CancelledBy)
	}
}

func TestHandler_Cancel_AsPractitioner(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustBook(t, svc, uuid.New(), uuid.New())

	c, rec := newSessionContext(e, http.MethodPost, "/", "", a.PractitionerID)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.Cancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := decodeAppointment(t, rec)
	if got.CancelledBy == nil || *got.CancelledBy != ActorPractitioner {
		t.Errorf("expected cancelled_by %q, got %v", ActorPractitioner, got.CancelledBy)
	}
}

func TestHandler_Cancel_NotParticipant(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustBook(t, svc, uuid.New(), uuid.New())

	c, _ := newSessionContext(e, http.MethodPost, "/", "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	err := h.Cancel(c)
	if httpStatusOf(t, err) != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

// -- Listings --

func TestHandler_ListForClient_ScopedToSession(t *testing.T) {
	h, svc, e := newTestHandler()
	clientID := uuid.New()
	mustBook(t, svc, clientID, uuid.New())
	mustBook(t, svc, clientID, uuid.New())
	mustBook(t, svc, uuid.New(), uuid.New())

	c, rec := newSessionContext(e, http.MethodGet, "/", "", clientID)
	if err := h.ListForClient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, items := decodePage(t, rec)
	if len(items) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(items))
	}
	for _, a := range items {
		if a.ClientID != clientID {
			t.Error("expected every row to belong to the session client")
		}
	}
}

func TestHandler_ListForPractitioner_StatusFilter(t *testing.T) {
	h, svc, e := newTestHandler()
	practitionerID := uuid.New()
	confirmed := mustBook(t, svc, uuid.New(), practitionerID)
	pending := mustBook(t, svc, uuid.New(), practitionerID)
	status := StatusPending
	if _, err := svc.Update(context.Background(), pending.ID, UpdateRequest{Status: &status}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, rec := newSessionContext(e, http.MethodGet, "/?status=pending", "", practitionerID)
	if err := h.ListForPractitioner(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, items := decodePage(t, rec)
	if len(items) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(items))
	}
	if items[0].ID != pending.ID || items[0].ID == confirmed.ID {
		t.Error("expected only the pending appointment")
	}
}

func TestHandler_List_InvalidStatus(t *testing.T) {
	h, _, e := newTestHandler()

	c, _ := newSessionContext(e, http.MethodGet, "/?status=tentative", "", uuid.New())
	err := h.ListForClient(c)
	if httpStatusOf(t, err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_List_TimeWindow(t *testing.T) {
	h, svc, e := newTestHandler()
	clientID := uuid.New()
	early := mustBook(t, svc, clientID, uuid.New())
	late := mustBook(t, svc, clientID, uuid.New())

	window := time.Now().UTC().Add(48 * time.Hour)
	start := window.Add(time.Hour)
	if _, err := svc.Update(context.Background(), late.ID, UpdateRequest{StartTime: &start, EndTime: ptrTime(start.Add(time.Hour))}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, rec := newSessionContext(e, http.MethodGet, "/?to="+window.Format(time.RFC3339), "", clientID)
	if err := h.ListForClient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, items := decodePage(t, rec)
	if len(items) != 1 || items[0].ID != early.ID {
		t.Fatalf("expected only the appointment inside the window, got %d", len(items))
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
