package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/landing-api/internal/models"
)

type contactStoreStub struct {
	saved []models.ContactSubmission
	err   error
}

func (s *contactStoreStub) CreateContactSubmission(_ context.Context, sub *models.ContactSubmission) error {
	if s.err != nil {
		return s.err
	}
	sub.ID = int64(len(s.saved) + 1)
	sub.RelayStatus = models.RelayPending
	s.saved = append(s.saved, *sub)
	return nil
}

func postContact(t *testing.T, store ContactStore, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/contact", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	Contact(store).ServeHTTP(rr, req)
	return rr
}

func decodeFields(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "validation failed", body.Error)
	return body.Fields
}

func TestContactRejectsInvalidEmail(t *testing.T) {
	store := &contactStoreStub{}
	rr := postContact(t, store, `{"name":"Jane","email":"not-an-email","message":"hello there"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, map[string]string{"email": "email must be a valid email address"}, decodeFields(t, rr))
	assert.Empty(t, store.saved)
}

func TestContactMessageLength(t *testing.T) {
	store := &contactStoreStub{}

	rr := postContact(t, store, `{"name":"Jane","email":"jane@x.com","message":"hello the"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, map[string]string{"message": "message must be at least 10 characters"}, decodeFields(t, rr))

	rr = postContact(t, store, `{"name":"Jane","email":"jane@x.com","message":"hello there"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
	require.Len(t, store.saved, 1)
	assert.Equal(t, "hello there", store.saved[0].Message)
	assert.Nil(t, store.saved[0].Company)
}

func TestContactMessageLengthCountsSurroundingWhitespace(t *testing.T) {
	store := &contactStoreStub{}

	rr := postContact(t, store, `{"name":"Jane","email":"jane@x.com","message":"short     "}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, store.saved, 1)
	assert.Equal(t, "short     ", store.saved[0].Message)

	rr = postContact(t, store, `{"name":"Jane","email":"jane@x.com","message":"short    "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, map[string]string{"message": "message must be at least 10 characters"}, decodeFields(t, rr))
}

func TestContactEnumeratesEveryViolatedField(t *testing.T) {
	rr := postContact(t, &contactStoreStub{}, `{"name":"  ","email":"","message":""}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, map[string]string{
		"name":    "name is required",
		"email":   "email is required",
		"message": "message is required",
	}, decodeFields(t, rr))
}

func TestContactKeepsCompany(t *testing.T) {
	store := &contactStoreStub{}
	rr := postContact(t, store, `{"name":"Jane","email":"jane@x.com","company":" Acme ","message":"hello there"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, store.saved[0].Company)
	assert.Equal(t, "Acme", *store.saved[0].Company)
}

func TestContactBadJSONAndStoreFailure(t *testing.T) {
	rr := postContact(t, &contactStoreStub{}, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postContact(t, &contactStoreStub{err: errors.New("db down")}, `{"name":"Jane","email":"jane@x.com","message":"hello there"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
