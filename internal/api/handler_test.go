package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TERAN-XMD-maker/Helalink2025/internal/dispatch"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/schedule"
	"github.com/TERAN-XMD-maker/Helalink2025/internal/subscription"
	logx "github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

type fakeService struct {
	addErr     error
	added      []webpush.Subscription
	removedIDs []string
	removedEPs []string
	sendErr    error
	sentIDs    []string
	sentAll    int
}

func (f *fakeService) Add(ctx context.Context, sub webpush.Subscription, launch string, daily []string, tz string) (subscription.Record, error) {
	if f.addErr != nil {
		return subscription.Record{}, f.addErr
	}
	f.added = append(f.added, sub)
	return subscription.Record{ID: "rec-1", Subscription: sub}, nil
}

func (f *fakeService) RemoveByID(ctx context.Context, id string) bool {
	f.removedIDs = append(f.removedIDs, id)
	return id == "known"
}

func (f *fakeService) RemoveByEndpoint(ctx context.Context, ep string) bool {
	f.removedEPs = append(f.removedEPs, ep)
	return true
}

func (f *fakeService) SendNow(ctx context.Context, id string, p dispatch.Payload) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentIDs = append(f.sentIDs, id)
	return nil
}

func (f *fakeService) SendAll(ctx context.Context, p dispatch.Payload) int {
	f.sentAll++
	return 7
}

type fakeStatus struct{}

func (fakeStatus) Len() int { return 2 }

func (fakeStatus) ArmedAll() map[string]schedule.EntryStatus {
	return map[string]schedule.EntryStatus{}
}

func (fakeStatus) Snapshot() []dispatch.HistoryItem { return nil }

func doRequest(t *testing.T, h gin.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b))
	h(c)
	return w
}

func validSubscribe() SubscribeRequest {
	return SubscribeRequest{
		Subscription: SubscriptionDTO{
			Endpoint: "https://push.example.org/ep",
			Keys:     KeysDTO{P256dh: "p", Auth: "a"},
		},
		DailyTimes: []string{"09:00"},
		Timezone:   "Europe/Berlin",
	}
}

func TestSubscribeSuccess(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, fakeStatus{}, "pub", logx.Nop())

	w := doRequest(t, h.Subscribe, validSubscribe())
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, svc.added, 1)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestSubscribeMissingKeysRejected(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, fakeStatus{}, "pub", logx.Nop())

	req := validSubscribe()
	req.Subscription.Keys.Auth = ""
	w := doRequest(t, h.Subscribe, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.added)
}

func TestSubscribeBadEndpointRejected(t *testing.T) {
	h := NewHandler(&fakeService{}, fakeStatus{}, "pub", logx.Nop())
	req := validSubscribe()
	req.Subscription.Endpoint = "not a url"
	w := doRequest(t, h.Subscribe, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnsubscribeByIDAndEndpoint(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, fakeStatus{}, "pub", logx.Nop())

	w := doRequest(t, h.Unsubscribe, UnsubscribeRequest{ID: "known"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"known"}, svc.removedIDs)

	w = doRequest(t, h.Unsubscribe, UnsubscribeRequest{Endpoint: "https://push.example.org/ep"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, svc.removedEPs, 1)
}

func TestUnsubscribeUnknownStillSucceeds(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, fakeStatus{}, "pub", logx.Nop())

	w := doRequest(t, h.Unsubscribe, UnsubscribeRequest{ID: "ghost"})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestUnsubscribeRequiresIDOrEndpoint(t *testing.T) {
	h := NewHandler(&fakeService{}, fakeStatus{}, "pub", logx.Nop())
	w := doRequest(t, h.Unsubscribe, UnsubscribeRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotifySingle(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, fakeStatus{}, "pub", logx.Nop())

	w := doRequest(t, h.Notify, NotifyRequest{ID: "rec-1", Title: "Hi", Body: "There"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"rec-1"}, svc.sentIDs)
}

func TestNotifyUnknownRecipient(t *testing.T) {
	svc := &fakeService{sendErr: schedule.ErrUnknownRecipient}
	h := NewHandler(svc, fakeStatus{}, "pub", logx.Nop())

	w := doRequest(t, h.Notify, NotifyRequest{ID: "ghost", Title: "Hi", Body: "There"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotifyAll(t *testing.T) {
	svc := &fakeService{}
	h := NewHandler(svc, fakeStatus{}, "pub", logx.Nop())

	w := doRequest(t, h.Notify, NotifyRequest{All: true, Title: "Hi", Body: "There"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, svc.sentAll)

	var resp struct {
		Data struct {
			Queued int `json:"queued"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Data.Queued)
}

func TestNotifyRequiresTitleAndTarget(t *testing.T) {
	h := NewHandler(&fakeService{}, fakeStatus{}, "pub", logx.Nop())

	w := doRequest(t, h.Notify, NotifyRequest{ID: "rec-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h.Notify, NotifyRequest{Title: "Hi", Body: "There"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	h := NewHandler(&fakeService{}, fakeStatus{}, "the-public-key", logx.Nop())

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h.VAPIDPublicKey(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "the-public-key")
}

func newTestServer(token string) *Server {
	gin.SetMode(gin.TestMode)
	h := NewHandler(&fakeService{}, fakeStatus{}, "pub", logx.Nop())
	return NewServer(ServerConfig{AdminToken: token}, h, logx.Nop())
}

func TestBearerAuth(t *testing.T) {
	s := newTestServer("sekrit")

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer sekrit", http.StatusOK},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		s.srv.Handler.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, tc.name)
	}
}

func TestBearerAuthDisabledWithoutToken(t *testing.T) {
	s := newTestServer("")

	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSetAdminTokenSwapsLive(t *testing.T) {
	s := newTestServer("old")
	s.SetAdminToken("new")

	get := func(token string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		s.srv.Handler.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusUnauthorized, get("old"))
	assert.Equal(t, http.StatusOK, get("new"))
}
