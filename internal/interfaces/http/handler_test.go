package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"insightdash/internal/classifier"
	"insightdash/internal/gateway"
	"insightdash/internal/session"
	"insightdash/internal/usecases"
)

// fakeUpstream serves the remote backend endpoints the handlers proxy to.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/customers-table", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"columns":["name","orderCount","phone"],"rows":[
			{"name":"a","orderCount":20,"phone":"11111111"},
			{"name":"b","orderCount":2,"phone":"22222222"}
		]}`))
	})
	mux.HandleFunc("/whatsapp-messages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"wamid.h1","text":"hi","from":"them","timestamp":1700000000,"status":null}]`))
	})
	mux.HandleFunc("/send-message", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":[{"id":"wamid.123"}]}`))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","email":"a@b.c"}`))
	})
	return httptest.NewServer(mux)
}

func testRouter(t *testing.T, upstream string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := gateway.NewClient(upstream)
	ranges := classifier.NewStore()
	analysis := usecases.NewAnalysisUsecase(gw, ranges)
	sessions := session.NewManager(gw, func(context.Context) (session.Stream, error) {
		return nil, errors.New("no stream in tests")
	})
	segments := usecases.NewSegmentMessenger(gw, nil)

	r := gin.New()
	SetupRoutes(r, NewHandler(analysis, gw, sessions, segments, ranges), NewMiddleware())
	return r
}

func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCustomersEndpoint(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := testRouter(t, upstream.URL)
	token := signedToken(t, time.Now().Add(time.Hour))

	w := doJSON(r, http.MethodGet, "/api/customers", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Table usecases.TableView `json:"table"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, []string{"name", "orderCount", "phone"}, resp.Table.Columns)
	require.Len(t, resp.Table.Rows, 2)
}

func TestCustomersRequiresAuth(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := testRouter(t, upstream.URL)

	w := doJSON(r, http.MethodGet, "/api/customers", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFrequencyEndpointClassifies(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := testRouter(t, upstream.URL)
	token := signedToken(t, time.Now().Add(time.Hour))

	w := doJSON(r, http.MethodGet, "/api/analysis/frequency", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Analysis usecases.BucketView `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Analysis.Buckets[classifier.CohortLoyal], 1)
	require.Len(t, resp.Analysis.Buckets[classifier.CohortNew], 1)
}

func TestRangeUpdateChangesClassification(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := testRouter(t, upstream.URL)
	token := signedToken(t, time.Now().Add(time.Hour))

	// Drop the Loyal floor to 2 so customer b moves up.
	w := doJSON(r, http.MethodPut, "/api/analysis/ranges/frequency/Loyal", token,
		gin.H{"bound": "min", "value": "2"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/analysis/frequency", token, nil)
	var resp struct {
		Analysis usecases.BucketView `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Analysis.Buckets[classifier.CohortLoyal], 2)

	// Garbage is rejected with a 400 and changes nothing.
	w = doJSON(r, http.MethodPut, "/api/analysis/ranges/frequency/Loyal", token,
		gin.H{"bound": "min", "value": "lots"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Reset restores the defaults.
	w = doJSON(r, http.MethodPost, "/api/analysis/ranges/frequency/reset", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/analysis/frequency", token, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Analysis.Buckets[classifier.CohortLoyal], 1)
}

func TestConversationFlow(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := testRouter(t, upstream.URL)
	token := signedToken(t, time.Now().Add(time.Hour))

	w := doJSON(r, http.MethodPost, "/api/conversations/96512345678/open", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "wamid.h1")

	w = doJSON(r, http.MethodPost, "/api/conversations/96512345678/send", token,
		gin.H{"message": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "wamid.123")

	w = doJSON(r, http.MethodGet, "/api/conversations/96512345678/messages", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		State    string `json:"state"`
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// No event stream behind the test router, so the session reports
	// disconnected while history and sends keep working.
	require.Equal(t, session.StateDisconnected, resp.State)
	require.Len(t, resp.Messages, 2)

	w = doJSON(r, http.MethodDelete, "/api/conversations/96512345678", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/conversations/96512345678/messages", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendBlankMessageRejected(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := testRouter(t, upstream.URL)
	token := signedToken(t, time.Now().Add(time.Hour))

	w := doJSON(r, http.MethodPost, "/api/conversations/96512345678/open", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/api/conversations/96512345678/send", token,
		gin.H{"message": "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendWithoutOpenConversation(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := testRouter(t, upstream.URL)
	token := signedToken(t, time.Now().Add(time.Hour))

	w := doJSON(r, http.MethodPost, "/api/conversations/96500000000/send", token,
		gin.H{"message": "hello"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSegmentSendEndpoint(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := testRouter(t, upstream.URL)
	token := signedToken(t, time.Now().Add(time.Hour))

	w := doJSON(r, http.MethodPost, "/api/segments/send", token, gin.H{
		"metric":   "frequency",
		"cohort":   "Loyal",
		"template": "Hi {{1}}!",
		"fields":   []string{"name"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sent    int                   `json:"sent"`
		Results []usecases.SendResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Sent)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "96511111111", resp.Results[0].Phone)
}

func TestHealthz(t *testing.T) {
	upstream := fakeUpstream(t)
	defer upstream.Close()
	r := testRouter(t, upstream.URL)

	w := doJSON(r, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
