package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	openai "github.com/sashabaranov/go-openai"

	appI18n "github.com/pavelanni/chatbot/internal/i18n"
	"github.com/pavelanni/chatbot/internal/llm"
	"github.com/pavelanni/chatbot/internal/model"
	"github.com/pavelanni/chatbot/internal/scoring"
	"github.com/pavelanni/chatbot/internal/session"
	"github.com/pavelanni/chatbot/internal/store"
	"github.com/pavelanni/chatbot/internal/telemetry"
)

const chatReply = "Paris is the capital of France."

// inferenceStub answers GetModel for known IDs and every chat completion
// with chatReply.
func inferenceStub(known ...string) http.Handler {
	ids := make(map[string]bool)
	for _, id := range known {
		ids[id] = true
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/models/")
		if !ids[id] {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(openai.Model{ID: id, Object: "model"})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: chatReply},
			}},
		})
	})
	return mux
}

var testSpecs = []model.ModelSpec{
	{Key: "gemma", ID: "google/gemma-2-2b-jpn-it", Chat: true},
	{Key: "xglm", ID: "facebook/xglm-564M"},
}

type testApp struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	store  *store.Store
	token  string
}

func newTestApp(t *testing.T, knownModels ...string) *testApp {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}

	inference := httptest.NewServer(inferenceStub(knownModels...))
	t.Cleanup(inference.Close)
	reg, msgs, err := llm.Load(context.Background(), llm.NewAPI(inference.URL+"/v1", "hf_test"), testSpecs)
	if err != nil {
		t.Fatalf("llm.Load: %v", err)
	}

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stopwords, err := scoring.LoadStopwords("")
	if err != nil {
		t.Fatalf("LoadStopwords: %v", err)
	}

	h := New(db, reg, scoring.New(nil, "", stopwords), session.NewManager(session.DefaultTTL),
		telemetry.New(), model.AppConfig{}, msgs)
	r := chi.NewRouter()
	r.Use(appI18n.Middleware)
	r.Use(h.BasePathMiddleware)
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, _ := cookiejar.New(nil)
	return &testApp{t: t, srv: srv, client: &http.Client{Jar: jar}, store: db}
}

var csrfField = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// get fetches route, following redirects, and remembers the page's CSRF token.
func (a *testApp) get(route string) (string, *http.Response) {
	a.t.Helper()
	resp, err := a.client.Get(a.srv.URL + route)
	if err != nil {
		a.t.Fatalf("GET %s: %v", route, err)
	}
	return a.read(resp), resp
}

// post submits form with the current CSRF token and follows the redirect.
func (a *testApp) post(route string, form url.Values) (string, *http.Response) {
	a.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", a.token)
	resp, err := a.client.PostForm(a.srv.URL+route, form)
	if err != nil {
		a.t.Fatalf("POST %s: %v", route, err)
	}
	return a.read(resp), resp
}

func (a *testApp) read(resp *http.Response) string {
	a.t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		a.t.Fatalf("read body: %v", err)
	}
	body := string(b)
	if m := csrfField.FindStringSubmatch(body); m != nil {
		a.token = m[1]
	}
	return body
}

func (a *testApp) count() int {
	a.t.Helper()
	n, err := a.store.Count()
	if err != nil {
		a.t.Fatalf("Count: %v", err)
	}
	return n
}

func TestAskAndFeedbackStoresRecord(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it", "facebook/xglm-564M")
	app.get("/chat")

	body, _ := app.post("/chat/ask", url.Values{"question": {"What is the capital of France?"}})
	if !strings.Contains(body, chatReply) {
		t.Fatalf("answer not shown:\n%s", body)
	}
	if !strings.Contains(body, `action="/chat/feedback"`) {
		t.Error("feedback form not shown after answer")
	}
	if n := app.count(); n != 0 {
		t.Fatalf("records before feedback = %d, want 0", n)
	}

	body, _ = app.post("/chat/feedback", url.Values{
		"label":          {"exact"},
		"correct_answer": {"Paris"},
		"comment":        {"spot on"},
	})
	if !strings.Contains(body, "Thank you for your feedback!") {
		t.Errorf("missing confirmation:\n%s", body)
	}
	if strings.Contains(body, `action="/chat/feedback"`) {
		t.Error("feedback form still shown after rating")
	}
	if n := app.count(); n != 1 {
		t.Fatalf("records after feedback = %d, want 1", n)
	}

	records, err := app.store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	r := records[0]
	if r.Feedback != "Correct: spot on" || r.IsCorrect != 1.0 || r.ModelName != "gemma" {
		t.Errorf("stored record = %+v", r)
	}
	if r.CorrectAnswer == nil || *r.CorrectAnswer != "Paris" || r.BLEUScore == nil {
		t.Errorf("reference metrics missing: %+v", r)
	}

	// A replayed submission in the same cycle must not write again.
	body, _ = app.post("/chat/feedback", url.Values{"label": {"incorrect"}})
	if n := app.count(); n != 1 {
		t.Errorf("records after duplicate feedback = %d, want 1", n)
	}
	if !strings.Contains(body, "already recorded") {
		t.Errorf("missing duplicate notice:\n%s", body)
	}

	body, _ = app.post("/chat/next", nil)
	if strings.Contains(body, chatReply) {
		t.Error("answer still shown after next question")
	}
}

func TestEmptyQuestionCreatesNoRecord(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it")
	app.get("/chat")

	body, _ := app.post("/chat/ask", url.Values{"question": {"   "}})
	if !strings.Contains(body, "Please enter a question.") {
		t.Errorf("missing warning:\n%s", body)
	}
	if strings.Contains(body, `action="/chat/feedback"`) {
		t.Error("feedback form shown without an answer")
	}

	app.post("/chat/feedback", url.Values{"label": {"exact"}})
	if n := app.count(); n != 0 {
		t.Errorf("records = %d, want 0", n)
	}
}

func TestFailedModelShowsUnavailable(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it")

	body, _ := app.get("/chat")
	if !strings.Contains(body, "Selected model: gemma") {
		t.Errorf("default model not preselected:\n%s", body)
	}
	if !strings.Contains(body, `<option value="gemma"`) {
		t.Error("loaded model missing from the selector")
	}
	if strings.Contains(body, `<option value="xglm"`) {
		t.Error("failed model offered in the selector")
	}

	body, _ = app.post("/chat/model", url.Values{"model": {"xglm"}})
	if !strings.Contains(body, "Model xglm is not available") {
		t.Errorf("missing unavailable notice:\n%s", body)
	}
	if strings.Contains(body, `action="/chat/ask"`) {
		t.Error("question form shown for an unavailable model")
	}

	body, _ = app.post("/chat/ask", url.Values{"question": {"Hello?"}})
	if !strings.Contains(body, "Model xglm is not loaded.") {
		t.Errorf("missing not-loaded notice:\n%s", body)
	}
	if n := app.count(); n != 0 {
		t.Errorf("records = %d, want 0", n)
	}

	_, resp := app.post("/chat/model", url.Values{"model": {"llama"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown model status = %d, want 400", resp.StatusCode)
	}
}

func TestSwitchingModelResetsCycle(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it", "facebook/xglm-564M")
	app.get("/chat")
	app.post("/chat/ask", url.Values{"question": {"What is the capital of France?"}})

	body, _ := app.post("/chat/model", url.Values{"model": {"xglm"}})
	if !strings.Contains(body, "Switched to xglm.") {
		t.Errorf("missing switch notice:\n%s", body)
	}
	if strings.Contains(body, chatReply) {
		t.Error("previous answer still shown after switching model")
	}
}

func TestLoadMessagesShownOnce(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it")

	body, _ := app.get("/chat")
	if !strings.Contains(body, "Model gemma loaded") {
		t.Errorf("load messages missing on first visit:\n%s", body)
	}
	body, _ = app.get("/chat")
	if strings.Contains(body, "Model gemma loaded") {
		t.Error("load messages repeated on second visit")
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it")
	app.get("/data")

	body, _ := app.post("/data/samples", nil)
	if !strings.Contains(body, "Added 5 sample records.") {
		t.Errorf("missing samples notice:\n%s", body)
	}
	if n := app.count(); n != len(store.Samples) {
		t.Fatalf("records = %d, want %d", n, len(store.Samples))
	}

	body, _ = app.post("/data/clear", nil)
	if !strings.Contains(body, "Tick the confirmation box") {
		t.Errorf("missing confirmation warning:\n%s", body)
	}
	if n := app.count(); n != len(store.Samples) {
		t.Errorf("records after unconfirmed clear = %d, want %d", n, len(store.Samples))
	}

	body, _ = app.post("/data/clear", url.Values{"confirm": {"yes"}})
	if !strings.Contains(body, "The database was cleared.") {
		t.Errorf("missing cleared notice:\n%s", body)
	}
	if n := app.count(); n != 0 {
		t.Errorf("records after clear = %d, want 0", n)
	}
}

func TestHistoryPagination(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it")
	app.get("/data")
	for range 3 {
		app.post("/data/samples", nil)
	}

	body, _ := app.get("/history?page=2")
	if !strings.Contains(body, "Showing 6-10 of 15") {
		t.Errorf("missing range on page 2:\n%s", body)
	}
	body, _ = app.get("/history?page=99")
	if !strings.Contains(body, "Showing 11-15 of 15") {
		t.Errorf("out-of-range page not clamped:\n%s", body)
	}
	body, _ = app.get("/history?tab=analysis&metric=bleu_score")
	if !strings.Contains(body, "<svg") {
		t.Errorf("scatter plot missing:\n%s", body)
	}
}

func TestHistoryEmpty(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it")
	body, _ := app.get("/history")
	if !strings.Contains(body, "No interactions recorded yet.") {
		t.Errorf("missing empty notice:\n%s", body)
	}
}

func TestIndexRedirectsToLastPage(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it")

	_, resp := app.get("/")
	if resp.Request.URL.Path != "/chat" {
		t.Errorf("first visit landed on %s, want /chat", resp.Request.URL.Path)
	}
	app.get("/data")
	_, resp = app.get("/")
	if resp.Request.URL.Path != "/data" {
		t.Errorf("return visit landed on %s, want /data", resp.Request.URL.Path)
	}
}

func TestPostWithoutCSRFTokenIsRejected(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it")
	app.get("/chat")
	app.token = "forged"

	_, resp := app.post("/chat/ask", url.Values{"question": {"Hello?"}})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, "google/gemma-2-2b-jpn-it")
	app.get("/chat")
	app.post("/chat/ask", url.Values{"question": {"What is the capital of France?"}})
	app.post("/chat/feedback", url.Values{"label": {"partial"}})

	body, _ := app.get("/metrics")
	for _, want := range []string{
		`chatbot_generations_total{model="gemma",status="ok"} 1`,
		`chatbot_feedback_total{label="partial",model="gemma"} 1`,
		`chatbot_stored_interactions 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
