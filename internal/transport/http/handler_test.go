package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/metrics"
)

func TestHostAndPlayerFlow(t *testing.T) {
	env := newTestEnv(t)
	defer env.server.Close()

	if code, _ := env.do(t, http.MethodPost, "/admin/quiz/quiz-1/start", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}

	code, body := env.do(t, http.MethodPost, "/admin/quiz/quiz-1/start", env.hostToken, nil)
	if code != http.StatusOK {
		t.Fatalf("start: %d %v", code, body)
	}
	sessionID := body["sessionId"].(string)

	code, body = env.do(t, http.MethodPost, "/play/join/"+sessionID, "", map[string]any{"name": "Alice"})
	if code != http.StatusOK {
		t.Fatalf("join: %d %v", code, body)
	}
	player := body["playerId"].(string)

	if _, body = env.do(t, http.MethodGet, "/play/"+player+"/status", "", nil); body["started"] != false {
		t.Fatalf("expected not started, got %v", body)
	}
	if code, body = env.do(t, http.MethodPost, "/admin/session/"+sessionID+"/advance", env.hostToken, nil); code != http.StatusOK || body["position"] != float64(0) {
		t.Fatalf("advance: %d %v", code, body)
	}
	if code, _ = env.do(t, http.MethodPost, "/admin/session/"+sessionID+"/advance", env.hostToken, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 while question open, got %d", code)
	}

	code, body = env.do(t, http.MethodGet, "/play/"+player+"/question", "", nil)
	question, _ := body["question"].(map[string]any)
	if code != http.StatusOK || question["sols"] != float64(1) || question["time"] != float64(10) {
		t.Fatalf("question: %d %v", code, body)
	}
	if _, leaked := question["solutions"]; leaked {
		t.Fatalf("answer key leaked to player: %v", question)
	}
	if _, body = env.do(t, http.MethodGet, "/play/"+player+"/answer", "", nil); len(body["answerIds"].([]any)) != 0 {
		t.Fatalf("expected hidden answers, got %v", body)
	}

	if code, body = env.do(t, http.MethodPut, "/play/"+player+"/answer", "", map[string]any{"answerIds": []int{1}}); code != http.StatusOK {
		t.Fatalf("submit: %d %v", code, body)
	}
	if code, _ = env.do(t, http.MethodPut, "/play/"+player+"/answer", "", map[string]any{"answerIds": []int{0, 1}}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for two picks on single answer, got %d", code)
	}
	if code, _ = env.do(t, http.MethodPut, "/play/"+player+"/answer", "", map[string]any{"answerIds": []int{1}, "position": 1}); code != http.StatusConflict {
		t.Fatalf("expected 409 for wrong question, got %d", code)
	}

	env.clock.Advance(10 * time.Second)
	if code, _ = env.do(t, http.MethodPut, "/play/"+player+"/answer", "", map[string]any{"answerIds": []int{0}}); code != http.StatusConflict {
		t.Fatalf("expected 409 after close, got %d", code)
	}
	if _, body = env.do(t, http.MethodGet, "/play/"+player+"/answer", "", nil); len(body["answerIds"].([]any)) != 1 {
		t.Fatalf("expected revealed answers, got %v", body)
	}

	if code, _ = env.do(t, http.MethodGet, "/admin/session/"+sessionID+"/status", env.otherToken, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for another host, got %d", code)
	}
	code, body = env.do(t, http.MethodGet, "/admin/session/"+sessionID+"/status", env.hostToken, nil)
	status, _ := body["results"].(map[string]any)
	if code != http.StatusOK || status["state"] != string(domain.StateAnswerReveal) || status["answerAvailable"] != true {
		t.Fatalf("status: %d %v", code, body)
	}
	if code, _ = env.do(t, http.MethodPost, "/admin/session/"+sessionID+"/advance?from=-1", env.hostToken, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 for stale advance, got %d", code)
	}
	if code, _ = env.do(t, http.MethodPost, "/admin/session/"+sessionID+"/advance?from=x", env.hostToken, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed from, got %d", code)
	}

	if code, _ = env.do(t, http.MethodPost, "/admin/quiz/quiz-1/end", env.hostToken, nil); code != http.StatusOK {
		t.Fatalf("end by quiz: %d", code)
	}
	if code, _ = env.do(t, http.MethodPost, "/admin/session/"+sessionID+"/end", env.hostToken, nil); code != http.StatusOK {
		t.Fatalf("second end must succeed: %d", code)
	}

	_, body = env.do(t, http.MethodGet, "/play/"+player+"/results", "", nil)
	perQuestion, _ := body["perQuestion"].([]any)
	if len(perQuestion) != 1 || perQuestion[0].(map[string]any)["correct"] != true {
		t.Fatalf("player results: %v", body)
	}
	_, body = env.do(t, http.MethodGet, "/admin/session/"+sessionID+"/results", env.hostToken, nil)
	rows, _ := body["results"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["name"] != "Alice" {
		t.Fatalf("host results: %v", body)
	}
	_, body = env.do(t, http.MethodGet, "/admin/session/"+sessionID+"/results/summary", env.hostToken, nil)
	if top, _ := body["topPlayers"].([]any); len(top) != 1 {
		t.Fatalf("summary: %v", body)
	}
}

func TestEndByQuizTwice(t *testing.T) {
	env := newTestEnv(t)
	defer env.server.Close()

	code, body := env.do(t, http.MethodPost, "/admin/quiz/quiz-1/start", env.hostToken, nil)
	if code != http.StatusOK {
		t.Fatalf("start: %d %v", code, body)
	}
	sessionID, _ := body["sessionId"].(string)

	for i := 0; i < 2; i++ {
		if code, body = env.do(t, http.MethodPost, "/admin/quiz/quiz-1/end", env.hostToken, nil); code != http.StatusOK {
			t.Fatalf("end by quiz #%d: %d %v", i+1, code, body)
		}
	}
	if code, _ = env.do(t, http.MethodPost, "/admin/quiz/quiz-1/advance", env.hostToken, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 advancing an ended quiz session, got %d", code)
	}
	if code, _ = env.do(t, http.MethodPost, "/admin/quiz/quiz-1/end", env.otherToken, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for another host, got %d", code)
	}
	if code, _ = env.do(t, http.MethodGet, "/admin/session/"+sessionID+"/results", env.hostToken, nil); code != http.StatusOK {
		t.Fatalf("results after repeated end: %d", code)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	defer env.server.Close()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{name: "unknown player", method: http.MethodGet, path: "/play/nobody/status", want: http.StatusNotFound},
		{name: "unknown session join", method: http.MethodPost, path: "/play/join/NOPE00", body: map[string]any{"name": "A"}, want: http.StatusNotFound},
		{name: "unknown quiz", method: http.MethodPost, path: "/admin/quiz/missing/start", token: env.hostToken, want: http.StatusNotFound},
		{name: "no live session", method: http.MethodPost, path: "/admin/quiz/quiz-1/advance", token: env.hostToken, want: http.StatusNotFound},
		{name: "bad token", method: http.MethodGet, path: "/admin/session/ABC/status", token: "garbage", want: http.StatusUnauthorized},
		{name: "malformed body", method: http.MethodPost, path: "/play/join/ABC", body: "not-json", want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := env.do(t, tc.method, tc.path, tc.token, tc.body)
			if code != tc.want {
				t.Fatalf("expected %d, got %d %v", tc.want, code, body)
			}
			if _, ok := body["error"]; !ok {
				t.Fatalf("expected error body, got %v", body)
			}
		})
	}
}

func TestOpsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	defer env.server.Close()

	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()

	env.do(t, http.MethodGet, "/play/nobody/status", "", nil)
	resp, err = http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `endpoint="/play/{playerId}/status"`) {
		t.Fatalf("expected route-labelled request metric")
	}
}

type testEnv struct {
	server     *httptest.Server
	clock      *manualClock
	hostToken  string
	otherToken string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	clock := &manualClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewSessionService(memory.NewSessionStore(), quizzes,
		app.WithClock(app.NewClock(clock.Now)),
		app.WithArchive(memory.NewResultsArchive()),
	)
	tokens := auth.NewJWTService("test-secret", time.Hour)
	handler := NewHandler(service, tokens,
		WithMetrics(metrics.New()),
		WithStatusInterval(50*time.Millisecond),
	)

	hostToken, err := tokens.Generate("host-1", "Host")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	otherToken, _ := tokens.Generate("host-2", "Other")
	return testEnv{
		server:     httptest.NewServer(handler.Routes()),
		clock:      clock,
		hostToken:  hostToken,
		otherToken: otherToken,
	}
}

func (e testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:               1,
					Text:             "What is 2 + 2?",
					DurationSeconds:  10,
					Points:           1,
					Answers:          []domain.Answer{{ID: 0, Text: "3"}, {ID: 1, Text: "4"}, {ID: 2, Text: "5"}},
					CorrectAnswerIDs: []int{1},
				},
				{
					ID:               2,
					Text:             "Pick the even numbers",
					DurationSeconds:  20,
					Points:           2,
					Answers:          []domain.Answer{{ID: 0, Text: "2"}, {ID: 1, Text: "3"}, {ID: 2, Text: "4"}},
					CorrectAnswerIDs: []int{0, 2},
				},
			},
		},
	}
}
