package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"mathrush-backend/api"
	"mathrush-backend/internal/client"
	"mathrush-backend/internal/config"
	"mathrush-backend/internal/game"
	"mathrush-backend/internal/handlers"
	"mathrush-backend/internal/question"
	"mathrush-backend/internal/store"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"
	gws "github.com/gorilla/websocket"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var defaultTestConfig = config.Config{
	Addr: ":0",
	Quiz: config.QuizConf{
		NextRoundDelay:     time.Hour, // keep rounds from auto-advancing mid-test
		RoundsPerMatch:     7,
		LeaderboardSize:    10,
		WebsocketReadLimit: 512,
		SubmitRateWindow:   10 * time.Second,
		SubmitRateLimit:    20,
	},
}

// memStore is a mutex-guarded in-memory double for the durable store,
// keeping the conditional-claim contract of the SQL implementation.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	questions map[int64]store.Question
	round     store.Round
	hasRound  bool
	scores    map[string]*store.ScoreRow
}

func newMemStore() *memStore {
	return &memStore{
		questions: map[int64]store.Question{},
		scores:    map[string]*store.ScoreRow{},
	}
}

func (m *memStore) InsertQuestion(_ context.Context, expression string, answer float64, tier int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.questions[m.nextID] = store.Question{ID: m.nextID, Expression: expression, Answer: answer, Tier: tier}
	return m.nextID, nil
}

func (m *memStore) OpenRound(_ context.Context, questionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round = store.Round{QuestionID: questionID, Phase: store.PhaseActive}
	m.hasRound = true
	return nil
}

func (m *memStore) CurrentRound(_ context.Context) (store.Round, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round, m.hasRound, nil
}

func (m *memStore) QuestionByID(_ context.Context, id int64) (store.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return store.Question{}, store.ErrQuestionNotFound
	}
	return q, nil
}

func (m *memStore) ClaimWin(_ context.Context, participantID, displayName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasRound || m.round.Phase != store.PhaseActive {
		return false, nil
	}
	m.round.Phase = store.PhaseAnswered
	m.round.WinnerID = participantID
	m.round.WinnerName = displayName
	return true, nil
}

func (m *memStore) RecordAttempt(_ context.Context, participantID, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.scores[participantID]
	if !ok {
		row = &store.ScoreRow{ParticipantID: participantID}
		m.scores[participantID] = row
	}
	row.DisplayName = displayName
	row.Attempts++
	return nil
}

func (m *memStore) RecordWin(_ context.Context, participantID, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.scores[participantID]
	if !ok {
		row = &store.ScoreRow{ParticipantID: participantID}
		m.scores[participantID] = row
	}
	// A win counts as an attempt too, mirroring the SQL upsert.
	row.DisplayName = displayName
	row.Wins++
	row.Attempts++
	now := time.Now()
	row.LastWinAt = &now
	return nil
}

func (m *memStore) Leaderboard(_ context.Context, limit int) ([]store.ScoreRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]store.ScoreRow, 0, len(m.scores))
	for _, row := range m.scores {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		a, b := rows[i].LastWinAt, rows[j].LastWinAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memStore) activeAnswer(t *testing.T) float64 {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[m.round.QuestionID]
	if !ok {
		t.Fatal("no active question")
	}
	return q.Answer
}

func setupTestServer(t *testing.T) (*memStore, *game.Coordinator, *httptest.Server) {
	t.Helper()

	st := newMemStore()
	registry := game.NewRegistry()
	coordinator := game.NewCoordinator(st, st, question.NewGeneratorWithSeed(42), registry, defaultTestConfig.Quiz, nil)
	if err := coordinator.Start(context.Background()); err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(coordinator.Stop)

	quizHandler := handlers.NewQuizHandler(defaultTestConfig, coordinator, registry, websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /quiz", quizHandler)

	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return st, coordinator, s
}

func dialTestServer(t *testing.T, s *httptest.Server) *client.Client {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/quiz"

	conn, res, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("%v", err)
	}
	defer res.Body.Close()

	cli := client.NewClient(conn, 5*time.Second)
	t.Cleanup(cli.Close)

	return cli
}

func decodeData[T any](t *testing.T, res api.Response[json.RawMessage]) T {
	t.Helper()
	data, err := api.DecodeJSON[T](res.Data)
	if err != nil {
		t.Fatalf("%v", err)
	}
	return data
}

func TestHealthHandler(t *testing.T) {
	var (
		req = httptest.NewRequest(http.MethodGet, "/health", nil)
		res = httptest.NewRecorder()
	)

	handlers.HealthHandler()(res, req)

	httpRes := res.Result()
	defer httpRes.Body.Close()

	assertEqual(t, http.StatusOK, httpRes.StatusCode)

	health := api.HealthResponse{}
	assertNil(t, json.NewDecoder(httpRes.Body).Decode(&health))
	assertEqual(t, "ok", health.Status)
}

func TestLeaderboardHandler(t *testing.T) {
	st, coordinator, _ := setupTestServer(t)

	winAt := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	st.scores["p1"] = &store.ScoreRow{ParticipantID: "p1", DisplayName: "alice", Wins: 2, Attempts: 3, LastWinAt: &winAt}
	st.scores["p2"] = &store.ScoreRow{ParticipantID: "p2", DisplayName: "bob", Wins: 1, Attempts: 4, LastWinAt: &winAt}

	var (
		req = httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
		res = httptest.NewRecorder()
	)

	handlers.LeaderboardHandler(coordinator)(res, req)

	httpRes := res.Result()
	defer httpRes.Body.Close()

	assertEqual(t, http.StatusOK, httpRes.StatusCode)

	got := api.LeaderboardResponseData{}
	assertNil(t, json.NewDecoder(httpRes.Body).Decode(&got))

	want := api.LeaderboardResponseData{
		Entries: []api.LeaderboardEntry{
			{DisplayName: "alice", WinCount: 2, AttemptCount: 3, LastWinAt: "2026-08-01T10:00:00Z"},
			{DisplayName: "bob", WinCount: 1, AttemptCount: 4, LastWinAt: "2026-08-01T10:00:00Z"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("leaderboard mismatch (-want +got):\n%s", diff)
	}
}

func TestQuizJoin(t *testing.T) {
	_, _, s := setupTestServer(t)
	cli := dialTestServer(t, s)

	// Connecting refreshes the player count for everyone.
	res, err := cli.ReadResponse()
	assertNil(t, err)
	assertEqual(t, api.ResponseTypePlayerCount, res.Type)
	assertEqual(t, 1, decodeData[api.PlayerCountResponseData](t, res).Count)

	assertNil(t, cli.Join("alice", ""))

	res, err = cli.ReadResponse()
	assertNil(t, err)
	assertEqual(t, api.ResponseTypeJoined, res.Type)
	joined := decodeData[api.JoinedResponseData](t, res)
	assertEqual(t, "alice", joined.DisplayName)
	if joined.ParticipantID == "" {
		t.Fatal("expected a minted participant id")
	}

	res, err = cli.ReadResponse()
	assertNil(t, err)
	assertEqual(t, api.ResponseTypeRound, res.Type)
	round := decodeData[api.RoundResponseData](t, res)
	assertEqual(t, 1, round.RoundIndex)
	assertEqual(t, 7, round.TotalRounds)
	if round.Expression == "" {
		t.Fatal("expected an active question in the join banner")
	}

	res, err = cli.ReadResponse()
	assertNil(t, err)
	assertEqual(t, api.ResponseTypeLeaderboard, res.Type)

	res, err = cli.ReadResponse()
	assertNil(t, err)
	assertEqual(t, api.ResponseTypePlayerCount, res.Type)
}

func TestQuizJoinReusesParticipantID(t *testing.T) {
	_, _, s := setupTestServer(t)
	cli := dialTestServer(t, s)

	assertNil(t, cli.Join("alice", "stable-id-1"))

	res, err := cli.ReadResponseOfType(api.ResponseTypeJoined)
	assertNil(t, err)
	joined := decodeData[api.JoinedResponseData](t, res)
	assertEqual(t, "stable-id-1", joined.ParticipantID)
}

func TestQuizRejoinRenamesSession(t *testing.T) {
	st, _, s := setupTestServer(t)
	cli := dialTestServer(t, s)

	assertNil(t, cli.Join("alice", "stable-id-1"))
	if _, err := cli.ReadResponseOfType(api.ResponseTypeLeaderboard); err != nil {
		t.Fatalf("%v", err)
	}

	assertNil(t, cli.Join("bob", "stable-id-1"))
	res, err := cli.ReadResponseOfType(api.ResponseTypeJoined)
	assertNil(t, err)
	joined := decodeData[api.JoinedResponseData](t, res)
	assertEqual(t, "bob", joined.DisplayName)

	// The rename sticks to subsequent submissions.
	answer := strconv.FormatFloat(st.activeAnswer(t), 'f', -1, 64)
	assertNil(t, cli.SubmitAnswer(answer))
	res, err = cli.ReadResponseOfType(api.ResponseTypeAnswerResult)
	assertNil(t, err)
	assertEqual(t, api.OutcomeWinner, decodeData[api.AnswerResultResponseData](t, res).Outcome)

	st.mu.Lock()
	winnerName := st.round.WinnerName
	st.mu.Unlock()
	assertEqual(t, "bob", winnerName)
}

func TestQuizJoinValidation(t *testing.T) {
	_, _, s := setupTestServer(t)
	cli := dialTestServer(t, s)

	assertNil(t, cli.Join("   ", ""))

	res, err := cli.ReadResponseOfType(api.ResponseTypeError)
	assertNil(t, err)
	wsErr := decodeData[api.WebsocketErrorData](t, res)
	assertEqual(t, api.InvalidInputCode, wsErr.Code)
	assertEqual(t, api.RequestTypeJoin, wsErr.Request)
}

func TestQuizSubmitWithoutJoin(t *testing.T) {
	_, _, s := setupTestServer(t)
	cli := dialTestServer(t, s)

	assertNil(t, cli.SubmitAnswer("12"))

	res, err := cli.ReadResponseOfType(api.ResponseTypeError)
	assertNil(t, err)
	wsErr := decodeData[api.WebsocketErrorData](t, res)
	assertEqual(t, api.NotJoinedCode, wsErr.Code)
}

func TestQuizSubmitEmptyValue(t *testing.T) {
	_, _, s := setupTestServer(t)
	cli := dialTestServer(t, s)

	assertNil(t, cli.Join("alice", ""))
	if _, err := cli.ReadResponseOfType(api.ResponseTypeJoined); err != nil {
		t.Fatalf("%v", err)
	}

	assertNil(t, cli.SubmitAnswer(""))

	res, err := cli.ReadResponseOfType(api.ResponseTypeError)
	assertNil(t, err)
	wsErr := decodeData[api.WebsocketErrorData](t, res)
	assertEqual(t, api.InvalidInputCode, wsErr.Code)
}

func TestQuizSubmitAnswerFlow(t *testing.T) {
	st, _, s := setupTestServer(t)
	cli := dialTestServer(t, s)

	assertNil(t, cli.Join("alice", ""))
	if _, err := cli.ReadResponseOfType(api.ResponseTypeLeaderboard); err != nil {
		t.Fatalf("%v", err)
	}

	answer := strconv.FormatFloat(st.activeAnswer(t), 'f', -1, 64)
	wrong := strconv.FormatFloat(st.activeAnswer(t)+1000, 'f', -1, 64)

	// Wrong answer first.
	assertNil(t, cli.SubmitAnswer(wrong))
	res, err := cli.ReadResponseOfType(api.ResponseTypeAnswerResult)
	assertNil(t, err)
	assertEqual(t, api.OutcomeIncorrect, decodeData[api.AnswerResultResponseData](t, res).Outcome)

	// Correct answer wins the round.
	assertNil(t, cli.SubmitAnswer(answer))
	res, err = cli.ReadResponseOfType(api.ResponseTypeAnswerResult)
	assertNil(t, err)
	result := decodeData[api.AnswerResultResponseData](t, res)
	assertEqual(t, api.OutcomeWinner, result.Outcome)
	if result.CorrectAnswer == nil {
		t.Fatal("winner result must carry the correct answer")
	}

	// The round is decided now, further submissions are rejected fast.
	assertNil(t, cli.SubmitAnswer(answer))
	res, err = cli.ReadResponseOfType(api.ResponseTypeAnswerResult)
	assertNil(t, err)
	late := decodeData[api.AnswerResultResponseData](t, res)
	assertEqual(t, api.OutcomeRoundOver, late.Outcome)
	assertEqual(t, "alice", late.WinnerName)
}

func TestQuizWinnerBroadcast(t *testing.T) {
	st, _, s := setupTestServer(t)

	winner := dialTestServer(t, s)
	watcher := dialTestServer(t, s)

	assertNil(t, winner.Join("alice", ""))
	if _, err := winner.ReadResponseOfType(api.ResponseTypeLeaderboard); err != nil {
		t.Fatalf("%v", err)
	}

	answer := strconv.FormatFloat(st.activeAnswer(t), 'f', -1, 64)
	assertNil(t, winner.SubmitAnswer(answer))

	res, err := watcher.ReadResponseOfType(api.ResponseTypeWinner)
	assertNil(t, err)
	data := decodeData[api.WinnerResponseData](t, res)
	assertEqual(t, "alice", data.WinnerName)
	assertEqual(t, 7, data.TotalRounds)
	if data.IsFinalRound {
		t.Fatal("round 1 of 7 must not be final")
	}

	// Every win refreshes the leaderboard for all connections.
	res, err = watcher.ReadResponseOfType(api.ResponseTypeLeaderboard)
	assertNil(t, err)
	entries := decodeData[api.LeaderboardResponseData](t, res).Entries
	if len(entries) != 1 || entries[0].WinCount != 1 {
		t.Fatalf("unexpected leaderboard after win: %+v", entries)
	}
}

func TestQuizPlayerCount(t *testing.T) {
	_, _, s := setupTestServer(t)

	first := dialTestServer(t, s)

	res, err := first.ReadResponseOfType(api.ResponseTypePlayerCount)
	assertNil(t, err)
	assertEqual(t, 1, decodeData[api.PlayerCountResponseData](t, res).Count)

	dialTestServer(t, s)

	res, err = first.ReadResponseOfType(api.ResponseTypePlayerCount)
	assertNil(t, err)
	assertEqual(t, 2, decodeData[api.PlayerCountResponseData](t, res).Count)
}

func assertEqual[T comparable](t *testing.T, want, got T) {
	t.Helper()
	if want != got {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func assertNil(t *testing.T, v any) {
	t.Helper()
	if v != nil {
		t.Fatalf("expected nil, got %v", v)
	}
}
