package api

import "encoding/json"

type RequestType string

const (
	RequestTypeUnknown      RequestType = ""
	RequestTypeJoin         RequestType = "join"
	RequestTypeSubmitAnswer RequestType = "submitAnswer"
	RequestTypeLeaderboard  RequestType = "leaderboard"
)

type Request[T any] struct {
	Type RequestType `json:"type"`
	Data T           `json:"data,omitempty"`
}

type ResponseType string

const (
	ResponseTypeError        ResponseType = "error"
	ResponseTypeJoined       ResponseType = "joined"
	ResponseTypeRound        ResponseType = "round"
	ResponseTypeAnswerResult ResponseType = "answerResult"
	ResponseTypeWinner       ResponseType = "winner"
	ResponseTypeLeaderboard  ResponseType = "leaderboard"
	ResponseTypePlayerCount  ResponseType = "playerCount"
	ResponseTypeMatchEnded   ResponseType = "matchEnded"
)

type Response[T any] struct {
	Type    ResponseType `json:"type"`
	Message string       `json:"message,omitempty"`
	Data    T            `json:"data,omitempty"`
}

type EmptyResponseData struct{}

type JoinRequestData struct {
	DisplayName string `json:"displayName"`
	// ParticipantID is sent back by clients that joined before so their
	// score history survives a reconnect. Empty on a first join.
	ParticipantID string `json:"participantId,omitempty"`
}

// AnswerValue accepts both a JSON number and a JSON string so clients
// may submit whichever their input layer produces.
type AnswerValue string

func (v *AnswerValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = AnswerValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = AnswerValue(n.String())
	return nil
}

type SubmitAnswerRequestData struct {
	Value AnswerValue `json:"value"`
}

type JoinedResponseData struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

type RoundResponseData struct {
	QuestionID     int64  `json:"questionId"`
	Expression     string `json:"expression"`
	DifficultyTier int    `json:"difficultyTier"`
	RoundIndex     int    `json:"roundIndex"`
	TotalRounds    int    `json:"totalRounds"`
}

const (
	OutcomeWinner    = "winner"
	OutcomeTooLate   = "tooLate"
	OutcomeIncorrect = "incorrect"
	OutcomeRoundOver = "roundOver"
)

type AnswerResultResponseData struct {
	Outcome       string   `json:"outcome"`
	Message       string   `json:"message"`
	CorrectAnswer *float64 `json:"correctAnswer,omitempty"`
	WinnerName    string   `json:"winnerName,omitempty"`
}

type WinnerResponseData struct {
	WinnerID              string  `json:"winnerId"`
	WinnerName            string  `json:"winnerName"`
	Expression            string  `json:"expression"`
	CorrectAnswer         float64 `json:"correctAnswer"`
	NextRoundDelaySeconds int     `json:"nextRoundDelaySeconds"`
	IsFinalRound          bool    `json:"isFinalRound"`
	RoundIndex            int     `json:"roundIndex"`
	TotalRounds           int     `json:"totalRounds"`
}

type LeaderboardEntry struct {
	DisplayName  string `json:"displayName"`
	WinCount     int    `json:"winCount"`
	AttemptCount int    `json:"attemptCount"`
	LastWinAt    string `json:"lastWinAt,omitempty"`
}

type LeaderboardResponseData struct {
	Entries []LeaderboardEntry `json:"entries"`
}

type PlayerCountResponseData struct {
	Count int `json:"count"`
}

type MatchEndedResponseData struct {
	OverallWinner    *LeaderboardEntry  `json:"overallWinner,omitempty"`
	FinalLeaderboard []LeaderboardEntry `json:"finalLeaderboard"`
	TotalRounds      int                `json:"totalRounds"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

func DecodeJSON[T any](data json.RawMessage) (res T, err error) {
	if err := json.Unmarshal(data, &res); err != nil {
		return res, err
	}
	return res, nil
}
