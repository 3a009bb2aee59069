package game

import (
	"sync"

	"github.com/lithammer/shortuuid/v3"
)

// Session ties a live websocket to a participant identity. It is created
// when the join request resolves and dropped on disconnect; the participant
// id itself is client-held and outlives the session.
//
// Multiple goroutines may invoke methods on a Session simultaneously.
type Session struct {
	id            string
	participantID string

	mu          sync.RWMutex
	displayName string
}

func NewSession(participantID, displayName string) *Session {
	return &Session{
		id:            shortuuid.New(),
		participantID: participantID,
		displayName:   displayName,
	}
}

// ID is a short tag identifying the connection in logs.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) ParticipantID() string {
	return s.participantID
}

func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

func (s *Session) SetDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayName = name
}
