// Package client implements a small typed websocket client for the quiz
// protocol, used by the transport tests.
package client

import (
	"encoding/json"
	"time"

	"mathrush-backend/api"

	"github.com/gorilla/websocket"
)

type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func NewClient(conn *websocket.Conn, timeout time.Duration) *Client {
	return &Client{
		conn:    conn,
		timeout: timeout,
	}
}

func (c *Client) Close() {
	c.conn.Close()
}

// ReadResponse reads the next server message. Replies and broadcasts share
// the read stream, callers dispatch on the response type.
func (c *Client) ReadResponse() (api.Response[json.RawMessage], error) {
	if c.timeout > 0 {
		deadline := time.Now().Add(c.timeout)
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return api.Response[json.RawMessage]{}, err
		}
	}
	res := api.Response[json.RawMessage]{}
	err := c.conn.ReadJSON(&res)
	return res, err
}

// ReadResponseOfType skips broadcasts until a message of the wanted type
// arrives.
func (c *Client) ReadResponseOfType(want api.ResponseType) (api.Response[json.RawMessage], error) {
	for {
		res, err := c.ReadResponse()
		if err != nil || res.Type == want {
			return res, err
		}
	}
}

func (c *Client) send(req any) error {
	if c.timeout > 0 {
		deadline := time.Now().Add(c.timeout)
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return c.conn.WriteJSON(req)
}

func (c *Client) Join(displayName, participantID string) error {
	return c.send(api.Request[api.JoinRequestData]{
		Type: api.RequestTypeJoin,
		Data: api.JoinRequestData{
			DisplayName:   displayName,
			ParticipantID: participantID,
		},
	})
}

func (c *Client) SubmitAnswer(value string) error {
	return c.send(api.Request[api.SubmitAnswerRequestData]{
		Type: api.RequestTypeSubmitAnswer,
		Data: api.SubmitAnswerRequestData{
			Value: api.AnswerValue(value),
		},
	})
}

func (c *Client) RequestLeaderboard() error {
	return c.send(api.Request[api.EmptyResponseData]{
		Type: api.RequestTypeLeaderboard,
	})
}
