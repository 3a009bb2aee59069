package api

type HTTPErrorData struct {
	Code    HTTPErrorCode `json:"code"`
	Message string        `json:"message,omitempty"`
	Extra   any           `json:"extra,omitempty"`
}

type HTTPErrorCode uint8

const (
	InternalServerErrorHTTPCode HTTPErrorCode = 101
	StoreUnavailableHTTPCode    HTTPErrorCode = 102
)

type WebsocketErrorData struct {
	Request RequestType        `json:"request,omitempty"`
	Code    WebsocketErrorCode `json:"code"`
	Message string             `json:"message,omitempty"`
	Extra   any                `json:"extra,omitempty"`
}

type WebsocketErrorCode uint8

const (
	InvalidRequestCode      WebsocketErrorCode = 201
	InvalidInputCode        WebsocketErrorCode = 202
	NotJoinedCode           WebsocketErrorCode = 203
	ThrottledCode           WebsocketErrorCode = 204
	StoreUnavailableCode    WebsocketErrorCode = 205
	InternalServerErrorCode WebsocketErrorCode = 206
)

type ErrorCode interface {
	HTTPErrorCode | WebsocketErrorCode
}

type ErrorData[T ErrorCode] struct { //nolint: errname
	Request RequestType `json:"request,omitempty"`
	Code    T           `json:"code"`
	Message string      `json:"message,omitempty"`
	Extra   any         `json:"extra,omitempty"`
	Err     error       `json:"error,omitempty"`
}

func (e ErrorData[T]) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Err.Error()
}
