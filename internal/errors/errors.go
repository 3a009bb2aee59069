// Package errors maps service failures to the typed API error model and
// writes them to the offending HTTP response or websocket.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mathrush-backend/api"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

var errorCodeHTTPStatusCode = map[api.HTTPErrorCode]int{
	api.InternalServerErrorHTTPCode: http.StatusInternalServerError,
	api.StoreUnavailableHTTPCode:    http.StatusServiceUnavailable,
}

func WriteHTTPError(ctx context.Context, w http.ResponseWriter, err error) {
	res := api.HTTPErrorData{}
	statusCode := http.StatusInternalServerError

	apiErr := &api.ErrorData[api.HTTPErrorCode]{}
	if errors.As(err, apiErr) {
		res.Code = apiErr.Code
		res.Message = apiErr.Message
		res.Extra = apiErr.Extra
		if code, ok := errorCodeHTTPStatusCode[apiErr.Code]; ok {
			statusCode = code
		}
	} else {
		res.Code = api.InternalServerErrorHTTPCode
		res.Message = "unexpected error"
	}

	slog.ErrorContext(ctx, "http error",
		slog.Any("error", err),
		slog.Any("error_code", res.Code),
		slog.Int("status_code", statusCode))

	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.ErrorContext(ctx, "http error: failed to encode response", slog.Any("error", err))
	}
}

func WriteWebsocketError(ctx context.Context, conn *websocket.Conn, err error) {
	res := api.Response[api.WebsocketErrorData]{
		Type: api.ResponseTypeError,
	}

	apiErr := &api.ErrorData[api.WebsocketErrorCode]{}
	if errors.As(err, apiErr) {
		res.Data.Request = apiErr.Request
		res.Data.Code = apiErr.Code
		res.Data.Message = apiErr.Message
		res.Data.Extra = apiErr.Extra
	} else {
		res.Data.Code = api.InternalServerErrorCode
		res.Data.Message = "unexpected error"
	}

	slog.ErrorContext(ctx, "ws error",
		slog.Any("error", err),
		slog.Any("error_code", res.Data.Code))

	if err := wsjson.Write(ctx, conn, res); err != nil {
		slog.ErrorContext(ctx, "ws error: failed to write response", slog.Any("error", err))
	}
}

func InvalidRequestError(err error, req api.RequestType, cause string) api.ErrorData[api.WebsocketErrorCode] {
	return api.ErrorData[api.WebsocketErrorCode]{
		Request: req,
		Code:    api.InvalidRequestCode,
		Message: "invalid request",
		Extra: struct {
			Cause string `json:"cause"`
		}{
			Cause: cause,
		},
		Err: err,
	}
}

func InputValidationError(err error, req api.RequestType, fields map[string]string) api.ErrorData[api.WebsocketErrorCode] {
	return api.ErrorData[api.WebsocketErrorCode]{
		Request: req,
		Code:    api.InvalidInputCode,
		Message: "invalid input",
		Extra:   fields,
		Err:     err,
	}
}

func NotJoinedError(req api.RequestType) api.ErrorData[api.WebsocketErrorCode] {
	return api.ErrorData[api.WebsocketErrorCode]{
		Request: req,
		Code:    api.NotJoinedCode,
		Message: "join before sending this request",
	}
}

func ThrottledError(req api.RequestType) api.ErrorData[api.WebsocketErrorCode] {
	return api.ErrorData[api.WebsocketErrorCode]{
		Request: req,
		Code:    api.ThrottledCode,
		Message: "too many submissions, slow down",
	}
}

// StoreUnavailableError reports a failed durable operation. The submission is
// not retried server side, the client is told to resubmit instead.
func StoreUnavailableError(err error, req api.RequestType) api.ErrorData[api.WebsocketErrorCode] {
	return api.ErrorData[api.WebsocketErrorCode]{
		Request: req,
		Code:    api.StoreUnavailableCode,
		Message: "temporary failure, please resubmit",
		Err:     err,
	}
}

func InternalServerError(err error, req api.RequestType) api.ErrorData[api.WebsocketErrorCode] {
	return api.ErrorData[api.WebsocketErrorCode]{
		Request: req,
		Code:    api.InternalServerErrorCode,
		Message: "internal server error",
		Err:     err,
	}
}

func HTTPInternalServerError(err error) api.ErrorData[api.HTTPErrorCode] {
	return api.ErrorData[api.HTTPErrorCode]{
		Code:    api.InternalServerErrorHTTPCode,
		Message: "internal server error",
		Err:     err,
	}
}

func HTTPStoreUnavailableError(err error) api.ErrorData[api.HTTPErrorCode] {
	return api.ErrorData[api.HTTPErrorCode]{
		Code:    api.StoreUnavailableHTTPCode,
		Message: "store unavailable",
		Err:     err,
	}
}
