package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"loadboard/models"
)

// 訊框類型
const (
	TypeAck   = "ack"
	TypeError = "error"
	TypePing  = "ping"
)

// 錯誤代碼
const (
	CodeNotFound        = "NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeInvalidState    = "INVALID_STATE"
	CodeTimeout         = "TIMEOUT"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInternal        = "INTERNAL"
)

var ErrUnknownCommand = fmt.Errorf("unknown command: %w", models.ErrInvalidArgument)

// Frame 是雙向共用的訊框格式
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode 將領域錯誤轉換為回傳給客戶端的錯誤代碼
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, models.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, models.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, models.ErrTimeout):
		return CodeTimeout
	case errors.Is(err, models.ErrInvalidArgument):
		return CodeInvalidArgument
	}
	return CodeInternal
}

// 回傳給客戶端的錯誤訊息，完整錯誤只記錄在日誌
var errorMessages = map[string]string{
	CodeNotFound:        "not found",
	CodeForbidden:       "forbidden",
	CodeInvalidState:    "invalid state",
	CodeTimeout:         "timed out, try again",
	CodeInvalidArgument: "invalid argument",
	CodeInternal:        "internal error",
}

// CodeMessage 回傳錯誤代碼對應的固定訊息
func CodeMessage(code string) string {
	if message, ok := errorMessages[code]; ok {
		return message
	}
	return errorMessages[CodeInternal]
}

// ErrorMessage 只依錯誤代碼回傳固定訊息，不揭露錯誤鏈中的識別碼或內部細節
func ErrorMessage(err error) string {
	if errors.Is(err, ErrUnknownCommand) {
		return "unknown command"
	}
	return CodeMessage(ErrorCode(err))
}

func ackFrame(requestID string, result any) ([]byte, error) {
	frame := Frame{Type: TypeAck, RequestID: requestID}
	if result != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		frame.Payload = payload
	}
	return json.Marshal(frame)
}

func errorFrame(requestID string, code, message string) []byte {
	payload, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	data, _ := json.Marshal(Frame{Type: TypeError, RequestID: requestID, Payload: payload})
	return data
}

var pingFrame = []byte(`{"type":"ping"}`)
