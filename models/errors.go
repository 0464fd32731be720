package models

import "errors"

// 領域錯誤分類，呼叫端以 errors.Is 判斷
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidState   = errors.New("invalid state")
	ErrTimeout        = errors.New("timeout")
	ErrConnectionGone = errors.New("connection gone")

	// ErrInvalidArgument 代表輸入本身不合法，與實體狀態無關
	ErrInvalidArgument = errors.New("invalid argument")
)
