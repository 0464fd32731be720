package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"loadboard/adapters/auth"
	"loadboard/adapters/ws"
	"loadboard/models"
)

var errBusy = fmt.Errorf("server busy: %w", models.ErrTimeout)

const codeUnauthenticated = "UNAUTHENTICATED"

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf 將錯誤轉為 HTTP 狀態碼與錯誤代碼
func statusOf(err error) (int, string) {
	if errors.Is(err, auth.ErrUnauthenticated) {
		return http.StatusUnauthorized, codeUnauthenticated
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return http.StatusBadRequest, ws.CodeInvalidArgument
	}
	code := ws.ErrorCode(err)
	switch code {
	case ws.CodeNotFound:
		return http.StatusNotFound, code
	case ws.CodeForbidden:
		return http.StatusForbidden, code
	case ws.CodeInvalidState, ws.CodeTimeout:
		return http.StatusConflict, code
	case ws.CodeInvalidArgument:
		return http.StatusBadRequest, code
	}
	return http.StatusInternalServerError, code
}

// abortWithError 回應只帶錯誤代碼與固定訊息，完整錯誤留在日誌
func (s *Server) abortWithError(c *gin.Context, err error) {
	status, code := statusOf(err)
	message := ws.CodeMessage(code)
	switch {
	case status == http.StatusInternalServerError:
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
	case code == codeUnauthenticated:
		message = "unauthenticated"
	default:
		s.logger.Debug("request rejected",
			slog.String("path", c.FullPath()),
			slog.String("code", code),
			slog.Any("error", err))
	}
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message})
}

// invalidArgument 將綁定或解析錯誤包裝成 models.ErrInvalidArgument
func invalidArgument(err error) error {
	return fmt.Errorf("%v: %w", err, models.ErrInvalidArgument)
}
