package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	. "fastap/internal/adapter/http/helper"
	"fastap/internal/core/model/request"
	"fastap/internal/core/model/response"
	"fastap/internal/core/port"
	"fastap/internal/core/util"
)

type SessionHandler struct {
	svc port.AccountService
}

func NewSessionHandler(svc port.AccountService) *SessionHandler {
	return &SessionHandler{
		svc: svc,
	}
}

// Login sets the sealed session cookie and echoes the token for clients that
// cannot read it.
func (h *SessionHandler) Login(c *gin.Context) {
	params, err := util.BindJSON[request.LoginRequest](c)

	if err != nil {
		SendBadRequestError(c, "body", msgInvalidBody)
		return
	}

	login, err := h.svc.Login(c.Request.Context(), &params)

	if err != nil {
		SendAppError(c, err)
		return
	}

	SetSessionCookie(c, login.Token)

	c.JSON(http.StatusOK, login)
}

// Validate runs the session pipeline without mounting Session, answering
// with the role of the cookie's account.
func (h *SessionHandler) Validate(c *gin.Context) {
	account, err := h.svc.Authenticate(c.Request.Context(), SessionValue(c))

	if err != nil {
		SendAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SessionResponse{Role: string(account.Role)})
}

func (h *SessionHandler) Close(c *gin.Context) {
	ClearSessionCookie(c)

	SendSuccess(c, http.StatusOK, nil, "Session closed")
}
