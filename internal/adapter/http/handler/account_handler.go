package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	. "fastap/internal/adapter/http/helper"
	"fastap/internal/adapter/http/middleware"
	"fastap/internal/core/domain"
	"fastap/internal/core/model/request"
	"fastap/internal/core/model/response"
	"fastap/internal/core/port"
	"fastap/internal/core/util"
)

const msgInvalidBody = "Los datos enviados no son válidos."

type AccountHandler struct {
	svc port.AccountService
}

func NewAccountHandler(svc port.AccountService) *AccountHandler {
	return &AccountHandler{
		svc: svc,
	}
}

func (h *AccountHandler) Register(c *gin.Context) {
	params, err := util.BindJSON[request.RegisterRequest](c)

	if err != nil {
		SendBadRequestError(c, "body", msgInvalidBody)
		return
	}

	account, err := h.svc.Register(c.Request.Context(), &params)

	if err != nil {
		SendAppError(c, err)
		return
	}

	SendSuccess(c, http.StatusOK, response.NewAccountResponse(*account),
		fmt.Sprintf("¡Hola %s, revisa tu correo para confirmar tu cuenta!", account.Username))
}

func (h *AccountHandler) ConfirmEmail(c *gin.Context) {
	account, err := h.svc.Confirm(c.Request.Context(), c.Param("token"))

	if err != nil {
		SendAppError(c, err)
		return
	}

	SendSuccess(c, http.StatusOK, response.NewAccountResponse(*account), "Cuenta confirmada!")
}

func (h *AccountHandler) RequestRecovery(c *gin.Context) {
	params, err := util.BindJSON[request.RecoveryRequest](c)

	if err != nil {
		SendBadRequestError(c, "body", msgInvalidBody)
		return
	}

	if err := h.svc.RequestRecovery(c.Request.Context(), &params); err != nil {
		SendAppError(c, err)
		return
	}

	SendSuccess(c, http.StatusOK, nil, "Email enviado.")
}

// ChangePassword takes the sealed recovery token from the path, or from the
// "token" query parameter the recovery link carries.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		token = c.Query("token")
	}

	if token == "" {
		SendUnauthorizedError(c, "Acceso no autorizado.")
		return
	}

	params, err := util.BindJSON[request.ChangePasswordRequest](c)

	if err != nil {
		SendBadRequestError(c, "body", msgInvalidBody)
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), token, &params); err != nil {
		SendAppError(c, err)
		return
	}

	SendSuccess(c, http.StatusOK, nil, "Password modificada con exito.")
}

func (h *AccountHandler) ModifySelf(c *gin.Context) {
	actor, ok := accountOf(c)

	if !ok {
		SendUnauthorizedError(c, "Acceso no autorizado.")
		return
	}

	params, err := util.BindJSON[request.ModifyAccountRequest](c)

	if err != nil {
		SendBadRequestError(c, "body", msgInvalidBody)
		return
	}

	account, err := h.svc.ModifySelf(c.Request.Context(), actor, &params)

	if err != nil {
		SendAppError(c, err)
		return
	}

	SendSuccess(c, http.StatusOK, response.NewAccountResponse(*account), "Cuenta modificada.")
}

func (h *AccountHandler) DeactivateSelf(c *gin.Context) {
	actor, ok := accountOf(c)

	if !ok {
		SendUnauthorizedError(c, "Acceso no autorizado.")
		return
	}

	params, err := util.BindJSON[request.DeactivateRequest](c)

	if err != nil {
		SendBadRequestError(c, "body", msgInvalidBody)
		return
	}

	account, err := h.svc.DeactivateSelf(c.Request.Context(), actor, &params)

	if err != nil {
		SendAppError(c, err)
		return
	}

	ClearSessionCookie(c)
	SendSuccess(c, http.StatusOK, response.NewAccountResponse(*account), "Cuenta eliminada.")
}

func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.svc.List(c.Request.Context())

	if err != nil {
		SendAppError(c, err)
		return
	}

	SendSuccess(c, http.StatusOK, response.NewAccountListResponse(accounts))
}

func (h *AccountHandler) ModifyOther(c *gin.Context) {
	params, err := util.BindJSON[request.ModifyOtherRequest](c)

	if err != nil {
		SendBadRequestError(c, "body", msgInvalidBody)
		return
	}

	account, err := h.svc.ModifyOther(c.Request.Context(), &params)

	if err != nil {
		SendAppError(c, err)
		return
	}

	SendSuccess(c, http.StatusOK, response.NewAccountResponse(*account), "Usuario modificado.")
}

func (h *AccountHandler) Enable(c *gin.Context) {
	account, err := h.svc.Enable(c.Request.Context(), c.Param("id"))

	if err != nil {
		SendAppError(c, err)
		return
	}

	SendSuccess(c, http.StatusOK, response.NewAccountResponse(*account), "Cuenta habilitada")
}

// accountOf is used by handlers mounted behind Session.
func accountOf(c *gin.Context) (domain.Account, bool) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		return domain.Account{}, false
	}

	return *account, true
}
