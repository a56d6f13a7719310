package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"fastap/internal/core/domain"
	"fastap/internal/core/model/request"
	"fastap/internal/core/model/response"
	"fastap/internal/core/port"
	"fastap/internal/core/telemetry"
	"fastap/internal/core/util"
	"fastap/pkg/auth"
)

const serviceName = "account"

// Messages shown to API clients.
const (
	msgInvalidCredentials = "Credenciales inválidas."
	msgConfirmFirst       = "Confirma tu cuenta de correo."
	msgAccountDisabled    = "Cuenta inhabilitada."
	msgUsernameTaken      = "El username ya existe."
	msgEmailTaken         = "El email ya existe."
	msgAccountUnknown     = "Cuenta no registrada."
	msgUserUnknown        = "Usuario no registrado."
	msgUserNotFound       = "Usuario no encontrado."
	msgInvalidBody        = "Los datos enviados no son válidos."
	msgMissingID          = "Identificador no ingresado."
	msgMissingEnableID    = "Se requiere proporcionar un ID de usuario."
	msgWrongPassword      = "Password invalida."
	msgTokenExpired       = "Token invalido y/o expirado."
	msgTokenInvalid       = "Token invalido."
	msgBadDecrypt         = "Ha ocurrido un problema. Intente de nuevo."
	msgUnauthorized       = "Acceso no autorizado."
	msgForbidden          = "No autorizado."
)

type AccountConfig struct {
	// ConfirmURL receives the raw confirmation token as a trailing path segment.
	ConfirmURL string
	// RecoveryURL receives the sealed recovery token as the "token" query parameter.
	RecoveryURL string
	Separator   string
}

type AccountService struct {
	repo      port.AccountRepository
	mailer    port.Mailer
	validator port.Validator
	tokens    *auth.JWT
	cipher    *util.TokenCipher
	telemetry port.Telemetry
	config    AccountConfig
	now       func() time.Time
}

func NewAccountService(
	repo port.AccountRepository,
	mailer port.Mailer,
	validator port.Validator,
	tokens *auth.JWT,
	cipher *util.TokenCipher,
	probe port.Telemetry,
	config AccountConfig,
) *AccountService {
	if probe == nil {
		probe = telemetry.NewNoOpProbe()
	}

	if config.Separator == "" {
		config.Separator = "."
	}

	return &AccountService{
		repo:      repo,
		mailer:    mailer,
		validator: validator,
		tokens:    tokens,
		cipher:    cipher,
		telemetry: probe,
		config:    config,
		now:       time.Now,
	}
}

func (s *AccountService) Register(ctx context.Context, req *request.RegisterRequest) (_ *domain.Account, err error) {
	ctx, done := s.observe(ctx, "register", "")
	defer func() { done(err) }()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	hash, err := util.HashPassword(req.Password)

	if err != nil {
		slog.Error("Account#Register", "hash_password", err)
		return nil, domain.NewInternalError("Error al crear usuario.", err)
	}

	id := s.repo.NextID()

	token, err := s.tokens.IssueRecovery(auth.Claims{
		UID:      id,
		Username: req.Username,
		Name:     req.Name,
		Role:     string(domain.RoleRegular),
	})

	if err != nil {
		return nil, domain.NewInternalError("Error al crear usuario.", err)
	}

	now := s.now()

	account, err := s.repo.Create(ctx, domain.Account{
		ID:           id,
		Username:     req.Username,
		Name:         req.Name,
		Email:        req.Email,
		Password:     hash,
		ConfirmToken: token,
		Role:         domain.RoleRegular,
		Status:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	})

	if err != nil {
		return nil, s.storeError("Account#Register", err, "Error al crear usuario.")
	}

	link := strings.TrimRight(s.config.ConfirmURL, "/") + "/" + token

	if err := s.mailer.SendConfirmation(ctx, account.Email, account.Username, link); err != nil {
		slog.Error("Account#Register", "send_confirmation", err, "account_id", account.ID)
		return nil, domain.NewInternalError("Error al enviar el correo de confirmación.", err)
	}

	s.telemetry.RecordBusinessEvent(ctx, "account_registered", serviceName, account.ID, nil)

	return &account, nil
}

// Confirm activates the account a confirmation token was minted for.
// Confirming an already active account again is a no-op.
func (s *AccountService) Confirm(ctx context.Context, token string) (_ *domain.Account, err error) {
	ctx, done := s.observe(ctx, "confirm", "")
	defer func() { done(err) }()

	claims, err := s.verify("Account#Confirm", token)

	if err != nil {
		return nil, domain.NewUnauthorizedError(msgTokenExpired, err)
	}

	account, err := s.repo.GetByID(ctx, claims.UID)

	if err != nil {
		return nil, s.lookupError("Account#Confirm", err, msgAccountUnknown)
	}

	if !tokensEqual(account.ConfirmToken, token) {
		if account.State() == domain.AccountActive {
			return &account, nil
		}

		return nil, domain.NewUnauthorizedError(msgTokenExpired, nil)
	}

	updated, err := s.repo.Update(ctx, account.ID, domain.AccountChanges{
		Status:       domain.BoolPtr(true),
		ConfirmToken: domain.StringPtr(""),
	})

	if err != nil {
		return nil, s.lookupError("Account#Confirm", err, msgAccountUnknown)
	}

	s.telemetry.RecordBusinessEvent(ctx, "account_confirmed", serviceName, updated.ID, nil)

	return &updated, nil
}

func (s *AccountService) Login(ctx context.Context, req *request.LoginRequest) (_ *response.LoginResponse, err error) {
	ctx, done := s.observe(ctx, "login", "")
	defer func() { done(err) }()

	if req.Username == "" || req.Password == "" {
		return nil, domain.NewUnauthorizedError(msgInvalidCredentials, nil)
	}

	account, err := s.repo.GetByUsernameOrEmail(ctx, req.Username)

	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.NewUnauthorizedError(msgInvalidCredentials, err)
		}

		slog.Error("Account#Login", "get_by_username_or_email", err)
		return nil, domain.NewInternalError("Error al iniciar sesión.", err)
	}

	ok, err := util.VerifyPassword(req.Password, account.Password)

	if err != nil {
		slog.Error("Account#Login", "verify_password", err, "account_id", account.ID)
		return nil, domain.NewUnauthorizedError(msgInvalidCredentials, err)
	}

	if !ok {
		return nil, domain.NewUnauthorizedError(msgInvalidCredentials, nil)
	}

	switch account.State() {
	case domain.AccountUnconfirmed:
		return nil, domain.NewUnauthorizedError(msgConfirmFirst, nil)
	case domain.AccountDisabled:
		return nil, domain.NewUnauthorizedError(msgAccountDisabled, nil)
	case domain.AccountActive:
	}

	token, err := s.tokens.IssueSession(auth.Claims{
		UID:      account.ID,
		Username: account.Username,
		Name:     account.Name,
		Role:     string(account.Role),
	})

	if err != nil {
		return nil, domain.NewInternalError("Error al iniciar sesión.", err)
	}

	sealed, err := s.cipher.Seal(token, s.config.Separator)

	if err != nil {
		return nil, domain.NewInternalError("Error al iniciar sesión.", err)
	}

	return &response.LoginResponse{
		Message: fmt.Sprintf("¡Hola %s!", account.Username),
		Token:   sealed,
		Role:    string(account.Role),
	}, nil
}

// RequestRecovery mails a recovery link when the email is registered. Unknown
// emails succeed silently so callers cannot probe for accounts.
func (s *AccountService) RequestRecovery(ctx context.Context, req *request.RecoveryRequest) (err error) {
	ctx, done := s.observe(ctx, "request_recovery", "")
	defer func() { done(err) }()

	account, err := s.repo.GetByEmail(ctx, req.Email)

	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			slog.Info("Account#RequestRecovery", "unknown_email", true)
			return nil
		}

		slog.Error("Account#RequestRecovery", "get_by_email", err)
		return domain.NewInternalError("Error al recuperar la contraseña.", err)
	}

	token, err := s.tokens.IssueRecovery(auth.Claims{UID: account.ID, Username: account.Username})

	if err != nil {
		return domain.NewInternalError("Error al recuperar la contraseña.", err)
	}

	if _, err := s.repo.Update(ctx, account.ID, domain.AccountChanges{RecoveryToken: &token}); err != nil {
		slog.Error("Account#RequestRecovery", "store_token", err, "account_id", account.ID)
		return domain.NewInternalError("Error al recuperar la contraseña.", err)
	}

	sealed, err := s.cipher.Seal(token, s.config.Separator)

	if err != nil {
		return domain.NewInternalError("Error al recuperar la contraseña.", err)
	}

	link := s.config.RecoveryURL + "?token=" + url.QueryEscape(sealed)

	if err := s.mailer.SendRecovery(ctx, account.Email, account.Username, link); err != nil {
		slog.Error("Account#RequestRecovery", "send_recovery", err, "account_id", account.ID)
		return domain.NewInternalError("Error al recuperar la contraseña.", err)
	}

	s.telemetry.RecordBusinessEvent(ctx, "recovery_requested", serviceName, account.ID, nil)

	return nil
}

func (s *AccountService) ChangePassword(ctx context.Context, envelope string, req *request.ChangePasswordRequest) (err error) {
	ctx, done := s.observe(ctx, "change_password", "")
	defer func() { done(err) }()

	token, err := s.cipher.Open(envelope, s.config.Separator)

	if err != nil {
		if errors.Is(err, util.ErrMalformedEnvelope) {
			return domain.NewValidationError("token", msgTokenExpired)
		}

		return domain.NewValidationError("token", msgBadDecrypt)
	}

	claims, err := s.verify("Account#ChangePassword", token)

	if err != nil {
		return domain.NewUnauthorizedError(msgTokenExpired, err)
	}

	account, err := s.repo.GetByID(ctx, claims.UID)

	if err != nil {
		return s.lookupError("Account#ChangePassword", err, msgUserUnknown)
	}

	if !account.Status {
		return domain.NewForbiddenError(msgForbidden)
	}

	// Only the most recently issued recovery token is accepted.
	if !tokensEqual(account.RecoveryToken, token) {
		return domain.NewUnauthorizedError(msgTokenExpired, nil)
	}

	if err := s.validate(req); err != nil {
		return err
	}

	hash, err := util.HashPassword(req.NewPassword)

	if err != nil {
		return domain.NewInternalError("Error al cambiar la contraseña.", err)
	}

	_, err = s.repo.Update(ctx, account.ID, domain.AccountChanges{
		Password:      &hash,
		RecoveryToken: domain.StringPtr(""),
	})

	if err != nil {
		return s.lookupError("Account#ChangePassword", err, msgUserUnknown)
	}

	s.telemetry.RecordBusinessEvent(ctx, "password_changed", serviceName, account.ID, nil)

	return nil
}

func (s *AccountService) ModifySelf(ctx context.Context, actor domain.Account, req *request.ModifyAccountRequest) (_ *domain.Account, err error) {
	ctx, done := s.observe(ctx, "modify_self", actor.ID)
	defer func() { done(err) }()

	if req.IsEmpty() {
		return nil, domain.NewValidationError("body", msgInvalidBody)
	}

	if err := s.validate(req); err != nil {
		return nil, err
	}

	return s.modify(ctx, "Account#ModifySelf", actor.ID, req)
}

func (s *AccountService) ModifyOther(ctx context.Context, req *request.ModifyOtherRequest) (_ *domain.Account, err error) {
	ctx, done := s.observe(ctx, "modify_other", req.ID)
	defer func() { done(err) }()

	if strings.TrimSpace(req.ID) == "" {
		return nil, domain.NewValidationError("id", msgMissingID)
	}

	if req.ModifyAccountRequest.IsEmpty() {
		return nil, domain.NewValidationError("body", msgInvalidBody)
	}

	if err := s.validate(req); err != nil {
		return nil, err
	}

	return s.modify(ctx, "Account#ModifyOther", req.ID, &req.ModifyAccountRequest)
}

func (s *AccountService) modify(ctx context.Context, operation, id string, req *request.ModifyAccountRequest) (*domain.Account, error) {
	updated, err := s.repo.Update(ctx, id, domain.AccountChanges{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
	})

	if err != nil {
		return nil, s.storeError(operation, err, "Error al modificar el usuario.")
	}

	return &updated, nil
}

func (s *AccountService) DeactivateSelf(ctx context.Context, actor domain.Account, req *request.DeactivateRequest) (_ *domain.Account, err error) {
	ctx, done := s.observe(ctx, "deactivate_self", actor.ID)
	defer func() { done(err) }()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	ok, err := util.VerifyPassword(req.ConfirmPass, actor.Password)

	if err != nil || !ok {
		return nil, domain.NewUnauthorizedError(msgWrongPassword, err)
	}

	updated, err := s.repo.Update(ctx, actor.ID, domain.AccountChanges{Status: domain.BoolPtr(false)})

	if err != nil {
		return nil, s.lookupError("Account#DeactivateSelf", err, msgUserNotFound)
	}

	s.telemetry.RecordBusinessEvent(ctx, "account_deactivated", serviceName, updated.ID, nil)

	return &updated, nil
}

func (s *AccountService) Enable(ctx context.Context, id string) (_ *domain.Account, err error) {
	ctx, done := s.observe(ctx, "enable", id)
	defer func() { done(err) }()

	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("id", msgMissingEnableID)
	}

	updated, err := s.repo.Update(ctx, id, domain.AccountChanges{Status: domain.BoolPtr(true)})

	if err != nil {
		return nil, s.lookupError("Account#Enable", err, msgUserNotFound)
	}

	s.telemetry.RecordBusinessEvent(ctx, "account_enabled", serviceName, updated.ID, nil)

	return &updated, nil
}

func (s *AccountService) List(ctx context.Context) (_ []domain.Account, err error) {
	ctx, done := s.observe(ctx, "list", "")
	defer func() { done(err) }()

	accounts, err := s.repo.List(ctx)

	if err != nil {
		slog.Error("Account#List", "list", err)
		return nil, domain.NewInternalError("Error al obtener los usuarios.", err)
	}

	return accounts, nil
}

// Authenticate runs the session pipeline for a sealed cookie value and
// returns the active account it belongs to.
func (s *AccountService) Authenticate(ctx context.Context, envelope string) (_ *domain.Account, err error) {
	ctx, done := s.observe(ctx, "authenticate", "")
	defer func() { done(err) }()

	if envelope == "" {
		return nil, domain.NewUnauthorizedError(msgUnauthorized, nil)
	}

	token, err := s.cipher.Open(envelope, s.config.Separator)

	if err != nil {
		if errors.Is(err, util.ErrMalformedEnvelope) {
			return nil, domain.NewValidationError("authorization", msgTokenExpired)
		}

		return nil, domain.NewValidationError("authorization", msgBadDecrypt)
	}

	claims, err := s.verify("Account#Authenticate", token)

	if err != nil {
		return nil, domain.NewUnauthorizedError(msgTokenInvalid, err)
	}

	account, err := s.repo.GetByID(ctx, claims.UID)

	if err != nil {
		return nil, s.lookupError("Account#Authenticate", err, msgUserUnknown)
	}

	if !account.Status {
		return nil, domain.NewForbiddenError(msgForbidden)
	}

	return &account, nil
}

func (s *AccountService) verify(operation, token string) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(token)

	if errors.Is(err, auth.ErrTokenExpired) {
		slog.Info(operation, "token", "expired")
	}

	return claims, err
}

// validate returns the first field failure as a domain validation error.
func (s *AccountService) validate(req any) error {
	err := s.validator.ValidateStruct(req)

	if err == nil {
		return nil
	}

	errs := s.validator.FormatValidationErrors(err)

	if len(errs) == 0 {
		return domain.NewValidationError("body", msgInvalidBody)
	}

	return domain.NewValidationError(errs[0].Field, errs[0].Message)
}

func (s *AccountService) lookupError(operation string, err error, notFound string) error {
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.NewNotFoundError(notFound)
	}

	slog.Error(operation, "repository", err)

	return domain.NewInternalError("Error interno del servidor.", err)
}

func (s *AccountService) storeError(operation string, err error, internal string) error {
	switch {
	case errors.Is(err, domain.ErrDuplicateUsername):
		return domain.NewConflictError("username", msgUsernameTaken, err)
	case errors.Is(err, domain.ErrDuplicateEmail):
		return domain.NewConflictError("email", msgEmailTaken, err)
	case errors.Is(err, domain.ErrAccountNotFound):
		return domain.NewNotFoundError(msgUserNotFound)
	}

	slog.Error(operation, "repository", err)

	return domain.NewInternalError(internal, err)
}

func (s *AccountService) observe(ctx context.Context, operation, accountID string) (context.Context, func(error)) {
	ctx, span := s.telemetry.StartServiceSpan(ctx, serviceName, operation, accountID, nil)
	start := time.Now()

	return ctx, func(err error) {
		s.telemetry.RecordServiceOperation(ctx, serviceName, operation, accountID, time.Since(start), err)
		span.End()
	}
}

func tokensEqual(stored, presented string) bool {
	if stored == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
