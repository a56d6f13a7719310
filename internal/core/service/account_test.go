package service_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"fastap/internal/adapter/database/sqlite"
	"fastap/internal/adapter/database/sqlite/repository"
	"fastap/internal/adapter/http/validation"
	"fastap/internal/core/domain"
	"fastap/internal/core/model/request"
	"fastap/internal/core/service"
	"fastap/internal/core/telemetry"
	"fastap/internal/core/util"
	"fastap/pkg/auth"
	. "fastap/pkg/test"
	"fastap/pkg/test/factory"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/suite"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	confirmURL  = "https://shop.example.com/confirm"
	recoveryURL = "https://shop.example.com/recovery"
)

type sentMail struct {
	Email    string
	Username string
	Link     string
}

type recordingMailer struct {
	mu            sync.Mutex
	confirmations []sentMail
	recoveries    []sentMail
	err           error
}

func (m *recordingMailer) SendConfirmation(_ context.Context, email, username, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.confirmations = append(m.confirmations, sentMail{email, username, link})
	return m.err
}

func (m *recordingMailer) SendRecovery(_ context.Context, email, username, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recoveries = append(m.recoveries, sentMail{email, username, link})
	return m.err
}

type AccountServiceTestSuite struct {
	suite.Suite
	db      *sqlite.DB
	repo    *repository.AccountRepository
	mailer  *recordingMailer
	tokens  *auth.JWT
	cipher  *util.TokenCipher
	service *service.AccountService
	now     time.Time
	ctx     context.Context
}

func (s *AccountServiceTestSuite) SetupTest() {
	RegisterTestingT(s.T())
	s.db = InitTestDB()
	s.repo = repository.NewAccountRepository(s.db, telemetry.NewNoOpProbe())
	s.mailer = &recordingMailer{}
	s.now = time.Now()
	s.ctx = context.Background()

	tokens, err := auth.NewJWT(testSecret, auth.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	s.tokens = tokens

	cipher, err := util.NewRandomTokenCipher()
	s.Require().NoError(err)
	s.cipher = cipher

	s.service = service.NewAccountService(s.repo, s.mailer, validation.New(), s.tokens, s.cipher, nil, service.AccountConfig{
		ConfirmURL:  confirmURL,
		RecoveryURL: recoveryURL,
	})
}

func (s *AccountServiceTestSuite) TearDownTest() {
	TeardownTestDB(s.T(), s.db)
}

func TestAccountServiceTestSuite(t *testing.T) {
	RegisterTestingT(t)
	suite.Run(t, new(AccountServiceTestSuite))
}

func expectAppError(err error, kind domain.ErrorKind, message string) {
	var appErr *domain.Error

	ExpectWithOffset(1, errors.As(err, &appErr)).To(BeTrue(), "expected *domain.Error, got %v", err)
	ExpectWithOffset(1, appErr.Kind).To(Equal(kind))
	ExpectWithOffset(1, appErr.Message).To(Equal(message))
}

func (s *AccountServiceTestSuite) seed(overrides ...map[string]any) domain.Account {
	account, err := s.repo.Create(s.ctx, factory.NewAccount(overrides...))
	s.Require().NoError(err)

	return account
}

func (s *AccountServiceTestSuite) register(username, email string) *domain.Account {
	account, err := s.service.Register(s.ctx, &request.RegisterRequest{
		Username: username,
		Name:     "Alice Doe",
		Email:    email,
		Password: "Secret1",
	})
	s.Require().NoError(err)

	return account
}

func (s *AccountServiceTestSuite) confirmToken() string {
	link := s.mailer.confirmations[len(s.mailer.confirmations)-1].Link
	return strings.TrimPrefix(link, confirmURL+"/")
}

func (s *AccountServiceTestSuite) recoveryEnvelope() string {
	link, err := url.Parse(s.mailer.recoveries[len(s.mailer.recoveries)-1].Link)
	s.Require().NoError(err)

	return link.Query().Get("token")
}

func (s *AccountServiceTestSuite) TestRegister_Success() {
	account := s.register("alice1", "alice@example.com")

	Expect(account.ID).ToNot(BeEmpty())
	Expect(account.Role).To(Equal(domain.RoleRegular))
	Expect(account.Status).To(BeFalse())
	Expect(account.State()).To(Equal(domain.AccountUnconfirmed))
	Expect(account.Password).ToNot(Equal("Secret1"))

	Expect(s.mailer.confirmations).To(HaveLen(1))
	Expect(s.mailer.confirmations[0].Email).To(Equal("alice@example.com"))
	Expect(s.mailer.confirmations[0].Link).To(Equal(confirmURL + "/" + account.ConfirmToken))

	claims, err := s.tokens.Verify(account.ConfirmToken)
	Expect(err).ToNot(HaveOccurred())
	Expect(claims.UID).To(Equal(account.ID))
	Expect(claims.Username).To(Equal("alice1"))
}

func (s *AccountServiceTestSuite) TestRegister_Validation() {
	_, err := s.service.Register(s.ctx, &request.RegisterRequest{
		Username: "al",
		Name:     "Alice Doe",
		Email:    "alice@example.com",
		Password: "Secret1",
	})
	expectAppError(err, domain.KindValidation, "Longitud minima de 5 y maxima de 10")

	_, err = s.service.Register(s.ctx, &request.RegisterRequest{
		Username: "alice1",
		Name:     "Alice Doe",
		Email:    "alice@example",
		Password: "Secret1",
	})
	expectAppError(err, domain.KindValidation, "Formato de email inválido.")

	_, err = s.service.Register(s.ctx, &request.RegisterRequest{
		Username: "alice1",
		Name:     "Alice Doe",
		Email:    "alice@example.com",
		Password: "secret1",
	})
	expectAppError(err, domain.KindValidation, "Contraseña insegura.")

	Expect(s.mailer.confirmations).To(BeEmpty())
}

func (s *AccountServiceTestSuite) TestRegister_Duplicates() {
	s.register("alice1", "alice@example.com")

	_, err := s.service.Register(s.ctx, &request.RegisterRequest{
		Username: "alice1",
		Name:     "Alice Doe",
		Email:    "other@example.com",
		Password: "Secret1",
	})
	expectAppError(err, domain.KindConflict, "El username ya existe.")

	_, err = s.service.Register(s.ctx, &request.RegisterRequest{
		Username: "alice2",
		Name:     "Alice Doe",
		Email:    "alice@example.com",
		Password: "Secret1",
	})
	expectAppError(err, domain.KindConflict, "El email ya existe.")
}

func (s *AccountServiceTestSuite) TestRegister_MailFailureKeepsAccount() {
	s.mailer.err = errors.New("smtp down")

	_, err := s.service.Register(s.ctx, &request.RegisterRequest{
		Username: "alice1",
		Name:     "Alice Doe",
		Email:    "alice@example.com",
		Password: "Secret1",
	})
	expectAppError(err, domain.KindInternal, "Error al enviar el correo de confirmación.")

	_, err = s.repo.GetByEmail(s.ctx, "alice@example.com")
	Expect(err).ToNot(HaveOccurred())
}

func (s *AccountServiceTestSuite) TestConfirm_ActivatesOnce() {
	registered := s.register("alice1", "alice@example.com")
	token := s.confirmToken()

	confirmed, err := s.service.Confirm(s.ctx, token)
	Expect(err).ToNot(HaveOccurred())
	Expect(confirmed.ID).To(Equal(registered.ID))
	Expect(confirmed.Status).To(BeTrue())
	Expect(confirmed.ConfirmToken).To(BeEmpty())

	again, err := s.service.Confirm(s.ctx, token)
	Expect(err).ToNot(HaveOccurred())
	Expect(again.Status).To(BeTrue())
}

func (s *AccountServiceTestSuite) TestConfirm_Rejections() {
	_, err := s.service.Confirm(s.ctx, "garbage")
	expectAppError(err, domain.KindUnauthorized, "Token invalido y/o expirado.")

	s.register("alice1", "alice@example.com")
	token := s.confirmToken()

	s.now = s.now.Add(auth.RecoveryTTL + time.Minute)

	_, err = s.service.Confirm(s.ctx, token)
	expectAppError(err, domain.KindUnauthorized, "Token invalido y/o expirado.")
}

func (s *AccountServiceTestSuite) TestConfirm_UnknownAccount() {
	token, err := s.tokens.IssueRecovery(auth.Claims{UID: "missing"})
	Expect(err).ToNot(HaveOccurred())

	_, err = s.service.Confirm(s.ctx, token)
	expectAppError(err, domain.KindNotFound, "Cuenta no registrada.")
}

func (s *AccountServiceTestSuite) TestLogin_RequiresConfirmation() {
	s.register("alice1", "alice@example.com")

	_, err := s.service.Login(s.ctx, &request.LoginRequest{Username: "alice1", Password: "Secret1"})
	expectAppError(err, domain.KindUnauthorized, "Confirma tu cuenta de correo.")

	_, err = s.service.Confirm(s.ctx, s.confirmToken())
	Expect(err).ToNot(HaveOccurred())

	login, err := s.service.Login(s.ctx, &request.LoginRequest{Username: "alice@example.com", Password: "Secret1"})
	Expect(err).ToNot(HaveOccurred())
	Expect(login.Message).To(Equal("¡Hola alice1!"))
	Expect(login.Role).To(Equal("REGULAR"))

	account, err := s.service.Authenticate(s.ctx, login.Token)
	Expect(err).ToNot(HaveOccurred())
	Expect(account.Username).To(Equal("alice1"))
}

func (s *AccountServiceTestSuite) TestLogin_InvalidCredentials() {
	s.seed(map[string]any{"Username": "alice1"})

	cases := []request.LoginRequest{
		{Username: "alice1", Password: "Wrong1"},
		{Username: "nobody", Password: "Secret1"},
		{Username: "", Password: "Secret1"},
		{Username: "alice1", Password: ""},
	}

	for _, req := range cases {
		_, err := s.service.Login(s.ctx, &req)
		expectAppError(err, domain.KindUnauthorized, "Credenciales inválidas.")
	}
}

func (s *AccountServiceTestSuite) TestLogin_Disabled() {
	s.seed(map[string]any{"Username": "alice1", "Status": false})

	_, err := s.service.Login(s.ctx, &request.LoginRequest{Username: "alice1", Password: factory.DefaultPassword})
	expectAppError(err, domain.KindUnauthorized, "Cuenta inhabilitada.")
}

func (s *AccountServiceTestSuite) TestRecovery_UnknownEmailIsSilent() {
	err := s.service.RequestRecovery(s.ctx, &request.RecoveryRequest{Email: "nobody@example.com"})

	Expect(err).ToNot(HaveOccurred())
	Expect(s.mailer.recoveries).To(BeEmpty())
}

func (s *AccountServiceTestSuite) TestRecovery_ChangePassword() {
	account := s.seed(map[string]any{"Username": "alice1", "Email": "alice@example.com"})

	err := s.service.RequestRecovery(s.ctx, &request.RecoveryRequest{Email: "alice@example.com"})
	Expect(err).ToNot(HaveOccurred())
	Expect(s.mailer.recoveries).To(HaveLen(1))
	Expect(s.mailer.recoveries[0].Link).To(HavePrefix(recoveryURL + "?token="))

	envelope := s.recoveryEnvelope()

	err = s.service.ChangePassword(s.ctx, envelope, &request.ChangePasswordRequest{NewPassword: "Changed2"})
	Expect(err).ToNot(HaveOccurred())

	stored, err := s.repo.GetByID(s.ctx, account.ID)
	Expect(err).ToNot(HaveOccurred())
	Expect(stored.RecoveryToken).To(BeEmpty())

	_, err = s.service.Login(s.ctx, &request.LoginRequest{Username: "alice1", Password: "Changed2"})
	Expect(err).ToNot(HaveOccurred())

	err = s.service.ChangePassword(s.ctx, envelope, &request.ChangePasswordRequest{NewPassword: "Again3x"})
	expectAppError(err, domain.KindUnauthorized, "Token invalido y/o expirado.")
}

func (s *AccountServiceTestSuite) TestRecovery_OnlyLatestTokenIsAccepted() {
	s.seed(map[string]any{"Email": "alice@example.com"})

	Expect(s.service.RequestRecovery(s.ctx, &request.RecoveryRequest{Email: "alice@example.com"})).To(Succeed())
	first := s.recoveryEnvelope()

	s.now = s.now.Add(time.Second)

	Expect(s.service.RequestRecovery(s.ctx, &request.RecoveryRequest{Email: "alice@example.com"})).To(Succeed())
	second := s.recoveryEnvelope()

	err := s.service.ChangePassword(s.ctx, first, &request.ChangePasswordRequest{NewPassword: "Changed2"})
	expectAppError(err, domain.KindUnauthorized, "Token invalido y/o expirado.")

	err = s.service.ChangePassword(s.ctx, second, &request.ChangePasswordRequest{NewPassword: "Changed2"})
	Expect(err).ToNot(HaveOccurred())
}

func (s *AccountServiceTestSuite) TestChangePassword_Rejections() {
	s.seed(map[string]any{"Email": "alice@example.com"})

	err := s.service.ChangePassword(s.ctx, "no-separator", &request.ChangePasswordRequest{NewPassword: "Changed2"})
	expectAppError(err, domain.KindValidation, "Token invalido y/o expirado.")

	err = s.service.ChangePassword(s.ctx, "abcdef.00", &request.ChangePasswordRequest{NewPassword: "Changed2"})
	expectAppError(err, domain.KindValidation, "Ha ocurrido un problema. Intente de nuevo.")

	Expect(s.service.RequestRecovery(s.ctx, &request.RecoveryRequest{Email: "alice@example.com"})).To(Succeed())
	envelope := s.recoveryEnvelope()

	err = s.service.ChangePassword(s.ctx, envelope, &request.ChangePasswordRequest{NewPassword: "weak"})
	expectAppError(err, domain.KindValidation, "Contraseña insegura.")

	s.now = s.now.Add(auth.RecoveryTTL + time.Minute)

	err = s.service.ChangePassword(s.ctx, envelope, &request.ChangePasswordRequest{NewPassword: "Changed2"})
	expectAppError(err, domain.KindUnauthorized, "Token invalido y/o expirado.")
}

func (s *AccountServiceTestSuite) TestChangePassword_InactiveAccount() {
	account := s.seed(map[string]any{"Email": "alice@example.com"})

	Expect(s.service.RequestRecovery(s.ctx, &request.RecoveryRequest{Email: "alice@example.com"})).To(Succeed())
	envelope := s.recoveryEnvelope()

	_, err := s.repo.Update(s.ctx, account.ID, domain.AccountChanges{Status: domain.BoolPtr(false)})
	Expect(err).ToNot(HaveOccurred())

	err = s.service.ChangePassword(s.ctx, envelope, &request.ChangePasswordRequest{NewPassword: "Changed2"})
	expectAppError(err, domain.KindForbidden, "No autorizado.")
}

func (s *AccountServiceTestSuite) TestModifySelf() {
	actor := s.seed(map[string]any{"Username": "alice1"})
	s.seed(map[string]any{"Username": "bob12"})

	_, err := s.service.ModifySelf(s.ctx, actor, &request.ModifyAccountRequest{})
	expectAppError(err, domain.KindValidation, "Los datos enviados no son válidos.")

	_, err = s.service.ModifySelf(s.ctx, actor, &request.ModifyAccountRequest{Name: domain.StringPtr("abc")})
	expectAppError(err, domain.KindValidation, "Nombre no valido.")

	_, err = s.service.ModifySelf(s.ctx, actor, &request.ModifyAccountRequest{Username: domain.StringPtr("bob12")})
	expectAppError(err, domain.KindConflict, "El username ya existe.")

	updated, err := s.service.ModifySelf(s.ctx, actor, &request.ModifyAccountRequest{Name: domain.StringPtr("Alice Cooper")})
	Expect(err).ToNot(HaveOccurred())
	Expect(updated.Name).To(Equal("Alice Cooper"))
	Expect(updated.Username).To(Equal("alice1"))
}

func (s *AccountServiceTestSuite) TestModifyOther() {
	target := s.seed()

	_, err := s.service.ModifyOther(s.ctx, &request.ModifyOtherRequest{
		ModifyAccountRequest: request.ModifyAccountRequest{Name: domain.StringPtr("Renamed User")},
	})
	expectAppError(err, domain.KindValidation, "Identificador no ingresado.")

	_, err = s.service.ModifyOther(s.ctx, &request.ModifyOtherRequest{
		ID:                   "missing",
		ModifyAccountRequest: request.ModifyAccountRequest{Name: domain.StringPtr("Renamed User")},
	})
	expectAppError(err, domain.KindNotFound, "Usuario no encontrado.")

	updated, err := s.service.ModifyOther(s.ctx, &request.ModifyOtherRequest{
		ID:                   target.ID,
		ModifyAccountRequest: request.ModifyAccountRequest{Email: domain.StringPtr("renamed@example.com")},
	})
	Expect(err).ToNot(HaveOccurred())
	Expect(updated.Email).To(Equal("renamed@example.com"))
}

func (s *AccountServiceTestSuite) TestDeactivateSelf() {
	actor := s.seed(map[string]any{"Username": "alice1"})

	_, err := s.service.DeactivateSelf(s.ctx, actor, &request.DeactivateRequest{})
	expectAppError(err, domain.KindValidation, "Confirma la contraseña.")

	_, err = s.service.DeactivateSelf(s.ctx, actor, &request.DeactivateRequest{ConfirmPass: "Wrong1"})
	expectAppError(err, domain.KindUnauthorized, "Password invalida.")

	login, err := s.service.Login(s.ctx, &request.LoginRequest{Username: "alice1", Password: factory.DefaultPassword})
	Expect(err).ToNot(HaveOccurred())

	deactivated, err := s.service.DeactivateSelf(s.ctx, actor, &request.DeactivateRequest{ConfirmPass: factory.DefaultPassword})
	Expect(err).ToNot(HaveOccurred())
	Expect(deactivated.State()).To(Equal(domain.AccountDisabled))

	_, err = s.service.Authenticate(s.ctx, login.Token)
	expectAppError(err, domain.KindForbidden, "No autorizado.")

	_, err = s.service.Login(s.ctx, &request.LoginRequest{Username: "alice1", Password: factory.DefaultPassword})
	expectAppError(err, domain.KindUnauthorized, "Cuenta inhabilitada.")
}

func (s *AccountServiceTestSuite) TestEnable() {
	target := s.seed(map[string]any{"Status": false})

	_, err := s.service.Enable(s.ctx, " ")
	expectAppError(err, domain.KindValidation, "Se requiere proporcionar un ID de usuario.")

	_, err = s.service.Enable(s.ctx, "missing")
	expectAppError(err, domain.KindNotFound, "Usuario no encontrado.")

	enabled, err := s.service.Enable(s.ctx, target.ID)
	Expect(err).ToNot(HaveOccurred())
	Expect(enabled.Status).To(BeTrue())
}

func (s *AccountServiceTestSuite) TestList() {
	s.seed()
	s.seed()

	accounts, err := s.service.List(s.ctx)

	Expect(err).ToNot(HaveOccurred())
	Expect(accounts).To(HaveLen(2))
}

func (s *AccountServiceTestSuite) TestAuthenticate_Pipeline() {
	_, err := s.service.Authenticate(s.ctx, "")
	expectAppError(err, domain.KindUnauthorized, "Acceso no autorizado.")

	_, err = s.service.Authenticate(s.ctx, "no-separator")
	expectAppError(err, domain.KindValidation, "Token invalido y/o expirado.")

	_, err = s.service.Authenticate(s.ctx, "abcdef.00")
	expectAppError(err, domain.KindValidation, "Ha ocurrido un problema. Intente de nuevo.")

	sealed, err := s.cipher.Seal("not-a-jwt", ".")
	Expect(err).ToNot(HaveOccurred())

	_, err = s.service.Authenticate(s.ctx, sealed)
	expectAppError(err, domain.KindUnauthorized, "Token invalido.")

	token, err := s.tokens.IssueSession(auth.Claims{UID: "missing"})
	Expect(err).ToNot(HaveOccurred())

	sealed, err = s.cipher.Seal(token, ".")
	Expect(err).ToNot(HaveOccurred())

	_, err = s.service.Authenticate(s.ctx, sealed)
	expectAppError(err, domain.KindNotFound, "Usuario no registrado.")
}

func (s *AccountServiceTestSuite) TestAuthenticate_ExpiredSession() {
	s.seed(map[string]any{"Username": "alice1"})

	login, err := s.service.Login(s.ctx, &request.LoginRequest{Username: "alice1", Password: factory.DefaultPassword})
	Expect(err).ToNot(HaveOccurred())

	s.now = s.now.Add(auth.SessionTTL + time.Minute)

	_, err = s.service.Authenticate(s.ctx, login.Token)
	expectAppError(err, domain.KindUnauthorized, "Token invalido.")
}
