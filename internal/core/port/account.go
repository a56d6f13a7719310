package port

import (
	"context"

	"fastap/internal/core/domain"
	"fastap/internal/core/model/request"
	"fastap/internal/core/model/response"
)

// AccountRepository persists accounts. Lookups that find nothing return
// domain.ErrAccountNotFound; unique index violations return
// domain.ErrDuplicateUsername or domain.ErrDuplicateEmail.
type AccountRepository interface {
	// NextID allocates an identifier before the account is stored so tokens
	// minted at registration can reference it.
	NextID() string
	Create(ctx context.Context, account domain.Account) (domain.Account, error)
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByUsernameOrEmail(ctx context.Context, login string) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Update(ctx context.Context, id string, changes domain.AccountChanges) (domain.Account, error)
}

type AccountService interface {
	Register(ctx context.Context, req *request.RegisterRequest) (*domain.Account, error)
	Confirm(ctx context.Context, token string) (*domain.Account, error)
	Login(ctx context.Context, req *request.LoginRequest) (*response.LoginResponse, error)
	RequestRecovery(ctx context.Context, req *request.RecoveryRequest) error
	ChangePassword(ctx context.Context, envelope string, req *request.ChangePasswordRequest) error
	ModifySelf(ctx context.Context, actor domain.Account, req *request.ModifyAccountRequest) (*domain.Account, error)
	ModifyOther(ctx context.Context, req *request.ModifyOtherRequest) (*domain.Account, error)
	DeactivateSelf(ctx context.Context, actor domain.Account, req *request.DeactivateRequest) (*domain.Account, error)
	Enable(ctx context.Context, id string) (*domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	// Authenticate resolves a sealed session cookie value to an active account.
	Authenticate(ctx context.Context, envelope string) (*domain.Account, error)
}
