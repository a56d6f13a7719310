package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fastap/internal/adapter/database/postgres"
	"fastap/internal/core/domain"
	"fastap/internal/core/port"
	tel "fastap/internal/core/telemetry"
	"fastap/pkg/tracing"
)

const (
	accountsTable = "accounts"
	dbSystem      = "postgresql"

	usernameConstraint = "accounts_username_key"
	emailConstraint    = "accounts_email_key"
)

var accountColumns = []string{
	"id", "username", "name", "email", "password",
	"confirm_email", "recovery_token", "role", "status",
	"created_at", "updated_at",
}

type AccountRepository struct {
	db        *postgres.DB
	telemetry port.Telemetry
	now       func() time.Time
}

func NewAccountRepository(db *postgres.DB, telemetry port.Telemetry) *AccountRepository {
	if telemetry == nil {
		telemetry = tel.NewNoOpProbe()
	}

	return &AccountRepository{
		db:        db,
		telemetry: telemetry,
		now:       time.Now,
	}
}

var _ port.AccountRepository = (*AccountRepository)(nil)

func (r *AccountRepository) NextID() string {
	return uuid.NewString()
}

func (r *AccountRepository) Create(ctx context.Context, account domain.Account) (saved domain.Account, err error) {
	ctx, op := tel.StartOperation(ctx, r.telemetry, "create", "account")
	defer func() { op.End(err) }()

	if account.ID == "" {
		account.ID = r.NextID()
	}

	if account.CreatedAt.IsZero() {
		account.CreatedAt = r.now()
	}

	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}

	stmt, args, err := r.db.QueryBuilder.Insert(accountsTable).
		Columns(accountColumns...).
		Values(
			account.ID,
			account.Username,
			account.Name,
			account.Email,
			account.Password,
			nullable(account.ConfirmToken),
			nullable(account.RecoveryToken),
			account.Role.StorageValue(),
			account.Status,
			account.CreatedAt.UTC(),
			account.UpdatedAt.UTC(),
		).
		Suffix(returning()).
		ToSql()

	if err != nil {
		return domain.Account{}, err
	}

	err = tracing.DatabaseSpanWrapper(ctx, dbSystem, accountsTable, "insert", func(ctx context.Context) error {
		saved, err = scanAccount(r.db.QueryRow(ctx, stmt, args...))
		return err
	})

	if err != nil {
		return domain.Account{}, translateError(err)
	}

	return saved, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	if uuid.Validate(id) != nil {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return r.find(ctx, "get_by_id", sq.Eq{"id": id})
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.find(ctx, "get_by_email", sq.Eq{"email": email})
}

func (r *AccountRepository) GetByUsernameOrEmail(ctx context.Context, login string) (domain.Account, error) {
	return r.find(ctx, "get_by_username_or_email", sq.Or{
		sq.Eq{"username": login},
		sq.Eq{"email": login},
	})
}

func (r *AccountRepository) List(ctx context.Context) (accounts []domain.Account, err error) {
	ctx, op := tel.StartOperation(ctx, r.telemetry, "list", "account")
	defer func() { op.End(err) }()

	stmt, args, err := r.db.QueryBuilder.Select(accountColumns...).
		From(accountsTable).
		OrderBy("name ASC", "username ASC").
		ToSql()

	if err != nil {
		return nil, err
	}

	err = tracing.DatabaseSpanWrapper(ctx, dbSystem, accountsTable, "select", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, stmt, args...)

		if err != nil {
			return err
		}

		defer rows.Close()

		accounts = make([]domain.Account, 0)

		for rows.Next() {
			account, err := scanAccount(rows)

			if err != nil {
				return err
			}

			accounts = append(accounts, account)
		}

		return rows.Err()
	})

	if err != nil {
		slog.Error("Error listing accounts", "error", err)
		return nil, err
	}

	return accounts, nil
}

// Update applies changes in a single UPDATE ... RETURNING statement.
func (r *AccountRepository) Update(ctx context.Context, id string, changes domain.AccountChanges) (updated domain.Account, err error) {
	if changes.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	ctx, op := tel.StartOperation(ctx, r.telemetry, "update", "account")
	defer func() { op.End(ignoreNotFound(err)) }()

	if uuid.Validate(id) != nil {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	stmt, args, err := r.db.QueryBuilder.Update(accountsTable).
		SetMap(updateMap(changes, r.now().UTC())).
		Where(sq.Eq{"id": id}).
		Suffix(returning()).
		ToSql()

	if err != nil {
		return domain.Account{}, err
	}

	err = tracing.DatabaseSpanWrapper(ctx, dbSystem, accountsTable, "update", func(ctx context.Context) error {
		updated, err = scanAccount(r.db.QueryRow(ctx, stmt, args...))
		return err
	})

	if err != nil {
		return domain.Account{}, translateError(err)
	}

	return updated, nil
}

func (r *AccountRepository) find(ctx context.Context, operation string, where sq.Sqlizer) (account domain.Account, err error) {
	ctx, op := tel.StartOperation(ctx, r.telemetry, operation, "account")
	defer func() { op.End(ignoreNotFound(err)) }()

	stmt, args, err := r.db.QueryBuilder.Select(accountColumns...).
		From(accountsTable).
		Where(where).
		Limit(1).
		ToSql()

	if err != nil {
		return domain.Account{}, err
	}

	err = tracing.DatabaseSpanWrapper(ctx, dbSystem, accountsTable, "select", func(ctx context.Context) error {
		account, err = scanAccount(r.db.QueryRow(ctx, stmt, args...))
		return ignoreNotFound(translateError(err))
	})

	if err != nil {
		return domain.Account{}, err
	}

	if account.ID == "" {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return account, nil
}

func returning() string {
	suffix := "RETURNING "

	for i, column := range accountColumns {
		if i > 0 {
			suffix += ", "
		}
		suffix += column
	}

	return suffix
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		account       domain.Account
		confirmToken  *string
		recoveryToken *string
		role          string
	)

	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Name,
		&account.Email,
		&account.Password,
		&confirmToken,
		&recoveryToken,
		&role,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		return domain.Account{}, err
	}

	if confirmToken != nil {
		account.ConfirmToken = *confirmToken
	}

	if recoveryToken != nil {
		account.RecoveryToken = *recoveryToken
	}

	if account.Role, err = domain.ParseStoredRole(role); err != nil {
		return domain.Account{}, err
	}

	return account, nil
}

func updateMap(changes domain.AccountChanges, now time.Time) map[string]interface{} {
	values := map[string]interface{}{"updated_at": now}

	if changes.Username != nil {
		values["username"] = *changes.Username
	}
	if changes.Name != nil {
		values["name"] = *changes.Name
	}
	if changes.Email != nil {
		values["email"] = *changes.Email
	}
	if changes.Password != nil {
		values["password"] = *changes.Password
	}
	if changes.ConfirmToken != nil {
		values["confirm_email"] = nullable(*changes.ConfirmToken)
	}
	if changes.RecoveryToken != nil {
		values["recovery_token"] = nullable(*changes.RecoveryToken)
	}
	if changes.Status != nil {
		values["status"] = *changes.Status
	}

	return values
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}

	return &value
}

// translateError maps no rows and unique constraint violations to domain errors.
func translateError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrAccountNotFound
	}

	var pgErr *pgconn.PgError

	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case usernameConstraint:
		return domain.ErrDuplicateUsername
	case emailConstraint:
		return domain.ErrDuplicateEmail
	}

	return err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil
	}

	return err
}
