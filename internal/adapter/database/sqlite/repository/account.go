package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"fastap/internal/adapter/database/sqlite"
	"fastap/internal/core/domain"
	"fastap/internal/core/port"
	tel "fastap/internal/core/telemetry"
)

const accountsTable = "accounts"

var accountColumns = []string{
	"id", "username", "name", "email", "password",
	"confirm_email", "recovery_token", "role", "status",
	"created_at", "updated_at",
}

type AccountRepository struct {
	db        *sqlite.DB
	telemetry port.Telemetry
	now       func() time.Time
}

func NewAccountRepository(db *sqlite.DB, telemetry port.Telemetry) *AccountRepository {
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

func (r *AccountRepository) Create(ctx context.Context, account domain.Account) (_ domain.Account, err error) {
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

	tx, err := r.db.BeginTx(ctx, nil)

	if err != nil {
		slog.Error("Error starting transaction", "error", err)
		return domain.Account{}, err
	}

	defer tx.Rollback()

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
		ToSql()

	if err != nil {
		return domain.Account{}, err
	}

	if _, err = tx.ExecContext(ctx, stmt, args...); err != nil {
		return domain.Account{}, translateError(err)
	}

	saved, err := r.getOne(ctx, tx, sq.Eq{"id": account.ID})

	if err != nil {
		return domain.Account{}, err
	}

	return saved, tx.Commit()
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
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

func (r *AccountRepository) List(ctx context.Context) (_ []domain.Account, err error) {
	ctx, op := tel.StartOperation(ctx, r.telemetry, "list", "account")
	defer func() { op.End(err) }()

	stmt, args, err := r.db.QueryBuilder.Select(accountColumns...).
		From(accountsTable).
		OrderBy("name ASC", "username ASC").
		ToSql()

	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	accounts := make([]domain.Account, 0)

	for rows.Next() {
		account, err := scanAccount(rows)

		if err != nil {
			return nil, err
		}

		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func (r *AccountRepository) Update(ctx context.Context, id string, changes domain.AccountChanges) (_ domain.Account, err error) {
	ctx, op := tel.StartOperation(ctx, r.telemetry, "update", "account")
	defer func() { op.End(ignoreNotFound(err)) }()

	if changes.IsEmpty() {
		return r.getOne(ctx, r.db, sq.Eq{"id": id})
	}

	tx, err := r.db.BeginTx(ctx, nil)

	if err != nil {
		slog.Error("Error starting transaction", "error", err)
		return domain.Account{}, err
	}

	defer tx.Rollback()

	stmt, args, err := r.db.QueryBuilder.Update(accountsTable).
		SetMap(updateMap(changes, r.now().UTC())).
		Where(sq.Eq{"id": id}).
		ToSql()

	if err != nil {
		return domain.Account{}, err
	}

	result, err := tx.ExecContext(ctx, stmt, args...)

	if err != nil {
		return domain.Account{}, translateError(err)
	}

	affected, err := result.RowsAffected()

	if err != nil {
		return domain.Account{}, err
	}

	if affected == 0 {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	updated, err := r.getOne(ctx, tx, sq.Eq{"id": id})

	if err != nil {
		return domain.Account{}, err
	}

	return updated, tx.Commit()
}

func (r *AccountRepository) find(ctx context.Context, operation string, where sq.Sqlizer) (_ domain.Account, err error) {
	ctx, op := tel.StartOperation(ctx, r.telemetry, operation, "account")
	defer func() { op.End(ignoreNotFound(err)) }()

	return r.getOne(ctx, r.db, where)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *AccountRepository) getOne(ctx context.Context, q queryer, where sq.Sqlizer) (domain.Account, error) {
	stmt, args, err := r.db.QueryBuilder.Select(accountColumns...).
		From(accountsTable).
		Where(where).
		Limit(1).
		ToSql()

	if err != nil {
		return domain.Account{}, err
	}

	account, err := scanAccount(q.QueryRowContext(ctx, stmt, args...))

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return account, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var (
		account       domain.Account
		confirmToken  sql.NullString
		recoveryToken sql.NullString
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

	account.ConfirmToken = confirmToken.String
	account.RecoveryToken = recoveryToken.String

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

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

// translateError maps unique index violations to the domain duplicates.
func translateError(err error) error {
	var sqliteErr sqlite3.Error

	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return err
	}

	switch {
	case strings.Contains(sqliteErr.Error(), "accounts.username"):
		return domain.ErrDuplicateUsername
	case strings.Contains(sqliteErr.Error(), "accounts.email"):
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
