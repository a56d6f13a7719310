package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	database "fastap/internal/adapter/database/mongo"
	"fastap/internal/core/domain"
	"fastap/internal/core/port"
	tel "fastap/internal/core/telemetry"
	"fastap/pkg/tracing"
)

const dbSystem = "mongodb"

type accountDocument struct {
	ID            bson.ObjectID `bson:"_id"`
	Username      string        `bson:"username"`
	Name          string        `bson:"name"`
	Email         string        `bson:"email"`
	Password      string        `bson:"password"`
	ConfirmEmail  *string       `bson:"confirmEmail"`
	RecoveryToken *string       `bson:"recoveryToken"`
	Role          string        `bson:"role"`
	Status        bool          `bson:"status"`
	CreatedAt     time.Time     `bson:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt"`
}

type AccountRepository struct {
	collection *mongo.Collection
	telemetry  port.Telemetry
	now        func() time.Time
}

func NewAccountRepository(db *database.DB, telemetry port.Telemetry) *AccountRepository {
	if telemetry == nil {
		telemetry = tel.NewNoOpProbe()
	}

	return &AccountRepository{
		collection: db.Accounts(),
		telemetry:  telemetry,
		now:        time.Now,
	}
}

var _ port.AccountRepository = (*AccountRepository)(nil)

func (r *AccountRepository) NextID() string {
	return bson.NewObjectID().Hex()
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

	doc, err := toDocument(account)

	if err != nil {
		return domain.Account{}, err
	}

	err = tracing.DatabaseSpanWrapper(ctx, dbSystem, database.AccountsCollection, "insert", func(ctx context.Context) error {
		_, err := r.collection.InsertOne(ctx, doc)
		return err
	})

	if err != nil {
		return domain.Account{}, translateError(err)
	}

	return fromDocument(doc)
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	oid, err := bson.ObjectIDFromHex(id)

	if err != nil {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return r.find(ctx, "get_by_id", bson.D{{Key: "_id", Value: oid}})
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.find(ctx, "get_by_email", bson.D{{Key: "email", Value: email}})
}

func (r *AccountRepository) GetByUsernameOrEmail(ctx context.Context, login string) (domain.Account, error) {
	return r.find(ctx, "get_by_username_or_email", bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: login}},
		bson.D{{Key: "email", Value: login}},
	}}})
}

func (r *AccountRepository) List(ctx context.Context) (accounts []domain.Account, err error) {
	ctx, op := tel.StartOperation(ctx, r.telemetry, "list", "account")
	defer func() { op.End(err) }()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "username", Value: 1}})

	var docs []accountDocument

	err = tracing.DatabaseSpanWrapper(ctx, dbSystem, database.AccountsCollection, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.D{}, opts)

		if err != nil {
			return err
		}

		return cursor.All(ctx, &docs)
	})

	if err != nil {
		return nil, err
	}

	accounts = make([]domain.Account, 0, len(docs))

	for _, doc := range docs {
		account, err := fromDocument(doc)

		if err != nil {
			return nil, err
		}

		accounts = append(accounts, account)
	}

	return accounts, nil
}

// Update uses FindOneAndUpdate so the returned account reflects the write.
func (r *AccountRepository) Update(ctx context.Context, id string, changes domain.AccountChanges) (_ domain.Account, err error) {
	if changes.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	ctx, op := tel.StartOperation(ctx, r.telemetry, "update", "account")
	defer func() { op.End(ignoreNotFound(err)) }()

	oid, err := bson.ObjectIDFromHex(id)

	if err != nil {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.D{{Key: "$set", Value: setDocument(changes, r.now().UTC())}}

	var doc accountDocument

	err = tracing.DatabaseSpanWrapper(ctx, dbSystem, database.AccountsCollection, "update", func(ctx context.Context) error {
		return r.collection.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&doc)
	})

	if err != nil {
		return domain.Account{}, translateError(err)
	}

	return fromDocument(doc)
}

func (r *AccountRepository) find(ctx context.Context, operation string, filter bson.D) (_ domain.Account, err error) {
	ctx, op := tel.StartOperation(ctx, r.telemetry, operation, "account")
	defer func() { op.End(ignoreNotFound(err)) }()

	var doc accountDocument

	err = tracing.DatabaseSpanWrapper(ctx, dbSystem, database.AccountsCollection, "find_one", func(ctx context.Context) error {
		err := r.collection.FindOne(ctx, filter).Decode(&doc)

		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}

		return err
	})

	if err != nil {
		return domain.Account{}, err
	}

	if doc.ID.IsZero() {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return fromDocument(doc)
}

func toDocument(account domain.Account) (accountDocument, error) {
	oid, err := bson.ObjectIDFromHex(account.ID)

	if err != nil {
		return accountDocument{}, err
	}

	return accountDocument{
		ID:            oid,
		Username:      account.Username,
		Name:          account.Name,
		Email:         account.Email,
		Password:      account.Password,
		ConfirmEmail:  nullable(account.ConfirmToken),
		RecoveryToken: nullable(account.RecoveryToken),
		Role:          account.Role.StorageValue(),
		Status:        account.Status,
		CreatedAt:     account.CreatedAt.UTC(),
		UpdatedAt:     account.UpdatedAt.UTC(),
	}, nil
}

func fromDocument(doc accountDocument) (domain.Account, error) {
	role, err := domain.ParseStoredRole(doc.Role)

	if err != nil {
		return domain.Account{}, err
	}

	account := domain.Account{
		ID:        doc.ID.Hex(),
		Username:  doc.Username,
		Name:      doc.Name,
		Email:     doc.Email,
		Password:  doc.Password,
		Role:      role,
		Status:    doc.Status,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}

	if doc.ConfirmEmail != nil {
		account.ConfirmToken = *doc.ConfirmEmail
	}

	if doc.RecoveryToken != nil {
		account.RecoveryToken = *doc.RecoveryToken
	}

	return account, nil
}

func setDocument(changes domain.AccountChanges, now time.Time) bson.D {
	set := bson.D{{Key: "updatedAt", Value: now}}

	if changes.Username != nil {
		set = append(set, bson.E{Key: "username", Value: *changes.Username})
	}
	if changes.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *changes.Name})
	}
	if changes.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *changes.Email})
	}
	if changes.Password != nil {
		set = append(set, bson.E{Key: "password", Value: *changes.Password})
	}
	if changes.ConfirmToken != nil {
		set = append(set, bson.E{Key: "confirmEmail", Value: nullable(*changes.ConfirmToken)})
	}
	if changes.RecoveryToken != nil {
		set = append(set, bson.E{Key: "recoveryToken", Value: nullable(*changes.RecoveryToken)})
	}
	if changes.Status != nil {
		set = append(set, bson.E{Key: "status", Value: *changes.Status})
	}

	return set
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}

	return &value
}

// translateError maps duplicate key errors to the index that rejected them.
func translateError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrAccountNotFound
	}

	if !mongo.IsDuplicateKeyError(err) {
		return err
	}

	switch {
	case strings.Contains(err.Error(), database.UsernameIndex):
		return domain.ErrDuplicateUsername
	case strings.Contains(err.Error(), database.EmailIndex):
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
