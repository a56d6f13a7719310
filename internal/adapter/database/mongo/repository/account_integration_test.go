//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"testing"

	database "fastap/internal/adapter/database/mongo"
	"fastap/internal/adapter/database/mongo/repository"
	"fastap/internal/core/domain"
	"fastap/pkg/test/factory"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type MongoAccountRepositorySuite struct {
	suite.Suite
	container testcontainers.Container
	db        *database.DB
	repo      *repository.AccountRepository
	ctx       context.Context
}

func (s *MongoAccountRepositorySuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(s.ctx)
	s.Require().NoError(err)

	port, err := container.MappedPort(s.ctx, "27017")
	s.Require().NoError(err)

	s.db, err = database.NewDB(s.ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()), "fastap_test", true)
	s.Require().NoError(err)

	s.repo = repository.NewAccountRepository(s.db, nil)
}

func (s *MongoAccountRepositorySuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Database.Drop(s.ctx)
		_ = s.db.Close(s.ctx)
	}

	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *MongoAccountRepositorySuite) SetupTest() {
	RegisterTestingT(s.T())
	_, err := s.db.Accounts().DeleteMany(s.ctx, bson.D{})
	s.Require().NoError(err)
}

func TestMongoAccountRepositorySuite(t *testing.T) {
	RegisterTestingT(t)
	suite.Run(t, new(MongoAccountRepositorySuite))
}

func (s *MongoAccountRepositorySuite) newAccount(overrides map[string]any) domain.Account {
	overrides["ID"] = s.repo.NextID()
	return factory.NewAccount(overrides)
}

func (s *MongoAccountRepositorySuite) TestCreateAndLookup() {
	saved, err := s.repo.Create(s.ctx, s.newAccount(map[string]any{
		"Username":     "alice1",
		"Email":        "alice@example.com",
		"ConfirmToken": "confirm-token",
	}))
	Expect(err).ToNot(HaveOccurred())
	Expect(saved.ConfirmToken).To(Equal("confirm-token"))

	found, err := s.repo.GetByID(s.ctx, saved.ID)
	Expect(err).ToNot(HaveOccurred())
	Expect(found.Username).To(Equal("alice1"))
	Expect(found.Role).To(Equal(domain.RoleRegular))

	found, err = s.repo.GetByUsernameOrEmail(s.ctx, "alice1")
	Expect(err).ToNot(HaveOccurred())
	Expect(found.ID).To(Equal(saved.ID))

	_, err = s.repo.GetByID(s.ctx, "not-an-object-id")
	Expect(err).To(MatchError(domain.ErrAccountNotFound))

	_, err = s.repo.GetByEmail(s.ctx, "nobody@example.com")
	Expect(err).To(MatchError(domain.ErrAccountNotFound))
}

func (s *MongoAccountRepositorySuite) TestDuplicates() {
	_, err := s.repo.Create(s.ctx, s.newAccount(map[string]any{"Username": "alice1", "Email": "a@b.com"}))
	Expect(err).ToNot(HaveOccurred())

	_, err = s.repo.Create(s.ctx, s.newAccount(map[string]any{"Username": "alice1"}))
	Expect(err).To(MatchError(domain.ErrDuplicateUsername))

	_, err = s.repo.Create(s.ctx, s.newAccount(map[string]any{"Email": "a@b.com"}))
	Expect(err).To(MatchError(domain.ErrDuplicateEmail))

	other, err := s.repo.Create(s.ctx, s.newAccount(map[string]any{}))
	Expect(err).ToNot(HaveOccurred())

	email := "a@b.com"
	_, err = s.repo.Update(s.ctx, other.ID, domain.AccountChanges{Email: &email})
	Expect(err).To(MatchError(domain.ErrDuplicateEmail))
}

func (s *MongoAccountRepositorySuite) TestUpdateReturnsNewDocument() {
	saved, err := s.repo.Create(s.ctx, s.newAccount(map[string]any{"RecoveryToken": "recovery", "Status": false}))
	Expect(err).ToNot(HaveOccurred())

	enabled := true
	cleared := ""

	updated, err := s.repo.Update(s.ctx, saved.ID, domain.AccountChanges{Status: &enabled, RecoveryToken: &cleared})
	Expect(err).ToNot(HaveOccurred())
	Expect(updated.Status).To(BeTrue())
	Expect(updated.RecoveryToken).To(BeEmpty())

	raw := bson.M{}
	Expect(s.db.Accounts().FindOne(s.ctx, bson.D{{Key: "username", Value: saved.Username}}).Decode(&raw)).To(Succeed())
	Expect(raw["recoveryToken"]).To(BeNil())
	Expect(raw["role"]).To(Equal("USUARIO"))

	_, err = s.repo.Update(s.ctx, s.repo.NextID(), domain.AccountChanges{Status: &enabled})
	Expect(err).To(MatchError(domain.ErrAccountNotFound))
}

func (s *MongoAccountRepositorySuite) TestListSortedByName() {
	for _, name := range []string{"Zed Zulu", "Alice Smith", "Mia Moore"} {
		_, err := s.repo.Create(s.ctx, s.newAccount(map[string]any{"Name": name}))
		Expect(err).ToNot(HaveOccurred())
	}

	accounts, err := s.repo.List(s.ctx)
	Expect(err).ToNot(HaveOccurred())
	Expect(accounts).To(HaveLen(3))
	Expect(accounts[0].Name).To(Equal("Alice Smith"))
	Expect(accounts[2].Name).To(Equal("Zed Zulu"))
}
