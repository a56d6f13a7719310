package factory

import (
	"strings"
	"sync"
	"time"

	fab "github.com/Goldziher/fabricator"
	"github.com/google/uuid"

	"fastap/internal/core/domain"
	"fastap/internal/core/util"
)

// DefaultPassword is the plain password behind every factory account unless
// a "Password" hash is supplied.
const DefaultPassword = "Secret1"

var (
	hashOnce    sync.Once
	defaultHash string
)

func defaultPasswordHash() string {
	hashOnce.Do(func() {
		hash, err := util.HashPassword(DefaultPassword)
		if err != nil {
			panic(err)
		}
		defaultHash = hash
	})

	return defaultHash
}

// NewAccount builds an active regular account with unique username and email.
// Keys of overrides are Account field names.
func NewAccount(overrides ...map[string]any) domain.Account {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	now := time.Now().UTC().Truncate(time.Second)

	data := map[string]any{
		"ID":            uuid.NewString(),
		"Username":      "user" + suffix,
		"Name":          "Test User",
		"Email":         "user" + suffix + "@example.com",
		"Password":      defaultPasswordHash(),
		"ConfirmToken":  "",
		"RecoveryToken": "",
		"Role":          domain.RoleRegular,
		"Status":        true,
		"CreatedAt":     now,
		"UpdatedAt":     now,
	}

	for _, override := range overrides {
		for key, value := range override {
			data[key] = value
		}
	}

	return fab.New(domain.Account{}).Build(data)
}

func NewAdmin(overrides ...map[string]any) domain.Account {
	return NewAccount(append([]map[string]any{{"Role": domain.RoleAdmin}}, overrides...)...)
}
