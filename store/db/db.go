// Package db instantiates the database driver named by the profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/chatarbor/arbor/internal/profile"
	"github.com/chatarbor/arbor/store"
	"github.com/chatarbor/arbor/store/db/postgres"
	"github.com/chatarbor/arbor/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported driver %q", profile.Driver)
	}
}
