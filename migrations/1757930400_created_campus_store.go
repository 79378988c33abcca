package migrations

import (
	"context"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"campus-events/internal/store"
)

func init() {
	m.Register(func(app core.App) error {
		return store.EnsureSchema(context.Background(), app.DB())
	}, func(app core.App) error {
		return store.DropSchema(context.Background(), app.DB())
	})
}
