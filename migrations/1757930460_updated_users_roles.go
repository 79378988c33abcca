package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

var campusRoles = []string{"student", "organizer", "faculty", "admin"}

// Users carry the roles they hold and the one they currently act as.
func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		users.Fields.Add(
			&core.SelectField{
				Name:      "roles",
				MaxSelect: len(campusRoles),
				Values:    campusRoles,
			},
			&core.SelectField{
				Name:      "active_role",
				MaxSelect: 1,
				Values:    campusRoles,
			},
		)
		return app.Save(users)
	}, func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		users.Fields.RemoveByName("roles")
		users.Fields.RemoveByName("active_role")
		return app.Save(users)
	})
}
