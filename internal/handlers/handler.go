// Package handlers exposes the engine over pocketbase's router. Handlers only
// translate between HTTP and engine calls.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"campus-events/internal/identity"
	"campus-events/internal/status"
	"campus-events/models"
)

// ActiveRoleHeader switches the caller to another role they hold for a
// single request.
const ActiveRoleHeader = "X-Active-Role"

// UserFromRecord maps a pocketbase auth record to the engine's user. Unknown
// roles are dropped and users without any role act as students.
func UserFromRecord(rec *core.Record) models.User {
	roles := make([]models.Role, 0, 2)
	for _, r := range rec.GetStringSlice("roles") {
		if role := models.Role(r); role.Valid() && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = append(roles, models.RoleStudent)
	}
	active := models.Role(rec.GetString("active_role"))
	if !slices.Contains(roles, active) {
		active = roles[0]
	}
	return models.User{
		ID:         rec.Id,
		Name:       rec.GetString("name"),
		Roles:      roles,
		ActiveRole: active,
	}
}

// callerContext attaches the authenticated user to the request context.
func callerContext(e *core.RequestEvent) (context.Context, error) {
	if e.Auth == nil {
		return nil, apis.NewUnauthorizedError("Unauthorized", nil)
	}
	user := UserFromRecord(e.Auth)
	if role := e.Request.Header.Get(ActiveRoleHeader); role != "" {
		if err := user.SwitchRole(models.Role(role)); err != nil {
			return nil, apis.NewForbiddenError(err.Error(), nil)
		}
	}
	return identity.WithUser(e.Request.Context(), user), nil
}

// toAPIError maps the engine's error kinds onto HTTP statuses.
func toAPIError(err error) error {
	se := status.AsError(err)
	switch se.Kind {
	case status.KindValidation:
		return apis.NewBadRequestError(se.Message, se)
	case status.KindNotFound:
		return apis.NewNotFoundError(se.Message, se)
	case status.KindStateGuard:
		// Role and ownership guards carry the rejected user.
		if _, ok := se.Metadata["user_id"]; ok {
			return apis.NewForbiddenError(se.Message, se)
		}
		return apis.NewApiError(http.StatusConflict, se.Message, se)
	case status.KindCapacityExceeded, status.KindDuplicate, status.KindConflict, status.KindTransientConflict:
		return apis.NewApiError(http.StatusConflict, se.Message, se)
	default:
		slog.Error("Request failed", "error", err)
		return apis.NewInternalServerError("Something went wrong while processing your request.", nil)
	}
}

func bindBody(e *core.RequestEvent, dst any) error {
	if err := e.BindBody(dst); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	return nil
}

// respond writes data on success and maps err otherwise.
func respond(e *core.RequestEvent, code int, data any, err error) error {
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(code, data)
}
