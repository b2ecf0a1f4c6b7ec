package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/dormstay-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
)

// actor is the authenticated caller and the branch it is confined to. A nil
// BranchID means the caller sees every branch.
type actor struct {
	UserID   uuid.UUID
	BranchID *uuid.UUID
}

func (a actor) userPtr() *uuid.UUID {
	id := a.UserID
	return &id
}

func actorFromRequest(r *http.Request) (actor, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	out := actor{UserID: uid}
	if branch := middleware.BranchIDFromContext(r.Context()); branch != "" {
		bid, err := uuid.Parse(branch)
		if err != nil {
			return actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "invalid branch scope")
		}
		out.BranchID = &bid
	}
	return out, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}

func parseOptionalUUID(raw *string, field string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	return &id, nil
}
