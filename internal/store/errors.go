package store

import (
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/finance-sync/internal/errs"
)

// docNamespace seeds the deterministic document ids.
var docNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/GregMSThompson/finance-sync"))

// wrapErr maps firestore/grpc errors onto the errs types.
func wrapErr(err error, operation, what string) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return errs.NewNotFoundError(what + " not found")
	case codes.AlreadyExists:
		return errs.NewAlreadyExistsError(what + " already exists")
	}
	return errs.NewDatabaseError(operation, "failed to "+operation+" "+what, err)
}
