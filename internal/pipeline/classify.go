package pipeline

import (
	"context"
	"errors"

	"github.com/JakeFAU/devharvest/internal/github"
	"github.com/JakeFAU/devharvest/internal/store"
	"github.com/JakeFAU/devharvest/internal/worker"
)

// ClassifyError maps API and repository errors onto the worker's retry
// classes. Anything unrecognized is treated as transient, mirroring the
// network-error default of the GitHub client.
func ClassifyError(err error) worker.ErrClass {
	switch {
	case github.IsQuota(err):
		return worker.ClassQuota
	case github.IsPermanent(err):
		return worker.ClassPermanent
	case errors.Is(err, store.ErrNotFound):
		// The row vanished; retrying cannot bring it back.
		return worker.ClassPermanent
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return worker.ClassTransient
	default:
		return worker.ClassTransient
	}
}
