package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/devharvest/internal/github"
	"github.com/JakeFAU/devharvest/internal/pipeline"
	"github.com/JakeFAU/devharvest/internal/store"
	"github.com/JakeFAU/devharvest/internal/worker"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want worker.ErrClass
	}{
		{"quota", &github.QuotaError{}, worker.ClassQuota},
		{"wrapped quota", fmt.Errorf("search: %w", &github.QuotaError{}), worker.ClassQuota},
		{"not found", &github.NotFoundError{Login: "ghost"}, worker.ClassPermanent},
		{"client error", &github.StatusError{StatusCode: 422}, worker.ClassPermanent},
		{"server error", &github.StatusError{StatusCode: 503}, worker.ClassTransient},
		{"row vanished", store.ErrNotFound, worker.ClassPermanent},
		{"cancellation", context.Canceled, worker.ClassTransient},
		{"network", errors.New("dial tcp: connection refused"), worker.ClassTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, pipeline.ClassifyError(tc.err))
		})
	}
}
