package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-adp-timetable/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]string
	err := repo.Get(ctx, ProposalKey("p1"), &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, ProposalKey("p1"), map[string]string{"a": "b"}, time.Minute))
	require.NoError(t, repo.Delete(ctx, ProposalKey("p1")))
	require.NoError(t, repo.DeleteByPattern(ctx, AuditKeyPrefix+"*"))
	require.NoError(t, repo.Close())
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "timetable:proposal:abc", ProposalKey("abc"))
	assert.Equal(t, "timetable:audit:ff00", AuditKey("ff00"))
}
