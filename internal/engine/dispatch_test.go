package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/modplan/internal/modify"
	"github.com/roach88/modplan/internal/queryir"
	"github.com/roach88/modplan/internal/store"
)

func TestAt_BroadcastAndPadding(t *testing.T) {
	assert.Nil(t, at(nil, 0))
	assert.Nil(t, at([]any{}, 3))
	assert.Equal(t, "s", at([]any{"s"}, 5), "single values are broadcast")
	assert.Equal(t, "b", at([]any{"a", "b"}, 1))
	assert.Nil(t, at([]any{"a", "b"}, 2), "rows past the end read nil")
}

func TestSourceParams(t *testing.T) {
	got := sourceParams([]queryir.Source{
		queryir.KeyGen{Sequence: "t", Param: "childId"},
		queryir.KeyGen{Sequence: "t"},
		queryir.Param{Name: "contentId"},
		queryir.Revision{Param: "revision", Delta: 1},
		queryir.Now{},
		queryir.Editor{},
		queryir.RowOrder{},
		queryir.Literal{Value: 1},
	})
	assert.Equal(t, []string{"childId", "contentId", "revision"}, got)
}

// withRequest runs fn with a request context bound to a live transaction.
func withRequest(t *testing.T, f *fixture, params modify.Params, fn func(rc *requestContext)) {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(tx *store.Tx) error {
		fn(&requestContext{
			ctx:       context.Background(),
			e:         f.engine,
			tx:        tx,
			req:       Request{User: "alice"},
			id:        "req-x",
			now:       stamp,
			logger:    zaptest.NewLogger(t),
			quota:     NewRowQuota(0),
			params:    params,
			generated: make(map[string][]any),
		})
		return nil
	})
	require.NoError(t, err)
}

func TestDispatch_DiscriminatorMustSelectMode(t *testing.T) {
	f := newArticleFixture(t)

	withRequest(t, f, modify.Params{"mode": {"delete"}, "title": {"x"}}, func(rc *requestContext) {
		data, err := rc.Dispatch("Insert7")
		require.Error(t, err)
		assert.True(t, modify.IsDispatchError(err))
		assert.Contains(t, err.Error(), `mode="delete" does not select insert`)
		require.NotNil(t, data, "data is handed out even on failure")
		require.NoError(t, data.Release())
		assert.Zero(t, rc.outstanding)
	})

	withRequest(t, f, modify.Params{}, func(rc *requestContext) {
		_, err := rc.Dispatch("Delete7")
		assert.True(t, modify.IsDispatchError(err), "a missing discriminator selects nothing")
	})
}

func TestDispatch_UnknownResource(t *testing.T) {
	f := newArticleFixture(t)

	withRequest(t, f, modify.Params{}, func(rc *requestContext) {
		data, err := rc.Dispatch("Nope1")
		assert.Nil(t, data)
		assert.ErrorIs(t, err, ErrUnknownResource)
	})
}

func TestDispatch_QueryIgnoresDiscriminator(t *testing.T) {
	f := newArticleFixture(t)
	f.createArticle(t)

	withRequest(t, f, modify.Params{"contentId": {1}, "mode": {"insert"}}, func(rc *requestContext) {
		data, err := rc.Dispatch("Revision7")
		require.NoError(t, err)
		defer data.Release()

		rev, found := data.Revision()
		assert.True(t, found)
		assert.Equal(t, int64(1), rev)
	})
}

func TestExecutionData_ReleaseTwice(t *testing.T) {
	f := newArticleFixture(t)

	withRequest(t, f, modify.Params{"contentId": {2}}, func(rc *requestContext) {
		data, err := rc.Dispatch("Revision7")
		require.NoError(t, err)
		_, found := data.Revision()
		assert.False(t, found)

		require.NoError(t, data.Release())
		assert.ErrorContains(t, data.Release(), "released twice")
		assert.Zero(t, rc.outstanding)
	})
}

func TestParam_FallsBackToGeneratedKeys(t *testing.T) {
	f := newArticleFixture(t)

	withRequest(t, f, modify.Params{"contentId": {}}, func(rc *requestContext) {
		rc.generated["contentId"] = []any{int64(7)}
		assert.Equal(t, int64(7), rc.param("contentId", 0))

		rc.params["contentId"] = []any{3}
		assert.Equal(t, 3, rc.param("contentId", 0), "submitted values win")
	})
}
