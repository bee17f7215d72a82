package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/autom8ter/querylens/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Run("wrap nil error", func(t *testing.T) {
		var err error
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Nil(t, err)
	})
	t.Run("wrap error", func(t *testing.T) {
		var err = fmt.Errorf("not found")
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("new error", func(t *testing.T) {
		err := errors.New(errors.NotFound, "not found")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("new error then wrap", func(t *testing.T) {
		err := errors.New(errors.Internal, "not found")
		err = errors.Wrap(err, errors.NotFound, "")
		assert.Equal(t, errors.NotFound, errors.Extract(err).Code)
	})
	t.Run("new error then wrap then remove", func(t *testing.T) {
		err := errors.New(errors.Internal, "not found")
		err = errors.Wrap(err, errors.NotFound, "")
		e := errors.Extract(err).RemoveError()
		assert.Empty(t, e.Err)
	})
	t.Run("error json string", func(t *testing.T) {
		err := errors.New(errors.NotFound, "not found")
		e := errors.Extract(err).RemoveError()
		assert.JSONEq(t, `{"code":404, "kind":"not_found", "messages": ["not found"]}`, e.Error())
	})
	t.Run("sentinel kinds match with errors.Is", func(t *testing.T) {
		err := errors.Newf(errors.ErrInvalidLimit, "limit must be positive: %d", 0)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidLimit))
		assert.False(t, stderrors.Is(err, errors.ErrInvalidCollection))
		assert.Equal(t, errors.Validation, errors.Extract(err).Code)
	})
	t.Run("wrapping does not mutate sentinels", func(t *testing.T) {
		_ = errors.WrapKind(fmt.Errorf("dial tcp: refused"), errors.ErrStoreUnavailable, "failed to ping")
		_ = errors.Newf(errors.ErrStoreUnavailable, "again")
		assert.Empty(t, errors.ErrStoreUnavailable.Messages)
		assert.Nil(t, errors.ErrStoreUnavailable.Err)
	})
	t.Run("wrapped cause is reachable", func(t *testing.T) {
		cause := fmt.Errorf("connection reset")
		err := errors.WrapKind(cause, errors.ErrStoreUnavailable, "failed to count documents")
		assert.True(t, stderrors.Is(err, cause))
		assert.True(t, stderrors.Is(err, errors.ErrStoreUnavailable))
		assert.Equal(t, "failed to count documents: connection reset", errors.Extract(err).Message())
	})
	t.Run("extract plain error", func(t *testing.T) {
		e := errors.Extract(fmt.Errorf("boom"))
		assert.Equal(t, errors.Internal, e.Code)
		assert.Equal(t, "boom", e.Message())
	})
	t.Run("message falls back to kind", func(t *testing.T) {
		assert.Equal(t, "invalid collection", errors.ErrInvalidCollection.Message())
	})
}
