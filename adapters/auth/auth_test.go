package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadboard/adapters/auth"
	"loadboard/models"
	"loadboard/policy"
)

type stubAuthenticator struct {
	principal policy.Principal
	err       error
	calls     int
}

func (s *stubAuthenticator) Authenticate(ctx context.Context, token string) (policy.Principal, error) {
	s.calls++
	return s.principal, s.err
}

func TestChain(t *testing.T) {
	want := policy.Principal{UserID: uuid.New(), Role: models.RoleClient}

	t.Run("first success wins", func(t *testing.T) {
		rejecting := &stubAuthenticator{err: auth.ErrUnauthenticated}
		accepting := &stubAuthenticator{principal: want}
		last := &stubAuthenticator{err: auth.ErrUnauthenticated}

		p, err := auth.Chain{rejecting, accepting, last}.Authenticate(context.Background(), "token")
		require.NoError(t, err)
		assert.Equal(t, want, p)
		assert.Equal(t, 0, last.calls)
	})

	t.Run("all reject", func(t *testing.T) {
		_, err := auth.Chain{
			&stubAuthenticator{err: auth.ErrUnauthenticated},
			&stubAuthenticator{err: auth.ErrUnauthenticated},
		}.Authenticate(context.Background(), "token")
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("infrastructure error stops the chain", func(t *testing.T) {
		boom := errors.New("db down")
		next := &stubAuthenticator{principal: want}
		_, err := auth.Chain{&stubAuthenticator{err: boom}, next}.Authenticate(context.Background(), "token")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, auth.ErrUnauthenticated)
		assert.Equal(t, 0, next.calls)
	})

	t.Run("missing token", func(t *testing.T) {
		next := &stubAuthenticator{principal: want}
		_, err := auth.Chain{next}.Authenticate(context.Background(), "")
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
		assert.Equal(t, 0, next.calls)
	})

	t.Run("empty chain", func(t *testing.T) {
		_, err := auth.Chain{}.Authenticate(context.Background(), "token")
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})
}
