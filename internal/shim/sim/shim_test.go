package sim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/model"
)

func TestGetPut(t *testing.T) {
	ctx := context.Background()
	s := New(map[string]model.Value{"A": model.Int(1)})

	v, err := s.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, model.Int(1), v)

	_, err = s.Get(ctx, "B")
	require.ErrorIs(t, err, ErrNoSuchPV)

	require.NoError(t, s.Put(ctx, "B", model.String("x")))
	require.NoError(t, s.Put(ctx, "A", model.Int(2)))
	assert.Equal(t, []string{"B", "A"}, s.Puts())
}

func TestLinkAndMonitor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(map[string]model.Value{"SP": model.Float(0), "RBV": model.Float(0)})
	s.Link("SP", "RBV")

	var seen []model.Value
	sub, err := s.Monitor(ctx, "RBV", func(v model.Value, err error) {
		require.NoError(t, err)
		seen = append(seen, v)
	})
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "SP", model.Float(3.5)))
	s.Set("RBV", model.Float(3.4))
	require.NoError(t, sub.Close())
	require.NoError(t, s.Put(ctx, "SP", model.Float(9)))

	assert.Equal(t, []model.Value{model.Float(0), model.Float(3.5), model.Float(3.4)}, seen)
}

func TestFail(t *testing.T) {
	ctx := context.Background()
	s := New(map[string]model.Value{"A": model.Int(1)})
	boom := errors.New("boom")
	s.Fail("A", boom)

	_, err := s.Get(ctx, "A")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, s.Put(ctx, "A", model.Int(2)), boom)
	_, err = s.Monitor(ctx, "A", func(model.Value, error) {})
	require.ErrorIs(t, err, boom)

	s.Fail("A", nil)
	v, err := s.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, model.Int(1), v)
}
