// internal/convert/converter_test.go
package convert

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/types"
)

type stubSource struct {
	failures int
	num, den uint64
	calls    int
}

func (s *stubSource) Rate(context.Context, types.AssetKind) (uint64, uint64, error) {
	s.calls++
	if s.calls <= s.failures {
		return 0, 0, errors.New("feed timeout")
	}
	return s.num, s.den, nil
}

func TestFixedRate(t *testing.T) {
	c, err := NewFixedRate(3, 2)
	require.NoError(t, err)

	out, err := c.ConvertToStable(context.Background(), uint256.NewInt(100), types.AssetNative)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), out.Uint64())

	_, err = NewFixedRate(0, 2)
	assert.ErrorIs(t, err, ErrConversionFailed)
	_, err = NewFixedRate(1, 0)
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestFeedConverterRetriesTransientFailures(t *testing.T) {
	src := &stubSource{failures: 2, num: 2, den: 1}
	c := NewFeedConverter(src, zap.NewNop())
	c.interval = 0

	out, err := c.ConvertToStable(context.Background(), uint256.NewInt(7), types.AssetNative)
	require.NoError(t, err)
	assert.Equal(t, uint64(14), out.Uint64())
	assert.Equal(t, 3, src.calls)
}

func TestFeedConverterGivesUp(t *testing.T) {
	src := &stubSource{failures: 100, num: 1, den: 1}
	c := NewFeedConverter(src, zap.NewNop())
	c.interval = 0
	c.maxTries = 3

	_, err := c.ConvertToStable(context.Background(), uint256.NewInt(7), types.AssetNative)
	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.Equal(t, 3, src.calls)
}

func TestFeedConverterRejectsDegenerateRate(t *testing.T) {
	src := &stubSource{num: 0, den: 1}
	c := NewFeedConverter(src, zap.NewNop())

	_, err := c.ConvertToStable(context.Background(), uint256.NewInt(7), types.AssetNative)
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestFeedConverterZeroIsNoOp(t *testing.T) {
	src := &stubSource{num: 1, den: 1}
	c := NewFeedConverter(src, zap.NewNop())

	out, err := c.ConvertToStable(context.Background(), uint256.NewInt(0), types.AssetNative)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
	assert.Equal(t, 0, src.calls)
}
