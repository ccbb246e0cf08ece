package iuv

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpay/unifee/internal/domain"
)

type fakeStore struct {
	conflicts int // reject this many reserves before accepting
	calls     int
	reserved  []string
}

func (f *fakeStore) Reserve(orgFiscalCode, iuv string) error {
	f.calls++
	if f.calls <= f.conflicts {
		return domain.ErrIuvConflict
	}
	f.reserved = append(f.reserved, iuv)
	return nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestCheckDigit(t *testing.T) {
	// 3470000000000001 % 93 = 24
	check, err := CheckDigit(3, "47", "0000000000001")
	require.NoError(t, err)
	assert.Equal(t, "24", check)
}

func TestCheckDigitZeroPadded(t *testing.T) {
	// 3470000000000070 % 93 = 0
	check, err := CheckDigit(3, "47", "0000000000070")
	require.NoError(t, err)
	assert.Equal(t, "00", check)
}

func TestGenerateSequentialDeterministic(t *testing.T) {
	store := &fakeStore{}
	g := NewGenerator(store, 47, "sequential", 0, "UNIFEE-", testLogger())
	g.now = func() time.Time { return time.UnixMilli(1700000000000) }

	iuv, err := g.Generate()
	require.NoError(t, err)
	// "3" + "47" + 13-digit epoch millis + "347170..." mod 93.
	assert.Equal(t, "347170000000000067", iuv)
	assert.Len(t, iuv, Length)
}

func TestGenerateRandomFormat(t *testing.T) {
	store := &fakeStore{}
	g := NewGenerator(store, 7, "random", 0, "UNIFEE-", testLogger())

	for i := 0; i < 50; i++ {
		iuv, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, iuv, Length)
		assert.Equal(t, byte('3'), iuv[0])
		assert.Equal(t, "07", iuv[1:3])
		for _, c := range iuv {
			assert.True(t, c >= '0' && c <= '9', "IUV must be numeric, got %q", iuv)
		}

		check, err := CheckDigit(AuxDigit, iuv[1:3], iuv[3:16])
		require.NoError(t, err)
		assert.Equal(t, check, iuv[16:18])
	}
}

func TestSequentialOffsetMustKeepThirteenDigits(t *testing.T) {
	g := NewGenerator(&fakeStore{}, 47, "sequential", 9_000_000_000_000_000, "UNIFEE-", testLogger())
	g.now = func() time.Time { return time.UnixMilli(1700000000000) }

	_, err := g.Generate()
	assert.Error(t, err)
}

func TestNewUniqueRegeneratesOnCollision(t *testing.T) {
	store := &fakeStore{conflicts: 2}
	g := NewGenerator(store, 47, "random", 0, "UNIFEE-", testLogger())

	iuv, err := g.NewUnique("80014930329")
	require.NoError(t, err)
	assert.Len(t, iuv, Length)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, []string{iuv}, store.reserved)
}

func TestNewUniqueExhaustsAfterEightAttempts(t *testing.T) {
	store := &fakeStore{conflicts: 1000}
	g := NewGenerator(store, 47, "random", 0, "UNIFEE-", testLogger())

	_, err := g.NewUnique("80014930329")
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 8, store.calls)
}

func TestIupd(t *testing.T) {
	g := NewGenerator(&fakeStore{}, 47, "random", 0, "UNIFEE-", testLogger())
	assert.Equal(t, "UNIFEE-347000000000000012", g.Iupd("347000000000000012"))
}
