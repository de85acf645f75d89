package calib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	b := Encode(Record{Key: Key, EncoderDutyL: 0.5})
	require.Len(t, b, Size)
	assert.Equal(t, []byte{0x12, 0x03, 0xda, 0xfe, 0x97, 0x28, 0x56, 0x34}, b[:8])
	// float32(0.5) little endian
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x3f}, b[8:12])
}

func TestDecode(t *testing.T) {
	rec := Record{
		Key:          Key,
		EncoderDutyL: 0.47,
		EncoderDutyR: 0.53,
		GyroBiasX:    -1.25,
		GyroBiasY:    0.5,
		GyroBiasZ:    2,
		PitchBias:    -3.5,
	}
	got, err := Decode(Encode(rec))
	require.NoError(t, err)
	assert.True(t, got.Valid())
	assert.InDelta(t, 0.47, got.EncoderDutyL, 1e-6)
	assert.InDelta(t, 0.53, got.EncoderDutyR, 1e-6)
	assert.Equal(t, -1.25, got.GyroBiasX)
	assert.Equal(t, -3.5, got.PitchBias)
}

func TestDecodeWrongKeyGivesDefault(t *testing.T) {
	rec := Record{Key: 0xdeadbeef, EncoderDutyL: 0.3, PitchBias: 9}
	got, err := Decode(Encode(rec))
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
	assert.False(t, got.Valid())
}

func TestDecodeShort(t *testing.T) {
	got, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, Default(), got)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "calib.bin")
	s := NewFileStore(path)

	rec, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), rec)

	require.NoError(t, s.Save(Record{EncoderDutyL: 0.4, EncoderDutyR: 0.6, GyroBiasZ: 1.5}))

	rec, err = s.Load()
	require.NoError(t, err)
	assert.True(t, rec.Valid(), "save stamps the key")
	assert.InDelta(t, 0.4, rec.EncoderDutyL, 1e-6)
	assert.InDelta(t, 0.6, rec.EncoderDutyR, 1e-6)
	assert.Equal(t, 1.5, rec.GyroBiasZ)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calib.bin")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0644))

	rec, err := NewFileStore(path).Load()
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, Default(), rec)
}

func TestIMUBias(t *testing.T) {
	rec := Record{GyroBiasX: 1, GyroBiasY: 2, GyroBiasZ: 3, PitchBias: 4}
	b := rec.IMUBias()
	assert.Equal(t, 1.0, b.Gx)
	assert.Equal(t, 2.0, b.Gy)
	assert.Equal(t, 3.0, b.Gz)
	assert.Equal(t, 4.0, b.Pitch)
}
