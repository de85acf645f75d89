package calib

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/san-kum/balancer/internal/imu"
)

// Key marks a record as written by a completed calibration.
const Key uint64 = 0x34562897feda0312

// Record is everything a calibration run measures.
type Record struct {
	Key          uint64  `json:"key"`
	EncoderDutyL float64 `json:"encoder_duty_l"`
	EncoderDutyR float64 `json:"encoder_duty_r"`
	GyroBiasX    float64 `json:"gyro_bias_x"`
	GyroBiasY    float64 `json:"gyro_bias_y"`
	GyroBiasZ    float64 `json:"gyro_bias_z"`
	PitchBias    float64 `json:"pitch_bias"`
}

// Default is used until a calibration has been saved.
func Default() Record {
	return Record{EncoderDutyL: 0.5, EncoderDutyR: 0.5}
}

func (r Record) Valid() bool {
	return r.Key == Key
}

func (r Record) IMUBias() imu.Bias {
	return imu.Bias{Gx: r.GyroBiasX, Gy: r.GyroBiasY, Gz: r.GyroBiasZ, Pitch: r.PitchBias}
}

type Store interface {
	Load() (Record, error)
	Save(Record) error
}

// wire is the persisted layout: the key followed by six float32 values,
// little endian, 32 bytes.
type wire struct {
	Key          uint64
	EncoderDutyL float32
	EncoderDutyR float32
	GyroBiasX    float32
	GyroBiasY    float32
	GyroBiasZ    float32
	PitchBias    float32
}

// Size of an encoded record in bytes.
const Size = 32

func Encode(r Record) []byte {
	var buf bytes.Buffer
	w := wire{
		Key:          r.Key,
		EncoderDutyL: float32(r.EncoderDutyL),
		EncoderDutyR: float32(r.EncoderDutyR),
		GyroBiasX:    float32(r.GyroBiasX),
		GyroBiasY:    float32(r.GyroBiasY),
		GyroBiasZ:    float32(r.GyroBiasZ),
		PitchBias:    float32(r.PitchBias),
	}
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, &w)
	return buf.Bytes()
}

// Decode parses an encoded record. A record with the wrong key decodes to
// Default.
func Decode(b []byte) (Record, error) {
	if len(b) < Size {
		return Default(), fmt.Errorf("%w: %d bytes", ErrCorrupt, len(b))
	}
	var w wire
	if err := binary.Read(bytes.NewReader(b[:Size]), binary.LittleEndian, &w); err != nil {
		return Default(), fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if w.Key != Key {
		return Default(), nil
	}
	return Record{
		Key:          w.Key,
		EncoderDutyL: float64(w.EncoderDutyL),
		EncoderDutyR: float64(w.EncoderDutyR),
		GyroBiasX:    float64(w.GyroBiasX),
		GyroBiasY:    float64(w.GyroBiasY),
		GyroBiasZ:    float64(w.GyroBiasZ),
		PitchBias:    float64(w.PitchBias),
	}, nil
}

// FileStore keeps the record in a single file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load returns Default when the file does not exist yet.
func (s *FileStore) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Default(), err
	}
	return Decode(data)
}

// Save stamps the key and replaces the file in one rename.
func (s *FileStore) Save(r Record) error {
	r.Key = Key
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, Encode(r), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// MemStore keeps the record in memory.
type MemStore struct {
	mu   sync.Mutex
	data []byte
}

func (s *MemStore) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return Default(), nil
	}
	return Decode(s.data)
}

func (s *MemStore) Save(r Record) error {
	r.Key = Key
	s.mu.Lock()
	s.data = Encode(r)
	s.mu.Unlock()
	return nil
}
