package fs

// JSON file storage for battery readings
// One file per device: <data_dir>/readings/<device_id>.json
// Writes go through a temp file + rename so readers never see a partial file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	"go.uber.org/zap"
)

const readingsDir = "readings"

var ErrDeviceNotFound = errors.New("device not found")

// ReadingsFile is the on-disk structure of one device file.
type ReadingsFile struct {
	DeviceID string             `json:"device_id"`
	Readings []readings.Reading `json:"readings"`
}

// ReadingsStore keeps readings under dataDir. Safe for concurrent use.
type ReadingsStore struct {
	dir string
	mu  sync.RWMutex
}

func NewReadingsStore(dataDir string) (*ReadingsStore, error) {
	dir := filepath.Join(dataDir, readingsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create readings directory: %w", err)
	}
	return &ReadingsStore{dir: dir}, nil
}

func (s *ReadingsStore) path(deviceID string) string {
	return filepath.Join(s.dir, deviceID+".json")
}

// Append stores rs, grouped by device. A reading with the same device and
// timestamp as a stored one replaces it.
func (s *ReadingsStore) Append(ctx context.Context, rs ...readings.Reading) error {
	byDevice := make(map[string][]readings.Reading)
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return err
		}
		byDevice[r.DeviceID] = append(byDevice[r.DeviceID], r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for deviceID, incoming := range byDevice {
		if err := ctx.Err(); err != nil {
			return err
		}
		stored, err := s.load(deviceID)
		if err != nil && !errors.Is(err, ErrDeviceNotFound) {
			return err
		}
		merged := merge(stored, incoming)
		if err := s.save(deviceID, merged); err != nil {
			return err
		}
		log.LogDebug("Readings stored",
			zap.String("device_id", deviceID),
			zap.Int("added", len(incoming)),
			zap.Int("total", len(merged)))
	}
	return nil
}

// Query returns the readings matching f, oldest first. When f.Limit > 0 only
// the newest f.Limit readings are returned.
func (s *ReadingsStore) Query(ctx context.Context, f readings.Filter) ([]readings.Reading, error) {
	if err := readings.ValidateDeviceID(f.DeviceID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	stored, err := s.load(f.DeviceID)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]readings.Reading, 0, len(stored))
	for _, r := range stored {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Latest returns the newest reading of a device.
func (s *ReadingsStore) Latest(ctx context.Context, deviceID string) (readings.Reading, error) {
	rs, err := s.Query(ctx, readings.Filter{DeviceID: deviceID, Limit: 1})
	if err != nil {
		return readings.Reading{}, err
	}
	if len(rs) == 0 {
		return readings.Reading{}, fmt.Errorf("%w: %s has no readings", ErrDeviceNotFound, deviceID)
	}
	return rs[0], nil
}

// Devices lists the device ids that have a readings file, sorted.
func (s *ReadingsStore) Devices(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries, err := os.ReadDir(s.dir)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list readings directory: %w", err)
	}

	devices := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if readings.ValidateDeviceID(id) == nil {
			devices = append(devices, id)
		}
	}
	sort.Strings(devices)
	return devices, nil
}

func (s *ReadingsStore) load(deviceID string) ([]readings.Reading, error) {
	data, err := os.ReadFile(s.path(deviceID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read readings file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []readings.Reading{}, nil
	}

	var file ReadingsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse readings file %s: %w", deviceID, err)
	}
	return file.Readings, nil
}

func (s *ReadingsStore) save(deviceID string, rs []readings.Reading) error {
	jsonData, err := json.MarshalIndent(ReadingsFile{DeviceID: deviceID, Readings: rs}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal readings: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, deviceID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp readings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(jsonData); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write readings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close readings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(deviceID)); err != nil {
		return fmt.Errorf("failed to save readings: %w", err)
	}
	return nil
}

// merge combines two reading sets, sorted by time, incoming wins on equal timestamps.
func merge(stored, incoming []readings.Reading) []readings.Reading {
	byTime := make(map[int64]int, len(stored)+len(incoming))
	out := make([]readings.Reading, 0, len(stored)+len(incoming))
	for _, set := range [][]readings.Reading{stored, incoming} {
		for _, r := range set {
			key := r.Time.UnixNano()
			if i, ok := byTime[key]; ok {
				out[i] = r
				continue
			}
			byTime[key] = len(out)
			out = append(out, r)
		}
	}
	readings.SortByTime(out)
	return out
}
