package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ferZyx/ip-cam-monitor/internal/alarm"
)

const (
	// PhotoTTL bounds how long resolved photos stay around.
	PhotoTTL = 7 * 24 * time.Hour
	// MaxHistory caps the rolling alarm index.
	MaxHistory = 500
)

var ErrNotFound = errors.New("store: not found")

// AlarmRecord is what the history index keeps per event. The JPEG itself
// lives under a separate key so listing history never drags photo bytes
// over the wire.
type AlarmRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Code       string    `json:"code"`
	Realtime   bool      `json:"realtime"`
	Resolution string    `json:"resolution"`
	Strategy   string    `json:"strategy"`
	Score      float64   `json:"score"`
	MarkerPath string    `json:"marker_path,omitempty"`
	ClipPath   string    `json:"clip_path,omitempty"`
	PhotoBytes int       `json:"photo_bytes"`
}

type Store struct {
	client *redis.Client
}

func NewStore(addr, password string, db int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: rdb}
}

// NewStoreWithClient is used by tests to back the store with miniredis.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

// SaveResolved implements alarm.PhotoStore: index the event and, when a
// photo came out of resolution, store the JPEG under its own key.
func (s *Store) SaveResolved(ctx context.Context, ev *alarm.Event) error {
	rec := AlarmRecord{
		ID:         ev.ID.String(),
		Timestamp:  ev.Timestamp,
		Code:       ev.Code,
		Realtime:   ev.Realtime,
		Resolution: string(ev.Resolution),
		Strategy:   ev.Report.Strategy,
		Score:      ev.Report.Score,
		PhotoBytes: len(ev.Image),
	}
	if ev.SourceMarker != nil {
		rec.MarkerPath = ev.SourceMarker.Path
	}
	if ev.MatchedClip != nil {
		rec.ClipPath = ev.MatchedClip.Path
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, "alarm_records", rec.ID, data)

	// Score = event time so the index stays chronological.
	pipe.ZAdd(ctx, "alarm_index", redis.Z{
		Score:  float64(ev.Timestamp.UnixMilli()),
		Member: rec.ID,
	})

	if len(ev.Image) > 0 {
		pipe.Set(ctx, photoKey(rec.ID), ev.Image, PhotoTTL)
	}

	// Keep only the newest MaxHistory entries; evicted entries lose their
	// record and photo too.
	pipe.ZRemRangeByRank(ctx, "alarm_index", 0, int64(-(MaxHistory + 1)))

	_, err = pipe.Exec(ctx)
	if err != nil {
		return err
	}
	return s.pruneOrphans(ctx)
}

// pruneOrphans removes hash records for IDs no longer in the index.
func (s *Store) pruneOrphans(ctx context.Context) error {
	ids, err := s.client.HKeys(ctx, "alarm_records").Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		err := s.client.ZScore(ctx, "alarm_index", id).Err()
		if err == redis.Nil {
			pipe := s.client.Pipeline()
			pipe.HDel(ctx, "alarm_records", id)
			pipe.Del(ctx, photoKey(id))
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]AlarmRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.ZRevRange(ctx, "alarm_index", 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]AlarmRecord, 0, len(ids))
	for _, id := range ids {
		raw, err := s.client.HGet(ctx, "alarm_records", id).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec AlarmRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (AlarmRecord, error) {
	raw, err := s.client.HGet(ctx, "alarm_records", id).Result()
	if err == redis.Nil {
		return AlarmRecord{}, ErrNotFound
	}
	if err != nil {
		return AlarmRecord{}, err
	}
	var rec AlarmRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return AlarmRecord{}, fmt.Errorf("unmarshal record %s: %w", id, err)
	}
	return rec, nil
}

// GetPhoto returns the resolved JPEG for an event, ErrNotFound when the
// event never resolved or the photo expired.
func (s *Store) GetPhoto(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, photoKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return data, err
}

func photoKey(id string) string {
	return fmt.Sprintf("alarm_photo:%s", id)
}
