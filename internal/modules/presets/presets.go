// Package presets holds the fixed resize presets and the per-session custom one.
package presets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Default output size when nothing else was chosen.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// CustomKey is the name the custom preset is saved under.
const CustomKey = "customResize"

const customTTL = 90 * 24 * time.Hour

var (
	ErrNoCustomPreset = errors.New("no custom preset saved")
	ErrInvalidPreset  = errors.New("preset width and height must be positive")
)

// Preset is a named output size
type Preset struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

var fixed = []Preset{
	{ID: "movie", Name: "Movie (1080p)", Width: 1920, Height: 1080},
	{ID: "laptop", Name: "Laptop", Width: 1366, Height: 768},
	{ID: "tablet", Name: "Tablet", Width: 1280, Height: 800},
	{ID: "mobile", Name: "Mobile", Width: 1080, Height: 1920},
}

// List returns the fixed presets in display order
func List() []Preset {
	return append([]Preset(nil), fixed...)
}

// Lookup finds a fixed preset by id
func Lookup(id string) (Preset, bool) {
	for _, p := range fixed {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Custom is the user's saved size
type Custom struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks both dimensions are positive
func (c Custom) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return ErrInvalidPreset
	}
	return nil
}

// stored is the persisted form, {"w":..,"h":..}
type stored struct {
	W int `json:"w"`
	H int `json:"h"`
}

// KV is the key-value store the custom preset lives in.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Store saves and loads custom presets per session
type Store struct {
	kv     KV
	logger *zap.Logger
}

// NewStore creates a preset store
func NewStore(kv KV, logger *zap.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

func key(sessionID string) string {
	return fmt.Sprintf("presets:%s:%s", sessionID, CustomKey)
}

// Save stores c as the session's custom preset, replacing any previous one
func (s *Store) Save(ctx context.Context, sessionID string, c Custom) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(stored{W: c.Width, H: c.Height})
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key(sessionID), data, customTTL); err != nil {
		return fmt.Errorf("save custom preset: %w", err)
	}
	s.logger.Debug("Saved custom preset",
		zap.String("session_id", sessionID),
		zap.Int("width", c.Width),
		zap.Int("height", c.Height),
	)
	return nil
}

// Load returns the session's custom preset or ErrNoCustomPreset
func (s *Store) Load(ctx context.Context, sessionID string) (Custom, error) {
	raw, err := s.kv.Get(ctx, key(sessionID))
	if errors.Is(err, redis.Nil) {
		return Custom{}, ErrNoCustomPreset
	}
	if err != nil {
		return Custom{}, fmt.Errorf("load custom preset: %w", err)
	}

	var v stored
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Warn("Discarding unreadable custom preset", zap.String("session_id", sessionID), zap.Error(err))
		return Custom{}, ErrNoCustomPreset
	}
	c := Custom{Width: v.W, Height: v.H}
	if c.Validate() != nil {
		return Custom{}, ErrNoCustomPreset
	}
	return c, nil
}

// Clear forgets the session's custom preset
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.kv.Delete(ctx, key(sessionID))
}
