// Package redis provides a result store backed by Redis string keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// Config controls key layout and retention.
type Config struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// commander is the subset of the go-redis client the store uses.
type commander interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// BlobStore keeps each artifact under "<KeyPrefix><path>".
type BlobStore struct {
	client    commander
	keyPrefix string
	ttl       time.Duration
}

// NewClient dials Redis using cfg.
func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// New wraps an existing client.
func New(client commander, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &BlobStore{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

// PutObject stores the body and returns a redis:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, _ string, body io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if err := s.client.Set(ctx, s.key(path), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set: %w", err)
	}
	return s.uri(path), nil
}

// GetObject reads an artifact. A missing key maps to keyword.ErrArtifactNotFound.
func (s *BlobStore) GetObject(ctx context.Context, path string) (keyword.Artifact, error) {
	data, err := s.client.Get(ctx, s.key(path)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return keyword.Artifact{}, keyword.ErrArtifactNotFound
	}
	if err != nil {
		return keyword.Artifact{}, fmt.Errorf("redis get: %w", err)
	}
	return keyword.Artifact{Data: data, URL: s.uri(path)}, nil
}

func (s *BlobStore) key(path string) string {
	return s.keyPrefix + path
}

func (s *BlobStore) uri(path string) string {
	return "redis://" + s.key(path)
}
