package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"

	DefaultTokenTTL         = time.Hour
	DefaultMaxMessageLength = 500
	DefaultMongoDatabase    = "dmrelay"
)

type Config struct {
	ServerAddr       string
	StoreBackend     string
	DatabaseDSN      string
	MongoURI         string
	MongoDatabase    string
	SigningKey       []byte
	TokenTTL         time.Duration
	MaxMessageLength int
	AllowedOrigins   []string
}

// Options holds the raw, unvalidated settings collected from flags and the environment.
type Options struct {
	ServerAddr       string
	StoreBackend     string
	DatabaseDSN      string
	MongoURI         string
	MongoDatabase    string
	SigningKey       string
	TokenTTL         time.Duration
	MaxMessageLength int
	AllowedOrigins   []string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("empty signing key")
	}

	return key, nil
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	backend := opts.StoreBackend
	if backend == "" {
		backend = StorePostgres
	}

	switch backend {
	case StorePostgres:
		if opts.DatabaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty")
		}
	case StoreMongo:
		if opts.MongoURI == "" {
			return nil, fmt.Errorf("mongo URI cannot be empty")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unsupported store backend %q", backend)
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(opts.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	ttl := opts.TokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	if ttl < 0 {
		return nil, fmt.Errorf("token TTL must be positive")
	}

	maxLen := opts.MaxMessageLength
	if maxLen == 0 {
		maxLen = DefaultMaxMessageLength
	}
	if maxLen < 0 {
		return nil, fmt.Errorf("max message length must be positive")
	}

	mongoDB := opts.MongoDatabase
	if mongoDB == "" {
		mongoDB = DefaultMongoDatabase
	}

	return &Config{
		ServerAddr:       opts.ServerAddr,
		StoreBackend:     backend,
		DatabaseDSN:      opts.DatabaseDSN,
		MongoURI:         opts.MongoURI,
		MongoDatabase:    mongoDB,
		SigningKey:       signingKey,
		TokenTTL:         ttl,
		MaxMessageLength: maxLen,
		AllowedOrigins:   opts.AllowedOrigins,
	}, nil
}
