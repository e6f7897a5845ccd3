package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
		orig = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name string
		opts Options
		err  bool
	}{
		{
			name: "valid postgres config",
			opts: Options{ServerAddr: addr, DatabaseDSN: dsn, SigningKey: key, AllowedOrigins: orig},
			err:  false,
		},
		{
			name: "valid mongo config",
			opts: Options{ServerAddr: addr, StoreBackend: StoreMongo, MongoURI: "mongodb://localhost:27017", SigningKey: key},
			err:  false,
		},
		{
			name: "valid memory config",
			opts: Options{ServerAddr: addr, StoreBackend: StoreMemory, SigningKey: key},
			err:  false,
		},
		{
			name: "empty address",
			opts: Options{DatabaseDSN: dsn, SigningKey: key},
			err:  true,
		},
		{
			name: "empty DSN",
			opts: Options{ServerAddr: addr, SigningKey: key},
			err:  true,
		},
		{
			name: "empty mongo URI",
			opts: Options{ServerAddr: addr, StoreBackend: StoreMongo, SigningKey: key},
			err:  true,
		},
		{
			name: "unknown backend",
			opts: Options{ServerAddr: addr, StoreBackend: "redis", SigningKey: key},
			err:  true,
		},
		{
			name: "empty signing key",
			opts: Options{ServerAddr: addr, DatabaseDSN: dsn},
			err:  true,
		},
		{
			name: "negative token ttl",
			opts: Options{ServerAddr: addr, DatabaseDSN: dsn, SigningKey: key, TokenTTL: -time.Second},
			err:  true,
		},
		{
			name: "negative max message length",
			opts: Options{ServerAddr: addr, DatabaseDSN: dsn, SigningKey: key, MaxMessageLength: -1},
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.opts)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.opts.ServerAddr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.opts.DatabaseDSN, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, tc.opts.AllowedOrigins, config.AllowedOrigins, "expected allowed origins to match")
			assert.NotEmpty(t, config.SigningKey, "expected signing key to be decoded and not empty")
			assert.NotEmpty(t, config.StoreBackend, "expected store backend to be set")
		})
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	config, err := NewConfig(Options{
		ServerAddr:  "localhost:8000",
		DatabaseDSN: "dsn",
		SigningKey:  "c29tZV9zZWNyZXQ=",
	})
	assert.NoError(t, err)
	assert.Equal(t, StorePostgres, config.StoreBackend)
	assert.Equal(t, DefaultTokenTTL, config.TokenTTL)
	assert.Equal(t, DefaultMaxMessageLength, config.MaxMessageLength)
	assert.Equal(t, DefaultMongoDatabase, config.MongoDatabase)
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
		{
			name:         "empty base64 secret",
			base64Secret: "",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match for base64 secret: %s", tc.base64Secret)
			}
		})
	}
}
