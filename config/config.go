// Package config declares the server configuration, parsed from flags and
// environment by go-flags.
package config

import "time"

// Config is the top-level configuration of the collaboration server.
type Config struct {
	Server struct {
		Addr string `long:"addr" env:"ADDR" default:":8080" description:"HTTP listen address"`
	} `group:"Server" namespace:"server" env-namespace:"SERVER"`

	Store struct {
		Backend       string `long:"backend" env:"BACKEND" default:"memory" choice:"memory" choice:"mongo" choice:"postgres" description:"Document store backend"`
		MongoURI      string `long:"mongo-uri" env:"MONGO_URI" default:"mongodb://localhost:27017" description:"MongoDB connection URI"`
		MongoDatabase string `long:"mongo-database" env:"MONGO_DATABASE" default:"collab" description:"MongoDB database name"`
		PostgresDSN   string `long:"postgres-dsn" env:"POSTGRES_DSN" default:"postgres://localhost/collab?sslmode=disable" description:"Postgres connection string"`
	} `group:"Store" namespace:"store" env-namespace:"STORE"`

	Lock struct {
		Backend        string        `long:"backend" env:"BACKEND" default:"memory" choice:"memory" choice:"redis" description:"Lock service backend"`
		RedisAddr      string        `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`
		TTL            time.Duration `long:"ttl" env:"TTL" default:"10s" description:"Lock time-to-live"`
		AcquireTimeout time.Duration `long:"acquire-timeout" env:"ACQUIRE_TIMEOUT" default:"3s" description:"Hard deadline for lock acquisition"`
	} `group:"Lock" namespace:"lock" env-namespace:"LOCK"`

	Auth struct {
		JWTSecret string `long:"jwt-secret" env:"JWT_SECRET" description:"HS256 secret for bearer tokens; insecure pass-through auth when empty"`
	} `group:"Auth" namespace:"auth" env-namespace:"AUTH"`

	Log struct {
		Level  string `long:"level" env:"LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
		Format string `long:"format" env:"FORMAT" default:"text" choice:"text" choice:"json" description:"Log output format"`
	} `group:"Logging" namespace:"log" env-namespace:"LOG"`
}
