// Package secret resolves credentials referenced from configuration.
//
// A configuration value such as the Postgres DSN or the Redis password may
// be written literally, may use ${VAR} expansion, or may name a secret held
// elsewhere:
//
//	secretref:env:PG_PASSWORD
//	secretref:file:redis-password
//	postgres://todos:secretref:file:pg-password@db:5432/todos
//
// The "env" and "file" providers are registered in DefaultRegistry.
package secret
