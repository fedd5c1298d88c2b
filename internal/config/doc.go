// Package config loads, normalizes, and validates worker configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the deployment environment
// variables the recording stations already export (STORAGE_ROOT, IS_DOCKER,
// MIN_DISK_SPACE_GB, MODO_PRUEBA_VIDEO, API_SERVER_URL, WORKER_CLIENT_ID,
// WORKER_CLIENT_SECRET, NATS_URL, QUEUE_NAME). Environment values win over
// the file for those keys so a container can be repointed without editing it.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, a canonical encoding profile, and clear validation errors.
package config
