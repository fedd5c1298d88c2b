// Package ffprobe runs ffprobe against an assembled artifact and exposes the
// few properties the worker checks: stream counts and container duration.
package ffprobe
