// Package logs reads the worker's log files for the CLI.
//
// Last reads the trailing lines of a file with bounded memory and reports the
// byte offset it stopped at; Follow resumes from that offset and streams new
// lines until the context ends. A rotated or truncated file restarts from the
// beginning.
package logs
