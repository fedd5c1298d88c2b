// Package fragments discovers recorded media fragments and waits until the
// recorder has finished writing them.
//
// A fragment counts as complete only when its size is unchanged between two
// consecutive polls and reaches the configured minimum. Scan is
// all-or-nothing: either every fragment in the directory is complete and the
// ordered list is returned, or nothing is.
package fragments
