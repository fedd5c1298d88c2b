// Package assembly merges ordered fragments into a single artifact with ffmpeg.
//
// Audio fragments share a codec and are concatenated losslessly. Video
// fragments may come from different encoders, so they are concatenated and
// re-encoded to VP8/Vorbis WebM using a quality Profile. Commands are built as
// argument vectors and never pass through a shell.
//
// ffmpeg writes to a hidden partial file next to the destination. The partial
// is checked for existence and minimum size and only then renamed into place,
// so a truncated run never replaces a good artifact. The concat manifest is
// removed whatever the outcome; fragment deletion is left to the caller and
// limited to the manifest entries (see DeleteFragments).
package assembly
