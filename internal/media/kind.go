package media

import (
	"fmt"
	"strings"
)

// Kind enumerates the ledger file/job types handled by the worker.
type Kind string

const (
	KindAudio         Kind = "audio"
	KindAudio2        Kind = "audio2"
	KindVideo         Kind = "video"
	KindVideo2        Kind = "video2"
	KindTranscription Kind = "transcription"
)

var videoExtensions = []string{".avi", ".mp4", ".mkv", ".mov", ".webm"}

type kindSpec struct {
	sourceDir  string
	extensions []string
	outputDir  string
	filename   string
	manifest   string
	assembled  bool
	// derivedFrom names the kind whose artifact this one is extracted from.
	derivedFrom Kind
}

var kindSpecs = map[Kind]kindSpec{
	KindAudio: {
		sourceDir:  "audios",
		extensions: []string{".mp4"},
		outputDir:  "audios",
		filename:   "audio.mp4",
		manifest:   "list_audio.txt",
		assembled:  true,
	},
	KindVideo: {
		sourceDir:  "videos",
		extensions: videoExtensions,
		outputDir:  "videos",
		filename:   "video.webm",
		manifest:   "list_video.txt",
		assembled:  true,
	},
	KindVideo2: {
		sourceDir:  "videos2",
		extensions: videoExtensions,
		outputDir:  "videos",
		filename:   "video2.webm",
		manifest:   "list_video2.txt",
		assembled:  true,
	},
	KindAudio2: {
		outputDir:   "audios",
		filename:    "audio2.mp4",
		derivedFrom: KindVideo2,
	},
	KindTranscription: {
		outputDir: "transcripciones",
		filename:  "transcripcion.txt",
	},
}

// Kinds returns every known kind in display order.
func Kinds() []Kind {
	return []Kind{KindAudio, KindVideo, KindVideo2, KindAudio2, KindTranscription}
}

// ParseKind normalizes user input into a Kind.
func ParseKind(value string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := kindSpecs[kind]; !ok {
		return "", fmt.Errorf("unknown media kind %q", value)
	}
	return kind, nil
}

func (k Kind) String() string { return string(k) }

// Runnable reports whether the kind can be enqueued as a pipeline task.
// audio2 runs as an extraction from an existing video2 merge; transcription
// is produced downstream.
func (k Kind) Runnable() bool {
	spec := kindSpecs[k]
	return spec.assembled || spec.derivedFrom != ""
}

// DerivedFrom returns the kind whose artifact k is extracted from, if any.
func (k Kind) DerivedFrom() (Kind, bool) {
	parent := kindSpecs[k].derivedFrom
	return parent, parent != ""
}

// Extensions returns the lowercase fragment extensions accepted for the kind.
func (k Kind) Extensions() []string {
	exts := kindSpecs[k].extensions
	out := make([]string, len(exts))
	copy(out, exts)
	return out
}

// Filename returns the artifact filename registered with the ledger.
func (k Kind) Filename() string {
	return kindSpecs[k].filename
}

// ManifestName returns the concat manifest filename for the kind.
func (k Kind) ManifestName() string {
	return kindSpecs[k].manifest
}

// IsVideo reports whether the artifact is re-encoded video.
func (k Kind) IsVideo() bool {
	return k == KindVideo || k == KindVideo2
}
