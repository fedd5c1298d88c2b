package assembly

import "strconv"

// Profile bundles the encoder settings for video re-encoding.
type Profile struct {
	Name         string
	VideoBitrate string
	CPUUsed      int
	Deadline     string
	Scale        string
	AudioBitrate string
	Threads      int
	// SilentTrack mixes in a generated silent mono track so fragments recorded
	// without a microphone still produce a playable WebM.
	SilentTrack bool
}

// ProductionProfile is the full resolution profile used on recording stations.
func ProductionProfile(threads int) Profile {
	return Profile{
		Name:         "production",
		VideoBitrate: "4M",
		CPUUsed:      4,
		Deadline:     "good",
		Scale:        "1920:1080",
		AudioBitrate: "128k",
		Threads:      threads,
	}
}

// TestProfile trades quality for speed on test benches.
func TestProfile(threads int) Profile {
	return Profile{
		Name:         "test",
		VideoBitrate: "200k",
		CPUUsed:      8,
		Deadline:     "realtime",
		AudioBitrate: "64k",
		Threads:      threads,
		SilentTrack:  true,
	}
}

// ProfileFor resolves a profile by name; anything other than "test" is production.
func ProfileFor(name string, threads int) Profile {
	if name == "test" {
		return TestProfile(threads)
	}
	return ProductionProfile(threads)
}

func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-y"}
}

func concatInput(manifest string) []string {
	return []string{"-f", "concat", "-safe", "0", "-i", manifest}
}

func threadArgs(threads int) []string {
	if threads <= 0 {
		return nil
	}
	return []string{"-threads", strconv.Itoa(threads)}
}

// ConcatCopyArgs builds a lossless concat of same-codec fragments.
func ConcatCopyArgs(manifest, output string) []string {
	args := baseArgs()
	args = append(args, concatInput(manifest)...)
	args = append(args, "-c", "copy", "-f", "mp4", output)
	return args
}

// ConcatEncodeArgs builds a concat followed by a VP8/Vorbis re-encode.
func ConcatEncodeArgs(manifest, output string, p Profile) []string {
	args := baseArgs()
	args = append(args, concatInput(manifest)...)
	if p.SilentTrack {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=r=44100:cl=mono", "-shortest")
	}
	args = append(args, "-c:v", "libvpx", "-pix_fmt", "yuv420p", "-b:v", p.VideoBitrate)
	if p.Scale != "" {
		args = append(args, "-vf", "scale="+p.Scale)
	}
	args = append(args,
		"-cpu-used", strconv.Itoa(p.CPUUsed),
		"-deadline", p.Deadline,
		"-c:a", "libvorbis",
		"-b:a", p.AudioBitrate,
	)
	args = append(args, threadArgs(p.Threads)...)
	args = append(args, "-f", "webm", output)
	return args
}

// ExtractAudioArgs pulls the audio track out of a video as AAC.
func ExtractAudioArgs(input, output string, threads int) []string {
	args := baseArgs()
	args = append(args, "-i", input, "-vn", "-acodec", "aac")
	args = append(args, threadArgs(threads)...)
	args = append(args, "-f", "mp4", output)
	return args
}
