package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"semefo/internal/config"
)

// AssemblyRequirements lists the binaries the assembly engine invokes.
// ffprobe is only required when artifact probing is enabled.
func AssemblyRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Assembly.FFmpegBinary,
			Description: "Concatenates fragments and extracts audio",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Assembly.FFprobeBinary,
			Description: "Inspects assembled artifacts",
			Optional:    !cfg.Assembly.ProbeOutput,
		},
	}
}

// CheckFFmpegVersion runs "<binary> -version" and returns the first output line.
func CheckFFmpegVersion(ctx context.Context, binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "-hide_banner", "-version")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s -version: %w", binary, err)
	}
	scanner := bufio.NewScanner(&out)
	if scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s -version: empty output", binary)
}
