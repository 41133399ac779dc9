package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

type ProbeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe inspects the first video stream of the file at path.
func Probe(ctx context.Context, path string) (codec string, width, height int, err error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-loglevel", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height",
		"-of", "json",
		path,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", 0, 0, fmt.Errorf("ffprobe error: %v, output: %s", err, string(out))
	}

	var result ProbeOutput
	if err := json.Unmarshal(out, &result); err != nil {
		return "", 0, 0, err
	}

	if len(result.Streams) == 0 {
		return "", 0, 0, fmt.Errorf("no video stream found")
	}

	s := result.Streams[0]
	return s.CodecName, s.Width, s.Height, nil
}

// Normalize re-encodes the input into a playback-safe H.264/AAC MP4 capped at
// maxHeight. The context bounds the whole ffmpeg run; a killed process
// surfaces as a retryable error to the caller.
func Normalize(ctx context.Context, inputPath, outputPath string, maxHeight int) error {
	if maxHeight <= 0 {
		maxHeight = 1080
	}

	args := []string{
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", maxHeight),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ac", "2",
		"-movflags", "+faststart",
		outputPath,
	}

	zap.L().Info("ffmpeg: normalizing", zap.String("input", inputPath), zap.String("output", outputPath))

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg error: %v, output: %s", err, string(out))
	}
	return nil
}
