package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

const (
	// Previews are 30s clips; anything past this is not a preview.
	maxPreviewBytes = 8 << 20

	// Loudness window mapped onto energy: quieter than silenceDBFS is 0,
	// louder than peakDBFS is 1.
	silenceDBFS = -36.0
	peakDBFS    = -6.0
)

var previewClient = &http.Client{Timeout: 15 * time.Second}

// AnalyzePreview downloads an MP3 preview and estimates its energy from
// the RMS loudness of the decoded samples.
func AnalyzePreview(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("preview request: %w", err)
	}
	// #nosec G107 -- URL is a Spotify preview URL from a trusted API response
	resp, err := previewClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("preview fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("preview fetch status %d", resp.StatusCode)
	}

	decoder, err := mp3.NewDecoder(io.LimitReader(resp.Body, maxPreviewBytes))
	if err != nil {
		return 0, fmt.Errorf("preview decode failed: %w", err)
	}
	return energyFromPCM(decoder)
}

// energyFromPCM reads signed 16-bit little-endian samples and maps their
// RMS level in dBFS onto [0,1].
func energyFromPCM(r io.Reader) (float64, error) {
	buf := make([]byte, 4096)
	var sumSquares, count float64

	for {
		n, err := r.Read(buf)
		for i := 0; i+1 < n; i += 2 {
			sample := float64(int16(uint16(buf[i]) | uint16(buf[i+1])<<8))
			sumSquares += sample * sample
			count++
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("preview read failed: %w", err)
		}
	}

	if count == 0 {
		return 0, errors.New("preview contains no samples")
	}

	rms := math.Sqrt(sumSquares/count) / 32768.0
	if rms == 0 {
		return 0, nil
	}
	dbfs := 20 * math.Log10(rms)
	energy := (dbfs - silenceDBFS) / (peakDBFS - silenceDBFS)
	return math.Max(0, math.Min(1, energy)), nil
}
