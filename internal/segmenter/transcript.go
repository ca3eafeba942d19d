package segmenter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/yungbote/videograph/internal/domain"
	pkgerrors "github.com/yungbote/videograph/internal/pkg/errors"
)

// Transcript files carry blank-line separated blocks, each starting with a
// [HH:MM:SS.cc] timestamp.
var transcriptBlockRe = regexp.MustCompile(`(?s)^\[(\d{2}:\d{2}:\d{2}\.\d{2})\]\s*(.*)$`)

// speakingWPM is the assumed rate used to estimate the final segment's end
// time, which has no following block to borrow a start from.
const speakingWPM = 150.0

// VideoIDFromPath derives the video id from a transcript filename such as
// transcript_HbDqLPm_2vY.txt.
func VideoIDFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimPrefix(stem, "transcript_")
}

// ParseTranscriptFile reads a pre-chunked transcript file into segments. End
// times come from the next block's start; the last block's end is estimated
// from its word count.
func ParseTranscriptFile(path string) (string, []domain.TranscriptSegment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read transcript %s: %w", path, err)
	}
	videoID := VideoIDFromPath(path)
	segments, err := ParseTranscript(videoID, string(raw))
	if err != nil {
		return videoID, nil, err
	}
	return videoID, segments, nil
}

// ParseTranscript parses timestamped transcript content for one video.
func ParseTranscript(videoID, content string) ([]domain.TranscriptSegment, error) {
	blocks := strings.Split(strings.TrimSpace(content), "\n\n")
	var segments []domain.TranscriptSegment
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		m := transcriptBlockRe.FindStringSubmatch(block)
		if m == nil {
			continue
		}
		start, err := parseTimestamp(m[1])
		if err != nil {
			continue
		}
		text := strings.TrimSpace(m[2])
		if text == "" {
			continue
		}
		segments = append(segments, domain.TranscriptSegment{
			VideoID: videoID,
			Text:    text,
			StartS:  start,
			Tokens:  len(strings.Fields(text)),
		})
	}
	if len(segments) == 0 {
		return nil, pkgerrors.ErrEmptyTranscript
	}

	for i := range segments {
		if i < len(segments)-1 {
			segments[i].EndS = segments[i+1].StartS
			continue
		}
		estimated := float64(segments[i].Tokens) / speakingWPM * 60.0
		segments[i].EndS = segments[i].StartS + estimated
	}
	return segments, nil
}

func parseTimestamp(ts string) (float64, error) {
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return float64(hours)*3600 + float64(minutes)*60 + seconds, nil
}
