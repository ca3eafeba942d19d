package segmenter

import (
	"strings"

	"github.com/yungbote/videograph/internal/domain"
	pkgerrors "github.com/yungbote/videograph/internal/pkg/errors"
	"github.com/yungbote/videograph/internal/platform/logger"
)

// Config holds the soft chunking bounds for sentence accumulation.
type Config struct {
	MinTokens int
	MaxTokens int
}

func DefaultConfig() Config {
	return Config{MinTokens: 120, MaxTokens: 320}
}

// WordSpan is one word's slot in the upstream word-level timeline.
type WordSpan struct {
	StartS float64
	EndS   float64
}

type timedWord struct {
	text  string
	start float64
	end   float64
}

type sentence struct {
	words []timedWord
}

func (s sentence) tokens() int { return len(s.words) }

// sentenceTerminators are checked on a word's last character after closing
// quotes and brackets are stripped from the right.
const sentenceTerminators = ".!?"
const closingMarks = "\"')]}»”’›"

// Assembler turns a word timeline plus the punctuated word list into
// sentence-chunked transcript segments.
type Assembler struct {
	cfg Config
	log *logger.Logger
}

func NewAssembler(log *logger.Logger, cfg Config) *Assembler {
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = DefaultConfig().MinTokens
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &Assembler{cfg: cfg, log: log.With("service", "SegmentAssembler")}
}

// BuildSegments merges the timeline and the punctuated words element-wise
// (truncating to the shorter stream), splits into sentences, and accumulates
// sentences greedily into segments within the configured token bounds.
func (a *Assembler) BuildSegments(videoID string, timeline []WordSpan, words []string) ([]domain.TranscriptSegment, error) {
	n := len(timeline)
	if len(words) < n {
		n = len(words)
	}
	if n != len(timeline) || n != len(words) {
		a.log.Warn("Word timeline and punctuated words length mismatch; truncating",
			"video_id", videoID,
			"timeline", len(timeline),
			"words", len(words),
			"used", n,
		)
	}

	timed := make([]timedWord, 0, n)
	for i := 0; i < n; i++ {
		w := strings.TrimSpace(words[i])
		if w == "" {
			continue
		}
		timed = append(timed, timedWord{text: w, start: timeline[i].StartS, end: timeline[i].EndS})
	}

	sentences := splitSentences(timed)
	segments := chunkSentences(videoID, sentences, a.cfg)
	if len(segments) == 0 {
		return nil, pkgerrors.ErrEmptyTranscript
	}

	a.log.Info("Assembled segments",
		"video_id", videoID,
		"words", len(timed),
		"sentences", len(sentences),
		"segments", len(segments),
	)
	return segments, nil
}

func splitSentences(words []timedWord) []sentence {
	var sentences []sentence
	var current []timedWord
	for _, w := range words {
		current = append(current, w)
		if endsSentence(w.text) {
			sentences = append(sentences, sentence{words: current})
			current = nil
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, sentence{words: current})
	}
	return sentences
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, closingMarks)
	if trimmed == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	return strings.IndexByte(sentenceTerminators, last) >= 0
}

func chunkSentences(videoID string, sentences []sentence, cfg Config) []domain.TranscriptSegment {
	var segments []domain.TranscriptSegment
	var current []sentence
	tokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		segments = append(segments, buildSegment(videoID, current, tokens))
		current = nil
		tokens = 0
	}

	for _, s := range sentences {
		if len(current) > 0 && tokens >= cfg.MinTokens && tokens+s.tokens() > cfg.MaxTokens {
			flush()
		}
		current = append(current, s)
		tokens += s.tokens()
	}
	flush()
	return segments
}

func buildSegment(videoID string, sentences []sentence, tokens int) domain.TranscriptSegment {
	var sb strings.Builder
	for _, s := range sentences {
		for _, w := range s.words {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w.text)
		}
	}
	first := sentences[0].words[0]
	lastSentence := sentences[len(sentences)-1]
	last := lastSentence.words[len(lastSentence.words)-1]
	return domain.TranscriptSegment{
		VideoID: videoID,
		Text:    sb.String(),
		StartS:  first.start,
		EndS:    last.end,
		Tokens:  tokens,
	}
}
