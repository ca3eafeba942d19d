package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/videograph/internal/platform/envutil"
)

// Grouping holds the grouping engine parameters.
type Grouping struct {
	KNeighbors             int     `yaml:"k_neighbors"`
	NeighborThreshold      float64 `yaml:"neighbor_threshold"`
	AdjacentThreshold      float64 `yaml:"adjacent_threshold"`
	TemporalTau            float64 `yaml:"temporal_tau"`
	MaxGroupWords          int     `yaml:"max_group_words"`
	MinGroupSegments       int     `yaml:"min_group_segments"`
	MergeCentroidThreshold float64 `yaml:"merge_centroid_threshold"`
	MaxConcurrentQueries   int     `yaml:"max_concurrent_queries"`
}

// Segmenter holds the sentence-chunking bounds.
type Segmenter struct {
	MinTokens int `yaml:"min_tokens"`
	MaxTokens int `yaml:"max_tokens"`
}

// Detectors holds relationship-detector thresholds.
type Detectors struct {
	UseEmbeddings             bool    `yaml:"use_embeddings"`
	VectorSimilarityThreshold float64 `yaml:"vector_similarity_threshold"`
	InterSimilarityThreshold  float64 `yaml:"inter_similarity_threshold"`
	TemporalWindowSeconds     float64 `yaml:"temporal_window_seconds"`
}

// Pipeline holds stage gating and orchestration knobs.
type Pipeline struct {
	EnableGrouping            bool    `yaml:"enable_grouping"`
	EnableConcepts            bool    `yaml:"enable_concepts"`
	EnableRelationships       bool    `yaml:"enable_relationships"`
	SkipExisting              bool    `yaml:"skip_existing"`
	OverwriteRelationships    bool    `yaml:"overwrite_relationships"`
	MinRelationshipConfidence float64 `yaml:"min_relationship_confidence"`
	ConceptDelaySeconds       float64 `yaml:"concept_delay_seconds"`
	RelationshipBatchSize     int     `yaml:"relationship_batch_size"`
	OutputDir                 string  `yaml:"output_dir"`
}

// Config is the full pipeline configuration, built once at startup.
type Config struct {
	Mode      string    `yaml:"mode"`
	Grouping  Grouping  `yaml:"grouping"`
	Segmenter Segmenter `yaml:"segmenter"`
	Detectors Detectors `yaml:"detectors"`
	Pipeline  Pipeline  `yaml:"pipeline"`
}

// Load builds the configuration from the environment with spec defaults.
func Load() Config {
	return Config{
		Mode: envutil.Str("APP_MODE", "development"),
		Grouping: Grouping{
			KNeighbors:             envutil.Int("GROUPING_K_NEIGHBORS", 8),
			NeighborThreshold:      envutil.Float("GROUPING_NEIGHBOR_THRESHOLD", 0.80),
			AdjacentThreshold:      envutil.Float("GROUPING_ADJACENT_THRESHOLD", 0.70),
			TemporalTau:            envutil.Float("GROUPING_TEMPORAL_TAU", 150.0),
			MaxGroupWords:          envutil.Int("GROUPING_MAX_GROUP_WORDS", 700),
			MinGroupSegments:       envutil.Int("GROUPING_MIN_GROUP_SEGMENTS", 2),
			MergeCentroidThreshold: envutil.Float("GROUPING_MERGE_CENTROID_THRESHOLD", 0.85),
			MaxConcurrentQueries:   envutil.Int("GROUPING_MAX_CONCURRENT_QUERIES", 4),
		},
		Segmenter: Segmenter{
			MinTokens: envutil.Int("SEGMENT_MIN_TOKENS", 120),
			MaxTokens: envutil.Int("SEGMENT_MAX_TOKENS", 320),
		},
		Detectors: Detectors{
			UseEmbeddings:             envutil.Bool("DETECTOR_USE_EMBEDDINGS", false),
			VectorSimilarityThreshold: envutil.Float("DETECTOR_VECTOR_SIMILARITY_THRESHOLD", 0.6),
			InterSimilarityThreshold:  envutil.Float("DETECTOR_INTER_SIMILARITY_THRESHOLD", 0.75),
			TemporalWindowSeconds:     envutil.Float("DETECTOR_TEMPORAL_WINDOW_SECONDS", 300),
		},
		Pipeline: Pipeline{
			EnableGrouping:            envutil.Bool("PIPELINE_ENABLE_GROUPING", true),
			EnableConcepts:            envutil.Bool("PIPELINE_ENABLE_CONCEPTS", true),
			EnableRelationships:       envutil.Bool("PIPELINE_ENABLE_RELATIONSHIPS", true),
			SkipExisting:              envutil.Bool("PIPELINE_SKIP_EXISTING", false),
			OverwriteRelationships:    envutil.Bool("PIPELINE_OVERWRITE_RELATIONSHIPS", false),
			MinRelationshipConfidence: envutil.Float("PIPELINE_MIN_RELATIONSHIP_CONFIDENCE", 0.6),
			ConceptDelaySeconds:       envutil.Float("PIPELINE_CONCEPT_DELAY_SECONDS", 0.5),
			RelationshipBatchSize:     envutil.Int("PIPELINE_RELATIONSHIP_BATCH_SIZE", 100),
			OutputDir:                 envutil.Str("PIPELINE_OUTPUT_DIR", "output"),
		},
	}
}

// LoadWithOverrides applies a YAML tuning file on top of the env config.
// Only keys present in the file change; everything else keeps its default.
func LoadWithOverrides(path string) (Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}
