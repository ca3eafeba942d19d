package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/yungbote/videograph/internal/concepts"
	"github.com/yungbote/videograph/internal/config"
	"github.com/yungbote/videograph/internal/data/graph"
	"github.com/yungbote/videograph/internal/data/segments"
	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/grouping"
	"github.com/yungbote/videograph/internal/pipeline"
	"github.com/yungbote/videograph/internal/platform/logger"
	"github.com/yungbote/videograph/internal/platform/neo4jdb"
	"github.com/yungbote/videograph/internal/platform/openai"
	"github.com/yungbote/videograph/internal/platform/weaviatedb"
	"github.com/yungbote/videograph/internal/relationships"
	"github.com/yungbote/videograph/internal/segmenter"
)

// wordTimelineFile is the JSON input carrying word-level timing, as an
// alternative to pre-chunked transcript text files.
type wordTimelineFile struct {
	VideoID  string   `json:"video_id"`
	Words    []string `json:"words"`
	Timeline []struct {
		StartS float64 `json:"start_s"`
		EndS   float64 `json:"end_s"`
	} `json:"timeline"`
}

func main() {
	configPath := flag.String("config", "", "optional YAML tuning file layered over env defaults")
	skipExisting := flag.Bool("skip-existing", false, "reuse stored concepts when a video already has them")
	overwriteRels := flag.Bool("overwrite-relationships", false, "delete a video's relationships before writing new ones")
	outputDir := flag.String("output-dir", "", "override the artifact output directory")
	videoList := flag.String("videos", "", "comma separated ids of already ingested videos to process")
	searchQuery := flag.String("search", "", "print stored concepts matching the query and exit")
	flag.Parse()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg, err := config.LoadWithOverrides(*configPath)
	if err != nil {
		log.Fatal("Config load failed", "error", err)
	}
	if *skipExisting {
		cfg.Pipeline.SkipExisting = true
	}
	if *overwriteRels {
		cfg.Pipeline.OverwriteRelationships = true
	}
	if *outputDir != "" {
		cfg.Pipeline.OutputDir = *outputDir
	}

	// Vector store
	log.Info("Connecting to vector store...")
	wcfg, err := weaviatedb.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("Vector store config invalid", "error", err)
	}
	wclient, err := weaviatedb.New(log, wcfg)
	if err != nil {
		log.Fatal("Vector store init failed", "error", err)
	}
	segRepo := segments.NewRepository(log, wclient)

	// Graph store (optional; writes become no-ops without it)
	n4j, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Graph store init failed; concept graph writes disabled", "error", err)
		n4j = nil
	}
	if n4j != nil {
		defer n4j.Close(ctx)
	}
	graphStore := graph.NewStore(log, n4j)
	graphStore.EnsureConstraints(ctx)

	if *searchQuery != "" {
		concepts, err := graphStore.SearchConcepts(ctx, *searchQuery, 20)
		if err != nil {
			log.Fatal("Concept search failed", "query", *searchQuery, "error", err)
		}
		printConcepts(*searchQuery, concepts)
		return
	}

	// LLM client
	llm, err := openai.NewClient(log)
	if err != nil {
		if cfg.Pipeline.EnableConcepts {
			log.Fatal("LLM client init failed and concept extraction is enabled", "error", err)
		}
		log.Warn("LLM client init failed; continuing without it", "error", err)
	}

	// Parse inputs
	assembler := segmenter.NewAssembler(log, segmenter.Config{
		MinTokens: cfg.Segmenter.MinTokens,
		MaxTokens: cfg.Segmenter.MaxTokens,
	})
	var jobs []job
	for _, id := range splitVideoIDs(*videoList) {
		jobs = append(jobs, job{videoID: id})
	}
	for _, path := range flag.Args() {
		videoID, segs, err := parseInputFile(assembler, path)
		if err != nil {
			log.Error("Transcript parse failed", "path", path, "error", err)
			continue
		}
		jobs = append(jobs, job{videoID: videoID, segments: segs})
	}
	if len(jobs) == 0 {
		log.Fatal("Nothing to process: pass transcript files or -videos ids")
	}

	// Pipeline
	var provider relationships.EmbeddingProvider
	if llm != nil {
		provider = llm
	}
	engine := grouping.NewEngine(log, segRepo, cfg.Grouping)
	extractor := concepts.NewExtractor(log, llm)
	consolidator := concepts.NewConsolidator(log, llm)
	detector := relationships.NewExtractor(log, cfg.Detectors, cfg.Pipeline.MinRelationshipConfidence, provider)
	p := pipeline.New(log, cfg.Pipeline, segRepo, engine, extractor, consolidator, detector, graphStore)

	var results []pipeline.Result
	for _, j := range jobs {
		var res pipeline.Result
		if len(j.segments) > 0 {
			res = p.ProcessTranscript(ctx, j.videoID, j.segments)
		} else {
			res = p.ProcessVideo(ctx, j.videoID)
		}
		results = append(results, res)
		if res.Cancelled {
			break
		}
	}

	// Totals include edges from earlier runs, not just this one.
	edgeTotals := make(map[string]int)
	for _, res := range results {
		if !res.Success {
			continue
		}
		total, err := graphStore.CountRelationships(ctx, res.VideoID)
		if err != nil {
			log.Warn("Relationship count failed", "video_id", res.VideoID, "error", err)
			continue
		}
		edgeTotals[res.VideoID] = total
	}
	printSummary(results, edgeTotals)

	for _, res := range results {
		if !res.Success {
			os.Exit(1)
		}
	}
}

// job is one unit of work: a freshly parsed transcript to ingest, or just an
// id of a video whose segments are already stored.
type job struct {
	videoID  string
	segments []domain.TranscriptSegment
}

// parseInputFile reads one input file into segments. JSON files carry word
// timelines and go through the assembler; anything else is treated as a
// pre-chunked transcript.
func parseInputFile(assembler *segmenter.Assembler, path string) (string, []domain.TranscriptSegment, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", nil, err
		}
		var file wordTimelineFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return "", nil, fmt.Errorf("parse timeline file %s: %w", path, err)
		}
		if file.VideoID == "" {
			file.VideoID = segmenter.VideoIDFromPath(path)
		}
		timeline := make([]segmenter.WordSpan, 0, len(file.Timeline))
		for _, w := range file.Timeline {
			timeline = append(timeline, segmenter.WordSpan{StartS: w.StartS, EndS: w.EndS})
		}
		segs, err := assembler.BuildSegments(file.VideoID, timeline, file.Words)
		if err != nil {
			return "", nil, err
		}
		return file.VideoID, segs, nil
	}
	return segmenter.ParseTranscriptFile(path)
}

func splitVideoIDs(list string) []string {
	var out []string
	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func printSummary(results []pipeline.Result, edgeTotals map[string]int) {
	fmt.Println()
	fmt.Println("=== Processing summary ===")
	succeeded := 0
	for _, res := range results {
		status := "ok"
		if res.Cancelled {
			status = "cancelled"
		} else if !res.Success {
			status = "failed"
		} else {
			succeeded++
		}
		fmt.Printf("%-20s %-10s groups=%-4d concepts=%-4d relationships=%-4d elapsed=%s\n",
			res.VideoID, status, res.Groups, res.Concepts, res.Relationships, res.Elapsed.Round(10*time.Millisecond))
		if total, ok := edgeTotals[res.VideoID]; ok {
			fmt.Printf("  graph edges: %d\n", total)
		}
		if res.Err != nil {
			fmt.Printf("  error: %v\n", res.Err)
		}
		for _, w := range res.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}
	fmt.Printf("%d/%d videos processed\n", succeeded, len(results))
}

func printConcepts(query string, concepts []domain.Concept) {
	fmt.Printf("%d concepts matching %q\n", len(concepts), query)
	for _, c := range concepts {
		fmt.Printf("%-30s %-14s importance=%.2f confidence=%.2f video=%s\n",
			c.Name, c.Type, c.Importance, c.Confidence, c.VideoID)
	}
}
