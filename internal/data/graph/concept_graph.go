package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/videograph/internal/domain"
	"github.com/yungbote/videograph/internal/platform/logger"
	"github.com/yungbote/videograph/internal/platform/neo4jdb"
)

// Store persists concepts, mentions, and typed relationships in Neo4j. All
// writes MERGE on deterministic ids so re-runs converge to the same graph.
type Store struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

// RelationshipUpsertStats reports one upsert pass over relationship batches.
type RelationshipUpsertStats struct {
	Uploaded int
	Skipped  int
}

func NewStore(log *logger.Logger, client *neo4jdb.Client) *Store {
	return &Store{
		client: client,
		log:    log.With("service", "ConceptGraph"),
	}
}

func (s *Store) available() bool {
	return s != nil && s.client != nil && s.client.Driver != nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

// EnsureConstraints creates the uniqueness constraints the writes rely on.
// Best-effort; restricted users may not be allowed to manage schema.
func (s *Store) EnsureConstraints(ctx context.Context) {
	if !s.available() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT concept_id IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT mention_id IF NOT EXISTS FOR (m:ConceptMention) REQUIRE m.id IS UNIQUE`,
		`CREATE CONSTRAINT relationship_id IF NOT EXISTS FOR ()-[r:GRAPH_RELATION]-() REQUIRE r.id IS UNIQUE`,
	}
	for _, stmt := range statements {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

// UpsertConcepts MERGEs concepts on id, setting all scalar properties.
func (s *Store) UpsertConcepts(ctx context.Context, concepts []domain.Concept) (int, error) {
	if !s.available() || len(concepts) == 0 {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows := make([]map[string]any, 0, len(concepts))
	for i := range concepts {
		if concepts[i].ID == uuid.Nil {
			continue
		}
		rows = append(rows, concepts[i].GraphProperties())
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $concepts AS concept
MERGE (c:Concept {id: concept.id})
SET c += concept
`, map[string]any{"concepts": rows})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert concepts: %w", err)
	}
	s.log.Info("Upserted concepts", "count", len(rows))
	return len(rows), nil
}

// UpsertMentions MERGEs mention nodes and links each to its concept.
func (s *Store) UpsertMentions(ctx context.Context, mentions []domain.ConceptMention) (int, error) {
	if !s.available() || len(mentions) == 0 {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows := make([]map[string]any, 0, len(mentions))
	for i := range mentions {
		if mentions[i].ID == uuid.Nil || mentions[i].ConceptID == uuid.Nil {
			continue
		}
		rows = append(rows, mentions[i].GraphProperties())
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $mentions AS mention
MERGE (m:ConceptMention {id: mention.id})
SET m += mention
WITH m, mention
MATCH (c:Concept {id: mention.conceptId})
MERGE (m)-[:MENTIONS]->(c)
`, map[string]any{"mentions": rows})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert mentions: %w", err)
	}
	s.log.Info("Upserted mentions", "count", len(rows))
	return len(rows), nil
}

// UpsertRelationships MERGEs edges on id in batches. Rows whose endpoints do
// not both exist are skipped by the MATCH and counted as such.
func (s *Store) UpsertRelationships(ctx context.Context, rels []domain.Relationship, batchSize int) (RelationshipUpsertStats, error) {
	var stats RelationshipUpsertStats
	if !s.available() || len(rels) == 0 {
		return stats, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for start := 0; start < len(rels); start += batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := start + batchSize
		if end > len(rels) {
			end = len(rels)
		}
		rows := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			r := rels[i]
			if r.ID == uuid.Nil || r.SourceConceptID == uuid.Nil || r.TargetConceptID == uuid.Nil {
				stats.Skipped++
				continue
			}
			rows = append(rows, map[string]any{
				"sourceId": r.SourceConceptID.String(),
				"targetId": r.TargetConceptID.String(),
				"props":    r.GraphProperties(),
			})
		}
		if len(rows) == 0 {
			continue
		}

		merged, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, `
UNWIND $rels AS rel
MATCH (source:Concept {id: rel.sourceId})
MATCH (target:Concept {id: rel.targetId})
MERGE (source)-[r:GRAPH_RELATION {id: rel.props.id}]->(target)
ON CREATE SET r.relType = rel.props.relType
SET r += rel.props
RETURN count(r) AS merged
`, map[string]any{"rels": rows})
			if err != nil {
				return nil, err
			}
			record, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			return record.Values[0], nil
		})
		if err != nil {
			return stats, fmt.Errorf("upsert relationships batch %d: %w", start/batchSize, err)
		}
		count, _ := merged.(int64)
		stats.Uploaded += int(count)
		stats.Skipped += len(rows) - int(count)
	}

	if stats.Skipped > 0 {
		s.log.Warn("Some relationships skipped (missing endpoint concepts)",
			"uploaded", stats.Uploaded,
			"skipped", stats.Skipped,
		)
	} else {
		s.log.Info("Upserted relationships", "count", stats.Uploaded)
	}
	return stats, nil
}

// DeleteConceptsForVideo detach-deletes a video's concepts and their mention
// nodes. Returns the number of nodes removed.
func (s *Store) DeleteConceptsForVideo(ctx context.Context, videoID string) (int, error) {
	if !s.available() {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept {videoId: $videoId})
OPTIONAL MATCH (m:ConceptMention)-[:MENTIONS]->(c)
DETACH DELETE m, c
`, map[string]any{"videoId": videoID})
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesDeleted(), nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete concepts for %s: %w", videoID, err)
	}
	count, _ := deleted.(int)
	s.log.Info("Deleted concepts", "video_id", videoID, "nodes", count)
	return count, nil
}

// DeleteRelationshipsForVideo removes edges where either endpoint belongs to
// the video.
func (s *Store) DeleteRelationshipsForVideo(ctx context.Context, videoID string) (int, error) {
	if !s.available() {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH ()-[r:GRAPH_RELATION]->()
WHERE r.sourceVideoId = $videoId OR r.targetVideoId = $videoId
DELETE r
`, map[string]any{"videoId": videoID})
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().RelationshipsDeleted(), nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete relationships for %s: %w", videoID, err)
	}
	count, _ := deleted.(int)
	s.log.Info("Deleted relationships", "video_id", videoID, "edges", count)
	return count, nil
}

// GetConceptsForVideo returns a video's concepts ordered by importance
// descending. Used by the skip-existing path and CLI stats.
func (s *Store) GetConceptsForVideo(ctx context.Context, videoID string) ([]domain.Concept, error) {
	if !s.available() {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept {videoId: $videoId})
RETURN c
ORDER BY c.importance DESC
`, map[string]any{"videoId": videoID})
		if err != nil {
			return nil, err
		}
		var concepts []domain.Concept
		for res.Next(ctx) {
			node, ok := res.Record().Values[0].(neo4j.Node)
			if !ok {
				continue
			}
			concepts = append(concepts, conceptFromProps(node.Props))
		}
		return concepts, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("get concepts for %s: %w", videoID, err)
	}
	concepts, _ := result.([]domain.Concept)
	return concepts, nil
}

// CountRelationships counts edges touching the video.
func (s *Store) CountRelationships(ctx context.Context, videoID string) (int, error) {
	if !s.available() {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH ()-[r:GRAPH_RELATION]->()
WHERE r.sourceVideoId = $videoId OR r.targetVideoId = $videoId
RETURN count(r) AS total
`, map[string]any{"videoId": videoID})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return record.Values[0], nil
	})
	if err != nil {
		return 0, fmt.Errorf("count relationships for %s: %w", videoID, err)
	}
	count, _ := result.(int64)
	return int(count), nil
}

// SearchConcepts finds concepts whose name or definition contains the query,
// best first.
func (s *Store) SearchConcepts(ctx context.Context, query string, limit int) ([]domain.Concept, error) {
	if !s.available() {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 20
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept)
WHERE toLower(c.name) CONTAINS toLower($query)
   OR toLower(c.definition) CONTAINS toLower($query)
RETURN c
ORDER BY c.importance DESC, c.confidence DESC
LIMIT $limit
`, map[string]any{"query": query, "limit": limit})
		if err != nil {
			return nil, err
		}
		var concepts []domain.Concept
		for res.Next(ctx) {
			node, ok := res.Record().Values[0].(neo4j.Node)
			if !ok {
				continue
			}
			concepts = append(concepts, conceptFromProps(node.Props))
		}
		return concepts, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("search concepts: %w", err)
	}
	concepts, _ := result.([]domain.Concept)
	return concepts, nil
}

func conceptFromProps(props map[string]any) domain.Concept {
	c := domain.Concept{
		Name:             stringProp(props, "name"),
		Definition:       stringProp(props, "definition"),
		Type:             domain.ConceptTypeFromString(stringProp(props, "type")),
		Importance:       floatProp(props, "importance"),
		Confidence:       floatProp(props, "confidence"),
		VideoID:          stringProp(props, "videoId"),
		GroupID:          intProp(props, "groupId"),
		FirstMentionTime: floatProp(props, "firstMentionTime"),
		LastMentionTime:  floatProp(props, "lastMentionTime"),
		MentionCount:     intProp(props, "mentionCount"),
	}
	if id, err := uuid.Parse(stringProp(props, "id")); err == nil {
		c.ID = id
	}
	if raw, ok := props["aliases"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				c.Aliases = append(c.Aliases, s)
			}
		}
	}
	if ts, err := time.Parse(time.RFC3339, stringProp(props, "extractedAt")); err == nil {
		c.ExtractedAt = ts
	}
	return c
}

func stringProp(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func intProp(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
