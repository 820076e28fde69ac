package convstate

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/agentkeep/convstate/internal/embedpipeline"
	"github.com/agentkeep/convstate/internal/indexing"
	"github.com/agentkeep/convstate/internal/model"
	"github.com/agentkeep/convstate/internal/ratelimit"
	"github.com/agentkeep/convstate/internal/vectorstore"
)

// IndexCmd evaluates the indexing decision service (C8) against every
// cached skeleton and, for the ones it selects, drives the chunk -> embed ->
// upsert pipeline (C10) through the rate limiter/circuit breaker guard (C9).
type IndexCmd struct {
	ForceReindex bool   `long:"force-reindex" description:"override FORCE_REINDEX env var"`
	Version      int    `long:"index-version" description:"override INDEX_VERSION env var"`
	Collection   string `long:"collection" description:"vector store collection name" default:"conversations"`
}

func (c *IndexCmd) Execute(_ []string) error {
	cfg := indexing.DefaultConfig()
	cfg.ForceReindex = c.ForceReindex || os.Getenv("FORCE_REINDEX") == "1"
	cfg.CurrentIndexVersion = c.Version
	if cfg.CurrentIndexVersion == 0 {
		if v, err := strconv.Atoi(os.Getenv("INDEX_VERSION")); err == nil {
			cfg.CurrentIndexVersion = v
		}
	}

	collection := c.Collection
	if collection == "" {
		collection = "conversations"
	}

	ctx := context.Background()
	pipe, guard, err := ensurePipeline(ctx)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	if err := pipe.EnsureCollection(ctx, collection, embedpipeline.DefaultExpectedDim); err != nil {
		return fmt.Errorf("index: ensure collection: %w", err)
	}

	now := time.Now().UTC()
	counts := map[indexing.Action]int{}
	backPressured := 0

	cacheSingleton().Range(func(sk *model.ConversationSkeleton) bool {
		decision := indexing.Decide(sk, now, cfg)
		counts[decision.Action]++

		if !decision.ShouldIndex {
			fmt.Printf("%s\t%s\t%s\n", sk.TaskID, decision.Action, decision.Reason)
			return true
		}

		// §5 back-pressure: refuse new work while the breaker is open,
		// leaving the skeleton unindexed rather than queuing more calls
		// against a store that is already failing.
		if guard.State() == gobreaker.StateOpen {
			backPressured++
			fmt.Printf("%s\t%s\tcircuit breaker open: deferred\n", sk.TaskID, decision.Action)
			return true
		}

		if err := indexSkeleton(ctx, pipe, collection, sk); err != nil {
			indexing.MarkFailure(sk, now, cfg, err, ratelimit.IsTerminal(err))
			fmt.Printf("%s\t%s\terror: %v\n", sk.TaskID, decision.Action, err)
		} else {
			indexing.MarkSuccess(sk, now, cfg)
			fmt.Printf("%s\t%s\tindexed\n", sk.TaskID, decision.Action)
		}
		cacheSingleton().Put(sk)
		return true
	})

	fmt.Printf("index=%d retry=%d skip=%d deferred=%d\n",
		counts[indexing.ActionIndex], counts[indexing.ActionRetry], counts[indexing.ActionSkip], backPressured)
	return nil
}

// indexSkeleton runs one skeleton's sequence items through the chunk/embed/
// upsert pipeline (§4.11): each classified item is sub-chunked, embedded
// (through the pipeline's content-addressed cache), sanitised, and upserted
// in batches of at most the pipeline's BatchMax points, each batch guarded by
// the rate limiter/circuit breaker (§4.10).
func indexSkeleton(ctx context.Context, pipe *embedpipeline.Pipeline, collection string, sk *model.ConversationSkeleton) error {
	var points []vectorstore.Point

	for _, item := range sk.Sequence {
		chunk := embedpipeline.Chunk{
			ID:   fmt.Sprintf("%s:%d", sk.TaskID, item.OriginalIndex),
			Text: item.Content,
		}
		for subIdx, sub := range pipe.SubChunks(chunk) {
			vector, err := pipe.Embed(ctx, sub)
			if err != nil {
				return fmt.Errorf("embed %s#%d: %w", chunk.ID, subIdx, err)
			}

			payload := embedpipeline.Sanitize(map[string]interface{}{
				"taskId":       sk.TaskID,
				"parentTaskId": sk.ParentTaskID,
				"actor":        string(item.Actor),
				"tag":          string(item.Tag),
				"toolName":     item.ToolName,
				"timestamp":    item.Timestamp.Format(time.RFC3339),
			}, nil)

			points = append(points, vectorstore.Point{
				ID:      fmt.Sprintf("%s:%d", chunk.ID, subIdx),
				Vector:  vector,
				Payload: payload,
			})
		}
	}

	if len(points) == 0 {
		return nil
	}
	return pipe.UpsertBatch(ctx, collection, points)
}
