package convstate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/viant/afs"

	"github.com/agentkeep/convstate/internal/cache"
	"github.com/agentkeep/convstate/internal/detect"
	"github.com/agentkeep/convstate/internal/embedpipeline"
	"github.com/agentkeep/convstate/internal/radixindex"
	"github.com/agentkeep/convstate/internal/ratelimit"
	"github.com/agentkeep/convstate/internal/skeleton"
	"github.com/agentkeep/convstate/internal/vectorstore/chromem"
	"github.com/agentkeep/convstate/internal/workspace"
	"github.com/agentkeep/convstate/genai/embedder"
)

var (
	singletonOnce  sync.Once
	singletonFS    afs.Service
	singletonDet   *detect.Detector
	singletonBld   *skeleton.Builder
	singletonCache *cache.Cache
	singletonIdx   *radixindex.Index
)

// ensureSingleton initialises the process-wide fs/detector/builder/cache
// used by every sub-command only once, to speed up CLI invocations that
// chain multiple sub-commands in a script.
func ensureSingleton() {
	singletonOnce.Do(func() {
		singletonFS = afs.New()
		singletonDet = detect.New(singletonFS, workspace.Path(workspace.KindTasks))
		singletonBld = skeleton.New(singletonFS)
		singletonCache = cache.New(singletonFS, singletonDet, singletonBld)
		singletonIdx = radixindex.New()
	})
}

func fsSingleton() afs.Service            { ensureSingleton(); return singletonFS }
func detectorSingleton() *detect.Detector { ensureSingleton(); return singletonDet }
func builderSingleton() *skeleton.Builder { ensureSingleton(); return singletonBld }
func cacheSingleton() *cache.Cache        { ensureSingleton(); return singletonCache }
func indexSingleton() *radixindex.Index   { ensureSingleton(); return singletonIdx }

var (
	pipelineOnce  sync.Once
	singletonGuard *ratelimit.Guard
	singletonPipe  *embedpipeline.Pipeline
	pipelineErr    error
)

// ensurePipeline lazily builds the embedding/upsert pipeline (C10) and its
// rate limiter/circuit breaker guard (C9): an OpenAI embedder client, an
// embedded chromem-go vector store persisted under the workspace, and the
// guard wrapping every store call. Built once per process, same as the
// other singletons above.
func ensurePipeline(ctx context.Context) (*embedpipeline.Pipeline, *ratelimit.Guard, error) {
	pipelineOnce.Do(func() {
		client, err := embedder.New(ctx, embedder.DefaultConfig(), nil)
		if err != nil {
			pipelineErr = fmt.Errorf("build embedder client: %w", err)
			return
		}

		storePath := filepath.Join(workspace.Path(workspace.KindEmbeddingCache), "vectorstore")
		store, err := chromem.New(storePath)
		if err != nil {
			pipelineErr = fmt.Errorf("build vector store: %w", err)
			return
		}

		singletonGuard = ratelimit.New(ratelimit.DefaultOptions())

		pipe, err := embedpipeline.New(client, store, singletonGuard, nil, embedpipeline.DefaultOptions())
		if err != nil {
			pipelineErr = fmt.Errorf("build embed pipeline: %w", err)
			return
		}
		singletonPipe = pipe
	})
	return singletonPipe, singletonGuard, pipelineErr
}
