package convstate

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentkeep/convstate/internal/hierarchy"
	"github.com/agentkeep/convstate/internal/model"
)

// ReconstructCmd runs the two-pass hierarchy reconstruction engine (C7)
// over every skeleton currently cached.
type ReconstructCmd struct {
	Permissive bool `long:"permissive" description:"allow similarity/metadata/temporal fallbacks when strict matching fails"`
}

func (c *ReconstructCmd) Execute(_ []string) error {
	ctx := context.Background()
	cache := cacheSingleton()
	if err := cache.EnsureFresh(ctx); err != nil {
		return err
	}

	var skeletons []*model.ConversationSkeleton
	cache.Range(func(sk *model.ConversationSkeleton) bool {
		skeletons = append(skeletons, sk)
		return true
	})

	idx := indexSingleton()
	pass1 := hierarchy.Pass1(idx, skeletons)
	fmt.Printf("pass 1: processed=%d parsed=%d instructions=%d index_size=%d errors=%d (%s)\n",
		pass1.Processed, pass1.Parsed, pass1.TotalInstructions, pass1.IndexSize, len(pass1.Errors), pass1.WallTime)

	opts := hierarchy.DefaultOptions()
	if c.Permissive {
		opts.Mode = hierarchy.Permissive
	}
	pass2 := hierarchy.Pass2(idx, skeletons, opts)
	fmt.Printf("pass 2: processed=%d resolved=%d unresolved=%d avg_confidence=%.2f (%s)\n",
		pass2.Processed, pass2.Resolved, pass2.Unresolved, pass2.AverageConfidence, pass2.WallTime)

	var methods []string
	for method, count := range pass2.ResolutionMethodCounts {
		methods = append(methods, fmt.Sprintf("%s=%d", method, count))
	}
	fmt.Println(strings.Join(methods, " "))

	for _, sk := range skeletons {
		cache.Put(sk)
	}
	return nil
}
