package convstate

import (
	"context"
	"fmt"
)

// ScanCmd discovers task directories and (re)builds their skeletons,
// printing a one-line summary per task (C1/C4).
type ScanCmd struct {
	Force bool `long:"force" description:"rebuild every skeleton even if checksums are unchanged"`
}

func (c *ScanCmd) Execute(_ []string) error {
	ctx := context.Background()
	manifests, err := detectorSingleton().Scan(ctx)
	if err != nil {
		return err
	}

	cache := cacheSingleton()
	builder := builderSingleton()
	for _, manifest := range manifests {
		previous, _ := cache.Get(manifest.TaskID)
		sk, err := builder.Build(ctx, manifest, previous, c.Force)
		if err != nil {
			fmt.Printf("%s\tERROR\t%v\n", manifest.TaskID, err)
			continue
		}
		cache.Put(sk)
		fmt.Printf("%s\t%d messages\t%q\n", sk.TaskID, sk.Metadata.MessageCount, sk.Metadata.Title)
	}
	fmt.Printf("scanned %d task directories, %d cached skeletons\n", len(manifests), cache.Len())
	return nil
}
