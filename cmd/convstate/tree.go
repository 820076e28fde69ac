package convstate

import (
	"fmt"
	"strings"

	"github.com/agentkeep/convstate/internal/model"
	"github.com/agentkeep/convstate/internal/navigator"
)

// TreeCmd prints the reconstructed subtree rooted at a task, or every root
// task's subtree when no task id is given (C11).
type TreeCmd struct {
	TaskID   string `long:"task" description:"task id to root the tree at; defaults to every detected root task"`
	MaxDepth int    `long:"max-depth" default:"0" description:"maximum depth to print (0 = unlimited)"`
}

func (c *TreeCmd) Execute(_ []string) error {
	nav := navigator.New(cacheSingleton())

	if c.TaskID != "" {
		printSubtree(nav, c.TaskID, 0, c.MaxDepth)
		return nil
	}

	var roots []string
	cacheSingleton().Range(func(sk *model.ConversationSkeleton) bool {
		if sk.IsRootTask || sk.EffectiveParent(cacheSingleton().Known) == "" {
			roots = append(roots, sk.TaskID)
		}
		return true
	})
	for _, root := range roots {
		printSubtree(nav, root, 0, c.MaxDepth)
	}
	return nil
}

func printSubtree(nav *navigator.Navigator, taskID string, depth, maxDepth int) {
	sk, ok := cacheSingleton().Get(taskID)
	title := ""
	if ok {
		title = sk.Metadata.Title
	}
	fmt.Printf("%s%s  %q\n", strings.Repeat("  ", depth), taskID, title)

	for _, child := range nav.Children(taskID) {
		if maxDepth > 0 && depth+1 >= maxDepth {
			continue
		}
		printSubtree(nav, child.TaskID, depth+1, maxDepth)
	}
}
