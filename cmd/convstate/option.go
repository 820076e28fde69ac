package convstate

// Options is the root command that groups sub-commands. The struct tags
// are interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Version bool `short:"v" long:"version" description:"print version and exit"`

	Scan        *ScanCmd        `command:"scan" description:"discover task directories and (re)build skeletons"`
	Reconstruct *ReconstructCmd `command:"reconstruct" description:"run the two-pass hierarchy reconstruction engine"`
	Tree        *TreeCmd        `command:"tree" description:"print the reconstructed task tree"`
	Index       *IndexCmd       `command:"index" description:"evaluate the indexing decision service"`
}

// Init instantiates the sub-command referenced by the first argument so
// that flags.Parse can populate its fields.
func (o *Options) Init(firstArg string) {
	switch firstArg {
	case "scan":
		o.Scan = &ScanCmd{}
	case "reconstruct":
		o.Reconstruct = &ReconstructCmd{}
	case "tree":
		o.Tree = &TreeCmd{}
	case "index":
		o.Index = &IndexCmd{}
	}
}
