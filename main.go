package main

// gitp4transfer program
// Converts a tree of CVS/RCS ",v" master files into a git fast-import
// stream written to stdout (or, with -g, a Graphviz dump of the
// gitspace changeset DAG instead of a stream).
//
// Design:
// Each master named on the command line (or read one-per-line from
// stdin when no arguments are given) is analysed independently by a
// pond worker pool: parse (package rcsparse) -> node-hash and branch
// build (package rcsmaster) -> materialise every revision's text
// (package materialize), staging it in the blobstore -> build that
// master's single-file branch DAG (package revdag). Every master
// shares one atom table (protected by its own mutex) but gets its own
// revision-number table, since only the atom table's content needs to
// agree across masters.
//
// Once every master has been analysed, the driver switches to
// single-threaded mode exactly as §5 requires: the merger (package
// merge) identifies cross-master branch cliques, coalesces per-file
// commits into gitspace changesets, places tags, and resolves branch
// joins; the emitter (package export) walks the result and writes the
// fast-import stream.
//
// Notes:
// * Recoverable inconsistencies (date-ordering repairs, unresolved
//   joins, tags with no target, unmapped authors) are logged and
//   counted, never treated as fatal - only truly unreadable input
//   aborts the run.

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alitto/pond"
	"github.com/emicklei/dot"
	graphviz "github.com/goccy/go-graphviz"
	"github.com/h2non/filetype"
	"github.com/perforce/p4prometheus/version"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rcowham/gitp4transfer/config"
	"github.com/rcowham/gitp4transfer/internal/atom"
	"github.com/rcowham/gitp4transfer/internal/authormap"
	"github.com/rcowham/gitp4transfer/internal/blobstore"
	"github.com/rcowham/gitp4transfer/internal/cvsnumber"
	"github.com/rcowham/gitp4transfer/internal/export"
	"github.com/rcowham/gitp4transfer/internal/materialize"
	"github.com/rcowham/gitp4transfer/internal/merge"
	"github.com/rcowham/gitp4transfer/internal/rcsmaster"
	"github.com/rcowham/gitp4transfer/internal/rcsparse"
	"github.com/rcowham/gitp4transfer/internal/revdag"
	journal "github.com/rcowham/gitp4transfer/journal"
)

// fatalError distinguishes §7's fatal-input-error class (process must
// terminate after cleanup) from an ordinary error; test with errors.As.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatalf(format string, args ...interface{}) error {
	return &fatalError{err: fmt.Errorf(format, args...)}
}

// Stats accumulates run-wide counters for the final log line and the
// run report. The process exit status does not depend on WarnCount.
type Stats struct {
	mu                sync.Mutex
	MastersProcessed  int
	ChangesetsEmitted int
	WarnCount         int
}

func (s *Stats) incMasters() {
	s.mu.Lock()
	s.MastersProcessed++
	s.mu.Unlock()
}

func (s *Stats) warn(logger *logrus.Logger, report *journal.Report, format string, args ...interface{}) {
	s.mu.Lock()
	s.WarnCount++
	s.mu.Unlock()
	if logger != nil {
		logger.Warnf(format, args...)
	}
	if report != nil {
		report.Warning(format, args...)
	}
}

// masterResult is one worker's output: the master's path and either
// its per-master DAG or the error that stopped its analysis.
type masterResult struct {
	path   string
	result *revdag.Result
	err    error
}

// Options collects every CLI flag the driver needs after kingpin.Parse,
// gathered into one struct the way the ancestor's GitParserOptions did.
type Options struct {
	authorMapFile   string
	revisionMapFile string
	reposurgeon     bool
	deterministic   bool
	remote          string
	strip           int
	incremental     int64
	window          int
	progress        bool
	keywords        bool
	branchorder     bool
	graphFile       string
	jobs            int
	journalFile     string
	maxCommits      int
}

func main() {
	var (
		authorMapFile = kingpin.Flag(
			"authormap",
			"File mapping cvsname = Full Name <email> [timezone].",
		).Short('A').String()
		revisionMapFile = kingpin.Flag(
			"revision-map",
			"File to write <path> <revision> <mark> triples as changesets are emitted.",
		).Short('R').String()
		reposurgeon = kingpin.Flag(
			"reposurgeon",
			"Emit 'property cvs-revision' extension lines per commit.",
		).Short('r').Bool()
		deterministicDates = kingpin.Flag(
			"deterministic-dates",
			"Force monotonically increasing commit dates (breaks ties by mark order).",
		).Short('T').Bool()
		remote = kingpin.Flag(
			"remote",
			"Emit to refs/remotes/<name>/ instead of refs/heads/.",
		).Short('e').String()
		strip = kingpin.Flag(
			"strip",
			"Strip N leading path components from every master's export pathname.",
		).Short('s').Default("0").Int()
		incremental = kingpin.Flag(
			"incremental",
			"RFC3339 timestamp: changesets at or before this emit no body.",
		).Short('i').String()
		window = kingpin.Flag(
			"window",
			"Coalescence window in seconds for commitid-less revisions.",
		).Short('w').Default("0").Int()
		progress = kingpin.Flag(
			"progress",
			"Report progress to stderr as masters are analysed.",
		).Short('p').Bool()
		keywords = kingpin.Flag(
			"keywords",
			"Expand RCS keywords ($Id$, $Log$, etc.) in materialised text.",
		).Short('k').Bool()
		branchorder = kingpin.Flag(
			"branchorder",
			"Emit each branch in full before the next, instead of canonical date order.",
		).Short('B').Bool()
		outputGraph = kingpin.Flag(
			"graph",
			"Write a Graphviz dump of the gitspace DAG here instead of a fast-import stream.",
		).Short('g').String()
		jobs = kingpin.Flag(
			"jobs",
			"Worker pool size for per-master analysis.",
		).Short('j').Default(fmt.Sprintf("%d", runtime.NumCPU())).Int()
		configFile = kingpin.Flag(
			"config",
			"YAML config file (author map, branch mappings, typemaps, window, staging dir).",
		).Short('c').String()
		outputJournal = kingpin.Flag(
			"journal",
			"Run-report file to write.",
		).Default("conversion.log").String()
		maxCommits = kingpin.Flag(
			"max-commits",
			"Max no of changesets to emit (debugging cap; 0 means unlimited).",
		).Short('m').Int()
		verbose = kingpin.Flag(
			"verbose",
			"Enable informational logging.",
		).Short('v').Bool()
		debug = kingpin.Flag(
			"debug",
			"Enable debug logging.",
		).Short('d').Bool()
		cpuprofile = kingpin.Flag(
			"cpuprofile",
			"Write a CPU profile to this directory.",
		).String()
		memprofile = kingpin.Flag(
			"memprofile",
			"Write a memory profile to this directory.",
		).String()
		masterPaths = kingpin.Arg(
			"masters",
			"CVS/RCS ,v master files to convert (reads newline-separated paths from stdin if none given).",
		).Strings()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("gitp4transfer")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Converts a tree of CVS/RCS ,v master files into a git fast-import stream\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.WarnLevel
	if *verbose {
		logger.Level = logrus.InfoLevel
	}
	if *debug {
		logger.Level = logrus.DebugLevel
	}

	if *cpuprofile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*cpuprofile)).Stop()
	} else if *memprofile != "" {
		defer profile.Start(profile.MemProfile, profile.ProfilePath(*memprofile)).Stop()
	}

	cfg, err := loadConfig(*configFile, logger)
	if err != nil {
		logger.Errorf("error loading config file: %v", err)
		os.Exit(1)
	}

	var incrementalCutoff int64
	if *incremental != "" {
		t, err := time.Parse(time.RFC3339, *incremental)
		if err != nil {
			logger.Errorf("invalid --incremental timestamp %q: %v", *incremental, err)
			os.Exit(1)
		}
		incrementalCutoff = t.Unix()
	}

	opts := Options{
		authorMapFile:   firstNonEmpty(*authorMapFile, cfg.AuthorMapFile),
		revisionMapFile: *revisionMapFile,
		reposurgeon:     *reposurgeon,
		deterministic:   *deterministicDates,
		remote:          *remote,
		strip:           *strip,
		incremental:     incrementalCutoff,
		window:          firstNonZero(*window, cfg.WindowSeconds),
		progress:        *progress,
		keywords:        *keywords || cfg.Keywords,
		branchorder:     *branchorder,
		graphFile:       *outputGraph,
		jobs:            *jobs,
		journalFile:     *outputJournal,
		maxCommits:      *maxCommits,
	}
	logger.Infof("%v", version.Print("gitp4transfer"))
	logger.Infof("Options: %+v", opts)

	paths, err := resolveMasterPaths(*masterPaths)
	if err != nil {
		logger.Errorf("error reading master list: %v", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		logger.Errorf("no master files given (pass paths as arguments, or pipe them on stdin)")
		os.Exit(1)
	}

	var authors *authormap.Table
	if opts.authorMapFile != "" {
		authors, err = loadAuthorMap(opts.authorMapFile)
		if err != nil {
			logger.Errorf("error loading author map: %v", err)
			os.Exit(1)
		}
	} else {
		authors = authormap.NewTable()
	}

	journalFile, err := os.Create(opts.journalFile)
	if err != nil {
		logger.Errorf("error creating journal file: %v", err)
		os.Exit(1)
	}
	defer journalFile.Close()
	report := journal.NewReport(journalFile)
	startTime := time.Now()
	report.WriteHeader(startTime, opts.jobs)

	stats := &Stats{}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received interrupt, draining in-flight masters before exit")
			cancel()
		case <-ctx.Done():
		}
	}()
	defer signal.Stop(sigCh)

	store, err := blobstore.New(cfg.StagingDir)
	if err != nil {
		logger.Errorf("error creating staging directory: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	results, err := analyseMasters(ctx, paths, opts, cfg, store, logger, stats, report)
	if err != nil {
		logger.Errorf("analysis failed: %v", err)
		store.Close()
		os.Exit(1)
	}
	if ctx.Err() != nil {
		logger.Error("aborted before all masters were analysed")
		report.WriteSummary(time.Since(startTime))
		store.Close()
		os.Exit(130)
	}

	branches, tags, err := merge.Run(results, int64(opts.window), func(format string, args ...interface{}) {
		stats.warn(logger, report, format, args...)
	})
	if err != nil {
		logger.Errorf("merge failed: %v", err)
		store.Close()
		os.Exit(1)
	}
	for _, t := range tags {
		report.TagPlaced(t.Name, branchNameFor(t.Commit))
	}
	for _, b := range branches {
		if b.Parent != nil {
			report.BranchJoined(b.Name, b.Parent.Name)
		}
	}
	if opts.deterministic {
		applyDeterministicDates(branches)
	}

	if opts.graphFile != "" {
		if err := writeBranchGraph(branches, opts.graphFile); err != nil {
			logger.Errorf("error writing graph: %v", err)
			store.Close()
			os.Exit(1)
		}
		report.WriteSummary(time.Since(startTime))
		return
	}

	emitter, err := emit(os.Stdout, store, branches, authors, opts, stats, report, logger)
	if err != nil {
		logger.Errorf("emission failed: %v", err)
		store.Close()
		os.Exit(1)
	}
	if opts.revisionMapFile != "" {
		if err := writeRevisionMap(opts.revisionMapFile, branches, emitter); err != nil {
			logger.Errorf("error writing revision map: %v", err)
			store.Close()
			os.Exit(1)
		}
	}

	report.WriteSummary(time.Since(startTime))
	logger.Infof("Done: %d masters, %d changesets, %d warnings in %s",
		stats.MastersProcessed, stats.ChangesetsEmitted, stats.WarnCount, time.Since(startTime))
	if stats.WarnCount > 0 {
		logger.Warnf("completed with %d warnings, see %s", stats.WarnCount, opts.journalFile)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// loadConfig loads filename if given and it exists; a missing optional
// config file is not fatal (most runs have none), but malformed
// content is.
func loadConfig(filename string, logger *logrus.Logger) (*config.Config, error) {
	if filename == "" {
		return config.Unmarshal(nil)
	}
	if _, err := os.Stat(filename); err != nil {
		logger.Infof("no config file at %s, using defaults", filename)
		return config.Unmarshal(nil)
	}
	return config.LoadConfigFile(filename)
}

func loadAuthorMap(filename string) (*authormap.Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening author map %s: %w", filename, err)
	}
	defer f.Close()
	return authormap.Parse(f)
}

// resolveMasterPaths returns args if non-empty, else reads
// newline-separated pathnames from stdin, matching cvs-fast-export's
// own "args or stdin" file-list convention.
func resolveMasterPaths(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return nil, nil
	}
	var paths []string
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			paths = append(paths, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

func branchNameFor(c *revdag.CvsCommit) string {
	if ref, ok := c.GitspaceRef.(*merge.GitCommit); ok && ref.Branch != nil {
		return ref.Branch.Name
	}
	return ""
}

// analyseMasters runs §4.2-§4.4 over every master through a pond
// worker pool, per §5: bounded concurrency up to analysis, then a
// strict handoff to single-threaded merge. One shared atom table is
// used so author/log/state comparisons agree across every master;
// each master gets its own revision-number table, since nothing
// outside a master's own analysis needs those pointers to agree.
func analyseMasters(ctx context.Context, paths []string, opts Options, cfg *config.Config, store *blobstore.Store, logger *logrus.Logger, stats *Stats, report *journal.Report) (map[string]*revdag.Result, error) {
	atoms := atom.NewTable()
	pondSize := opts.jobs
	if pondSize < 1 {
		pondSize = runtime.NumCPU()
	}
	minWorkers := pondSize
	if minWorkers > 10 {
		minWorkers = 10
	}
	pool := pond.New(pondSize, 0, pond.MinWorkers(minWorkers))

	resultCh := make(chan masterResult, len(paths))
	done := 0
	for _, p := range paths {
		path := p
		pool.Submit(func() {
			select {
			case <-ctx.Done():
				resultCh <- masterResult{path: path, err: context.Canceled}
				return
			default:
			}
			res, err := analyseMaster(path, opts, cfg, atoms, store, logger, stats)
			resultCh <- masterResult{path: path, result: res, err: err}
		})
	}
	pool.StopAndWait()
	close(resultCh)

	results := make(map[string]*revdag.Result, len(paths))
	for mr := range resultCh {
		done++
		if mr.err != nil {
			if mr.err == context.Canceled {
				continue
			}
			return nil, fatalf("analysing %s: %w", mr.path, mr.err)
		}
		results[mr.path] = mr.result
		stats.incMasters()
		seen := map[*revdag.CvsCommit]bool{}
		for _, b := range mr.result.Branches {
			for c := b.Tip; c != nil && !seen[c]; c = c.Parent {
				seen[c] = true
			}
		}
		report.MasterProcessed(mr.path, len(seen))
		if opts.progress && done%50 == 0 {
			fmt.Fprintf(os.Stderr, "analysed %d/%d masters\n", done, len(paths))
		}
	}
	return results, nil
}

func analyseMaster(path string, opts Options, cfg *config.Config, atoms *atom.Table, store *blobstore.Store, logger *logrus.Logger, stats *Stats) (*revdag.Result, error) {
	numbers := cvsnumber.NewTable()
	parser := rcsparse.New(numbers, atoms)
	master, err := parser.ReadMaster(path)
	if err != nil {
		return nil, err
	}
	master.ExportPath = stripComponents(master.ExportPath, opts.strip)

	// warn logs straight to logrus (safe for concurrent use) and bumps
	// Stats.WarnCount (mutex-guarded) rather than writing through
	// journal.Report, whose bufio.Writer isn't safe for concurrent
	// callers; per-master warnings count toward Stats.WarnCount and show
	// up on stderr, merge/export-stage warnings additionally get a report line
	// once the pipeline is back to single-threaded.
	warn := func(format string, args ...interface{}) {
		stats.mu.Lock()
		stats.WarnCount++
		stats.mu.Unlock()
		logger.WithField("master", path).Warnf(format, args...)
	}

	hash := rcsmaster.NewNodeHash()
	hash.Warnf = warn
	for _, v := range master.Versions {
		hash.HashVersion(v)
	}
	for _, p := range master.Patches {
		hash.HashPatch(p)
	}
	if err := hash.BuildBranches(numbers); err != nil {
		return nil, err
	}
	if err := hash.Validate(); err != nil {
		return nil, err
	}
	master.Hash = hash

	loader, err := rcsparse.OpenFileLoader(path)
	if err != nil {
		return nil, err
	}
	defer loader.Close()

	gen := &materialize.Generator{Loader: loader, EnableKeywords: opts.keywords}
	blobIDs := map[*cvsnumber.Number]int64{}
	if err := gen.Generate(master, func(node *rcsmaster.Node, data []byte) {
		binary, overridden := cfg.IsBinaryPath(master.ExportPath)
		if !overridden {
			kind, _ := filetype.Match(data)
			binary = kind != filetype.Unknown
		}
		// Already-compressed binary formats (h2non/filetype sniffs
		// archives, images, etc.) gain nothing from gzip staging; plain
		// text revisions are what staging compression is worth spending on.
		serial, err := store.Stage(data, !binary)
		if err != nil {
			warn("failed to stage %s@%s: %v", master.ExportPath, node.Number, err)
			return
		}
		blobIDs[node.Number] = serial
	}); err != nil {
		return nil, err
	}

	result, err := revdag.Build(master, numbers, warn)
	if err != nil {
		return nil, err
	}
	revdag.AttachBlobIDs(result, blobIDs)
	return result, nil
}

// stripComponents removes n leading "/"-separated path components,
// per -s/--strip.
func stripComponents(path string, n int) string {
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(path, '/')
		if idx < 0 {
			return path
		}
		path = path[idx+1:]
	}
	return path
}

func emit(w io.Writer, store *blobstore.Store, branches []*merge.Branch, authors *authormap.Table, opts Options, stats *Stats, report *journal.Report, logger *logrus.Logger) (*export.Emitter, error) {
	bw := bufio.NewWriter(w)
	order := export.Canonical
	if opts.branchorder {
		order = export.Branchorder
	}
	emitter := export.New(bw, store, export.Options{
		Order:             order,
		Remote:            opts.remote,
		Reposurgeon:       opts.reposurgeon,
		IncrementalCutoff: opts.incremental,
		MaxCommits:        opts.maxCommits,
		Authors:           authors,
		Warn: func(format string, args ...interface{}) {
			stats.warn(logger, report, format, args...)
		},
	})
	if err := emitter.Run(branches); err != nil {
		return nil, err
	}
	for _, b := range branches {
		c := b.Tip
		for c != nil {
			stats.ChangesetsEmitted++
			report.ChangesetEmitted(b.Name, emitter.CommitMark(c), string(c.Log))
			c = c.Parent
		}
	}
	return emitter, bw.Flush()
}

// writeBranchGraph dumps the merged gitspace DAG as a Graphviz graph
// instead of a fast-import stream, per -g: raw DOT text, or an image
// (via goccy/go-graphviz) when path's extension names one.
func writeBranchGraph(branches []*merge.Branch, path string) error {
	g := dot.NewGraph(dot.Directed)
	nodes := map[*merge.GitCommit]dot.Node{}
	label := func(branch string, c *merge.GitCommit) string {
		return fmt.Sprintf("%s: %s", branch, firstLine(string(c.Log)))
	}
	nodeFor := func(c *merge.GitCommit) dot.Node {
		if n, ok := nodes[c]; ok {
			return n
		}
		n := g.Node(label(c.Branch.Name, c))
		nodes[c] = n
		return n
	}

	var all []*merge.GitCommit
	for _, b := range branches {
		for c := b.Tip; c != nil; c = c.Parent {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Date < all[j].Date })

	for _, c := range all {
		n := nodeFor(c)
		if c.Parent != nil {
			g.Edge(nodeFor(c.Parent), n, "")
		}
	}
	for _, b := range branches {
		if b.Tip != nil && b.ParentCommit != nil {
			g.Edge(nodeFor(b.ParentCommit), nodeFor(b.Tip), "branch:"+b.Name)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".svg", ".pdf":
		return renderGraphImage(g, strings.TrimPrefix(filepath.Ext(path), "."), path)
	default:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteString(g.String())
		return err
	}
}

func renderGraphImage(g *dot.Graph, format, path string) error {
	gv := graphviz.New()
	defer gv.Close()
	graph, err := graphviz.ParseBytes([]byte(g.String()))
	if err != nil {
		return fmt.Errorf("parsing generated DOT source: %w", err)
	}
	defer graph.Close()
	return gv.RenderFilename(graph, graphviz.Format(format), path)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// applyDeterministicDates walks every branch oldest-to-newest and
// nudges any commit whose date doesn't strictly exceed its parent's
// forward by one second, per -T/--deterministic-dates. Ties are
// broken in the order coalesce already settled on, so output stays
// reproducible run to run.
func applyDeterministicDates(branches []*merge.Branch) {
	for _, b := range branches {
		var chain []*merge.GitCommit
		for c := b.Tip; c != nil; c = c.Parent {
			chain = append(chain, c)
		}
		for i := len(chain) - 2; i >= 0; i-- {
			if chain[i].Date <= chain[i+1].Date {
				chain[i].Date = chain[i+1].Date + 1
			}
		}
	}
}

// writeRevisionMap writes one "<path> <revision> <mark>" line per
// per-file CVS commit absorbed into an emitted changeset, per
// -R/--revision-map.
func writeRevisionMap(path string, branches []*merge.Branch, emitter *export.Emitter) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating revision map %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, b := range branches {
		for c := b.Tip; c != nil; c = c.Parent {
			mark := emitter.CommitMark(c)
			if mark == 0 {
				continue
			}
			for _, member := range c.Members() {
				fmt.Fprintf(w, "%s %s %d\n", member.Path, member.Number.String(), mark)
			}
		}
	}
	return w.Flush()
}
