// Package build drives one incremental build of a module: scan, compile,
// link, check and convert, each stage skipped when its outputs are fresh.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Norgate-AV/nxbuild/internal/cache"
	"github.com/Norgate-AV/nxbuild/internal/checker"
	"github.com/Norgate-AV/nxbuild/internal/codes"
	"github.com/Norgate-AV/nxbuild/internal/compiler"
	"github.com/Norgate-AV/nxbuild/internal/config"
	"github.com/Norgate-AV/nxbuild/internal/executor"
	"github.com/Norgate-AV/nxbuild/internal/generate"
	"github.com/Norgate-AV/nxbuild/internal/logging"
	"github.com/Norgate-AV/nxbuild/internal/rust"
	"github.com/Norgate-AV/nxbuild/internal/staleness"
	"github.com/Norgate-AV/nxbuild/internal/toolchain"
	"github.com/Norgate-AV/nxbuild/internal/utils"
)

// failureSummaryLimit is how many failed sources are named in the summary
const failureSummaryLimit = 5

// Options are the per-invocation settings
type Options struct {
	// Profile from the command line; empty means the base profile
	Profile string

	// ConfigureOnly regenerates compile_commands.json without building
	ConfigureOnly bool
}

// Result describes what a successful run did
type Result struct {
	Profile  string
	Artifact string

	Compiled     int
	CrateChanged bool
	Linked       bool
	Checked      bool
	Converted    bool
}

// Orchestrator runs builds. Every field is required.
type Orchestrator struct {
	Config    *config.Config
	Toolchain *toolchain.Toolchain
	Runner    compiler.Runner
	Logger    *logging.Logger
	Executor  *executor.Executor
}

type compileTask struct {
	cmd     *compiler.CompileCommand
	display string
	handle  *executor.Handle[*compiler.Output]
}

// Run performs one build. Failures are returned as *codes.StageError.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	cfg := o.Config
	log := o.Logger

	profile, err := cfg.SelectProfile(opts.Profile)
	if err != nil {
		return nil, codes.Fail(codes.StageConfig, err)
	}

	if !cfg.Build.HasProfile(profile) {
		log.Warning("profile `%s` is not declared, using the base settings", profile)
	}

	settings, err := cfg.ResolvedBuild(profile)
	if err != nil {
		return nil, codes.Fail(codes.StageConfig, err)
	}

	checkSettings := cfg.ResolvedCheck(profile)
	var chk *checker.Checker
	if checkSettings != nil && !opts.ConfigureOnly {
		chk, err = checker.New(checker.Policy{
			Ignore:                 checkSettings.Ignore,
			Symbols:                checkSettings.Symbols,
			DisallowedInstructions: checkSettings.DisallowedInstructions,
		}, o.Toolchain.Objdump, o.Runner)
		if err != nil {
			return nil, codes.Fail(codes.StageConfig, err)
		}
	}

	var crate *rust.Crate
	if !opts.ConfigureOnly {
		crate, err = rust.Load(cfg)
		if err != nil {
			return nil, codes.Fail(codes.StageConfig, err)
		}
	}

	layout := NewLayout(cfg.Root, profile, cfg.Module.Name)
	if err := layout.Prepare(); err != nil {
		return nil, codes.Fail(codes.StagePrepare, err)
	}

	if opts.ConfigureOnly {
		log.Status("Configuring", "%s (profile `%s`)", cfg.Module.Name, profile)
	} else {
		log.Status("Building", "%s (profile `%s`)", cfg.Module.Name, profile)
	}

	manifestTime, ok := staleness.Mtime(layout.ManifestSource)
	configChanged := !ok || !staleness.UpToDate(cfg.ModTime, manifestTime)

	fingerprint, err := o.Toolchain.Fingerprint(ctx, o.Runner)
	if err != nil {
		return nil, codes.Fail(codes.StageToolchain, err)
	}

	old, err := cache.Load(layout.CompileDB)
	if err != nil {
		log.Debug().Err(err).Msg("starting with an empty compile database")
	}

	commandsMayHaveChanged := configChanged
	if !old.FingerprintMatches(fingerprint) {
		log.Debug().
			Str("cc", fingerprint.CC).
			Str("cxx", fingerprint.CXX).
			Msg("toolchain changed, discarding compile database")
		old = cache.NewCompileDB()
		commandsMayHaveChanged = true
	}

	builder := o.newBuilder(settings, layout)

	sources, err := scanSources(settings.Sources, settings.Exclude, log)
	if err != nil {
		return nil, codes.Fail(codes.StagePrepare, err)
	}

	db := cache.NewCompileDB()
	db.SetFingerprint(fingerprint)

	if opts.ConfigureOnly {
		for _, src := range sources {
			db.Update(builder.Compile(src).Record())
		}

		db.MergeOld(old)
		o.export(db, layout)
		log.Status("Finished", "%s in %.2fs", utils.RelPath(cfg.Root, layout.CompileCommands), time.Since(start).Seconds())

		return &Result{Profile: profile, Artifact: layout.CompileCommands}, nil
	}

	engine := staleness.NewEngine(old, commandsMayHaveChanged)
	objects := make([]string, 0, len(sources))
	var tasks []compileTask

	for _, src := range sources {
		cmd := builder.Compile(src)
		objects = append(objects, cmd.Output)
		display := utils.RelPath(cfg.Root, src.Path)

		reason := engine.Source(cmd)
		if !reason.Stale() {
			log.Debug().Str("source", display).Msg("up to date")
			db.Update(cmd.Record())
			continue
		}

		log.Debug().
			Str("source", display).
			Str("reason", reason.String()).
			Str("command", cmd.Shell().String()).
			Msg("compiling")

		tasks = append(tasks, compileTask{
			cmd:     cmd,
			display: display,
			handle:  o.compile(ctx, cmd, display),
		})
	}

	var crateTask *executor.Handle[bool]
	if crate != nil {
		crateTask = executor.SubmitContext(ctx, o.Executor, func(ctx context.Context) (bool, error) {
			log.Status("Compiling", "crate %s", crate.Name)
			return crate.Build(ctx, o.Runner)
		})
	}

	// Auxiliary generation overlaps the compiles
	var manifestTask, versionTask *executor.Handle[struct{}]
	versionJoined := false

	if _, ok := staleness.Mtime(layout.Manifest); configChanged || !ok {
		manifestTask = executor.SubmitContext(ctx, o.Executor, func(ctx context.Context) (struct{}, error) {
			log.Status("Creating", "%s", generate.ManifestOutput)
			return struct{}{}, generate.Manifest(ctx, o.Runner, o.Toolchain.Npdm, layout.Dir, cfg.Module.TitleID)
		})
	}

	if _, ok := staleness.Mtime(layout.VersionScript); configChanged || !ok {
		versionTask = executor.SubmitContext(ctx, o.Executor, func(context.Context) (struct{}, error) {
			log.Debug().Str("path", layout.VersionScript).Msg("writing version script")
			return struct{}{}, generate.VersionScript(layout.VersionScript, settings.Entry)
		})
	}

	defer func() {
		if manifestTask != nil {
			<-manifestTask.Done()
		}

		if !versionJoined {
			o.settle(versionTask)
		}
	}()

	// Successful compiles are recorded even when others failed
	compileErr := o.joinCompiles(tasks, db)
	crateChanged, crateErr := o.joinCrate(crate, crateTask)

	db.MergeOld(old)
	if err := db.Save(layout.CompileDB); err != nil {
		log.Warning("failed to save compile database: %v", err)
	}

	o.export(db, layout)

	if compileErr != nil {
		return nil, compileErr
	}

	if crateErr != nil {
		return nil, crateErr
	}

	result := &Result{
		Profile:      profile,
		Artifact:     layout.NSO,
		Compiled:     len(tasks),
		CrateChanged: crateChanged,
	}

	// Link
	elfName := cfg.Module.Name + ".elf"
	var staticLibs []string
	if crate != nil {
		staticLibs = []string{crate.Output()}
	}

	linkCmd := builder.Link(slices.Concat(objects, staticLibs), layout.ELF)
	objectList := cache.ObjectList(objects)

	var previous *compiler.LinkCommand
	var cached compiler.LinkCommand
	if err := cache.LoadJSON(layout.LinkCache, &cached); err != nil {
		log.Debug().Err(err).Msg("no previous link command")
	} else {
		previous = &cached
	}

	linkIn := &staleness.LinkInputs{
		ObjectsCompiled:    len(tasks) > 0,
		SourcesRemoved:     len(engine.Removed()) > 0,
		ConfigChanged:      configChanged,
		ELF:                layout.ELF,
		Objects:            objects,
		ObjectList:         objectList,
		PreviousObjectList: cache.ReadText(layout.ObjectsCache),
		Command:            linkCmd,
		PreviousCommand:    previous,
		LinkerScripts:      settings.LdScripts,
		LibPaths:           settings.LibPaths,
		Libraries:          settings.Libraries,
		StaticLibs:         staticLibs,
	}

	needsLink, reason, err := linkIn.NeedsLink()
	if err != nil {
		log.Failure("Failed", "%v", err)
		return nil, codes.Fail(codes.StageLink, err)
	}

	if needsLink {
		if versionTask != nil {
			versionJoined = true
			if _, err := versionTask.Join(); err != nil {
				return nil, codes.Fail(codes.StageGenerate, err)
			}
		}

		log.Debug().Str("reason", reason).Str("command", linkCmd.Shell().String()).Msg("linking")
		_, err := executor.SubmitContext(ctx, o.Executor, func(ctx context.Context) (*compiler.Output, error) {
			log.Status("Linking", "%s", elfName)
			return o.Runner.Run(ctx, linkCmd.Shell())
		}).Join()
		if err != nil {
			o.dumpFailure(err)
			log.Failure("Error", "Failed to link %s", elfName)
			return nil, codes.Fail(codes.StageLink, err)
		}

		if err := cache.SaveJSON(layout.LinkCache, linkCmd); err != nil {
			log.Debug().Err(err).Msg("failed to save link command")
		}

		result.Linked = true
	}

	if err := cache.WriteText(layout.ObjectsCache, objectList); err != nil {
		log.Debug().Err(err).Msg("failed to save object list")
	}

	// The configuration counts as changed until a run gets this far
	if manifestTask != nil {
		if _, err := manifestTask.Join(); err != nil {
			o.dumpFailure(err)
			log.Failure("Error", "Failed to create %s", generate.ManifestOutput)
			return nil, codes.Fail(codes.StageGenerate, err)
		}

		if err := generate.Stamp(layout.Dir, cfg.ModTime); err != nil {
			return nil, codes.Fail(codes.StageGenerate, err)
		}
	}

	// Check and convert
	convIn := &staleness.ConversionInputs{
		Linked:          result.Linked,
		ELF:             layout.ELF,
		NSO:             layout.NSO,
		CheckConfigured: chk != nil,
	}
	if checkSettings != nil {
		convIn.SymbolListings = checkSettings.Symbols
	}

	needsConversion, reason := convIn.NeedsConversion()
	if needsConversion {
		log.Debug().Str("reason", reason).Msg("converting")

		if chk != nil {
			if err := o.check(ctx, chk, layout, elfName); err != nil {
				return nil, err
			}

			result.Checked = true
		}

		if err := o.convert(ctx, layout); err != nil {
			return nil, err
		}

		result.Converted = true
	}

	log.Status("Finished", "%s (profile `%s`) in %.2fs", cfg.Module.Name, profile, time.Since(start).Seconds())

	return result, nil
}

func (o *Orchestrator) newBuilder(b config.Build, layout *Layout) *compiler.Builder {
	flags := compiler.ResolveFlags(b.Flags)
	flags.AddIncludes(o.Toolchain.LibnxInclude)
	flags.AddIncludes(b.Includes...)
	flags.SetInit(b.Entry)
	flags.SetVersionScript(layout.VersionScript)
	flags.AddLibPaths(b.LibPaths...)
	flags.AddLibraries(b.Libraries...)
	flags.AddLinkerScripts(b.LdScripts...)

	return compiler.NewBuilder(o.Toolchain.CC, o.Toolchain.CXX, flags, layout.ObjectDir)
}

func (o *Orchestrator) compile(ctx context.Context, cmd *compiler.CompileCommand, display string) *executor.Handle[*compiler.Output] {
	return executor.SubmitContext(ctx, o.Executor, func(ctx context.Context) (*compiler.Output, error) {
		o.Logger.Status("Compiling", "%s", display)
		return o.Runner.Run(ctx, cmd.Shell())
	})
}

// joinCompiles waits for every compile, records the successful ones and
// reports all failures together.
func (o *Orchestrator) joinCompiles(tasks []compileTask, db *cache.CompileDB) error {
	var errs *multierror.Error
	var failed []string

	for _, t := range tasks {
		out, err := t.handle.Join()
		if err != nil {
			o.dumpFailure(err)
			removeOutputs(t.cmd)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", t.display, err))
			failed = append(failed, t.display)
			continue
		}

		// warnings
		if out != nil {
			o.Logger.Dump(out.Stderr)
		}

		db.Update(t.cmd.Record())
	}

	if errs == nil {
		return nil
	}

	n := len(failed)
	o.Logger.Failure("Error", "%d object %s failed to compile: %s", n, utils.Plural(n, "file"), utils.Summarize(failed, failureSummaryLimit))
	o.Logger.Hint("Please check the errors above.")

	return codes.Fail(codes.StageCompile, errs.ErrorOrNil())
}

// settle waits for an auxiliary task nobody joined and reports its failure
func (o *Orchestrator) settle(task *executor.Handle[struct{}]) {
	if task == nil {
		return
	}

	if _, err := task.Join(); err != nil {
		o.Logger.Warning("%v", err)
	}
}

// removeOutputs deletes what a failed compile may have left behind, so the
// old object can never pass as fresh
func removeOutputs(cmd *compiler.CompileCommand) {
	for _, path := range []string{cmd.Output, cmd.DepFile} {
		_ = os.Remove(path)
	}
}

func (o *Orchestrator) joinCrate(crate *rust.Crate, task *executor.Handle[bool]) (bool, error) {
	if task == nil {
		return false, nil
	}

	changed, err := task.Join()
	if err != nil {
		o.dumpFailure(err)
		o.Logger.Failure("Error", "Failed to build crate %s", crate.Name)
		return false, codes.Fail(codes.StageCompile, err)
	}

	return changed, nil
}

func (o *Orchestrator) check(ctx context.Context, chk *checker.Checker, layout *Layout, elfName string) error {
	log := o.Logger

	res, err := executor.SubmitContext(ctx, o.Executor, func(ctx context.Context) (*checker.Result, error) {
		log.Status("Checking", "%s", elfName)
		return chk.Run(ctx, layout.ELF)
	}).Join()
	if err != nil {
		o.dumpFailure(err)
		log.Failure("Error", "Failed to check %s", elfName)
		return codes.Fail(codes.StageCheck, err)
	}

	if err := checker.WriteDiagnostics(layout.Dir, res); err != nil {
		log.Warning("%v", err)
	}

	if res.OK() {
		log.Debug().Msg("check passed")
		return nil
	}

	checker.Report(log, res, checker.DefaultReportLimit)
	if len(res.MissingSymbols) > 0 {
		log.Hint("All missing symbols saved to %s", utils.RelPath(o.Config.Root, layout.MissingSymbols))
	}

	if len(res.DisallowedInstructions) > 0 {
		log.Hint("All disallowed instructions saved to %s", utils.RelPath(o.Config.Root, layout.DisallowedInstructions))
	}

	log.Failure("Error", "Check failed. Please fix the errors above.")

	return codes.Fail(codes.StageCheck, fmt.Errorf("%d unresolved symbols, %d disallowed instructions",
		len(res.MissingSymbols), len(res.DisallowedInstructions)))
}

func (o *Orchestrator) convert(ctx context.Context, layout *Layout) error {
	nsoName := o.Config.Module.Name + ".nso"
	cmd := &compiler.ShellCommand{Path: o.Toolchain.Elf2Nso, Args: []string{layout.ELF, layout.NSO}}

	_, err := executor.SubmitContext(ctx, o.Executor, func(ctx context.Context) (*compiler.Output, error) {
		o.Logger.Status("Creating", "%s", nsoName)
		return o.Runner.Run(ctx, cmd)
	}).Join()
	if err != nil {
		o.dumpFailure(err)
		o.Logger.Failure("Error", "Failed to create %s", nsoName)
		return codes.Fail(codes.StageConvert, err)
	}

	return nil
}

// export writes compile_commands.json. Failures only cost editor support.
func (o *Orchestrator) export(db *cache.CompileDB, layout *Layout) {
	var buf bytes.Buffer
	opts := cache.ExportOptions{
		SystemIncludes: o.Toolchain.SystemIncludes(),
		FilterArch:     true,
	}

	if err := db.ExportCompileCommands(&buf, opts); err != nil {
		o.Logger.Warning("%v", err)
		return
	}

	if err := cache.WriteText(layout.CompileCommands, buf.String()); err != nil {
		o.Logger.Warning("failed to write compile_commands.json: %v", err)
	}
}

// dumpFailure prints the captured stderr of a failed tool, or the error
// itself when the tool never ran
func (o *Orchestrator) dumpFailure(err error) {
	var exitErr *compiler.ExitError
	if errors.As(err, &exitErr) {
		o.Logger.Dump(exitErr.Stderr)
		return
	}

	o.Logger.Failure("Error", "%v", err)
}
