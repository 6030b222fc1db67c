package build

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/nxbuild/internal/cache"
	"github.com/Norgate-AV/nxbuild/internal/codes"
	"github.com/Norgate-AV/nxbuild/internal/compiler"
	"github.com/Norgate-AV/nxbuild/internal/config"
	"github.com/Norgate-AV/nxbuild/internal/executor"
	"github.com/Norgate-AV/nxbuild/internal/logging"
	"github.com/Norgate-AV/nxbuild/internal/rust"
	"github.com/Norgate-AV/nxbuild/internal/toolchain"
)

const listing = `
sdk.elf:     file format elf64-littleaarch64

DYNAMIC SYMBOL TABLE:
0000000000001000 g    DF .text	0000000000000010 foo
`

// fakeToolchain stands in for the devkitPro tools. Compiles and links
// write their outputs so that mtimes behave as with the real tools.
type fakeToolchain struct {
	mu sync.Mutex

	version     string
	failSources map[string]bool
	symbols     string
	disassembly string
	npdmFail    bool

	// cargo writes crateLib when it is missing or crateDirty is set
	crateLib   string
	crateDirty bool
	crateFail  bool

	compiled  []string
	linkArgs  []string
	links     int
	converts  int
	manifest  int
	objdumps  int
	cargoRuns int
}

func newFakeToolchain() *fakeToolchain {
	return &fakeToolchain{
		version:     "aarch64-none-elf-gcc (devkitA64) 14.1.0",
		failSources: make(map[string]bool),
		symbols:     "DYNAMIC SYMBOL TABLE:\n" + symbolRow("foo"),
		disassembly: "       0:\td503201f \tnop\n",
	}
}

func symbolRow(name string) string {
	return "0000000000000000      DF *UND*\t0000000000000000 " + name + "\n"
}

func (f *fakeToolchain) Run(_ context.Context, c *compiler.ShellCommand) (*compiler.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tool := filepath.Base(c.Path)
	switch {
	case slices.Contains(c.Args, "--version"):
		return &compiler.Output{Stdout: []byte(f.version + "\nCopyright\n")}, nil

	case strings.HasSuffix(tool, "objdump"):
		f.objdumps++
		if c.Args[0] == "-T" {
			return &compiler.Output{Stdout: []byte(f.symbols)}, nil
		}

		return &compiler.Output{Stdout: []byte(f.disassembly)}, nil

	case tool == "elf2nso":
		f.converts++
		return &compiler.Output{}, os.WriteFile(c.Args[1], []byte("nso"), 0o644)

	case tool == "npdmtool":
		if f.npdmFail {
			return &compiler.Output{}, &compiler.ExitError{Command: c, Code: 1, Stderr: []byte("npdmtool crashed\n")}
		}

		f.manifest++
		return &compiler.Output{}, os.WriteFile(c.Args[1], []byte("npdm"), 0o644)

	case tool == "cargo":
		return f.cargo(c)

	case slices.Contains(c.Args, "-c"):
		return f.compile(c)

	default:
		f.links++
		f.linkArgs = c.Args
		return &compiler.Output{}, os.WriteFile(argAfter(c.Args, "-o"), []byte("elf"), 0o644)
	}
}

func (f *fakeToolchain) compile(c *compiler.ShellCommand) (*compiler.Output, error) {
	src := c.Args[len(c.Args)-1]
	if f.failSources[filepath.Base(src)] {
		stderr := []byte(src + ":1:1: error: expected ';'\n")
		return &compiler.Output{Stderr: stderr}, &compiler.ExitError{Command: c, Code: 1, Stderr: stderr}
	}

	obj := argAfter(c.Args, "-o")
	dep := argAfter(c.Args, "-MF")
	f.compiled = append(f.compiled, filepath.Base(src))

	if err := os.WriteFile(obj, []byte("obj"), 0o644); err != nil {
		return nil, err
	}

	return &compiler.Output{}, os.WriteFile(dep, []byte(obj+": \\\n "+src+"\n"), 0o644)
}

func (f *fakeToolchain) cargo(c *compiler.ShellCommand) (*compiler.Output, error) {
	f.cargoRuns++
	if f.crateFail {
		stderr := []byte("error[E0425]: cannot find value `x` in this scope\n")
		return &compiler.Output{Stderr: stderr}, &compiler.ExitError{Command: c, Code: 101, Stderr: stderr}
	}

	if _, err := os.Stat(f.crateLib); err == nil && !f.crateDirty {
		return &compiler.Output{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(f.crateLib), 0o755); err != nil {
		return nil, err
	}

	return &compiler.Output{}, os.WriteFile(f.crateLib, []byte("rlib"), 0o644)
}

func (f *fakeToolchain) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.compiled = nil
	f.linkArgs = nil
	f.cargoRuns = 0
	f.links = 0
	f.converts = 0
	f.manifest = 0
	f.objdumps = 0
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}

	return args[i+1]
}

type project struct {
	root string
	cfg  *config.Config
	fake *fakeToolchain
	out  *bytes.Buffer
	orch *Orchestrator
}

func newProject(t *testing.T) *project {
	t.Helper()
	color.NoColor = true

	root := t.TempDir()
	path := filepath.Join(root, config.ProjectFile)
	require.NoError(t, os.WriteFile(path, []byte("[module]\nname = \"mod\"\n"), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)

	cfg := &config.Config{
		Module: config.Module{Name: "mod", TitleID: 0x0100000000001234},
		Build: config.BuildSection{Build: config.Build{
			Entry:   "exl_main",
			Sources: []string{filepath.Join(root, "src")},
		}},
		Path:    path,
		Root:    root,
		ModTime: info.ModTime(),
	}

	p := &project{
		root: root,
		cfg:  cfg,
		fake: newFakeToolchain(),
		out:  &bytes.Buffer{},
	}

	exec := executor.New(2)
	t.Cleanup(exec.Close)

	p.orch = &Orchestrator{
		Config:    cfg,
		Toolchain: toolchain.FromRoot(filepath.Join(root, "devkitpro")),
		Runner:    p.fake,
		Logger:    logging.New(p.out, true),
		Executor:  exec,
	}

	p.write(t, "src/main.cpp")
	p.write(t, "src/util.c")
	p.write(t, "src/notes.txt")

	return p
}

func (p *project) write(t *testing.T, rel string) string {
	t.Helper()

	path := filepath.Join(p.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("// "+rel+"\n"), 0o644))

	return path
}

func (p *project) run(t *testing.T) (*Result, error) {
	t.Helper()
	p.fake.reset()
	p.out.Reset()

	return p.orch.Run(context.Background(), Options{})
}

func (p *project) layout() *Layout {
	return NewLayout(p.root, config.BaseProfile, "mod")
}

// age moves every build output into the past so a following edit is newer
func (p *project) age(t *testing.T) {
	t.Helper()

	past := time.Now().Add(-time.Hour)
	err := filepath.WalkDir(p.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		// keeps the project file looking unchanged
		if path == p.cfg.Path || path == p.layout().ManifestSource {
			return nil
		}

		return os.Chtimes(path, past, past)
	})
	require.NoError(t, err)
}

func TestOrchestrator_FirstBuild(t *testing.T) {
	p := newProject(t)

	res, err := p.run(t)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Compiled)
	assert.True(t, res.Linked)
	assert.True(t, res.Converted)
	assert.False(t, res.Checked)
	assert.ElementsMatch(t, []string{"main.cpp", "util.c"}, p.fake.compiled)
	assert.Equal(t, 1, p.fake.manifest)

	l := p.layout()
	assert.Equal(t, l.NSO, res.Artifact)
	assert.FileExists(t, l.ELF)
	assert.FileExists(t, l.NSO)
	assert.FileExists(t, l.Manifest)
	assert.FileExists(t, l.LinkCache)

	data, err := os.ReadFile(l.VersionScript)
	require.NoError(t, err)
	assert.Equal(t, "{\n\tglobal:\n\t\texl_main;\n\tlocal: *;\n};", string(data))

	info, err := os.Stat(l.ManifestSource)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(p.cfg.ModTime))

	db, err := cache.Load(l.CompileDB)
	require.NoError(t, err)
	assert.Equal(t, 2, db.Len())

	assert.Contains(t, p.out.String(), "Compiling src/main.cpp")
	assert.Contains(t, p.out.String(), "Finished mod (profile `none`)")
}

func TestOrchestrator_SecondBuildIsNoop(t *testing.T) {
	p := newProject(t)
	_, err := p.run(t)
	require.NoError(t, err)

	res, err := p.run(t)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Compiled)
	assert.False(t, res.Linked)
	assert.False(t, res.Converted)
	assert.Empty(t, p.fake.compiled)
	assert.Zero(t, p.fake.links)
	assert.Zero(t, p.fake.converts)
	assert.Zero(t, p.fake.manifest)
}

func TestOrchestrator_Incremental(t *testing.T) {
	tests := []struct {
		name         string
		change       func(t *testing.T, p *project)
		wantCompiled []string
		wantLinked   bool
	}{
		{
			name: "added source",
			change: func(t *testing.T, p *project) {
				p.write(t, "src/extra.s")
			},
			wantCompiled: []string{"extra.s"},
			wantLinked:   true,
		},
		{
			name: "edited source",
			change: func(t *testing.T, p *project) {
				p.write(t, "src/util.c")
			},
			wantCompiled: []string{"util.c"},
			wantLinked:   true,
		},
		{
			name: "removed source",
			change: func(t *testing.T, p *project) {
				require.NoError(t, os.Remove(filepath.Join(p.root, "src", "util.c")))
			},
			wantLinked: true,
		},
		{
			name: "deleted object",
			change: func(t *testing.T, p *project) {
				objects, err := filepath.Glob(filepath.Join(p.layout().ObjectDir, "main-*.o"))
				require.NoError(t, err)
				require.Len(t, objects, 1)
				require.NoError(t, os.Remove(objects[0]))
			},
			wantCompiled: []string{"main.cpp"},
			wantLinked:   true,
		},
		{
			name: "link flags changed",
			change: func(t *testing.T, p *project) {
				p.cfg.Build.Flags.LD = []string{compiler.DefaultPlaceholder, "-Wl,--no-undefined"}
			},
			wantLinked: true,
		},
		{
			name: "linker script touched",
			change: func(t *testing.T, p *project) {
				p.write(t, "link.ld")
			},
			wantLinked: true,
		},
		{
			name: "binary deleted",
			change: func(t *testing.T, p *project) {
				require.NoError(t, os.Remove(p.layout().ELF))
			},
			wantLinked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProject(t)
			script := p.write(t, "link.ld")
			p.cfg.Build.LdScripts = []string{script}

			_, err := p.run(t)
			require.NoError(t, err)
			p.age(t)

			tt.change(t, p)

			res, err := p.run(t)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantCompiled, p.fake.compiled)
			assert.Equal(t, len(tt.wantCompiled), res.Compiled)
			assert.Equal(t, tt.wantLinked, res.Linked)
			assert.Equal(t, tt.wantLinked, res.Converted)
		})
	}
}

func TestOrchestrator_ToolchainChangeRebuildsEverything(t *testing.T) {
	p := newProject(t)
	_, err := p.run(t)
	require.NoError(t, err)

	p.fake.version = "aarch64-none-elf-gcc (devkitA64) 15.1.0"

	res, err := p.run(t)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Compiled)
	assert.True(t, res.Linked)
}

func TestOrchestrator_ConfigChangeRecompilesChangedCommands(t *testing.T) {
	p := newProject(t)
	_, err := p.run(t)
	require.NoError(t, err)
	p.age(t)

	p.cfg.Build.Flags.C = []string{compiler.DefaultPlaceholder, "-DNDEBUG"}
	p.cfg.ModTime = time.Now()

	res, err := p.run(t)
	require.NoError(t, err)
	assert.Equal(t, []string{"util.c"}, p.fake.compiled)
	assert.True(t, res.Linked)
	assert.Equal(t, 1, p.fake.manifest)
}

func TestOrchestrator_CompileFailure(t *testing.T) {
	p := newProject(t)
	p.fake.failSources["util.c"] = true

	_, err := p.run(t)
	require.Error(t, err)

	var stageErr *codes.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, codes.StageCompile, stageErr.Stage)
	assert.Zero(t, p.fake.links)

	out := p.out.String()
	assert.Contains(t, out, "error: expected ';'")
	assert.Contains(t, out, "1 object file failed to compile: "+filepath.Join("src", "util.c"))

	// the failing source is retried, the good one is not
	p.fake.failSources = map[string]bool{}
	res, err := p.run(t)
	require.NoError(t, err)
	assert.Equal(t, []string{"util.c"}, p.fake.compiled)
	assert.True(t, res.Linked)
}

func TestOrchestrator_FailedRunKeepsConfigChange(t *testing.T) {
	p := newProject(t)
	_, err := p.run(t)
	require.NoError(t, err)
	p.age(t)

	p.cfg.Build.Flags.C = []string{compiler.DefaultPlaceholder, "-DNDEBUG"}
	p.cfg.ModTime = time.Now()
	p.fake.failSources["util.c"] = true

	_, err = p.run(t)
	assert.Equal(t, codes.StageCompile, stageOf(t, err))

	l := p.layout()
	leftovers, err := filepath.Glob(filepath.Join(l.ObjectDir, "util-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	info, err := os.Stat(l.ManifestSource)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Before(p.cfg.ModTime))

	// nothing changed since, so the source must fail again
	_, err = p.run(t)
	assert.Equal(t, codes.StageCompile, stageOf(t, err))
	assert.Zero(t, p.fake.links)

	p.fake.failSources = map[string]bool{}
	res, err := p.run(t)
	require.NoError(t, err)
	assert.Equal(t, []string{"util.c"}, p.fake.compiled)
	assert.True(t, res.Linked)

	info, err = os.Stat(l.ManifestSource)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(p.cfg.ModTime))
}

func TestOrchestrator_ManifestFailureIsRetried(t *testing.T) {
	p := newProject(t)
	p.fake.npdmFail = true

	_, err := p.run(t)
	assert.Equal(t, codes.StageGenerate, stageOf(t, err))
	assert.NoFileExists(t, p.layout().Manifest)
	assert.Contains(t, p.out.String(), "npdmtool crashed")

	p.fake.npdmFail = false
	_, err = p.run(t)
	require.NoError(t, err)
	assert.Equal(t, 1, p.fake.manifest)
	assert.FileExists(t, p.layout().Manifest)
}

func TestOrchestrator_MissingManifestIsRegenerated(t *testing.T) {
	p := newProject(t)
	_, err := p.run(t)
	require.NoError(t, err)

	require.NoError(t, os.Remove(p.layout().Manifest))

	res, err := p.run(t)
	require.NoError(t, err)
	assert.Equal(t, 1, p.fake.manifest)
	assert.False(t, res.Linked)
	assert.FileExists(t, p.layout().Manifest)

	info, err := os.Stat(p.layout().ManifestSource)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(p.cfg.ModTime))
}

func TestOrchestrator_SettleReportsFailure(t *testing.T) {
	p := newProject(t)

	task := executor.Submit(p.orch.Executor, func(context.Context) (struct{}, error) {
		return struct{}{}, errors.New("failed to write version script: disk full")
	})

	p.orch.settle(task)
	p.orch.settle(nil)
	assert.Contains(t, p.out.String(), "failed to write version script: disk full")
}

func TestOrchestrator_Crate(t *testing.T) {
	newCrate := func(t *testing.T) *project {
		p := newProject(t)
		manifest := filepath.Join(p.root, rust.DefaultManifest)
		require.NoError(t, os.WriteFile(manifest, []byte("[package]\nname = \"my-crate\"\n"), 0o644))

		p.cfg.Cargo = &config.Cargo{Cargo: filepath.Join(p.root, "bin", "cargo")}
		p.fake.crateLib = filepath.Join(p.root, "target", rust.DefaultTarget, "release", "libmy_crate.a")
		return p
	}

	t.Run("library is built and linked", func(t *testing.T) {
		p := newCrate(t)

		res, err := p.run(t)
		require.NoError(t, err)
		assert.Equal(t, 1, p.fake.cargoRuns)
		assert.True(t, res.CrateChanged)
		assert.True(t, res.Linked)
		assert.Contains(t, p.fake.linkArgs, p.fake.crateLib)
		assert.Contains(t, p.out.String(), "Compiling crate my-crate")
	})

	t.Run("unchanged library does not relink", func(t *testing.T) {
		p := newCrate(t)
		_, err := p.run(t)
		require.NoError(t, err)
		p.age(t)

		res, err := p.run(t)
		require.NoError(t, err)
		assert.Equal(t, 1, p.fake.cargoRuns)
		assert.False(t, res.CrateChanged)
		assert.False(t, res.Linked)
	})

	t.Run("rebuilt library relinks", func(t *testing.T) {
		p := newCrate(t)
		_, err := p.run(t)
		require.NoError(t, err)
		p.age(t)

		p.fake.crateDirty = true
		res, err := p.run(t)
		require.NoError(t, err)
		assert.Empty(t, p.fake.compiled)
		assert.True(t, res.CrateChanged)
		assert.True(t, res.Linked)
	})

	t.Run("cargo failure stops before link", func(t *testing.T) {
		p := newCrate(t)
		p.fake.crateFail = true

		_, err := p.run(t)
		assert.Equal(t, codes.StageCompile, stageOf(t, err))
		assert.Zero(t, p.fake.links)
		assert.Contains(t, p.out.String(), "cannot find value")
		assert.Contains(t, p.out.String(), "Failed to build crate my-crate")

		// the objects compiled next to it are kept
		p.fake.crateFail = false
		res, err := p.run(t)
		require.NoError(t, err)
		assert.Empty(t, p.fake.compiled)
		assert.True(t, res.Linked)
	})

	t.Run("disabled crate is skipped", func(t *testing.T) {
		p := newCrate(t)
		disabled := false
		p.cfg.Cargo.Enabled = &disabled

		_, err := p.run(t)
		require.NoError(t, err)
		assert.Zero(t, p.fake.cargoRuns)
		assert.NotContains(t, p.fake.linkArgs, p.fake.crateLib)
	})
}

func TestOrchestrator_MissingLinkerScript(t *testing.T) {
	p := newProject(t)
	p.cfg.Build.LdScripts = []string{filepath.Join(p.root, "missing.ld")}

	_, err := p.run(t)
	assert.Equal(t, codes.StageLink, stageOf(t, err))
	assert.Zero(t, p.fake.links)
}

func TestOrchestrator_Check(t *testing.T) {
	newChecked := func(t *testing.T) *project {
		p := newProject(t)
		path := p.write(t, "syms/sdk.syms")
		require.NoError(t, os.WriteFile(path, []byte(listing), 0o644))

		p.cfg.Check = &config.CheckSection{Check: config.Check{Symbols: []string{path}}}
		return p
	}

	t.Run("passes", func(t *testing.T) {
		p := newChecked(t)

		res, err := p.run(t)
		require.NoError(t, err)
		assert.True(t, res.Checked)
		assert.True(t, res.Converted)
		assert.NoFileExists(t, p.layout().MissingSymbols)
	})

	t.Run("unresolved symbol", func(t *testing.T) {
		p := newChecked(t)
		p.fake.symbols += symbolRow("bar")

		_, err := p.run(t)
		assert.Equal(t, codes.StageCheck, stageOf(t, err))
		assert.Zero(t, p.fake.converts)
		assert.NoFileExists(t, p.layout().NSO)

		data, err := os.ReadFile(p.layout().MissingSymbols)
		require.NoError(t, err)
		assert.Equal(t, "bar\n", string(data))
		assert.Contains(t, p.out.String(), "Found 1 unresolved symbols!")

		// the binary stays unconverted until the check passes
		p.cfg.Check.Ignore = []string{"bar"}
		res, err := p.run(t)
		require.NoError(t, err)
		assert.False(t, res.Linked)
		assert.True(t, res.Converted)
		assert.NoFileExists(t, p.layout().MissingSymbols)
	})

	t.Run("disallowed instruction", func(t *testing.T) {
		p := newChecked(t)
		p.fake.disassembly += "    1000:\td50342df \tmsr daifset, #2\n"

		_, err := p.run(t)
		assert.Equal(t, codes.StageCheck, stageOf(t, err))

		data, err := os.ReadFile(p.layout().DisallowedInstructions)
		require.NoError(t, err)
		assert.Equal(t, "1000: msr daifset, #2\n", string(data))
	})

	t.Run("listing update reconverts without relinking", func(t *testing.T) {
		p := newChecked(t)
		_, err := p.run(t)
		require.NoError(t, err)
		p.age(t)

		p.write(t, "syms/sdk.syms")
		require.NoError(t, os.WriteFile(p.cfg.Check.Symbols[0], []byte(listing), 0o644))

		res, err := p.run(t)
		require.NoError(t, err)
		assert.False(t, res.Linked)
		assert.True(t, res.Checked)
		assert.True(t, res.Converted)
	})
}

func TestOrchestrator_ConfigureOnly(t *testing.T) {
	p := newProject(t)
	p.fake.reset()

	res, err := p.orch.Run(context.Background(), Options{ConfigureOnly: true})
	require.NoError(t, err)

	assert.Empty(t, p.fake.compiled)
	assert.Zero(t, p.fake.links)
	assert.Zero(t, p.fake.manifest)

	l := p.layout()
	assert.Equal(t, l.CompileCommands, res.Artifact)
	assert.NoFileExists(t, l.CompileDB)
	assert.NoFileExists(t, l.ELF)

	data, err := os.ReadFile(l.CompileCommands)
	require.NoError(t, err)

	var entries []cache.CompileCommandEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Join(p.root, "src", "main.cpp"), entries[0].File)
	assert.NotContains(t, entries[0].Arguments, "-mtune=cortex-a57")
}

func TestOrchestrator_Profiles(t *testing.T) {
	t.Run("profile output is separate", func(t *testing.T) {
		p := newProject(t)
		p.cfg.Build.Profiles = map[string]config.Build{
			"debug": {Flags: compiler.FlagConfig{C: []string{compiler.DefaultPlaceholder, "-O0"}}},
		}

		res, err := p.orch.Run(context.Background(), Options{Profile: "debug"})
		require.NoError(t, err)
		assert.Equal(t, "debug", res.Profile)
		assert.FileExists(t, NewLayout(p.root, "debug", "mod").NSO)
		assert.NoFileExists(t, p.layout().NSO)
	})

	t.Run("undeclared profile warns", func(t *testing.T) {
		p := newProject(t)

		_, err := p.orch.Run(context.Background(), Options{Profile: "release"})
		require.NoError(t, err)
		assert.Contains(t, p.out.String(), "profile `release` is not declared")
	})

	t.Run("base profile disallowed", func(t *testing.T) {
		p := newProject(t)
		p.cfg.Module.DisallowBaseProfile = true

		_, err := p.run(t)
		assert.Equal(t, codes.StageConfig, stageOf(t, err))
	})
}

func TestScanSources(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"src/b.c", "src/a.cpp", "src/gen/skip.c", "src/readme.md", "src/.c"} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	src := filepath.Join(root, "src")
	sources, err := scanSources([]string{src, src}, []string{filepath.Join(src, "gen", "**")}, logging.Nop())
	require.NoError(t, err)

	var names []string
	for _, s := range sources {
		names = append(names, filepath.Base(s.Path))
	}

	assert.Equal(t, []string{"a.cpp", "b.c"}, names)
}

func TestScanSources_MissingDir(t *testing.T) {
	_, err := scanSources([]string{filepath.Join(t.TempDir(), "nope")}, nil, logging.Nop())
	assert.Error(t, err)
}

func stageOf(t *testing.T, err error) codes.Stage {
	t.Helper()

	var stageErr *codes.StageError
	require.ErrorAs(t, err, &stageErr, fmt.Sprintf("expected a stage error, got %v", err))

	return stageErr.Stage
}
