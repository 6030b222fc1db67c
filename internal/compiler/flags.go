package compiler

import "slices"

// DefaultPlaceholder in a configured flag list is replaced by the built-in
// defaults for that list.
const DefaultPlaceholder = "<default>"

var (
	DefaultCommonFlags = []string{
		"-march=armv8-a+crc+crypto",
		"-mtune=cortex-a57",
		"-mtp=soft",
		"-fPIC",
		"-fvisibility=hidden",
		"-g",
	}

	DefaultCFlags = concat(DefaultCommonFlags, []string{
		"-Wall",
		"-Werror",
		"-ffunction-sections",
		"-fdata-sections",
		"-O3",
	})

	DefaultCXXFlags = concat(DefaultCFlags, []string{
		"-std=c++20",
		"-fno-rtti",
		"-fno-exceptions",
		"-fno-asynchronous-unwind-tables",
		"-fno-unwind-tables",
	})

	DefaultASFlags = concat(DefaultCXXFlags, nil)

	DefaultLDFlags = concat(DefaultCommonFlags, []string{
		"-nostartfiles",
		"-nodefaultlibs",
		"-Wl,--shared",
		"-Wl,--export-dynamic",
		"-Wl,-z,nodynamic-undefined-weak",
		"-Wl,--build-id=sha1",
		"-Wl,--gc-sections",
		"-Wl,--nx-module-name",
	})
)

// FlagConfig is the raw flag lists from configuration. A nil list means
// "defaults only".
type FlagConfig struct {
	Common []string `mapstructure:"common"`
	C      []string `mapstructure:"c"`
	CXX    []string `mapstructure:"cxx"`
	AS     []string `mapstructure:"as"`
	LD     []string `mapstructure:"ld"`
}

// Flags are the resolved per-language argument lists
type Flags struct {
	C   []string
	CXX []string
	AS  []string
	LD  []string
}

// ResolveFlags expands placeholders in cfg. Common flags are prepended to
// every language list.
func ResolveFlags(cfg FlagConfig) *Flags {
	common := expand(cfg.Common, DefaultCommonFlags)

	return &Flags{
		C:   withCommon(common, cfg.C, DefaultCFlags),
		CXX: withCommon(common, cfg.CXX, DefaultCXXFlags),
		AS:  withCommon(common, cfg.AS, DefaultASFlags),
		LD:  withCommon(common, cfg.LD, DefaultLDFlags),
	}
}

// For returns the compile flags of a language
func (f *Flags) For(lang Lang) []string {
	switch lang {
	case LangCXX:
		return f.CXX
	case LangAsm:
		return f.AS
	default:
		return f.C
	}
}

// AddIncludes adds include directories to every compile list
func (f *Flags) AddIncludes(dirs ...string) {
	for _, dir := range dirs {
		flag := "-I" + dir
		f.C = append(f.C, flag)
		f.CXX = append(f.CXX, flag)
		f.AS = append(f.AS, flag)
	}
}

// SetInit sets the module entry symbol
func (f *Flags) SetInit(entry string) {
	f.LD = append(f.LD, "-Wl,-init="+entry)
}

func (f *Flags) SetVersionScript(path string) {
	f.LD = append(f.LD, "-Wl,--version-script="+path)
}

func (f *Flags) AddLibPaths(dirs ...string) {
	for _, dir := range dirs {
		f.LD = append(f.LD, "-L"+dir)
	}
}

func (f *Flags) AddLibraries(names ...string) {
	for _, name := range names {
		f.LD = append(f.LD, "-l"+name)
	}
}

func (f *Flags) AddLinkerScripts(paths ...string) {
	for _, path := range paths {
		f.LD = append(f.LD, "-Wl,-T,"+path)
	}
}

// expand replaces the placeholder with defaults. A nil list is the defaults.
func expand(flags, defaults []string) []string {
	if flags == nil {
		return slices.Clone(defaults)
	}

	out := make([]string, 0, len(flags)+len(defaults))
	for _, flag := range flags {
		if flag == DefaultPlaceholder {
			out = append(out, defaults...)
			continue
		}

		out = append(out, flag)
	}

	return out
}

// withCommon builds a language list. The language defaults already carry
// the default common flags, so when common was customized those are swapped
// for the configured common set.
func withCommon(common, flags, defaults []string) []string {
	langDefaults := slices.DeleteFunc(slices.Clone(defaults), func(f string) bool {
		return slices.Contains(DefaultCommonFlags, f)
	})

	return concat(common, expand(flags, langDefaults))
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
