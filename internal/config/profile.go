package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Norgate-AV/nxbuild/internal/compiler"
)

// BuildSection is the base [build] settings plus [build.profiles.<name>]
type BuildSection struct {
	Build    `mapstructure:",squash"`
	Profiles map[string]Build `mapstructure:"profiles"`
}

// CheckSection is the base [check] settings plus [check.profiles.<name>]
type CheckSection struct {
	Check    `mapstructure:",squash"`
	Profiles map[string]Check `mapstructure:"profiles"`
}

// Profile returns the base settings extended by the named profile. The
// base profile, or an unknown name, yields the base settings. Profile names
// are matched case-insensitively since viper lower-cases keys.
func (s BuildSection) Profile(name string) Build {
	b := s.Build.clone()
	if name == BaseProfile {
		return b
	}

	if p, ok := s.Profiles[strings.ToLower(name)]; ok {
		b.extend(p)
	}

	return b
}

// Profile returns the base settings extended by the named profile
func (s CheckSection) Profile(name string) Check {
	c := Check{
		Ignore:                 slices.Clone(s.Ignore),
		Symbols:                slices.Clone(s.Symbols),
		DisallowedInstructions: slices.Clone(s.DisallowedInstructions),
	}
	if name == BaseProfile {
		return c
	}

	if p, ok := s.Profiles[strings.ToLower(name)]; ok {
		c.Ignore = append(c.Ignore, p.Ignore...)
		c.Symbols = append(c.Symbols, p.Symbols...)
		c.DisallowedInstructions = append(c.DisallowedInstructions, p.DisallowedInstructions...)
	}

	return c
}

// HasProfile reports whether name is the base profile or a declared one
func (s BuildSection) HasProfile(name string) bool {
	if name == BaseProfile {
		return true
	}

	_, ok := s.Profiles[strings.ToLower(name)]
	return ok
}

// ProfileNames lists the profiles declared in [build]
func (s BuildSection) ProfileNames() []string {
	return slices.Sorted(maps.Keys(s.Profiles))
}

// SelectProfile picks the profile to build from the command line value and
// the module settings.
func (c *Config) SelectProfile(cli string) (string, error) {
	profile := cli
	if profile == "" {
		profile = BaseProfile
	}

	if profile == BaseProfile && c.Module.DefaultProfile != nil {
		if *c.Module.DefaultProfile == "" {
			return "", fmt.Errorf("no profile specified, use --profile")
		}

		profile = *c.Module.DefaultProfile
	}

	if profile == BaseProfile && c.Module.DisallowBaseProfile {
		return "", fmt.Errorf("base profile is disallowed, set module.default-profile or use --profile")
	}

	return profile, nil
}

func (b Build) clone() Build {
	return Build{
		Entry:     b.Entry,
		Sources:   slices.Clone(b.Sources),
		Includes:  slices.Clone(b.Includes),
		LibPaths:  slices.Clone(b.LibPaths),
		LdScripts: slices.Clone(b.LdScripts),
		Exclude:   slices.Clone(b.Exclude),
		Libraries: slices.Clone(b.Libraries),
		Flags: compiler.FlagConfig{
			Common: slices.Clone(b.Flags.Common),
			C:      slices.Clone(b.Flags.C),
			CXX:    slices.Clone(b.Flags.CXX),
			AS:     slices.Clone(b.Flags.AS),
			LD:     slices.Clone(b.Flags.LD),
		},
	}
}

func (b *Build) extend(o Build) {
	if o.Entry != "" {
		b.Entry = o.Entry
	}

	b.Sources = append(b.Sources, o.Sources...)
	b.Includes = append(b.Includes, o.Includes...)
	b.LibPaths = append(b.LibPaths, o.LibPaths...)
	b.LdScripts = append(b.LdScripts, o.LdScripts...)
	b.Exclude = append(b.Exclude, o.Exclude...)
	b.Libraries = append(b.Libraries, o.Libraries...)

	b.Flags.Common = extendFlags(b.Flags.Common, o.Flags.Common)
	b.Flags.C = extendFlags(b.Flags.C, o.Flags.C)
	b.Flags.CXX = extendFlags(b.Flags.CXX, o.Flags.CXX)
	b.Flags.AS = extendFlags(b.Flags.AS, o.Flags.AS)
	b.Flags.LD = extendFlags(b.Flags.LD, o.Flags.LD)
}

// extendFlags merges profile flags into base flags. An unset base list means
// defaults, so the placeholder is kept to preserve them.
func extendFlags(dst, src []string) []string {
	switch {
	case src == nil:
		return dst
	case dst == nil:
		out := slices.Clone(src)
		if !slices.Contains(out, compiler.DefaultPlaceholder) {
			out = append(out, compiler.DefaultPlaceholder)
		}
		return out
	default:
		for _, flag := range src {
			if !slices.Contains(dst, flag) {
				dst = append(dst, flag)
			}
		}
		return dst
	}
}
