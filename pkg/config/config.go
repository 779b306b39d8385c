// Package config loads compiler settings from an elfcc.toml file and from
// command-line flags. Flags override the file and the file overrides the
// built-in defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
	"github.com/spf13/pflag"

	"github.com/raymyers/elfcc/pkg/ctypes"
	"github.com/raymyers/elfcc/pkg/elfimage"
)

// FileName is the configuration file looked up next to the source file.
const FileName = "elfcc.toml"

// Config is the effective configuration of one compilation.
type Config struct {
	Limits   ctypes.Limits
	LoadBase uint64
	Output   string // path of the executable to write
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Limits:   ctypes.DefaultLimits(),
		LoadBase: elfimage.DefaultBase,
		Output:   "a.out",
	}
}

// tomlFile is the configuration file as it is encoded in TOML. Every field is
// a pointer so that keys missing from the file keep their previous value.
type tomlFile struct {
	Limits *tomlLimits `toml:"limits"`
	Output *tomlOutput `toml:"output"`
}

type tomlLimits struct {
	MaxTypeSize           *int `toml:"max_type_size"`
	MaxArrayLen           *int `toml:"max_array_len"`
	MaxBranchDisplacement *int `toml:"max_branch_displacement"`
	MaxRegisterArgs       *int `toml:"max_register_args"`
}

type tomlOutput struct {
	LoadBase *int64  `toml:"load_base"`
	Path     *string `toml:"path"`
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.Merge(data); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Find returns the configuration file in dir, or "" if there is none.
func Find(dir string) string {
	p := filepath.Join(dir, FileName)
	if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
		return p
	}
	return ""
}

// Merge overlays the TOML document data onto c.
func (c *Config) Merge(data []byte) error {
	tf := &tomlFile{}
	if err := toml.NewDecoder(bytes.NewReader(data)).Strict(true).Decode(tf); err != nil {
		return err
	}

	if l := tf.Limits; l != nil {
		setInt(&c.Limits.MaxTypeSize, l.MaxTypeSize)
		setInt(&c.Limits.MaxArrayLen, l.MaxArrayLen)
		setInt(&c.Limits.MaxBranchDisplacement, l.MaxBranchDisplacement)
		setInt(&c.Limits.MaxRegisterArgs, l.MaxRegisterArgs)
	}
	if o := tf.Output; o != nil {
		if o.LoadBase != nil {
			if *o.LoadBase < 0 {
				return fmt.Errorf("output.load_base is negative")
			}
			c.LoadBase = uint64(*o.LoadBase)
		}
		if o.Path != nil {
			c.Output = *o.Path
		}
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks that every limit can be encoded.
func (c Config) Validate() error {
	l := c.Limits
	switch {
	case l.MaxTypeSize < 1:
		return fmt.Errorf("max_type_size must be positive, got %d", l.MaxTypeSize)
	case l.MaxArrayLen < 1:
		return fmt.Errorf("max_array_len must be positive, got %d", l.MaxArrayLen)
	case l.MaxBranchDisplacement < 1 || l.MaxBranchDisplacement > 127:
		return fmt.Errorf("max_branch_displacement must be between 1 and 127, got %d", l.MaxBranchDisplacement)
	case l.MaxRegisterArgs < 0 || l.MaxRegisterArgs > 6:
		return fmt.Errorf("max_register_args must be between 0 and 6, got %d", l.MaxRegisterArgs)
	case c.Output == "":
		return fmt.Errorf("output path is empty")
	}
	return elfimage.Layout{Base: c.LoadBase}.Validate()
}

// Flags holds the command-line overrides. A flag only applies when it was set.
type Flags struct {
	fs *pflag.FlagSet

	output      string
	maxTypeSize int
	maxBranch   int
	loadBase    uint64
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	d := Default()
	f := &Flags{fs: fs}
	fs.StringVarP(&f.output, "output", "o", d.Output, "Write the executable to `file`")
	fs.IntVar(&f.maxTypeSize, "max-type-size", d.Limits.MaxTypeSize, "Largest type size and array length in bytes")
	fs.IntVar(&f.maxBranch, "max-branch", d.Limits.MaxBranchDisplacement, "Largest jump distance in bytes")
	fs.Uint64Var(&f.loadBase, "load-base", d.LoadBase, "Virtual address the image is loaded at")
	return f
}

// Apply copies the flags the user set onto c.
func (f *Flags) Apply(c *Config) {
	if f.fs.Changed("output") {
		c.Output = f.output
	}
	if f.fs.Changed("max-type-size") {
		c.Limits.MaxTypeSize = f.maxTypeSize
		c.Limits.MaxArrayLen = f.maxTypeSize
	}
	if f.fs.Changed("max-branch") {
		c.Limits.MaxBranchDisplacement = f.maxBranch
	}
	if f.fs.Changed("load-base") {
		c.LoadBase = f.loadBase
	}
}
