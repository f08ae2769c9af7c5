package speech_decoder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Options maps decoder option names to bool, integer, float or string values.
type Options map[string]any

const DefaultModelFile = "ggml-base.en.bin"

// LoadOptionsFile reads decoder options from a YAML file on fileSys.
func LoadOptionsFile(fileSys afero.Fs, path string) (Options, error) {
	f, err := fileSys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decoder options: open %q: %w", path, err)
	}
	defer f.Close()

	opts, err := LoadOptions(f)
	if err != nil {
		return nil, fmt.Errorf("decoder options: parse %q: %w", path, err)
	}
	return opts, nil
}

// LoadOptions decodes a flat YAML mapping of option names to scalar values.
func LoadOptions(r io.Reader) (Options, error) {
	opts := Options{}
	if err := yaml.NewDecoder(r).Decode(&opts); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return opts, nil
}

// ResolveDefaults returns a copy of opts with "dic" renamed to "dict", the
// model path defaulted to baseDir/model and the log sink pointed at the null
// device unless verbose is set.
func ResolveDefaults(opts Options, baseDir string) Options {
	out := make(Options, len(opts)+2)
	for k, v := range opts {
		out[k] = v
	}

	if dic, ok := out["dic"]; ok {
		if _, hasDict := out["dict"]; !hasDict {
			out["dict"] = dic
		}
		delete(out, "dic")
	}

	if _, ok := out["model"]; !ok {
		out["model"] = filepath.Join(baseDir, "model", DefaultModelFile)
	}

	verbose, _ := out["verbose"].(bool)
	delete(out, "verbose")
	if !verbose {
		if _, ok := out["logfn"]; !ok {
			out["logfn"] = os.DevNull
		}
	}

	return out
}

// Config holds decoder flags in their "-name" form.
type Config struct {
	flags map[string]any
}

// NewConfig translates opts into typed decoder flags.
func NewConfig(opts Options) (*Config, error) {
	cfg := &Config{flags: make(map[string]any, len(opts))}

	for key, value := range opts {
		name := "-" + strings.TrimPrefix(key, "-")

		switch v := value.(type) {
		case bool:
			cfg.SetBool(name, v)
		case int:
			cfg.SetInt(name, int64(v))
		case int64:
			cfg.SetInt(name, v)
		case uint64:
			cfg.SetInt(name, int64(v))
		case float64:
			cfg.SetFloat(name, v)
		case float32:
			cfg.SetFloat(name, float64(v))
		case string:
			cfg.SetString(name, v)
		default:
			return nil, fmt.Errorf("decoder option %q: unsupported value type %T", key, value)
		}
	}

	return cfg, nil
}

func (c *Config) SetBool(name string, v bool)     { c.flags[name] = v }
func (c *Config) SetInt(name string, v int64)     { c.flags[name] = v }
func (c *Config) SetFloat(name string, v float64) { c.flags[name] = v }
func (c *Config) SetString(name string, v string) { c.flags[name] = v }

func (c *Config) String(name, def string) string {
	if v, ok := c.flags[name].(string); ok {
		return v
	}
	return def
}

func (c *Config) Int(name string, def int64) int64 {
	if v, ok := c.flags[name].(int64); ok {
		return v
	}
	return def
}

// Float also accepts integer flags, so "window: 4" and "window: 4.0" agree.
func (c *Config) Float(name string, def float64) float64 {
	switch v := c.flags[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return def
}

func (c *Config) Bool(name string, def bool) bool {
	if v, ok := c.flags[name].(bool); ok {
		return v
	}
	return def
}

// Args renders the flags as sorted "-name value" pairs.
func (c *Config) Args() []string {
	names := make([]string, 0, len(c.flags))
	for name := range c.flags {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]string, 0, len(names)*2)
	for _, name := range names {
		var value string
		switch v := c.flags[name].(type) {
		case bool:
			value = strconv.FormatBool(v)
		case int64:
			value = strconv.FormatInt(v, 10)
		case float64:
			value = strconv.FormatFloat(v, 'g', -1, 64)
		case string:
			value = v
		}
		args = append(args, name, value)
	}

	return args
}
