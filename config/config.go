package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

const DefaultBranch = "main"

// DefaultWindow is the coalescence window (seconds) two commitid-less
// revisions must fall within to be treated as one CVS commit, matching
// merge.DefaultCommitTimeWindow; kept as a separate constant so this
// package doesn't need to import merge just for a number.
const DefaultWindow = 300

// BranchMapping renames a gitspace branch matching Name (a regex) by
// prepending Prefix - the same "regex in, prefix out" shape this
// package's ancestor used for Perforce depot-to-branch folding.
// Config.BranchName applies it to a branch name; the converter's
// driver does not call BranchName.
type BranchMapping struct {
	Name   string `yaml:"name"`
	Prefix string `yaml:"prefix"`
}

// RegexpTypeMap pairs a compiled path regex with the file kind it
// forces, letting a config override what h2non/filetype would
// otherwise sniff from a revision's materialised bytes.
type RegexpTypeMap struct {
	Binary bool
	RePath *regexp.Regexp
}

// Config for a conversion run. Flags given on the command line
// override whatever a loaded config file set, matching the original
// "config file as baseline, flags as overrides" precedence.
type Config struct {
	AuthorMapFile string          `yaml:"author_map_file"`
	DefaultBranch string          `yaml:"default_branch"`
	WindowSeconds int             `yaml:"window_seconds"`
	StagingDir    string          `yaml:"staging_dir"` // base dir for blobstore.New; "" means os.TempDir
	Keywords      bool            `yaml:"keywords"`
	BranchMappings []BranchMapping `yaml:"branch_mappings"`
	TypeMaps       []string        `yaml:"typemaps"`
	ReTypeMaps     []RegexpTypeMap
}

// Unmarshal the config
func Unmarshal(config []byte) (*Config, error) {
	// Default values specified here
	cfg := &Config{
		DefaultBranch: DefaultBranch,
		WindowSeconds: DefaultWindow,
		ReTypeMaps:    make([]RegexpTypeMap, 0),
	}
	err := yaml.Unmarshal(config, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	err = cfg.validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile - loads config file
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString - loads a string
func LoadConfigString(content []byte) (*Config, error) {
	cfg, err := Unmarshal([]byte(content))
	return cfg, err
}

func (c *Config) validate() error {
	if c.WindowSeconds < 0 {
		return fmt.Errorf("window_seconds must not be negative: %d", c.WindowSeconds)
	}
	if len(c.BranchMappings) > 0 {
		for _, m := range c.BranchMappings {
			if _, err := regexp.Compile(m.Name); err != nil {
				return fmt.Errorf("failed to parse '%s' as a regex", m.Name)
			}
		}
	}
	if len(c.TypeMaps) > 0 {
		for _, m := range c.TypeMaps {
			parts := strings.Fields(m)
			if len(parts) != 2 {
				return fmt.Errorf("failed to split '%s' on a space", m)
			}
			ftype := parts[0]
			reStr := parts[1]
			if !strings.Contains(ftype, "binary") && !strings.Contains(ftype, "text") {
				return fmt.Errorf("typemaps must contain either 'binary' or 'text' in first part: %s", m)
			}
			reStr = strings.ReplaceAll(reStr, "...", ".*")
			reStr += "$"
			if rePath, err := regexp.Compile(reStr); err != nil {
				return fmt.Errorf("failed to parse '%s' as a regex", reStr)
			} else {
				c.ReTypeMaps = append(c.ReTypeMaps, RegexpTypeMap{Binary: strings.Contains(ftype, "binary"), RePath: rePath})
			}
		}
	}
	return nil
}

// BranchName applies the first matching BranchMapping's prefix to
// name, or returns name unchanged if nothing matches.
func (c *Config) BranchName(name string) string {
	for _, m := range c.BranchMappings {
		if re, err := regexp.Compile(m.Name); err == nil && re.MatchString(name) {
			return m.Prefix + name
		}
	}
	return name
}

// IsBinaryPath reports whether path matches a configured binary
// typemap override.
func (c *Config) IsBinaryPath(path string) (bool, bool) {
	for _, tm := range c.ReTypeMaps {
		if tm.RePath.MatchString(path) {
			return tm.Binary, true
		}
	}
	return false, false
}
