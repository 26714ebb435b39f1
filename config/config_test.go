package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const defaultConfig = `
author_map_file:	authors.map
default_branch:		main
window_seconds:		600
branch_mappings:
typemaps:
`

func checkValue(t *testing.T, fieldname string, val string, expected string) {
	if val != expected {
		t.Fatalf("Error parsing %s, expected '%v' got '%v'", fieldname, expected, val)
	}
}

func TestValidConfig(t *testing.T) {
	cfg := loadOrFail(t, defaultConfig)
	checkValue(t, "AuthorMapFile", cfg.AuthorMapFile, "authors.map")
	checkValue(t, "DefaultBranch", cfg.DefaultBranch, "main")
	assert.Equal(t, 600, cfg.WindowSeconds)
	assert.Empty(t, cfg.BranchMappings)
}

func TestEmptyConfig(t *testing.T) {
	cfg := loadOrFail(t, "")
	checkValue(t, "AuthorMapFile", cfg.AuthorMapFile, "")
	checkValue(t, "DefaultBranch", cfg.DefaultBranch, DefaultBranch)
	assert.Equal(t, DefaultWindow, cfg.WindowSeconds)
	assert.Empty(t, cfg.BranchMappings)
}

func TestMap1(t *testing.T) {
	const cfgString = `
branch_mappings:
- name: 	main
  prefix:
`
	cfg := loadOrFail(t, cfgString)
	assert.Equal(t, 1, len(cfg.BranchMappings))
	assert.Equal(t, "main", cfg.BranchMappings[0].Name)
}

func TestMap2(t *testing.T) {
	const cfgString = `
branch_mappings:
- name: 	main.*
  prefix:	fred-
`
	cfg := loadOrFail(t, cfgString)
	assert.Equal(t, 1, len(cfg.BranchMappings))
	assert.Equal(t, "main.*", cfg.BranchMappings[0].Name)
	assert.Equal(t, "fred-", cfg.BranchMappings[0].Prefix)
	assert.Equal(t, "fred-maintenance", cfg.BranchName("maintenance"))
	assert.Equal(t, "release-2", cfg.BranchName("release-2"))
}

func TestTypeMap1(t *testing.T) {
	const cfgString = `
typemaps:
- text    module/....txt
- binary  module/....bin
`
	cfg := loadOrFail(t, cfgString)
	assert.Equal(t, 0, len(cfg.BranchMappings))
	assert.Equal(t, 2, len(cfg.TypeMaps))
	assert.True(t, cfg.ReTypeMaps[0].RePath.MatchString("module/some/file.txt"))
	assert.False(t, cfg.ReTypeMaps[0].Binary)
	assert.True(t, cfg.ReTypeMaps[1].RePath.MatchString("module/file.bin"))
	assert.True(t, cfg.ReTypeMaps[1].Binary)

	binary, ok := cfg.IsBinaryPath("module/file.bin")
	assert.True(t, ok)
	assert.True(t, binary)

	_, ok = cfg.IsBinaryPath("module/other.c")
	assert.False(t, ok)
}

func TestTypeMap2(t *testing.T) {
	const cfgString = `
typemaps:
- text	module/....txt
- binary	"module/....bin"
`
	cfg := loadOrFail(t, cfgString)
	assert.Equal(t, 2, len(cfg.TypeMaps))
	assert.Equal(t, "text\tmodule/....txt", cfg.TypeMaps[0])
}

func TestRegex(t *testing.T) {
	const cfgString = `
branch_mappings:
- name: 	main.*[
  prefix:	fred
`
	_, err := Unmarshal([]byte(cfgString))
	if err == nil {
		t.Fatalf("Expected regex error not seen")
	}
}

func TestNegativeWindowRejected(t *testing.T) {
	ensureFail(t, "window_seconds: -1\n", "negative window")
}

func ensureFail(t *testing.T, cfgString string, desc string) {
	_, err := Unmarshal([]byte(cfgString))
	if err == nil {
		t.Fatalf("Expected config err not found: %s", desc)
	}
	t.Logf("Config err: %v", err.Error())
}

func loadOrFail(t *testing.T, cfgString string) *Config {
	cfg, err := Unmarshal([]byte(cfgString))
	if err != nil {
		t.Fatalf("Failed to read config: %v", err.Error())
	}
	return cfg
}
