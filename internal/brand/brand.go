// Package brand provides centralized naming and default locations for pfw.
//
// The identity is loaded from brand.json at compile time via go:embed so the
// binary name, env prefix and default paths live in one place.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Vendor           string `json:"vendor"`
	Website          string `json:"website"`
	Repository       string `json:"repository"`
	Description      string `json:"description"`
	Tagline          string `json:"tagline"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultLogDir    string `json:"defaultLogDir"`
	DefaultListen    string `json:"defaultListen"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
	RulesFileName    string `json:"rulesFileName"`
	Copyright        string `json:"copyright"`
	License          string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultLogDir = b.DefaultLogDir
	DefaultListen = b.DefaultListen
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	RulesFileName = b.RulesFileName
}

var (
	Name             string
	LowerName        string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	DefaultListen    string
	BinaryName       string
	ConfigFileName   string
	RulesFileName    string

	// Version is set at build time via -ldflags
	Version = "dev"
)

// UserAgent returns a User-Agent string for HTTP requests
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return LowerName + "/" + version
}

// DefaultServerURL is the base URL consoles use when none is configured.
func DefaultServerURL() string {
	return "http://" + DefaultListen
}

// Env returns the value of PREFIX_name from the environment.
func Env(name string) string {
	return os.Getenv(ConfigEnvPrefix + "_" + name)
}

// GetStateDir returns the state directory, checking env vars first.
// Priority: PFW_STATE_DIR > PFW_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	if dir := Env("STATE_DIR"); dir != "" {
		return dir
	}
	if prefix := Env("PREFIX"); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	return DefaultStateDir
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: PFW_CONFIG_DIR > PFW_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := Env("CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := Env("PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// DefaultConfigPath is where serve and check look when no file is given.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// DefaultRulesPath is the file store location when none is configured.
func DefaultRulesPath() string {
	return filepath.Join(GetStateDir(), RulesFileName)
}
