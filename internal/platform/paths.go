package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultAppName names the config and data directories.
const DefaultAppName = "kanri"

var errEmptyAppName = errors.New("empty app name")

// Paths lists the per-user locations kanri reads and writes.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	LogDir     string
}

// Options defines optional settings for path resolution.
type Options struct {
	AppName string
	DevMode bool
}

// DefaultPathsWithOptions resolves paths for the running OS and user.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = DefaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir := configDir
	switch runtime.GOOS {
	case "linux":
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return Paths{}, fmt.Errorf("user home dir: %w", homeErr)
		}
		dataDir = filepath.Join(home, ".local", "share")
	case "windows":
		if v := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); v != "" {
			dataDir = v
		}
	}

	return PathsFor(runtime.GOOS, os.Getenv, configDir, dataDir, appName)
}

// PathsFor resolves paths from explicit inputs. getenv may be nil.
func PathsFor(goos string, getenv func(string) string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, fmt.Errorf("empty base dirs")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, errEmptyAppName
	}
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	configBase, dataBase := userConfigDir, userDataDir
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	switch goos {
	case "linux", "freebsd", "openbsd":
		override(&configBase, "XDG_CONFIG_HOME")
		override(&dataBase, "XDG_DATA_HOME")
	case "windows":
		override(&configBase, "APPDATA")
		override(&dataBase, "LOCALAPPDATA")
	}

	appDataDir := filepath.Join(dataBase, appName)
	return Paths{
		ConfigPath: filepath.Join(configBase, appName, "config.toml"),
		DataDir:    appDataDir,
		DBPath:     filepath.Join(appDataDir, appName+".db"),
		LogDir:     filepath.Join(appDataDir, "log"),
	}, nil
}
