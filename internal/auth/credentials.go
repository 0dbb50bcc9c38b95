package auth

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

const (
	// DefaultConfigFile is the config file name looked up in the working and home directories
	DefaultConfigFile = ".guploadrc"

	credentialsSection = "Credentials"
	usernameKey        = "username"
	passwordKey        = "password"
)

// Values are read verbatim: '#' and ';' are kept, surrounding quotes are
// kept and a trailing '\' does not continue the line. Key names are
// case-insensitive, section names are not.
var iniOptions = ini.LoadOptions{
	IgnoreInlineComment:     true,
	IgnoreContinuation:      true,
	PreserveSurroundedQuote: true,
	InsensitiveKeys:         true,
}

// ErrUnsafeValue is returned by SaveCredentials for a value that would not
// read back unchanged.
var ErrUnsafeValue = errors.New("value cannot be stored in a config file")

// Locations describes the two candidate config files, in precedence order
type Locations struct {
	FileName string
	WorkDir  string
	HomeDir  string
}

// DefaultLocations builds Locations from the absolute working directory and the user's home directory
func DefaultLocations(fileName string) (Locations, error) {
	if fileName == "" {
		fileName = DefaultConfigFile
	}

	workDir, err := filepath.Abs(".")
	if err != nil {
		return Locations{}, fmt.Errorf("failed to determine working directory: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Locations{}, fmt.Errorf("failed to determine home directory: %w", err)
	}

	return Locations{
		FileName: fileName,
		WorkDir:  filepath.Clean(workDir),
		HomeDir:  filepath.Clean(homeDir),
	}, nil
}

// WorkDirPath is the config file in the working directory
func (l Locations) WorkDirPath() string {
	return filepath.Join(l.WorkDir, l.FileName)
}

// HomePath is the config file in the home directory
func (l Locations) HomePath() string {
	return filepath.Join(l.HomeDir, l.FileName)
}

// Path returns the config file backing the given store
func (l Locations) Path(store Store) (string, error) {
	switch store {
	case StoreHome:
		return l.HomePath(), nil
	case StoreProject:
		return l.WorkDirPath(), nil
	default:
		return "", fmt.Errorf("unknown store: %s", store)
	}
}

// Resolver picks credentials from the command line or one of the config files
type Resolver struct {
	fs     afero.Fs
	locs   Locations
	logger *slog.Logger
}

// NewResolver creates a Resolver reading config files through fs
func NewResolver(fsys afero.Fs, locs Locations, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{fs: fsys, locs: locs, logger: logger}
}

// Resolve returns credentials using the following precedence:
//  1. username and password arguments, when both are non-empty
//  2. config file in the working directory
//  3. config file in the home directory
//
// The first config file that exists is used in full. A missing section or
// key in that file is a *ConfigParseError, not a reason to try the next one.
func (r *Resolver) Resolve(username, password string) (Credentials, error) {
	if username != "" && password != "" {
		r.logger.Debug("using credentials from command line")
		return Credentials{Username: username, Password: password, Source: SourceCLI}, nil
	}

	candidates := []struct {
		path   string
		source Source
	}{
		{r.locs.WorkDirPath(), SourceWorkDir},
		{r.locs.HomePath(), SourceHome},
	}

	for _, c := range candidates {
		ok, err := r.isFile(c.path)
		if err != nil {
			return Credentials{}, &ConfigParseError{Path: c.path, Err: err}
		}
		if !ok {
			continue
		}

		r.logger.Debug("using credentials from config file", "path", c.path)
		creds, err := r.load(c.path)
		if err != nil {
			return Credentials{}, err
		}
		creds.Source = c.source
		return creds, nil
	}

	return Credentials{}, &ConfigurationError{
		FileName:    r.locs.FileName,
		WorkDirPath: r.locs.WorkDirPath(),
		HomePath:    r.locs.HomePath(),
		WorkDir:     r.locs.WorkDir,
		HomeDir:     r.locs.HomeDir,
	}
}

func (r *Resolver) isFile(path string) (bool, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (r *Resolver) load(path string) (Credentials, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return Credentials{}, &ConfigParseError{Path: path, Err: err}
	}

	cfg, err := ini.LoadSources(iniOptions, verbatimValues(data))
	if err != nil {
		return Credentials{}, &ConfigParseError{Path: path, Err: err}
	}

	section, err := cfg.GetSection(credentialsSection)
	if err != nil {
		return Credentials{}, &ConfigParseError{Path: path, Err: err}
	}

	username, err := section.GetKey(usernameKey)
	if err != nil {
		return Credentials{}, &ConfigParseError{Path: path, Err: err}
	}
	password, err := section.GetKey(passwordKey)
	if err != nil {
		return Credentials{}, &ConfigParseError{Path: path, Err: err}
	}

	return Credentials{Username: username.String(), Password: password.String(), Path: path}, nil
}

// verbatimValues wraps every key's value in triple quotes. ini strips a
// leading backtick or triple quote from a bare value; a wrapped value comes
// back byte for byte, trimmed of surrounding whitespace only.
func verbatimValues(data []byte) []byte {
	var buf bytes.Buffer
	for _, line := range strings.SplitAfter(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		i := strings.IndexAny(trimmed, "=:")
		if i <= 0 || strings.ContainsRune("[#;", rune(trimmed[0])) {
			buf.WriteString(line)
			continue
		}
		key := strings.TrimSpace(trimmed[:i])
		value := strings.TrimSpace(trimmed[i+1:])
		fmt.Fprintf(&buf, "%s = \"\"\"%s\"\"\"\n", key, value)
	}
	return buf.Bytes()
}

func checkValue(name, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: %s contains a line break", ErrUnsafeValue, name)
	}
	if strings.TrimSpace(value) != value {
		return fmt.Errorf("%w: %s has leading or trailing whitespace", ErrUnsafeValue, name)
	}
	return nil
}

// SaveCredentials writes credentials to an INI config file at path. Values
// are written as-is; ones that would not read back unchanged are rejected
// with ErrUnsafeValue.
func SaveCredentials(fsys afero.Fs, path string, creds Credentials) error {
	if err := checkValue(usernameKey, creds.Username); err != nil {
		return err
	}
	if err := checkValue(passwordKey, creds.Password); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// ini's writer quotes values containing a backtick, so the lines are
	// formatted directly.
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%s]\n%s = %s\n%s = %s\n",
		credentialsSection, usernameKey, creds.Username, passwordKey, creds.Password)

	if err := afero.WriteFile(fsys, path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write credentials to %s: %w", path, err)
	}

	return nil
}

// RemoveCredentials deletes the config file at path. A missing file is not an error.
func RemoveCredentials(fsys afero.Fs, path string) error {
	if err := fsys.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
