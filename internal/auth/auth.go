package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Source identifies where a set of credentials came from
type Source string

const (
	// SourceCLI means username and password were passed on the command line
	SourceCLI Source = "cli"
	// SourceWorkDir means the config file in the current working directory was used
	SourceWorkDir Source = "workdir"
	// SourceHome means the config file in the home directory was used
	SourceHome Source = "home"
)

// Store represents where credentials are persisted
type Store string

const (
	StoreHome    Store = "home"    // ~/.guploadrc
	StoreProject Store = "project" // ./.guploadrc
)

// ValidateStore checks if the given string is a valid Store
func ValidateStore(store string) (Store, error) {
	switch Store(store) {
	case StoreHome:
		return StoreHome, nil
	case StoreProject:
		return StoreProject, nil
	default:
		return "", fmt.Errorf("invalid store %q: must be 'home' or 'project'", store)
	}
}

// Credentials holds a Garmin Connect username and password.
// Values are returned by copy and never modified after resolution.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"-" yaml:"-"`
	Source   Source `json:"source" yaml:"source"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
}

// MaskedPassword returns the password masked for display
func (c Credentials) MaskedPassword() string {
	return MaskPassword(c.Password)
}

// MaskPassword replaces every character of a password with '*'
func MaskPassword(password string) string {
	return strings.Repeat("*", len([]rune(password)))
}

// Session is an authenticated Garmin Connect session
type Session struct {
	ID        string
	Ticket    string
	Client    *http.Client
	CreatedAt time.Time
}

// ConfigurationError is returned when no credential source is available
type ConfigurationError struct {
	FileName    string
	WorkDirPath string
	HomePath    string
	WorkDir     string
	HomeDir     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf(
		"'%s' file does not exist in current directory %s or home directory %s (searched %s and %s). "+
			"Use --username and --password to supply credentials",
		e.FileName, e.WorkDir, e.HomeDir, e.WorkDirPath, e.HomePath,
	)
}

// ConfigParseError is returned when the selected config file cannot supply credentials
type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("failed to read credentials from %s: %v", e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}
