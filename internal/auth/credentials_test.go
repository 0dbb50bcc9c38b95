package auth

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gupload/cli/internal/logging"
)

var testLocations = Locations{
	FileName: ".guploadrc",
	WorkDir:  "/work/rides",
	HomeDir:  "/home/rider",
}

// countingFs records every filesystem access made through it
type countingFs struct {
	afero.Fs
	calls int
}

func (c *countingFs) Stat(name string) (os.FileInfo, error) {
	c.calls++
	return c.Fs.Stat(name)
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.calls++
	return c.Fs.Open(name)
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	c.calls++
	return c.Fs.OpenFile(name, flag, perm)
}

// deniedFs fails Stat on one path with a permission error
type deniedFs struct {
	afero.Fs
	path string
}

func (d *deniedFs) Stat(name string) (os.FileInfo, error) {
	if name == d.path {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.Stat(name)
}

func writeConfig(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0600))
}

func TestResolveFromArguments(t *testing.T) {
	fsys := &countingFs{Fs: afero.NewMemMapFs()}
	writeConfig(t, fsys.Fs, testLocations.WorkDirPath(), "[Credentials]\nusername = file-user\npassword = file-pass\n")

	creds, err := NewResolver(fsys, testLocations, nil).Resolve("cli-user", "cli-pass")

	require.NoError(t, err)
	assert.Equal(t, "cli-user", creds.Username)
	assert.Equal(t, "cli-pass", creds.Password)
	assert.Equal(t, SourceCLI, creds.Source)
	assert.Empty(t, creds.Path)
	assert.Zero(t, fsys.calls, "command line credentials must not touch the filesystem")
}

func TestResolvePrecedence(t *testing.T) {
	tests := []struct {
		name           string
		username       string
		password       string
		workDirConfig  string
		homeConfig     string
		expectUsername string
		expectPassword string
		expectSource   Source
		expectPath     string
	}{
		{
			name:           "Working directory wins over home",
			workDirConfig:  "[Credentials]\nusername = work-user\npassword = work-pass\n",
			homeConfig:     "[Credentials]\nusername = home-user\npassword = home-pass\n",
			expectUsername: "work-user",
			expectPassword: "work-pass",
			expectSource:   SourceWorkDir,
			expectPath:     "/work/rides/.guploadrc",
		},
		{
			name:           "Home used when working directory has no file",
			homeConfig:     "[Credentials]\nusername = home-user\npassword = home-pass\n",
			expectUsername: "home-user",
			expectPassword: "home-pass",
			expectSource:   SourceHome,
			expectPath:     "/home/rider/.guploadrc",
		},
		{
			name:           "Username without password falls through to files",
			username:       "cli-user",
			homeConfig:     "[Credentials]\nusername = home-user\npassword = home-pass\n",
			expectUsername: "home-user",
			expectPassword: "home-pass",
			expectSource:   SourceHome,
			expectPath:     "/home/rider/.guploadrc",
		},
		{
			name:           "Password without username falls through to files",
			password:       "cli-pass",
			workDirConfig:  "[Credentials]\nusername = work-user\npassword = work-pass\n",
			expectUsername: "work-user",
			expectPassword: "work-pass",
			expectSource:   SourceWorkDir,
			expectPath:     "/work/rides/.guploadrc",
		},
		{
			name:           "Key names are case-insensitive",
			workDirConfig:  "[Credentials]\nUserName = work-user\nPASSWORD = work-pass\n",
			expectUsername: "work-user",
			expectPassword: "work-pass",
			expectSource:   SourceWorkDir,
			expectPath:     "/work/rides/.guploadrc",
		},
		{
			name:           "Inline hash kept in password",
			homeConfig:     "[Credentials]\nusername = home-user\npassword = p4ss#word;1\n",
			expectUsername: "home-user",
			expectPassword: "p4ss#word;1",
			expectSource:   SourceHome,
			expectPath:     "/home/rider/.guploadrc",
		},
		{
			name:           "Double quotes kept in password",
			homeConfig:     "[Credentials]\nusername = home-user\npassword = \"quoted\"\n",
			expectUsername: "home-user",
			expectPassword: `"quoted"`,
			expectSource:   SourceHome,
			expectPath:     "/home/rider/.guploadrc",
		},
		{
			name:           "Backticks kept in password",
			homeConfig:     "[Credentials]\nusername = home-user\npassword = `tick`\n",
			expectUsername: "home-user",
			expectPassword: "`tick`",
			expectSource:   SourceHome,
			expectPath:     "/home/rider/.guploadrc",
		},
		{
			name:           "Trailing backslash is not a continuation",
			homeConfig:     "[Credentials]\npassword = ends\\\nusername = home-user\n",
			expectUsername: "home-user",
			expectPassword: `ends\`,
			expectSource:   SourceHome,
			expectPath:     "/home/rider/.guploadrc",
		},
		{
			name:           "Triple quotes and colon delimiter",
			workDirConfig:  "[Credentials]\nusername: work-user\npassword = \"\"\"x\"\"\"\n",
			expectUsername: "work-user",
			expectPassword: `"""x"""`,
			expectSource:   SourceWorkDir,
			expectPath:     "/work/rides/.guploadrc",
		},
		{
			name:           "Surrounding whitespace trimmed",
			workDirConfig:  "# saved by hand\n[Credentials]\n  username =   work-user  \r\npassword=work-pass\t\r\n",
			expectUsername: "work-user",
			expectPassword: "work-pass",
			expectSource:   SourceWorkDir,
			expectPath:     "/work/rides/.guploadrc",
		},
		{
			name:           "Empty password",
			homeConfig:     "[Credentials]\nusername = home-user\npassword =\n",
			expectUsername: "home-user",
			expectPassword: "",
			expectSource:   SourceHome,
			expectPath:     "/home/rider/.guploadrc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			if tt.workDirConfig != "" {
				writeConfig(t, fsys, testLocations.WorkDirPath(), tt.workDirConfig)
			}
			if tt.homeConfig != "" {
				writeConfig(t, fsys, testLocations.HomePath(), tt.homeConfig)
			}

			creds, err := NewResolver(fsys, testLocations, nil).Resolve(tt.username, tt.password)

			require.NoError(t, err)
			assert.Equal(t, tt.expectUsername, creds.Username)
			assert.Equal(t, tt.expectPassword, creds.Password)
			assert.Equal(t, tt.expectSource, creds.Source)
			assert.Equal(t, tt.expectPath, creds.Path)
		})
	}
}

func TestResolveNoSource(t *testing.T) {
	fsys := afero.NewMemMapFs()
	// A directory with the config name is not a config file.
	require.NoError(t, fsys.MkdirAll(testLocations.WorkDirPath(), 0700))

	_, err := NewResolver(fsys, testLocations, nil).Resolve("", "")

	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "/work/rides/.guploadrc")
	assert.Contains(t, err.Error(), "/home/rider/.guploadrc")
	assert.Contains(t, err.Error(), "/home/rider")
	assert.Contains(t, err.Error(), "--username")
	assert.Equal(t, ".guploadrc", cfgErr.FileName)
}

func TestResolveParseErrors(t *testing.T) {
	validHome := "[Credentials]\nusername = home-user\npassword = home-pass\n"

	tests := []struct {
		name          string
		workDirConfig string
		errorContains string
	}{
		{name: "Missing section", workDirConfig: "[Other]\nusername = u\npassword = p\n", errorContains: "Credentials"},
		{name: "Missing username", workDirConfig: "[Credentials]\npassword = p\n", errorContains: "username"},
		{name: "Missing password", workDirConfig: "[Credentials]\nusername = u\n", errorContains: "password"},
		{name: "Malformed file", workDirConfig: "[Credentials\nusername = u\n", errorContains: "/work/rides/.guploadrc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			writeConfig(t, fsys, testLocations.WorkDirPath(), tt.workDirConfig)
			writeConfig(t, fsys, testLocations.HomePath(), validHome)

			creds, err := NewResolver(fsys, testLocations, nil).Resolve("", "")

			require.Error(t, err, "a broken working directory file must not fall through to home")
			var parseErr *ConfigParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, testLocations.WorkDirPath(), parseErr.Path)
			assert.Contains(t, err.Error(), tt.errorContains)
			assert.Equal(t, Credentials{}, creds)
		})
	}
}

func TestResolveStatError(t *testing.T) {
	base := afero.NewMemMapFs()
	writeConfig(t, base, testLocations.HomePath(), "[Credentials]\nusername = home-user\npassword = home-pass\n")
	fsys := &deniedFs{Fs: base, path: testLocations.WorkDirPath()}

	creds, err := NewResolver(fsys, testLocations, nil).Resolve("", "")

	require.Error(t, err, "an unreadable working directory entry must not fall through to home")
	var parseErr *ConfigParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, testLocations.WorkDirPath(), parseErr.Path)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, Credentials{}, creds)
}

func TestResolveLogsSourceWithoutPassword(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, testLocations.HomePath(), "[Credentials]\nusername = home-user\npassword = s3cret-value\n")

	var buf bytes.Buffer
	_, err := NewResolver(fsys, testLocations, logging.New(&buf, true)).Resolve("", "")

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "using credentials from config file")
	assert.Contains(t, buf.String(), testLocations.HomePath())
	assert.NotContains(t, buf.String(), "s3cret-value")
}

func TestLocationsPath(t *testing.T) {
	home, err := testLocations.Path(StoreHome)
	require.NoError(t, err)
	assert.Equal(t, "/home/rider/.guploadrc", home)

	project, err := testLocations.Path(StoreProject)
	require.NoError(t, err)
	assert.Equal(t, "/work/rides/.guploadrc", project)

	_, err = testLocations.Path(Store("keyring"))
	assert.Error(t, err)
}

func TestDefaultLocations(t *testing.T) {
	t.Setenv("HOME", "/tmp/gupload-home")

	locs, err := DefaultLocations("")
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, DefaultConfigFile, locs.FileName)
	assert.Equal(t, wd, locs.WorkDir)
	assert.Equal(t, "/tmp/gupload-home", locs.HomeDir)
	assert.Equal(t, "/tmp/gupload-home/.guploadrc", locs.HomePath())
}

func TestSaveAndRemoveCredentials(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path := testLocations.HomePath()

	err := SaveCredentials(fsys, path, Credentials{Username: "rider@example.com", Password: "p4ss#word"})
	require.NoError(t, err)

	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	creds, err := NewResolver(fsys, testLocations, nil).Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, "rider@example.com", creds.Username)
	assert.Equal(t, "p4ss#word", creds.Password)
	assert.Equal(t, SourceHome, creds.Source)

	require.NoError(t, RemoveCredentials(fsys, path))
	exists, err := afero.Exists(fsys, path)
	require.NoError(t, err)
	assert.False(t, exists)

	// Removing again is not an error.
	assert.NoError(t, RemoveCredentials(fsys, path))
}

func TestSaveCredentialsRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "Double quotes", username: "rider", password: `"quoted"`},
		{name: "Backticks", username: "rider", password: "`tick`"},
		{name: "Backtick inside", username: "rider", password: "a`b"},
		{name: "Trailing backslash", username: "rider", password: `ends\`},
		{name: "Single quotes", username: "'rider'", password: "'q'"},
		{name: "Triple quotes", username: "rider", password: `"""x"""`},
		{name: "Comment characters", username: "rider;1", password: "#;p4ss"},
		{name: "Delimiters", username: "a=b", password: "c:d=e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			path := testLocations.WorkDirPath()
			require.NoError(t, SaveCredentials(fsys, path, Credentials{Username: tt.username, Password: tt.password}))

			creds, err := NewResolver(fsys, testLocations, nil).Resolve("", "")

			require.NoError(t, err)
			assert.Equal(t, tt.username, creds.Username)
			assert.Equal(t, tt.password, creds.Password)
			assert.Equal(t, SourceWorkDir, creds.Source)
		})
	}
}

func TestSaveCredentialsRejectsUnsafeValues(t *testing.T) {
	tests := []struct {
		name          string
		creds         Credentials
		errorContains string
	}{
		{name: "Leading space in password", creds: Credentials{Username: "rider", Password: " pw"}, errorContains: "password has leading or trailing whitespace"},
		{name: "Trailing tab in username", creds: Credentials{Username: "rider\t", Password: "pw"}, errorContains: "username has leading or trailing whitespace"},
		{name: "Newline in password", creds: Credentials{Username: "rider", Password: "p\nw"}, errorContains: "password contains a line break"},
		{name: "Carriage return in password", creds: Credentials{Username: "rider", Password: "p\rw"}, errorContains: "password contains a line break"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			path := testLocations.HomePath()

			err := SaveCredentials(fsys, path, tt.creds)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsafeValue)
			assert.Contains(t, err.Error(), tt.errorContains)
			exists, err := afero.Exists(fsys, path)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestValidateStore(t *testing.T) {
	tests := []struct {
		name        string
		store       string
		expectedErr string
	}{
		{name: "Valid home store", store: "home", expectedErr: ""},
		{name: "Valid project store", store: "project", expectedErr: ""},
		{name: "Invalid store", store: "keyring", expectedErr: "invalid store"},
		{name: "Empty store", store: "", expectedErr: "invalid store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateStore(tt.store)
			if tt.expectedErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
			}
		})
	}
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "", MaskPassword(""))
	assert.Equal(t, "******", MaskPassword("secret"))
	assert.Equal(t, "***", MaskPassword("päß"))
	assert.Equal(t, "****", Credentials{Password: "abcd"}.MaskedPassword())
}
