// Package platform answers host queries used to identify the device: hardware serial, model,
// OS release, locale and an install-scoped id.
package platform

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sys/unix"
	"golang.org/x/text/language"
)

// ErrAccessDenied is returned when the host refuses a query by policy.
var ErrAccessDenied = errors.New("platform: access denied")

// Platform is the set of host queries the identity resolver depends on.
type Platform interface {
	// Serial returns the hardware serial number. Fails with ErrAccessDenied when denied.
	Serial() (string, error)
	// Product returns the product name; virtual products start with "sdk_".
	Product() string
	Model() string
	SystemVersion() string
	Locale() string
	// InstallID returns a pseudo-random id scoped to this installation.
	InstallID() (string, error)
}

// Linux reads identity facts from sysfs, uname and the environment.
type Linux struct {
	// Root prefixes every file path; empty means "/".
	Root string
	// InstallKey scopes InstallID; installs with different keys get unrelated ids.
	InstallKey []byte
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// NewLinux returns a Linux platform reading the real filesystem.
func NewLinux(installKey string) *Linux {
	return &Linux{InstallKey: []byte(installKey)}
}

func (p *Linux) path(elem ...string) string {
	root := p.Root
	if root == "" {
		root = "/"
	}
	return filepath.Join(append([]string{root}, elem...)...)
}

func (p *Linux) readTrimmed(elem ...string) (string, error) {
	b, err := os.ReadFile(p.path(elem...))
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
		return "", err
	}
	return string(bytes.TrimSpace(b)), nil
}

func (p *Linux) getenv(key string) string {
	if p.Getenv != nil {
		return p.Getenv(key)
	}
	return os.Getenv(key)
}

// Serial reads the DMI product serial. sysfs restricts it to root, so unprivileged callers get ErrAccessDenied.
func (p *Linux) Serial() (string, error) {
	s, err := p.readTrimmed("sys", "class", "dmi", "id", "product_serial")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", errors.New("platform: empty serial")
	}
	return s, nil
}

// Product returns the DMI product name, or "" when unreadable.
func (p *Linux) Product() string {
	s, err := p.readTrimmed("sys", "class", "dmi", "id", "product_name")
	if err != nil {
		return ""
	}
	return s
}

// Model returns the DMI product version, falling back to the product name.
func (p *Linux) Model() string {
	if s, err := p.readTrimmed("sys", "class", "dmi", "id", "product_version"); err == nil && s != "" {
		return s
	}
	return p.Product()
}

// SystemVersion returns VERSION_ID from os-release, falling back to the kernel release.
func (p *Linux) SystemVersion() string {
	if s, err := p.readTrimmed("etc", "os-release"); err == nil {
		if v := osReleaseField(s, "VERSION_ID"); v != "" {
			return v
		}
	}
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Release[:])
}

func osReleaseField(content, key string) string {
	for _, line := range strings.Split(content, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if ok && k == key {
			return strings.Trim(v, `"'`)
		}
	}
	return ""
}

// Locale returns the POSIX locale of the process in language_REGION form (e.g. en_US).
func (p *Linux) Locale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := p.getenv(key); v != "" {
			return FormatLocale(v)
		}
	}
	return FormatLocale("")
}

// FormatLocale canonicalizes a POSIX locale string such as "en_US.UTF-8" to "en_US".
// Unparseable or empty values yield "en_US".
func FormatLocale(posix string) string {
	s := posix
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	if s == "" || s == "C" || s == "POSIX" {
		return "en_US"
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return "en_US"
	}
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf == language.No || !strings.ContainsAny(s, "_-") {
		return base.String()
	}
	return base.String() + "_" + region.String()
}

// InstallID derives a 16 hex digit id from the machine id, keyed by InstallKey.
func (p *Linux) InstallID() (string, error) {
	machineID, err := p.readTrimmed("etc", "machine-id")
	if err != nil {
		machineID, err = p.readTrimmed("var", "lib", "dbus", "machine-id")
		if err != nil {
			return "", err
		}
	}
	return DeriveInstallID(machineID, p.InstallKey)
}

// DeriveInstallID hashes machineID with key into a 16 hex digit id.
func DeriveInstallID(machineID string, key []byte) (string, error) {
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	h, err := blake2b.New(8, key)
	if err != nil {
		return "", err
	}
	h.Write([]byte(machineID))
	return hex.EncodeToString(h.Sum(nil)), nil
}

var _ Platform = (*Linux)(nil)
