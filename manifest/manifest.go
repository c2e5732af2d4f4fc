// Package manifest loads and validates frontend component descriptors.
// A component ships as a directory containing a YAML manifest, an
// OpenAPI-shaped API specification, and a compiled frontend bundle; the
// manifest carries a content-hash fingerprint over the component files so
// tampered or partially fetched components fail fast at load time.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/frontgate/errors"
)

// Binding associates a handler or behaviour identifier with its
// configuration arguments from the manifest.
type Binding struct {
	Identifier string            `yaml:"identifier"`
	Args       map[string]string `yaml:"args,omitempty"`
}

// Manifest is the parsed component descriptor. Paths are stored as declared;
// Resolve* accessors return them resolved against the component root.
type Manifest struct {
	Name                      string            `yaml:"name"`
	Author                    string            `yaml:"author"`
	Version                   string            `yaml:"version"`
	Type                      string            `yaml:"type"`
	APISpecPath               string            `yaml:"api_spec"`
	FrontendDir               string            `yaml:"frontend_dir"`
	Fingerprint               map[string]string `yaml:"fingerprint"`
	FingerprintIgnorePatterns []string          `yaml:"fingerprint_ignore_patterns"`
	Behaviours                []Binding         `yaml:"behaviours"`
	Handlers                  []Binding         `yaml:"handlers"`

	root string // component root directory, set at load time
}

// Root returns the component root directory the manifest was loaded from.
func (m *Manifest) Root() string {
	return m.root
}

// ResolveAPISpec returns the absolute path of the declared API specification.
// The manifest's api_spec field is the single source of truth for the spec
// filename; the loader never guesses a canonical name.
func (m *Manifest) ResolveAPISpec() string {
	return filepath.Join(m.root, filepath.FromSlash(m.APISpecPath))
}

// ResolveFrontendDir returns the absolute path of the frontend bundle directory.
func (m *Manifest) ResolveFrontendDir() string {
	return filepath.Join(m.root, filepath.FromSlash(m.FrontendDir))
}

// validate checks required descriptor fields
func (m *Manifest) validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if m.APISpecPath == "" {
		return fmt.Errorf("api_spec is required")
	}
	if m.FrontendDir == "" {
		return fmt.Errorf("frontend_dir is required")
	}
	for i, b := range m.Behaviours {
		if b.Identifier == "" {
			return fmt.Errorf("behaviours[%d]: identifier is required", i)
		}
	}
	for i, h := range m.Handlers {
		if h.Identifier == "" {
			return fmt.Errorf("handlers[%d]: identifier is required", i)
		}
	}
	return nil
}

// Load reads the manifest at manifestPath, verifies the declared content
// fingerprint, and parses the companion API specification. Any missing or
// hash-mismatched fingerprint entry not covered by an ignore pattern is
// fatal to the load.
func Load(manifestPath string) (*Manifest, *APISpec, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, nil, errors.WrapFatal(errors.ErrManifestInvalid,
			"Loader", "Load", fmt.Sprintf("read manifest %s: %v", manifestPath, err))
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, nil, errors.WrapFatal(errors.ErrManifestInvalid,
			"Loader", "Load", fmt.Sprintf("parse manifest YAML: %v", err))
	}

	if err := m.validate(); err != nil {
		return nil, nil, errors.WrapFatal(errors.ErrManifestInvalid,
			"Loader", "Load", fmt.Sprintf("manifest validation: %v", err))
	}

	root, err := filepath.Abs(filepath.Dir(manifestPath))
	if err != nil {
		return nil, nil, errors.WrapFatal(errors.ErrManifestInvalid,
			"Loader", "Load", fmt.Sprintf("resolve component root: %v", err))
	}
	m.root = root

	if err := m.verifyFingerprint(); err != nil {
		return nil, nil, err
	}

	frontendDir := m.ResolveFrontendDir()
	info, err := os.Stat(frontendDir)
	if err != nil || !info.IsDir() {
		return nil, nil, errors.WrapFatal(errors.ErrManifestInvalid,
			"Loader", "Load", fmt.Sprintf("frontend_dir %s is not a directory", m.FrontendDir))
	}

	spec, err := LoadAPISpec(m.ResolveAPISpec())
	if err != nil {
		return nil, nil, err
	}

	return &m, spec, nil
}

// verifyFingerprint recomputes the content hash of every fingerprinted file
// and compares it against the declared value
func (m *Manifest) verifyFingerprint() error {
	for relPath, declared := range m.Fingerprint {
		if m.ignored(relPath) {
			continue
		}

		actual, err := hashFile(filepath.Join(m.root, filepath.FromSlash(relPath)))
		if err != nil {
			return errors.WrapFatal(errors.ErrManifestInvalid,
				"Loader", "verifyFingerprint",
				fmt.Sprintf("fingerprinted file %s: %v", relPath, err))
		}

		if !strings.EqualFold(actual, declared) {
			return errors.WrapFatal(errors.ErrManifestInvalid,
				"Loader", "verifyFingerprint",
				fmt.Sprintf("hash mismatch for %s", relPath))
		}
	}
	return nil
}

// ignored reports whether relPath matches any fingerprint ignore pattern.
// Patterns are matched against the slash-separated relative path and, for
// convenience, against the base name (matching *.log anywhere).
func (m *Manifest) ignored(relPath string) bool {
	rel := filepath.ToSlash(relPath)
	for _, pattern := range m.FingerprintIgnorePatterns {
		if ok, err := path.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := path.Match(pattern, path.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}

// hashFile returns the lowercase hex sha256 digest of the file contents
func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile computes the fingerprint digest for a single file. It is exported
// for tooling and tests that need to produce manifests programmatically.
func HashFile(p string) (string, error) {
	return hashFile(p)
}
