package manager

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"mercator-hq/arbiter/pkg/evaluator"
)

// Document is a policy document read from disk.
type Document struct {
	evaluator.PolicyDocument
	Path string
}

// Loader reads policy documents from a directory.
type Loader struct {
	maxFileSize int64
	extensions  []string
}

// NewLoader creates a Loader. Zero values in config use the defaults.
func NewLoader(config *Config) *Loader {
	l := &Loader{maxFileSize: DefaultMaxFileSize, extensions: DefaultExtensions}
	if config != nil {
		if config.MaxFileSize > 0 {
			l.maxFileSize = config.MaxFileSize
		}
		if len(config.Extensions) > 0 {
			l.extensions = config.Extensions
		}
	}
	return l
}

// LoadDirectory reads every policy document directly inside dir, sorted by
// file name. Files that cannot be loaded are skipped and reported in the
// returned error slice; a missing directory or bad manifest fails the call.
func (l *Loader) LoadDirectory(dir string) ([]Document, []error, error) {
	manifest, err := l.readManifest(dir)
	if err != nil {
		return nil, nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, &LoadError{FilePath: dir, Message: "failed to read directory", Cause: err}
	}

	var (
		docs []Document
		errs []error
		seen = make(map[string]string)
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !l.IsPolicyFile(name) {
			continue
		}

		path := filepath.Join(dir, name)
		doc, err := l.LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if m, ok := manifest[name]; ok {
			if m.ID != "" {
				doc.ID = m.ID
			}
			if m.Version != "" {
				doc.Version = m.Version
			}
		}
		if other, dup := seen[doc.ID]; dup {
			errs = append(errs, &LoadError{FilePath: path, Message: "duplicate policy id " + doc.ID + " (also in " + other + ")"})
			continue
		}
		seen[doc.ID] = name
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, errs, nil
}

// LoadFile reads one document. Its id is the file stem and its version a
// digest of the content.
func (l *Loader) LoadFile(path string) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		}
		if errors.Is(err, fs.ErrPermission) {
			return Document{}, &LoadError{FilePath: path, Message: "permission denied", Cause: err}
		}
		return Document{}, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}
	if !info.Mode().IsRegular() {
		return Document{}, &LoadError{FilePath: path, Message: "not a regular file"}
	}
	if info.Size() > l.maxFileSize {
		return Document{}, &LoadError{FilePath: path, Message: "file exceeds maximum size"}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}
	if len(content) == 0 {
		return Document{}, &LoadError{FilePath: path, Message: "file is empty"}
	}
	if !utf8.Valid(content) {
		return Document{}, &LoadError{FilePath: path, Message: "file is not valid UTF-8"}
	}

	return Document{
		PolicyDocument: evaluator.PolicyDocument{
			ID:      PolicyID(path),
			Version: ContentVersion(content),
			Content: content,
		},
		Path: path,
	}, nil
}

// IsPolicyFile reports whether name has a policy extension. Hidden files
// and the manifest are excluded.
func (l *Loader) IsPolicyFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || base == ManifestFile {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range l.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func (l *Loader) readManifest(dir string) (map[string]ManifestEntry, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &ManifestError{FilePath: path, Message: "failed to read", Cause: err}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{FilePath: path, Message: "failed to parse", Cause: err}
	}

	byFile := make(map[string]ManifestEntry, len(m.Policies))
	for i, entry := range m.Policies {
		if entry.File == "" {
			return nil, &ManifestError{FilePath: path, Message: fmt.Sprintf("entry %d has no file", i)}
		}
		if _, dup := byFile[entry.File]; dup {
			return nil, &ManifestError{FilePath: path, Message: "file " + entry.File + " listed twice"}
		}
		byFile[entry.File] = entry
	}
	return byFile, nil
}

// PolicyID derives a document id from its file name.
func PolicyID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ContentVersion is the default version: a short SHA-256 digest.
func ContentVersion(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:6])
}
