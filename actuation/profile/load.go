package profile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const maxProfileFileSize = 1 * 1024 * 1024 // 1MB

// fileHeader is read first so a file can start from a built-in profile.
type fileHeader struct {
	Base string `yaml:"base"`
}

// document is the on-disk layout: an optional base plus profile fields.
type document struct {
	Base          string `yaml:"base"`
	TuningProfile `yaml:",inline"`
}

// LoadFile reads a YAML tuning profile. If the file names a `base` profile,
// the file's fields are layered over a copy of it; otherwise omitted fields
// receive defaults. The result is validated.
func LoadFile(path string) (TuningProfile, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return TuningProfile{}, err
	}
	return Parse(data)
}

// Parse decodes a YAML profile document. Unknown keys are rejected.
func Parse(data []byte) (TuningProfile, error) {
	var hdr fileHeader
	if err := yaml.Unmarshal(data, &hdr); err != nil {
		return TuningProfile{}, fmt.Errorf("failed to parse profile YAML: %w", err)
	}

	doc := document{}
	if hdr.Base != "" {
		ctor, ok := registry[hdr.Base]
		if !ok {
			return TuningProfile{}, fmt.Errorf("%w %q (available: %v)", ErrUnknownProfile, hdr.Base, Names())
		}
		// Undefaulted so derived envelopes follow any jerk limits in the file.
		doc.TuningProfile = ctor()
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return TuningProfile{}, fmt.Errorf("failed to parse profile YAML: %w", err)
	}

	p := doc.TuningProfile
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return TuningProfile{}, err
	}
	return p, nil
}

// Resolve returns a built-in profile by name, or loads it from disk when the
// argument looks like a YAML path.
func Resolve(nameOrPath string) (TuningProfile, error) {
	switch filepath.Ext(nameOrPath) {
	case ".yaml", ".yml":
		return LoadFile(nameOrPath)
	default:
		return Lookup(nameOrPath)
	}
}

func readConfigFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxProfileFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxProfileFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}
