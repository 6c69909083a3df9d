package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// refPattern matches, in order of the alternatives:
//
//	$$                  a literal dollar sign
//	${file:PATH}        the contents of PATH, trailing newlines trimmed
//	${VAR}              the value of VAR, which must be set
//	${VAR:-fallback}    VAR, or fallback when VAR is unset
//	${VAR:?message}     VAR, or an error carrying message when VAR is unset
var refPattern = regexp.MustCompile(`\$\$|\$\{file:([^}]+)\}|\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:[-?])((?:[^}\\]|\\.)*))?\}`)

// Load reads the YAML file at path, expands references and decodes it.
// Relative ${file:...} paths are resolved against the directory of path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands references in raw and decodes the result. Unknown
// top-level keys are rejected; module sections are kept as raw nodes and
// checked by each module when it is configured. An empty document yields
// a zero Config.
func Parse(raw []byte, baseDir string) (*Config, error) {
	expanded, err := expand(raw, baseDir)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return &cfg, nil
}

// expand resolves every reference in raw. All failures are reported
// together, each tagged with its line number.
func expand(raw []byte, baseDir string) ([]byte, error) {
	var (
		out  bytes.Buffer
		errs []error
		last int
	)
	for _, m := range refPattern.FindAllSubmatchIndex(raw, -1) {
		out.Write(raw[last:m[0]])
		last = m[1]

		value, err := resolve(raw, m, baseDir)
		if err != nil {
			line := bytes.Count(raw[:m[0]], []byte("\n")) + 1
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			out.Write(raw[m[0]:m[1]])
			continue
		}
		out.WriteString(value)
	}
	out.Write(raw[last:])

	if len(errs) > 0 {
		return nil, fmt.Errorf("expanding variables: %w", errors.Join(errs...))
	}
	return out.Bytes(), nil
}

func resolve(raw []byte, m []int, baseDir string) (string, error) {
	group := func(i int) (string, bool) {
		if m[2*i] < 0 {
			return "", false
		}
		return string(raw[m[2*i]:m[2*i+1]]), true
	}

	if path, ok := group(1); ok {
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading secret file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	name, ok := group(2)
	if !ok {
		return "$", nil
	}
	if value, set := os.LookupEnv(name); set {
		return value, nil
	}

	op, _ := group(3)
	operand, _ := group(4)
	switch op {
	case ":-":
		return operand, nil
	case ":?":
		if operand == "" {
			operand = "not set"
		}
		return "", fmt.Errorf("%s: %s", name, operand)
	default:
		return "", fmt.Errorf("unresolved variable: %s", name)
	}
}
