package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/turtacn/KeyIP-FPIndex/pkg/client"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Molecule file formats.
const (
	FormatJSONL  = "jsonl"
	FormatJSON   = "json"
	FormatSMILES = "smi"
)

const maxLineBytes = 4 << 20

// detectFormat picks the format from the file extension, defaulting to jsonl.
func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".smi", ".smiles":
		return FormatSMILES
	default:
		return FormatJSONL
	}
}

// loadMolecules reads a molecule file; "-" reads stdin. An empty format is
// detected from the extension.
func loadMolecules(path, format string, stdin io.Reader) ([]client.Molecule, error) {
	if format == "" {
		format = detectFormat(path)
	}
	if path == "-" {
		return readMolecules(stdin, format)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.InvalidParam("cannot open molecule file").WithDetail(err.Error())
	}
	defer f.Close()
	return readMolecules(f, format)
}

func readMolecules(r io.Reader, format string) ([]client.Molecule, error) {
	switch format {
	case FormatJSON:
		var out []client.Molecule
		if err := json.NewDecoder(r).Decode(&out); err != nil {
			return nil, errors.InvalidParam("invalid JSON molecule array").WithDetail(err.Error())
		}
		return out, nil
	case FormatJSONL:
		return scanLines(r, func(n int, line string) (client.Molecule, error) {
			var m client.Molecule
			if err := json.Unmarshal([]byte(line), &m); err != nil {
				return m, errors.InvalidParam("invalid JSON line").WithDetailf("line %d: %v", n, err)
			}
			return m, nil
		})
	case FormatSMILES:
		// "<smiles> [name]"; a missing name becomes the line number.
		return scanLines(r, func(n int, line string) (client.Molecule, error) {
			fields := strings.Fields(line)
			m := client.Molecule{Structure: fields[0], ID: strconv.Itoa(n)}
			if len(fields) > 1 {
				m.ID = strings.Join(fields[1:], " ")
			}
			return m, nil
		})
	default:
		return nil, errors.InvalidParam(fmt.Sprintf("unknown molecule format %q", format)).
			WithDetail("expected jsonl, json or smi")
	}
}

// scanLines calls parse for every line that is neither blank nor a # comment.
func scanLines(r io.Reader, parse func(n int, line string) (client.Molecule, error)) ([]client.Molecule, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []client.Molecule
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m, err := parse(n, line)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.InvalidParam("reading molecule file").WithDetail(err.Error())
	}
	return out, nil
}

//Personal.AI order the ending
