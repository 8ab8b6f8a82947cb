package publish

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrArtifactNotFound is returned when no compiled artifact exists for a
// contract name.
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact is the compiler output needed to deploy one contract.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

// InitCode returns the creation bytecode followed by the ABI-encoded
// constructor arguments.
func (a *Artifact) InitCode(args ...any) ([]byte, error) {
	if got, want := len(args), len(a.ABI.Constructor.Inputs); got != want {
		return nil, fmt.Errorf("%s constructor: got %d args, want %d", a.Name, got, want)
	}
	packed, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%s constructor: %w", a.Name, err)
	}
	code := make([]byte, 0, len(a.Bytecode)+len(packed))
	code = append(code, a.Bytecode...)
	return append(code, packed...), nil
}

type artifactJSON struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode json.RawMessage `json:"bytecode"`
}

// ParseArtifact decodes a Hardhat ("bytecode": "0x..") or Foundry
// ("bytecode": {"object": "0x.."}) artifact.
func ParseArtifact(name string, data []byte) (*Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s artifact: %w", name, err)
	}
	if len(raw.ABI) == 0 || len(raw.Bytecode) == 0 {
		return nil, fmt.Errorf("%s artifact: missing abi or bytecode", name)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("%s artifact abi: %w", name, err)
	}

	var code string
	if err := json.Unmarshal(raw.Bytecode, &code); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw.Bytecode, &obj); err != nil {
			return nil, fmt.Errorf("%s artifact bytecode: %w", name, err)
		}
		code = obj.Object
	}
	bytecode, err := hex.DecodeString(strings.TrimPrefix(code, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%s artifact bytecode: %w", name, err)
	}
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("%s artifact: empty bytecode (abstract contract or interface?)", name)
	}

	return &Artifact{Name: name, ABI: parsed, Bytecode: bytecode}, nil
}

// ArtifactDir resolves artifacts under a compiler output directory such as
// Hardhat's artifacts/ or Foundry's out/.
type ArtifactDir struct {
	Root string
}

func (d ArtifactDir) Artifact(name string) (*Artifact, error) {
	path, err := d.find(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s artifact: %w", name, err)
	}
	return ParseArtifact(name, data)
}

func (d ArtifactDir) find(name string) (string, error) {
	hardhat := filepath.Join(d.Root, "contracts", name+".sol", name+".json")
	if _, err := os.Stat(hardhat); err == nil {
		return hardhat, nil
	}

	matches, err := doublestar.Glob(os.DirFS(d.Root), "**/"+name+".json")
	if err != nil {
		return "", fmt.Errorf("search %s artifact: %w", name, err)
	}
	// Hardhat writes <Name>.dbg.json next to every artifact.
	candidates := matches[:0]
	for _, m := range matches {
		if !strings.HasSuffix(m, ".dbg.json") && !strings.HasPrefix(m, "build-info/") {
			candidates = append(candidates, m)
		}
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, name, d.Root)
	case 1:
		return filepath.Join(d.Root, filepath.FromSlash(candidates[0])), nil
	default:
		return "", fmt.Errorf("ambiguous %s artifact in %s: %s", name, d.Root, strings.Join(candidates, ", "))
	}
}
