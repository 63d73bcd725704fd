package contracts

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/*.json
var abiFiles embed.FS

// Names lists every contract known to the package.
func Names() []string {
	entries, err := abiFiles.ReadDir("abi")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}

// ABI returns the compacted ABI JSON of the named contract.
func ABI(name string) (string, error) {
	raw, err := abiFiles.ReadFile(path.Join("abi", name+".json"))
	if err != nil {
		return "", fmt.Errorf("未知的合约 %s: %w", name, err)
	}
	return web3.CompactABI(string(raw)), nil
}

// MustABI is like ABI but panics for unknown contracts.
func MustABI(name string) string {
	out, err := ABI(name)
	if err != nil {
		panic(err)
	}
	return out
}

// Artifact returns the embedded artifact of the named contract. The bytecode
// is empty; ledgers executing native programs do not need it.
func Artifact(name string) (web3.Artifact, error) {
	abiJSON, err := ABI(name)
	if err != nil {
		return web3.Artifact{}, err
	}
	return web3.Artifact{Name: name, ABI: abiJSON}, nil
}

// Artifacts returns the embedded artifacts of every contract.
func Artifacts() map[string]web3.Artifact {
	out := make(map[string]web3.Artifact)
	for _, name := range Names() {
		if artifact, err := Artifact(name); err == nil {
			out[name] = artifact
		}
	}
	return out
}

type combinedJSON struct {
	Contracts map[string]struct {
		ABI json.RawMessage `json:"abi"`
		Bin string          `json:"bin"`
	} `json:"contracts"`
}

// LoadArtifacts reads a solc --combined-json abi,bin file and returns the
// compiled artifacts keyed by contract name. Contracts missing from the file
// keep their embedded ABI and no bytecode.
func LoadArtifacts(file string) (map[string]web3.Artifact, error) {
	out := Artifacts()
	if strings.TrimSpace(file) == "" {
		return out, nil
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("读取合约编译产物失败: %w", err)
	}
	var combined combinedJSON
	if err := json.Unmarshal(raw, &combined); err != nil {
		return nil, fmt.Errorf("解析合约编译产物失败: %w", err)
	}
	for key, compiled := range combined.Contracts {
		name := key
		if idx := strings.LastIndex(key, ":"); idx >= 0 {
			name = key[idx+1:]
		}
		artifact := out[name]
		artifact.Name = name
		if abiJSON := decodeABI(compiled.ABI); abiJSON != "" {
			artifact.ABI = abiJSON
		}
		artifact.Bytecode = common.FromHex(compiled.Bin)
		out[name] = artifact
	}
	return out, nil
}

// decodeABI accepts both the array form of newer solc releases and the
// string-encoded form of older ones.
func decodeABI(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		return web3.CompactABI(encoded)
	}
	return web3.CompactABI(string(raw))
}
