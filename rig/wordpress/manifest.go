package wordpress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// metafile is the part of the esbuild metafile needed to write manifests.
type metafile struct {
	Outputs map[string]metafileOutput `json:"outputs"`
}

type metafileOutput struct {
	EntryPoint string `json:"entryPoint,omitempty"`
	CSSBundle  string `json:"cssBundle,omitempty"`
	Imports    []struct {
		Path     string `json:"path"`
		Kind     string `json:"kind"`
		External bool   `json:"external,omitempty"`
	} `json:"imports"`
	Inputs map[string]struct {
		BytesInOutput int `json:"bytesInOutput"`
	} `json:"inputs"`
}

// A ManifestChunk describes one emitted file in the manifest, keyed by its source in Manifest.
type ManifestChunk struct {
	File    string   `json:"file"`
	Src     string   `json:"src,omitempty"`
	IsEntry bool     `json:"isEntry,omitempty"`
	CSS     []string `json:"css,omitempty"`
	Imports []string `json:"imports,omitempty"`
}

// A Manifest maps entry points and shared chunks to the files emitted for them.  Paths are relative to the output
// directory and use forward slashes.
type Manifest map[string]ManifestChunk

// paths in a metafile are relative to the working directory.
func outputRel(outDir, p string) string {
	rel, err := filepath.Rel(filepath.Clean(outDir), filepath.Clean(filepath.FromSlash(p)))
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// BuildManifest converts an esbuild metafile into a Manifest for a build written to outDir.  outDir must be relative
// to the same working directory as the metafile.
func BuildManifest(meta string, outDir string) (Manifest, error) {
	var mf metafile
	if err := json.Unmarshal([]byte(meta), &mf); err != nil {
		return nil, fmt.Errorf(`%w while parsing metafile`, err)
	}
	ret := make(Manifest)
	keys := make(map[string]string, len(mf.Outputs)) // output path -> manifest key
	for out, info := range mf.Outputs {
		if strings.HasSuffix(out, `.map`) {
			continue
		}
		if info.EntryPoint != `` {
			keys[out] = info.EntryPoint
		} else {
			keys[out] = `_` + filepath.Base(out)
		}
	}
	for out, info := range mf.Outputs {
		key, ok := keys[out]
		if !ok {
			continue
		}
		if strings.HasSuffix(out, `.css`) && info.EntryPoint == `` {
			continue // listed through the chunk that owns it
		}
		chunk := ManifestChunk{File: outputRel(outDir, out)}
		if info.EntryPoint != `` {
			chunk.Src, chunk.IsEntry = info.EntryPoint, true
		}
		if info.CSSBundle != `` {
			chunk.CSS = append(chunk.CSS, outputRel(outDir, info.CSSBundle))
		}
		for _, imp := range info.Imports {
			if imp.External || imp.Kind != `import-statement` {
				continue
			}
			if k, ok := keys[imp.Path]; ok {
				chunk.Imports = append(chunk.Imports, k)
			}
		}
		sort.Strings(chunk.Imports)
		ret[key] = chunk
	}
	return ret, nil
}

// BuildSSRManifest converts an esbuild metafile into a mapping from each source module to the files that contain it.
func BuildSSRManifest(meta string, outDir string) (map[string][]string, error) {
	var mf metafile
	if err := json.Unmarshal([]byte(meta), &mf); err != nil {
		return nil, fmt.Errorf(`%w while parsing metafile`, err)
	}
	ret := make(map[string][]string)
	for out, info := range mf.Outputs {
		if strings.HasSuffix(out, `.map`) {
			continue
		}
		for in := range info.Inputs {
			ret[in] = append(ret[in], outputRel(outDir, out))
		}
	}
	for _, files := range ret {
		sort.Strings(files)
	}
	return ret, nil
}

// writeJSON writes v as indented JSON to path, creating parent directories.
func writeJSON(path string, v any) error {
	js, err := json.MarshalIndent(v, ``, `  `)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, js, 0o644)
}
