package manifest

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"mirrordl/internal/downloader/core"
)

// FileSource reads a manifest from a local YAML or JSON document:
//
//	mirrors:
//	  - https://cdn-a.example/game/
//	files:
//	  - path: Client/Binaries/game.exe
//	    digest: 9e107d9d372bb6826bd81d3542a419d6
//	    size: 1048576
//
// A saved remote index (a "resource" list of dest/md5/size objects) is
// accepted too, in which case mirrors must come from the document or from
// ExtraMirrors.
type FileSource struct {
	Path         string
	ExtraMirrors []string
}

type fileDocument struct {
	Mirrors  []string `yaml:"mirrors"`
	Files    []record `yaml:"files"`
	Resource []struct {
		Dest string  `yaml:"dest"`
		MD5  string  `yaml:"md5"`
		Size *uint64 `yaml:"size"`
	} `yaml:"resource"`
}

// NewFileSource returns a source for path.
func NewFileSource(path string, extraMirrors ...string) *FileSource {
	return &FileSource{Path: path, ExtraMirrors: extraMirrors}
}

// Load parses the document. JSON input is handled by the YAML decoder.
func (s *FileSource) Load(ctx context.Context) (*Manifest, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, invalidManifest("FileSource.Load", "failed to read manifest file", err).
			WithField("path", s.Path)
	}
	return parseFileDocument(data, s.ExtraMirrors)
}

func parseFileDocument(data []byte, extraMirrors []string) (*Manifest, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalidManifest("FileSource.Load", "failed to parse manifest file", err)
	}

	records := doc.Files
	if len(records) == 0 {
		for _, res := range doc.Resource {
			records = append(records, record{Path: res.Dest, Digest: res.MD5, Size: res.Size})
		}
	}

	entries, err := buildEntries("FileSource.Load", records)
	if err != nil {
		return nil, err
	}

	mirrors := core.NewMirrorSet(append(doc.Mirrors, extraMirrors...)...)
	if len(mirrors) == 0 {
		return nil, invalidManifest("FileSource.Load", "manifest lists no mirrors", nil)
	}

	return &Manifest{Entries: entries, Mirrors: mirrors}, nil
}
