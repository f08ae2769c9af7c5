// Package clip_archive keeps a local copy of every finished clip.
package clip_archive

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

type Archive struct {
	fileSys afero.Fs
	dir     string
}

func New(fileSys afero.Fs, dir string) (*Archive, error) {
	if fileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if dir == "" {
		return nil, fmt.Errorf("dir is empty")
	}

	if err := fileSys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	return &Archive{fileSys: fileSys, dir: dir}, nil
}

// Save writes clip as <dir>/clip_<id>.wav and returns the path. An empty id
// gets a random one.
func (a *Archive) Save(id string, clip []byte) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	path := filepath.Join(a.dir, "clip_"+id+".wav")
	if err := afero.WriteFile(a.fileSys, path, clip, 0o644); err != nil {
		return "", fmt.Errorf("write clip: %w", err)
	}

	return path, nil
}
