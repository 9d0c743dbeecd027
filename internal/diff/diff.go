// Package diff turns an original document and a proposed replacement into a
// structured unified diff, and highlights its lines for display.
package diff

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// File represents a single file in a diff with its parsed fragments.
type File struct {
	OldName      string
	NewName      string
	IsNew        bool
	IsDeleted    bool
	IsRenamed    bool
	IsBinary     bool
	Fragments    []*gitdiff.TextFragment
	AddedLines   int
	DeletedLines int
}

// Name returns the display name for the file.
func (f *File) Name() string {
	if f.IsRenamed {
		return fmt.Sprintf("%s → %s", f.OldName, f.NewName)
	}
	if f.IsNew {
		return f.NewName
	}
	if f.IsDeleted {
		return f.OldName
	}
	if f.NewName != "" {
		return f.NewName
	}
	return f.OldName
}

// Changed reports whether the file has any added or deleted lines.
func (f *File) Changed() bool {
	return f.AddedLines > 0 || f.DeletedLines > 0
}

// DiffSet holds the parsed diff for all files.
type DiffSet struct {
	Files []*File
	Raw   string // the raw unified diff text
}

// Stats returns aggregate statistics.
func (ds *DiffSet) Stats() (files, added, deleted int) {
	files = len(ds.Files)
	for _, f := range ds.Files {
		added += f.AddedLines
		deleted += f.DeletedLines
	}
	return
}

// Empty reports whether the set carries no changes at all.
func (ds *DiffSet) Empty() bool {
	_, added, deleted := ds.Stats()
	return added == 0 && deleted == 0
}

// Parse reads a unified diff string and returns a DiffSet.
func Parse(raw string) (*DiffSet, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	ds := &DiffSet{Raw: raw}
	for _, f := range parsed {
		df := &File{
			OldName:   f.OldName,
			NewName:   f.NewName,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDelete,
			IsRenamed: f.IsRename,
			IsBinary:  f.IsBinary,
		}

		for _, frag := range f.TextFragments {
			df.Fragments = append(df.Fragments, frag)
			df.AddedLines += int(frag.LinesAdded)
			df.DeletedLines += int(frag.LinesDeleted)
		}

		ds.Files = append(ds.Files, df)
	}

	return ds, nil
}
