package collection

import (
	"sort"
	"strings"

	"github.com/i5heu/ouroboros-keep/pkg/manifest"
)

// TreeEntry is one row of a directory listing. Directory rows have
// IsDir set and no size.
type TreeEntry struct { // A
	Dir   string
	Name  string
	Size  int64
	IsDir bool
}

// Path joins Dir and Name.
func (e TreeEntry) Path() string { // A
	return manifest.JoinPath(e.Dir, e.Name)
}

type dirKey struct {
	parent string
	name   string
}

// FilesTree lists the collection depth first starting at ".": each
// subdirectory, in name order, is followed by its own contents, and the
// files of a directory come after its subdirectories. Directories that
// hold no files themselves but have descendants are listed too. A file
// name containing "/" places the file in the named subdirectory.
func (c *Collection) FilesTree() []TreeEntry { // A
	files := splitFileNames(c.Files())
	if len(files) == 0 {
		return nil
	}

	tree := make(map[dirKey][]manifest.File)
	var order []dirKey
	for _, f := range files {
		parent, name := manifest.SplitPath(f.Stream)
		k := dirKey{parent: parent, name: name}
		if _, ok := tree[k]; !ok {
			order = append(order, k)
		}
		tree[k] = append(tree[k], f)
	}
	for _, k := range order {
		parent, name := manifest.SplitPath(k.parent)
		d := dirKey{parent: parent, name: name}
		for {
			if _, ok := tree[d]; ok {
				break
			}
			tree[d] = nil
			parent, name = manifest.SplitPath(d.parent)
			d = dirKey{parent: parent, name: name}
		}
	}

	children := make(map[string][]string)
	for k := range tree {
		if k.name == "." {
			continue
		}
		children[k.parent] = append(children[k.parent], k.name)
	}
	for _, names := range children {
		sort.Strings(names)
	}

	var out []TreeEntry
	var walk func(dir string)
	walk = func(dir string) {
		for _, name := range children[dir] {
			out = append(out, TreeEntry{Dir: dir, Name: name, IsDir: true})
			walk(manifest.JoinPath(dir, name))
		}
		parent, name := manifest.SplitPath(dir)
		for _, f := range tree[dirKey{parent: parent, name: name}] {
			out = append(out, TreeEntry{Dir: f.Stream, Name: f.Name, Size: f.Size})
		}
	}
	walk(".")
	return out
}

// splitFileNames moves the directory part of each file name into its
// stream, merging files that end up with the same path.
func splitFileNames(files []manifest.File) []manifest.File {
	out := make([]manifest.File, 0, len(files))
	seen := make(map[string]int, len(files))
	for _, f := range files {
		if i := strings.LastIndexByte(f.Name, '/'); i > 0 && i < len(f.Name)-1 {
			f.Stream = manifest.JoinPath(f.Stream, f.Name[:i])
			f.Name = f.Name[i+1:]
		}
		full := manifest.JoinPath(f.Stream, f.Name)
		if j, ok := seen[full]; ok {
			out[j].Size += f.Size
			continue
		}
		seen[full] = len(out)
		out = append(out, f)
	}
	return out
}
