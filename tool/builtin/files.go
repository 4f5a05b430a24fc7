package builtin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hupe1980/reactmesh/tool"
)

// Files exposes file system tools confined to one directory tree. Every path a
// model passes is resolved relative to that directory and may not escape it,
// symlinks included.
//
// Files is safe for concurrent use. Close releases the directory handle; tools
// called afterwards fail.
type Files struct {
	root *os.Root
}

// OpenFiles opens dir as the root of the file tools.
func OpenFiles(dir string) (*Files, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open file tool root: %w", err)
	}

	return &Files{root: root}, nil
}

// Close releases the root directory.
func (f *Files) Close() error {
	return f.root.Close()
}

type pathArgs struct {
	Path string `json:"path" jsonschema:"path relative to the workspace root"`
}

type writeArgs struct {
	Path    string `json:"path" jsonschema:"path relative to the workspace root"`
	Content string `json:"content" jsonschema:"text to write"`
	Append  bool   `json:"append,omitempty" jsonschema:"append instead of overwriting"`
}

type transferArgs struct {
	Source      string `json:"source" jsonschema:"source path"`
	Destination string `json:"destination" jsonschema:"destination path"`
}

type listArgs struct {
	Path    string `json:"path,omitempty" jsonschema:"directory, defaults to the workspace root"`
	Pattern string `json:"pattern,omitempty" jsonschema:"glob the entry names must match, e.g. *.txt"`
}

type removeDirArgs struct {
	Path      string `json:"path" jsonschema:"directory to delete"`
	Recursive bool   `json:"recursive,omitempty" jsonschema:"delete the directory with its contents"`
}

type jsonWriteArgs struct {
	Path string `json:"path" jsonschema:"path relative to the workspace root"`
	Data any    `json:"data" jsonschema:"value to store"`
}

type csvReadArgs struct {
	Path   string `json:"path" jsonschema:"path relative to the workspace root"`
	Header bool   `json:"header,omitempty" jsonschema:"treat the first row as column names"`
}

type csvWriteArgs struct {
	Path string     `json:"path" jsonschema:"path relative to the workspace root"`
	Rows [][]string `json:"rows" jsonschema:"rows of cells"`
}

type joinArgs struct {
	Parts []string `json:"parts" jsonschema:"path segments"`
}

// Tools returns the file, dir, json, csv and path tools bound to the root.
func (f *Files) Tools() []tool.Tool {
	return []tool.Tool{
		typed("file.read", "Read a text file", func(_ context.Context, in pathArgs) (any, error) {
			data, err := f.root.ReadFile(rel(in.Path))
			if err != nil {
				return nil, err
			}

			return string(data), nil
		}),
		typed("file.write", "Write text to a file, creating it if needed", func(_ context.Context, in writeArgs) (any, error) {
			flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			if in.Append {
				flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
			}

			file, err := f.root.OpenFile(rel(in.Path), flag, 0o644)
			if err != nil {
				return nil, err
			}

			n, err := file.WriteString(in.Content)
			if cerr := file.Close(); err == nil {
				err = cerr
			}

			if err != nil {
				return nil, err
			}

			return fmt.Sprintf("wrote %d bytes to %s", n, in.Path), nil
		}),
		typed("file.exists", "Report whether a regular file exists", func(_ context.Context, in pathArgs) (any, error) {
			return f.exists(in.Path, false)
		}),
		typed("file.delete", "Delete a file", func(_ context.Context, in pathArgs) (any, error) {
			info, err := f.root.Stat(rel(in.Path))
			if err != nil {
				return nil, err
			}

			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory", in.Path)
			}

			if err := f.root.Remove(rel(in.Path)); err != nil {
				return nil, err
			}

			return "deleted " + in.Path, nil
		}),
		typed("file.size", "Size of a file in bytes", func(_ context.Context, in pathArgs) (any, error) {
			info, err := f.root.Stat(rel(in.Path))
			if err != nil {
				return nil, err
			}

			return info.Size(), nil
		}),
		typed("file.copy", "Copy a file", func(_ context.Context, in transferArgs) (any, error) {
			if err := f.copy(in.Source, in.Destination); err != nil {
				return nil, err
			}

			return fmt.Sprintf("copied %s to %s", in.Source, in.Destination), nil
		}),
		typed("file.move", "Move or rename a file", func(_ context.Context, in transferArgs) (any, error) {
			if err := f.root.Rename(rel(in.Source), rel(in.Destination)); err != nil {
				return nil, err
			}

			return fmt.Sprintf("moved %s to %s", in.Source, in.Destination), nil
		}),
		typed("dir.create", "Create a directory and any missing parents", func(_ context.Context, in pathArgs) (any, error) {
			if err := f.root.MkdirAll(rel(in.Path), 0o755); err != nil {
				return nil, err
			}

			return "created " + in.Path, nil
		}),
		typed("dir.exists", "Report whether a directory exists", func(_ context.Context, in pathArgs) (any, error) {
			return f.exists(in.Path, true)
		}),
		typed("dir.list", "List the entries of a directory; directories end with a slash", func(_ context.Context, in listArgs) (any, error) {
			return f.list(in.Path, in.Pattern)
		}),
		typed("dir.delete", "Delete a directory", func(_ context.Context, in removeDirArgs) (any, error) {
			name := rel(in.Path)
			if name == "." {
				return nil, errors.New("refusing to delete the workspace root")
			}

			remove := f.root.Remove
			if in.Recursive {
				remove = f.root.RemoveAll
			}

			if err := remove(name); err != nil {
				return nil, err
			}

			return "deleted " + in.Path, nil
		}),
		typed("json.read", "Read and decode a JSON file", func(_ context.Context, in pathArgs) (any, error) {
			data, err := f.root.ReadFile(rel(in.Path))
			if err != nil {
				return nil, err
			}

			var v any
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, fmt.Errorf("invalid JSON in %s: %w", in.Path, err)
			}

			return v, nil
		}),
		typed("json.write", "Encode a value as indented JSON and write it to a file", func(_ context.Context, in jsonWriteArgs) (any, error) {
			data, err := json.MarshalIndent(in.Data, "", "  ")
			if err != nil {
				return nil, err
			}

			if err := f.root.WriteFile(rel(in.Path), append(data, '\n'), 0o644); err != nil {
				return nil, err
			}

			return "wrote " + in.Path, nil
		}),
		typed("csv.read", "Read a CSV file as rows, or as records keyed by column when header is set", func(_ context.Context, in csvReadArgs) (any, error) {
			return f.readCSV(in.Path, in.Header)
		}),
		typed("csv.write", "Write rows to a CSV file", func(_ context.Context, in csvWriteArgs) (any, error) {
			if err := f.writeCSV(in.Path, in.Rows); err != nil {
				return nil, err
			}

			return fmt.Sprintf("wrote %d rows to %s", len(in.Rows), in.Path), nil
		}),
		typed("path.join", "Join path segments", func(_ context.Context, in joinArgs) (any, error) {
			return path.Join(in.Parts...), nil
		}),
		typed("path.basename", "Last element of a path", func(_ context.Context, in pathArgs) (any, error) {
			return path.Base(filepath.ToSlash(in.Path)), nil
		}),
		typed("path.dirname", "All but the last element of a path", func(_ context.Context, in pathArgs) (any, error) {
			return path.Dir(filepath.ToSlash(in.Path)), nil
		}),
	}
}

func (f *Files) exists(name string, dir bool) (bool, error) {
	info, err := f.root.Stat(rel(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return info.IsDir() == dir, nil
}

func (f *Files) copy(src, dst string) error {
	in, err := f.root.Open(rel(src))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := f.root.Create(rel(dst))
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}

func (f *Files) list(dir, pattern string) ([]string, error) {
	entries, err := fs.ReadDir(f.root.FS(), filepath.ToSlash(rel(dir)))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if pattern != "" {
			ok, err := path.Match(pattern, e.Name())
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", pattern, err)
			}

			if !ok {
				continue
			}
		}

		name := e.Name()
		if e.IsDir() {
			name += "/"
		}

		names = append(names, name)
	}

	slices.Sort(names)

	return names, nil
}

func (f *Files) readCSV(name string, header bool) (any, error) {
	file, err := f.root.Open(rel(name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid CSV in %s: %w", name, err)
	}

	if !header {
		return rows, nil
	}

	if len(rows) == 0 {
		return []map[string]string{}, nil
	}

	columns := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)

	for _, row := range rows[1:] {
		rec := make(map[string]string, len(columns))

		for i, col := range columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}

		records = append(records, rec)
	}

	return records, nil
}

func (f *Files) writeCSV(name string, rows [][]string) error {
	file, err := f.root.Create(rel(name))
	if err != nil {
		return err
	}

	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		_ = file.Close()
		return err
	}

	return file.Close()
}

// rel maps a model supplied path onto a name inside the root. Leading slashes
// are dropped so "/notes.txt" and "notes.txt" name the same file.
func rel(name string) string {
	name = strings.TrimLeft(filepath.ToSlash(strings.TrimSpace(name)), "/")
	if name == "" {
		return "."
	}

	return filepath.FromSlash(path.Clean(name))
}
