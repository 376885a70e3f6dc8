package step

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/vk/quarry/internal/ctxlog"
)

// MkdirStep creates a directory and all missing parents.
type MkdirStep struct {
	Path string
}

func (s *MkdirStep) Description() string { return fmt.Sprintf("mkdir -p %s", s.Path) }

func (s *MkdirStep) Execute(ctx context.Context) error {
	return os.MkdirAll(s.Path, 0o755)
}

// CommandStep runs a user-supplied shell-style command line. The command is
// split with shell word rules (quoting and escapes honored) rather than
// handed to a shell, so rule commands behave identically across platforms.
type CommandStep struct {
	// Cmd is the command line, e.g. `cp "src file.txt" out.txt`.
	Cmd string
	// Dir is the working directory. Empty means the process working dir.
	Dir string
	// Env is extra environment in KEY=VALUE form, appended to the inherited
	// environment in declared order.
	Env []string
}

func (s *CommandStep) Description() string { return s.Cmd }

func (s *CommandStep) Execute(ctx context.Context) error {
	args, err := shellwords.Parse(s.Cmd)
	if err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if len(args) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%w: %s", err, out)
		}
		return err
	}
	if len(out) > 0 {
		ctxlog.FromContext(ctx).Debug("Command produced output.", "cmd", args[0], "output", string(out))
	}
	return nil
}

// CopyFileStep copies one file, creating the destination directory.
type CopyFileStep struct {
	From string
	To   string
}

func (s *CopyFileStep) Description() string { return fmt.Sprintf("cp %s %s", s.From, s.To) }

func (s *CopyFileStep) Execute(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.To), 0o755); err != nil {
		return err
	}
	src, err := os.Open(s.From)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(s.To)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// WriteFileStep writes a byte slice to a path, creating parent directories.
type WriteFileStep struct {
	Path string
	Data []byte
}

func (s *WriteFileStep) Description() string { return fmt.Sprintf("write %s", s.Path) }

func (s *WriteFileStep) Execute(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, s.Data, 0o644)
}

// ZipStep produces a zip archive from a set of on-disk entries plus optional
// in-memory entries (used for generated manifests). Entries are written in
// sorted archive-name order and with zeroed timestamps so the same inputs
// produce a byte-identical archive.
type ZipStep struct {
	// Out is the archive path to create.
	Out string
	// Files maps archive name to source path on disk.
	Files map[string]string
	// Extra maps archive name to literal content.
	Extra map[string][]byte
}

func (s *ZipStep) Description() string { return fmt.Sprintf("zip %s", s.Out) }

func (s *ZipStep) Execute(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.Out), 0o755); err != nil {
		return err
	}
	out, err := os.Create(s.Out)
	if err != nil {
		return err
	}
	defer out.Close()

	w := zip.NewWriter(out)

	seen := make(map[string]bool, len(s.Files)+len(s.Extra))
	for name := range s.Files {
		seen[name] = true
	}
	for name := range s.Extra {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return err
		}
		if data, ok := s.Extra[name]; ok {
			if _, err := entry.Write(data); err != nil {
				return err
			}
			continue
		}
		src, err := os.Open(s.Files[name])
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, src)
		src.Close()
		if err != nil {
			return err
		}
	}

	if err := w.Close(); err != nil {
		return err
	}
	return out.Close()
}
