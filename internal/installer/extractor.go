package installer

import (
	"archive/tar"    // For reading .tar archives
	"archive/zip"    // For reading .zip archives
	"bufio"          // For peeking at the archive magic bytes
	"bytes"          // For comparing magic bytes
	"compress/bzip2" // For reading .bz2 compressed data
	"compress/gzip"  // For reading .gz compressed data
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip" // For reading .7z archives
	"github.com/xi2/xz"          // For reading .xz compressed data

	"cli-auth/internal/logger"
)

// archiveFormat is the container format detected from the leading bytes of a file.
// The downloaded installer has no meaningful file name, so extensions cannot be trusted.
type archiveFormat string

const (
	formatGzipTar  archiveFormat = "tar.gz"
	formatBzip2Tar archiveFormat = "tar.bz2"
	formatXzTar    archiveFormat = "tar.xz"
	formatTar      archiveFormat = "tar"
	formatZip      archiveFormat = "zip"
	formatSevenZip archiveFormat = "7z"
	formatUnknown  archiveFormat = ""
)

var (
	magicGzip     = []byte{0x1f, 0x8b}
	magicBzip2    = []byte("BZh")
	magicXz       = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZip      = []byte("PK\x03\x04")
	magicSevenZip = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
	magicUstar    = []byte("ustar")
)

// ustarOffset is where the "ustar" magic lives inside a tar header block.
const ustarOffset = 257

// errLayout is returned when an archive does not hold exactly one top-level directory.
var errLayout = errors.New("archive must contain exactly one top-level directory")

// detectFormat identifies the archive format from its first bytes.
func detectFormat(header []byte) archiveFormat {
	switch {
	case bytes.HasPrefix(header, magicGzip):
		return formatGzipTar
	case bytes.HasPrefix(header, magicBzip2):
		return formatBzip2Tar
	case bytes.HasPrefix(header, magicXz):
		return formatXzTar
	case bytes.HasPrefix(header, magicZip):
		return formatZip
	case bytes.HasPrefix(header, magicSevenZip):
		return formatSevenZip
	case len(header) >= ustarOffset+len(magicUstar) &&
		bytes.Equal(header[ustarOffset:ustarOffset+len(magicUstar)], magicUstar):
		return formatTar
	default:
		return formatUnknown
	}
}

// ExtractArchive extracts src into dest and returns the path of the single top-level
// directory the archive holds.
func ExtractArchive(src, dest string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	header, _ := bufio.NewReader(f).Peek(ustarOffset + len(magicUstar))
	f.Close()

	format := detectFormat(header)
	logger.Debug("[DEBUG] %s detected as %q\n", src, format)

	var top topLevel
	switch format {
	case formatGzipTar, formatBzip2Tar, formatXzTar, formatTar:
		err = extractTarArchive(src, dest, format, &top)
	case formatZip:
		err = extractZip(src, dest, &top)
	case formatSevenZip:
		err = extract7z(src, dest, &top)
	default:
		return "", fmt.Errorf("unsupported archive format: %s", src)
	}
	if err != nil {
		return "", err
	}

	name, err := top.single()
	if err != nil {
		return "", err
	}
	root := filepath.Join(dest, name)
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q is a file", errLayout, name)
	}
	return root, nil
}

// topLevel collects the distinct first path components of archive entries.
type topLevel struct {
	names []string
}

func (t *topLevel) add(entry string) {
	entry = strings.TrimPrefix(filepath.ToSlash(entry), "./")
	first, _, _ := strings.Cut(entry, "/")
	if first == "" || first == "." {
		return
	}
	for _, n := range t.names {
		if n == first {
			return
		}
	}
	t.names = append(t.names, first)
}

func (t *topLevel) single() (string, error) {
	if len(t.names) != 1 {
		return "", fmt.Errorf("%w: found %d entries (%s)", errLayout, len(t.names), strings.Join(t.names, ", "))
	}
	return t.names[0], nil
}

// safeJoin resolves an archive entry below dest and refuses entries that escape it.
func safeJoin(dest, name string) (string, error) {
	dest = filepath.Clean(dest)
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}
	return target, nil
}

// writeEntry copies one regular file out of an archive.
func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if mode.Perm() == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm()|0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// extractTarArchive handles tar and compressed tar variants
func extractTarArchive(src, dest string, format archiveFormat, top *topLevel) error {
	logger.Debug("[DEBUG] uncompressing %s to %s\n", src, dest)
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	var reader io.Reader = f
	switch format {
	case formatGzipTar:
		gr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gr.Close()
		reader = gr
	case formatBzip2Tar:
		reader = bzip2.NewReader(f)
	case formatXzTar:
		xzr, err := xz.NewReader(f, 0)
		if err != nil {
			return err
		}
		reader = xzr
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		top.add(hdr.Name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			// links and devices are never part of an installer package
			logger.Debug("[DEBUG] skipping tar entry %s (type %c)\n", hdr.Name, hdr.Typeflag)
		}
	}
}

// extractZip extracts a .zip archive
func extractZip(src, dest string, top *topLevel) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		top.add(f.Name)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// extract7z handles .7z extraction using the sevenzip library
func extract7z(src, dest string, top *topLevel) error {
	r, err := sevenzip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		top.add(f.Name)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
