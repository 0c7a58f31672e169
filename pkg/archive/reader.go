package archive

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goopsie/ba2FileTools/pkg/ba2"
)

// Archive is a parsed texture archive.
type Archive struct {
	Header   Header
	Path     string
	Textures []*ba2.TextureEntry

	// set when the archive was read from memory rather than a file
	data io.ReaderAt
	size int64
}

// Open parses the archive at path. The file is closed before returning;
// use OpenSource to read payloads.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	a, err := Read(f)
	if err != nil {
		return nil, err
	}
	a.Path = path
	a.data, a.size = nil, 0
	return a, nil
}

// Read parses the header, record table and name table from r. When r is
// also an io.ReaderAt, as *bytes.Reader is, OpenSource serves payloads
// from it.
func Read(r io.ReadSeeker) (*Archive, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var buf [MaxHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:BaseHeaderSize]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	a := &Archive{}
	a.Header.DecodeFrom(buf[:BaseHeaderSize])
	if err := a.Header.Validate(); err != nil {
		return nil, err
	}
	if extra := a.Header.Size() - BaseHeaderSize; extra > 0 {
		if _, err := io.ReadFull(r, buf[BaseHeaderSize:a.Header.Size()]); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		a.Header.DecodeFrom(buf[:a.Header.Size()])
	}

	compression := a.Header.Compression()
	br := bufio.NewReader(r)
	a.Textures = make([]*ba2.TextureEntry, 0, a.Header.FileCount)
	for i := uint32(0); i < a.Header.FileCount; i++ {
		e, err := ba2.ReadTextureEntry(br, compression, nil)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		a.Textures = append(a.Textures, e)
	}

	if a.Header.NameTableOffset != 0 {
		if err := a.readNames(r); err != nil {
			return nil, err
		}
	}

	if ra, ok := r.(io.ReaderAt); ok {
		end, err := r.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, err
		}
		a.data, a.size = ra, end
	}
	return a, nil
}

// readNames assigns each texture its path from the name table.
func (a *Archive) readNames(r io.ReadSeeker) error {
	if _, err := r.Seek(int64(a.Header.NameTableOffset), io.SeekStart); err != nil {
		return err
	}
	br := bufio.NewReader(r)
	for i, e := range a.Textures {
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nameTableError(i, err)
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(br, name); err != nil {
			return nameTableError(i, err)
		}
		e.SetName(string(name))
	}
	return nil
}

func nameTableError(i int, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: entry %d: unexpected EOF", ErrInvalidNameTable, i)
	}
	return err
}

type sectionSource struct {
	*io.SectionReader
}

func (sectionSource) Close() error { return nil }

// OpenSource returns a new, independent stream over the archive bytes for
// reading chunk payloads. Each concurrent extraction needs its own.
func (a *Archive) OpenSource() (io.ReadSeekCloser, error) {
	if a.Path != "" {
		f, err := os.Open(a.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	if a.data != nil {
		return sectionSource{io.NewSectionReader(a.data, 0, a.size)}, nil
	}
	return nil, errors.New("archive has no backing file")
}

// Entries returns the texture records as generic entries.
func (a *Archive) Entries() []ba2.Entry {
	entries := make([]ba2.Entry, len(a.Textures))
	for i, e := range a.Textures {
		entries[i] = e
	}
	return entries
}

// Find returns the texture with the given path. Matching ignores case and
// treats forward and back slashes alike.
func (a *Archive) Find(path string) (*ba2.TextureEntry, bool) {
	want := normalizePath(path)
	for _, e := range a.Textures {
		if normalizePath(e.Path()) == want {
			return e, true
		}
	}
	return nil, false
}

func normalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
}
