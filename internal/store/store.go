// Package store is the persistence layer for vectors: one text file per
// vector under a directory, line 0 the decimal size, lines 1..size the
// decimal elements. Every operation here assumes the caller already holds
// the matching lockreg entry's mutex; this package does no locking of its
// own.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	natomic "github.com/natefinch/atomic"
)

const fileExt = ".txt"

// Sentinel errors distinguishing the different failure kinds.
var (
	// ErrNotFound means no vector file exists under that name.
	ErrNotFound = errors.New("store: vector not found")
	// ErrOutOfRange means pos was outside [0, size).
	ErrOutOfRange = errors.New("store: position out of range")
	// ErrInvalidSize means a requested size was < 1.
	ErrInvalidSize = errors.New("store: size must be >= 1")
	// ErrCorrupt means the on-disk file did not match the expected format.
	ErrCorrupt = errors.New("store: corrupt vector file")
)

// Store roots all vector files under Dir.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir, creating dir if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating %s: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Dir, name+fileExt)
}

// ExistingNames scans Dir and returns the name of every <name>.txt file,
// ignoring directories and any file with a different extension, matching
// the startup scan. File contents are not checked.
func (s *Store) ExistingNames() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("store: scanning %s: %w", s.Dir, err)
	}
	var names []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		if !strings.HasSuffix(ent.Name(), fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(ent.Name(), fileExt))
	}
	return names, nil
}

func renderVector(size int, fill func(i int) int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", size)
	for i := 0; i < size; i++ {
		fmt.Fprintf(&b, "%d\n", fill(i))
	}
	return []byte(b.String())
}

// CreateFile writes a brand-new vector file of the given size, all elements
// initialized to zero. Fails with ErrInvalidSize if size < 1.
func (s *Store) CreateFile(name string, size int) error {
	if size < 1 {
		return ErrInvalidSize
	}
	data := renderVector(size, func(int) int { return 0 })
	if err := natomic.WriteFile(s.path(name), strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("store: creating %s: %w", name, err)
	}
	return nil
}

// ReadSize opens the vector file and parses its size header. Returns
// ErrNotFound if the file is missing, ErrCorrupt if the header can't be
// parsed.
func (s *Store) ReadSize(name string) (int, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("store: opening %s: %w", name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, ErrCorrupt
	}
	size, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return 0, ErrCorrupt
	}
	return size, nil
}

// ReadAt returns the element at the 0-based index pos. Returns ErrNotFound
// if the vector doesn't exist and ErrOutOfRange if pos is outside the
// vector's declared size.
func (s *Store) ReadAt(name string, pos int) (int, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("store: opening %s: %w", name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, ErrCorrupt
	}
	size, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return 0, ErrCorrupt
	}
	if pos < 0 || pos >= size {
		return 0, ErrOutOfRange
	}

	idx := -1
	for sc.Scan() {
		idx++
		if idx == pos {
			v, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
			if err != nil {
				return 0, ErrCorrupt
			}
			return v, nil
		}
	}
	return 0, ErrOutOfRange
}

// WriteAt rewrites the vector file with the element at pos set to value,
// via an atomic temp-file-and-rename (github.com/natefinch/atomic), so a
// reader never observes a partially written file. Returns ErrNotFound if
// the vector doesn't exist and ErrOutOfRange if pos is outside the vector's
// declared size; in the out-of-range case no file is touched.
func (s *Store) WriteAt(name string, pos int, value int) error {
	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: opening %s: %w", name, err)
	}

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		f.Close()
		return ErrCorrupt
	}
	size, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		f.Close()
		return ErrCorrupt
	}
	if pos < 0 || pos >= size {
		f.Close()
		return ErrOutOfRange
	}

	elems := make([]int, size)
	idx := 0
	for sc.Scan() {
		if idx >= size {
			break
		}
		v, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err != nil {
			f.Close()
			return ErrCorrupt
		}
		elems[idx] = v
		idx++
	}
	f.Close()

	elems[pos] = value
	data := renderVector(size, func(i int) int { return elems[i] })
	if err := natomic.WriteFile(s.path(name), strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("store: writing %s: %w", name, err)
	}
	return nil
}

// Remove deletes the vector file. Returns ErrNotFound if it doesn't exist.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: removing %s: %w", name, err)
	}
	return nil
}
