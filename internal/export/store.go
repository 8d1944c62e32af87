package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Kind is the row type a table holds.
type Kind string

const (
	KindAsm      Kind = "asm"
	KindPcode    Kind = "pcode"
	KindSegments Kind = "segments"
)

var (
	ErrTableExists   = errors.New("table already exists")
	ErrTableNotFound = errors.New("table not found")
	ErrKindMismatch  = errors.New("table holds another kind of rows")
)

// InvalidTableNameError rejects names that are not a letter followed by
// letters, digits or underscores.
type InvalidTableNameError struct {
	Name string
}

func (e *InvalidTableNameError) Error() string {
	return fmt.Sprintf("invalid table name %q", e.Name)
}

// ValidTableName reports whether name can name a table: a letter followed
// by letters, digits or underscores, Unicode included.
func ValidTableName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 && !unicode.IsLetter(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// TableInfo describes a stored table.
type TableInfo struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Rows int    `json:"rows"`
}

var (
	metaPrefix = []byte("t/")
	rowPrefix  = []byte("r/")
)

func metaKey(name string) []byte {
	return append(append([]byte(nil), metaPrefix...), name...)
}

func rowKey(name string, i int) []byte {
	return fmt.Appendf(append([]byte(nil), rowPrefix...), "%s/%016x", name, i)
}

func rowsPrefix(name string) []byte {
	return fmt.Appendf(append([]byte(nil), rowPrefix...), "%s/", name)
}

// Store keeps tables of rows in LevelDB.
type Store struct {
	db *leveldb.DB
}

// Open opens or creates a store at path. An empty path keeps the store in memory.
func Open(path string) (*Store, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open table store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Info returns the metadata of table name.
func (s *Store) Info(name string) (TableInfo, error) {
	data, err := s.db.Get(metaKey(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return TableInfo{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if err != nil {
		return TableInfo{}, fmt.Errorf("read table %s: %w", name, err)
	}
	var info TableInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return TableInfo{}, fmt.Errorf("decode table %s: %w", name, err)
	}
	return info, nil
}

// Tables lists every table in name order.
func (s *Store) Tables() ([]TableInfo, error) {
	iter := s.db.NewIterator(util.BytesPrefix(metaPrefix), nil)
	defer iter.Release()

	var out []TableInfo
	for iter.Next() {
		var info TableInfo
		if err := json.Unmarshal(iter.Value(), &info); err != nil {
			return nil, fmt.Errorf("decode table %s: %w", iter.Key()[len(metaPrefix):], err)
		}
		out = append(out, info)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return out, nil
}

// Drop deletes a table and its rows.
func (s *Store) Drop(name string) error {
	if _, err := s.Info(name); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(util.BytesPrefix(rowsPrefix(name)), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	batch.Delete(metaKey(name))
	return s.db.Write(batch, nil)
}

// Write creates table name holding rows. Existing tables are never overwritten.
func Write[T any](s *Store, name string, kind Kind, rows []T) error {
	if !ValidTableName(name) {
		return &InvalidTableNameError{Name: name}
	}
	if _, err := s.Info(name); err == nil {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	} else if !errors.Is(err, ErrTableNotFound) {
		return err
	}

	batch := new(leveldb.Batch)
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row %d of %s: %w", i, name, err)
		}
		batch.Put(rowKey(name, i), data)
	}
	meta, err := json.Marshal(TableInfo{Name: name, Kind: kind, Rows: len(rows)})
	if err != nil {
		return err
	}
	batch.Put(metaKey(name), meta)

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("write table %s: %w", name, err)
	}
	slog.Debug("Table written", "table", name, "kind", kind, "rows", len(rows))
	return nil
}

// Read returns the rows of table name, which must hold kind.
func Read[T any](s *Store, name string, kind Kind) ([]T, error) {
	info, err := s.Info(name)
	if err != nil {
		return nil, err
	}
	if info.Kind != kind {
		return nil, fmt.Errorf("%w: %s holds %s, not %s", ErrKindMismatch, name, info.Kind, kind)
	}

	iter := s.db.NewIterator(util.BytesPrefix(rowsPrefix(name)), nil)
	defer iter.Release()

	out := make([]T, 0, info.Rows)
	for iter.Next() {
		var row T
		if err := json.Unmarshal(iter.Value(), &row); err != nil {
			return nil, fmt.Errorf("decode row of %s: %w", name, err)
		}
		out = append(out, row)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("read table %s: %w", name, err)
	}
	return out, nil
}

func (s *Store) WriteAsm(name string, rows []AsmRow) error {
	return Write(s, name, KindAsm, rows)
}

func (s *Store) WritePcode(name string, rows []PcodeRow) error {
	return Write(s, name, KindPcode, rows)
}

func (s *Store) WriteSegments(name string, rows []SegmentRow) error {
	return Write(s, name, KindSegments, rows)
}

func (s *Store) ReadAsm(name string) ([]AsmRow, error) {
	return Read[AsmRow](s, name, KindAsm)
}

func (s *Store) ReadPcode(name string) ([]PcodeRow, error) {
	return Read[PcodeRow](s, name, KindPcode)
}

func (s *Store) ReadSegments(name string) ([]SegmentRow, error) {
	return Read[SegmentRow](s, name, KindSegments)
}
