// Package sqlitestore implements storage.Backend on SQLite using the pure-Go
// modernc.org/sqlite driver.
//
// Every entity gets a table with an autoincrement _id, a _payload blob and one
// column per declared attribute. Filters, sorting and windowing are lowered to
// SQL.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"

	"github.com/andreyvit/docstore/storage"
)

const idColumn = storage.ReservedPrefix + "id"

type Options struct {
	Logger      *slog.Logger
	Verbose     bool
	BusyTimeout time.Duration
}

type Backend struct {
	db      *sql.DB
	logger  *slog.Logger
	verbose bool

	mu     sync.RWMutex
	tables map[string]*table
}

// table is what we know about an entity's SQL table.
type table struct {
	name    string
	columns []string // attribute columns, excluding _id and _payload
	kinds   map[string]storage.Kind
}

func Open(path string, opt Options) (*Backend, error) {
	if path == "" {
		return nil, errors.New("sqlitestore: path is empty")
	}
	busy := opt.BusyTimeout
	if busy == 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapDBError(err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, wrapDBError(err)
	}

	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		db:      db,
		logger:  logger,
		verbose: opt.Verbose,
		tables:  make(map[string]*table),
	}, nil
}

func (b *Backend) DB() *sql.DB {
	return b.db
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) trace(msg string, attrs ...slog.Attr) {
	if b.verbose {
		b.logger.LogAttrs(context.Background(), slog.Level(-8), msg, attrs...)
	}
}

// Prepare creates missing tables and adds missing columns. Existing columns
// are never dropped or retyped.
func (b *Backend) Prepare(entities []storage.Entity) error {
	ctx := context.Background()
	for _, e := range entities {
		create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s INTEGER PRIMARY KEY AUTOINCREMENT, %s BLOB)",
			quote(e.Name), quote(idColumn), quote(storage.PayloadAttribute))
		if _, err := b.db.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("sqlitestore: creating table %s: %w", e.Name, wrapDBError(err))
		}

		tab, err := b.loadTable(ctx, e.Name)
		if err != nil {
			return err
		}
		for _, a := range e.Attributes {
			if _, found := tab.kinds[a.Name]; found {
				continue
			}
			alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(e.Name), quote(a.Name), columnType(a.Kind))
			if _, err := b.db.ExecContext(ctx, alter); err != nil {
				return fmt.Errorf("sqlitestore: adding column %s.%s: %w", e.Name, a.Name, wrapDBError(err))
			}
			b.trace("sqlitestore: added column", slog.String("entity", e.Name), slog.String("column", a.Name), slog.String("kind", a.Kind.String()))
			tab.columns = append(tab.columns, a.Name)
			tab.kinds[a.Name] = a.Kind
		}

		b.mu.Lock()
		b.tables[e.Name] = tab
		b.mu.Unlock()
	}
	return nil
}

func (b *Backend) loadTable(ctx context.Context, name string) (*table, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?)", name)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: table info %s: %w", name, wrapDBError(err))
	}
	defer rows.Close()

	tab := &table{name: name, kinds: make(map[string]storage.Kind)}
	for rows.Next() {
		var col, typ string
		if err := rows.Scan(&col, &typ); err != nil {
			return nil, wrapDBError(err)
		}
		if col == idColumn || col == storage.PayloadAttribute {
			continue
		}
		tab.columns = append(tab.columns, col)
		tab.kinds[col] = columnKind(typ)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}
	return tab, nil
}

func (b *Backend) table(name string) (*table, error) {
	b.mu.RLock()
	tab := b.tables[name]
	b.mu.RUnlock()
	if tab == nil {
		return nil, fmt.Errorf("sqlitestore: %w %q", storage.ErrUnknownEntity, name)
	}
	return tab, nil
}

func (b *Backend) Entities() ([]string, error) {
	rows, err := b.db.Query("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapDBError(err)
		}
		names = append(names, name)
	}
	return names, wrapDBError(rows.Err())
}

// Begin grabs a dedicated connection. Write sessions use BEGIN IMMEDIATE so
// that competing writers wait on busy_timeout instead of failing on upgrade.
func (b *Backend) Begin(writable bool) (storage.Session, error) {
	ctx := context.Background()
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, wrapDBError(err)
	}
	stmt := "BEGIN"
	if writable {
		stmt = "BEGIN IMMEDIATE"
	}
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: begin: %w", wrapDBError(err))
	}
	return &session{
		b:        b,
		ctx:      ctx,
		conn:     conn,
		writable: writable,
	}, nil
}

type session struct {
	b        *Backend
	ctx      context.Context
	conn     *sql.Conn
	writable bool
	changed  bool
	closed   bool
}

func (s *session) Writable() bool { return s.writable }

func (s *session) table(entity string) (*table, error) {
	if s.closed {
		return nil, storage.ErrSessionClosed
	}
	return s.b.table(entity)
}

func (s *session) writableTable(entity string) (*table, error) {
	tab, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	if !s.writable {
		return nil, storage.ErrNotWritable
	}
	return tab, nil
}

func (s *session) Count(req *storage.Request) (int, error) {
	tab, err := s.table(req.Entity)
	if err != nil {
		return 0, err
	}
	q, args, err := buildSelect(tab, req, []string{quote(idColumn)})
	if err != nil {
		return 0, err
	}
	q = "SELECT COUNT(*) FROM (" + q + ")"
	s.b.trace("sqlitestore: COUNT", slog.String("sql", q))

	var n int
	if err := s.conn.QueryRowContext(s.ctx, q, args...).Scan(&n); err != nil {
		return 0, wrapDBError(err)
	}
	return n, nil
}

func (s *session) Fetch(req *storage.Request) ([]*storage.Record, error) {
	tab, err := s.table(req.Entity)
	if err != nil {
		return nil, err
	}
	return s.fetch(tab, req)
}

func (s *session) fetch(tab *table, req *storage.Request) ([]*storage.Record, error) {
	var cols []string
	if req.Result == storage.ResultIDs {
		cols = []string{idColumn}
	} else {
		cols = append([]string{idColumn, storage.PayloadAttribute}, tab.columns...)
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	q, args, err := buildSelect(tab, req, quoted)
	if err != nil {
		return nil, err
	}
	s.b.trace("sqlitestore: SELECT", slog.String("sql", q))

	rows, err := s.conn.QueryContext(s.ctx, q, args...)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	var records []*storage.Record
	for rows.Next() {
		clear(raw)
		if err := rows.Scan(dest...); err != nil {
			return nil, wrapDBError(err)
		}
		rec, err := decodeRow(tab, cols, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}
	return records, nil
}

func (s *session) Delete(req *storage.Request) ([]storage.RecordID, error) {
	tab, err := s.writableTable(req.Entity)
	if err != nil {
		return nil, err
	}
	idReq := *req
	idReq.Result = storage.ResultIDs
	matched, err := s.fetch(tab, &idReq)
	if err != nil {
		return nil, err
	}
	for _, rec := range matched {
		if err := s.deleteRow(tab, rec.ID); err != nil {
			return nil, err
		}
	}
	return storage.IDs(matched), nil
}

func (s *session) Insert(entity string, attrs storage.Attributes) (*storage.Record, error) {
	tab, err := s.writableTable(entity)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(attrs))
	marks := make([]string, 0, len(attrs))
	args := make([]any, 0, len(attrs))
	for _, name := range attrs.Names() {
		if name != storage.PayloadAttribute {
			if _, ok := tab.kinds[name]; !ok {
				return nil, fmt.Errorf("sqlitestore: %s has no column %s", entity, name)
			}
		}
		arg, err := bindValue(attrs[name])
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: %s: attribute %s: %w", entity, name, err)
		}
		cols = append(cols, quote(name))
		marks = append(marks, "?")
		args = append(args, arg)
	}
	var q string
	if len(cols) == 0 {
		q = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quote(entity))
	} else {
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(entity), strings.Join(cols, ", "), strings.Join(marks, ", "))
	}
	res, err := s.conn.ExecContext(s.ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: insert into %s: %w", entity, wrapDBError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapDBError(err)
	}
	s.changed = true
	rec := &storage.Record{ID: formatID(id), Entity: entity, Attrs: attrs.Clone()}
	s.b.trace("sqlitestore: INSERT", slog.String("entity", entity), slog.String("id", string(rec.ID)))
	return rec, nil
}

func (s *session) Remove(rec *storage.Record) error {
	tab, err := s.writableTable(rec.Entity)
	if err != nil {
		return err
	}
	return s.deleteRow(tab, rec.ID)
}

func (s *session) deleteRow(tab *table, id storage.RecordID) error {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return fmt.Errorf("sqlitestore: invalid record ID %q", id)
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(tab.name), quote(idColumn))
	if _, err := s.conn.ExecContext(s.ctx, q, n); err != nil {
		return fmt.Errorf("sqlitestore: delete %s/%s: %w", tab.name, id, wrapDBError(err))
	}
	s.changed = true
	s.b.trace("sqlitestore: DELETE", slog.String("entity", tab.name), slog.String("id", string(id)))
	return nil
}

func (s *session) HasChanges() bool {
	return s.changed
}

func (s *session) Save() error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	if !s.writable {
		return storage.ErrNotWritable
	}
	_, err := s.conn.ExecContext(s.ctx, "COMMIT")
	if err != nil {
		s.Discard()
		return fmt.Errorf("sqlitestore: commit: %w", wrapDBError(err))
	}
	s.closed = true
	return wrapDBError(s.conn.Close())
}

func (s *session) Discard() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, err := s.conn.ExecContext(s.ctx, "ROLLBACK")
	cerr := s.conn.Close()
	if err != nil {
		return fmt.Errorf("sqlitestore: rollback: %w", wrapDBError(err))
	}
	return wrapDBError(cerr)
}

func formatID(id int64) storage.RecordID {
	return storage.RecordID(strconv.FormatInt(id, 10))
}

// wrapDBError adds the SQLite result code name to driver errors. Generic
// SQLITE_ERROR (1) messages are more descriptive than the code name, so
// those are kept as is.
func wrapDBError(err error) error {
	if err == nil {
		return nil
	}
	sqliteErr := &sqlite.Error{}
	if errors.As(err, &sqliteErr) {
		primaryCode := sqliteErr.Code() & 0xff
		if primaryCode == 1 {
			return err
		}
		return fmt.Errorf("%s: %w", sqlite.ErrorCodeString[sqliteErr.Code()], err)
	}
	return err
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Bool and Time columns get declared types of NUMERIC affinity that map back
// to their kind when a table is reloaded.
func columnType(k storage.Kind) string {
	switch k {
	case storage.Bool:
		return "BOOLEAN"
	case storage.Int:
		return "INTEGER"
	case storage.Float:
		return "REAL"
	case storage.String:
		return "TEXT"
	case storage.Time:
		return "TIMESTAMP"
	default:
		return "BLOB"
	}
}

func columnKind(typ string) storage.Kind {
	switch strings.ToUpper(typ) {
	case "BOOLEAN":
		return storage.Bool
	case "INTEGER":
		return storage.Int
	case "REAL":
		return storage.Float
	case "TEXT":
		return storage.String
	case "TIMESTAMP":
		return storage.Time
	default:
		return storage.Bytes
	}
}

// bindValue converts a canonical value to a query argument. Times are bound
// as storage.TimeLayout text rather than time.Time, which the driver would
// format with a variable width.
func bindValue(v any) (any, error) {
	switch v := v.(type) {
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case time.Time:
		return storage.FormatTime(v)
	default:
		return v, nil
	}
}

func decodeRow(tab *table, cols []string, raw []any) (*storage.Record, error) {
	rec := &storage.Record{Entity: tab.name}
	for i, col := range cols {
		v := raw[i]
		switch col {
		case idColumn:
			id, ok := v.(int64)
			if !ok {
				return nil, fmt.Errorf("sqlitestore: %s: unexpected %s value %T", tab.name, idColumn, v)
			}
			rec.ID = formatID(id)
			continue
		case storage.PayloadAttribute:
			if v == nil {
				continue
			}
		}
		cv, err := decodeValue(tab.kinds[col], v)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: %s/%s: column %s: %w", tab.name, rec.ID, col, err)
		}
		if rec.Attrs == nil {
			rec.Attrs = make(storage.Attributes, len(cols))
		}
		rec.Attrs[col] = cv
	}
	return rec, nil
}

func decodeValue(kind storage.Kind, v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case int64:
		switch kind {
		case storage.Bool:
			return v != 0, nil
		case storage.Time:
			// Written by earlier versions as Unix nanoseconds.
			return time.Unix(0, v).UTC(), nil
		case storage.Float:
			return float64(v), nil
		}
		return v, nil
	case float64:
		return v, nil
	case string:
		switch kind {
		case storage.Bytes:
			return []byte(v), nil
		case storage.Time:
			return storage.ParseTime(v)
		}
		return v, nil
	case time.Time:
		// The driver parses text stored in TIMESTAMP columns itself.
		return v.UTC(), nil
	case []byte:
		if kind == storage.String {
			return string(v), nil
		}
		return slices.Clone(v), nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}
