// Package testutil provides a stub database/sql driver emulating the runs
// table for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

type runRow struct {
	id        string
	createdAt time.Time
	payload   []byte
}

// StubConn records statements and emulates the runs table in memory.
type StubConn struct {
	Execs    []string
	FailPing bool
	FailExec bool
	rows     map[string]runRow
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{rows: make(map[string]runRow)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) { return nil, fmt.Errorf("not implemented") }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(upper, "INSERT INTO"):
		if len(args) != 3 {
			return nil, fmt.Errorf("insert expects 3 args, got %d", len(args))
		}
		id, _ := args[0].Value.(string)
		createdAt, _ := args[1].Value.(time.Time)
		payload, _ := args[2].Value.([]byte)
		c.rows[id] = runRow{id: id, createdAt: createdAt, payload: append([]byte(nil), payload...)}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM"):
		if len(args) != 1 {
			return nil, fmt.Errorf("delete expects 1 arg, got %d", len(args))
		}
		id, _ := args[0].Value.(string)
		if _, ok := c.rows[id]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.rows, id)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported exec: %s", query)
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	upper := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(upper, "SELECT PAYLOAD") {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	var selected []runRow
	if strings.Contains(upper, "WHERE ID") {
		if len(args) != 1 {
			return nil, fmt.Errorf("lookup expects 1 arg, got %d", len(args))
		}
		id, _ := args[0].Value.(string)
		if row, ok := c.rows[id]; ok {
			selected = append(selected, row)
		}
	} else {
		for _, row := range c.rows {
			selected = append(selected, row)
		}
		sort.Slice(selected, func(i, j int) bool {
			if !selected[i].createdAt.Equal(selected[j].createdAt) {
				return selected[i].createdAt.Before(selected[j].createdAt)
			}
			return selected[i].id < selected[j].id
		})
	}
	return &stubRows{rows: selected}, nil
}

type stubRows struct {
	rows []runRow
	next int
}

func (r *stubRows) Columns() []string { return []string{"payload"} }

func (r *stubRows) Close() error { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		return io.EOF
	}
	dest[0] = r.rows[r.next].payload
	r.next++
	return nil
}
