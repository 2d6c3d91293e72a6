package dge

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carbocation/pfx"
	"github.com/carbocation/tissuedge"
	"github.com/carbocation/tissuedge/compileinfo"
	"github.com/gocarina/gocsv"
	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE dge (
	gene TEXT NOT NULL,
	logFC REAL,
	logCPM REAL,
	F REAL,
	PValue REAL,
	FDR REAL,
	contrast TEXT NOT NULL,
	TumorType TEXT NOT NULL
);
CREATE INDEX dge_test ON dge (TumorType, contrast);
CREATE TABLE provenance (
	package TEXT,
	version TEXT,
	go_version TEXT,
	vcs_revision TEXT,
	vcs_time TEXT,
	vcs_modified BOOLEAN,
	created TEXT,
	n_rows INTEGER
);
`

func isSQLite(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sqlite", ".sqlite3", ".db":
		return true
	}

	return false
}

// Write persists the table. The format follows the extension: .sqlite (or
// .sqlite3, .db) writes a SQLite database, .gz a gzipped TSV, and anything
// else a plain TSV. Output goes to a temporary file in the same directory
// that is renamed into place only once it is complete.
func Write(path string, table Table) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return pfx.Err(err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return pfx.Err(err)
	}
	tmpName := tmp.Name()

	if isSQLite(path) {
		tmp.Close()
		err = writeSQLite(tmpName, table)
	} else {
		err = writeTSV(tmp, table, strings.HasSuffix(strings.ToLower(path), ".gz"))
		if closeErr := tmp.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		os.Remove(tmpName)
		return pfx.Err(err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return pfx.Err(err)
	}

	return nil
}

func writeTSV(f *os.File, table Table, compress bool) error {
	bw := bufio.NewWriter(f)

	var w io.Writer = bw
	var gw *gzip.Writer
	if compress {
		gw = gzip.NewWriter(bw)
		w = gw
	}

	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := gocsv.MarshalCSV(table, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return err
	}

	if gw != nil {
		if err := gw.Close(); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func writeSQLite(path string, table Table) error {
	db, err := sqlx.Connect("sqlite3", "file:"+path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	tx, err := db.Beginx()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO dge (gene, logFC, logCPM, F, PValue, FDR, contrast, TumorType)
		VALUES (:gene, :logFC, :logCPM, :F, :PValue, :FDR, :contrast, :TumorType)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, row := range table {
		if _, err := stmt.Exec(row); err != nil {
			tx.Rollback()
			return err
		}
	}
	stmt.Close()

	prov := struct {
		compileinfo.CompileInfo
		Created string `db:"created"`
		NRows   int    `db:"n_rows"`
	}{
		CompileInfo: compileinfo.Get(),
		Created:     time.Now().UTC().Format(time.RFC3339),
		NRows:       len(table),
	}
	if _, err := tx.NamedExec(`INSERT INTO provenance (package, version, go_version, vcs_revision, vcs_time, vcs_modified, created, n_rows)
		VALUES (:package, :version, :go_version, :vcs_revision, :vcs_time, :vcs_modified, :created, :n_rows)`, prov); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Read loads a table written by Write. Compressed TSVs are detected from
// their content.
func Read(path string) (Table, error) {
	if isSQLite(path) {
		return readSQLite(path)
	}

	rc, err := tissuedge.Open(context.Background(), path, nil)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.Comma = '\t'

	var table Table
	if err := gocsv.UnmarshalCSV(cr, &table); err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	return table, nil
}

func readSQLite(path string) (Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, pfx.Err(err)
	}

	db, err := sqlx.Connect("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer db.Close()

	var table Table
	if err := db.Select(&table, "SELECT gene, logFC, logCPM, F, PValue, FDR, contrast, TumorType FROM dge ORDER BY rowid"); err != nil {
		return nil, pfx.Err(err)
	}

	return table, nil
}
