// Package loader reads the bootstrap CSV files for the catalog and users.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rongwang/library-server/internal/models"
)

// Column headers of the bootstrap files
var (
	BookColumns = []string{"Id", "ISBN", "Authors", "Publication Year", "Title", "Language"}
	UserColumns = []string{"User Name", "User Type"}
)

// RowError reports bad data on one line of a CSV file. Line counts the
// header as line 1.
type RowError struct {
	Line   int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d, column %q: %v", e.Line, e.Column, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ReadBooks parses a catalog file. Columns are matched by header name, so
// their order does not matter. Title may be empty.
func ReadBooks(r io.Reader) ([]models.Book, error) {
	var books []models.Book
	err := readRows(r, BookColumns, func(line int, row map[string]string) error {
		bookID, err := strconv.ParseInt(row["Id"], 10, 64)
		if err != nil {
			return &RowError{Line: line, Column: "Id", Err: err}
		}
		year, err := parseYear(row["Publication Year"])
		if err != nil {
			return &RowError{Line: line, Column: "Publication Year", Err: err}
		}
		books = append(books, models.Book{
			BookID:          bookID,
			ISBN:            row["ISBN"],
			Authors:         row["Authors"],
			PublicationYear: year,
			Title:           row["Title"],
			Language:        row["Language"],
		})
		return nil
	})
	return books, err
}

// ReadUsers parses a users file. User types are normalised to lower case.
func ReadUsers(r io.Reader) ([]models.User, error) {
	var users []models.User
	err := readRows(r, UserColumns, func(line int, row map[string]string) error {
		if row["User Name"] == "" {
			return &RowError{Line: line, Column: "User Name", Err: errors.New("empty value")}
		}
		typ, err := models.ParseUserType(row["User Type"])
		if err != nil {
			return &RowError{Line: line, Column: "User Type", Err: err}
		}

		users = append(users, models.User{UserName: row["User Name"], UserType: typ})
		return nil
	})
	return users, err
}

// ReadBooksFile opens path and parses it with ReadBooks
func ReadBooksFile(path string) ([]models.Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBooks(f)
}

// ReadUsersFile opens path and parses it with ReadUsers
func ReadUsersFile(path string) ([]models.User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadUsers(f)
}

// parseYear accepts "2008" as well as the "2008.0" spreadsheets export
func parseYear(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	if y, err := strconv.Atoi(raw); err == nil {
		return y, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func readRows(r io.Reader, columns []string, fn func(line int, row map[string]string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return errors.New("empty file: missing header")
	}
	if err != nil {
		return fmt.Errorf("error reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range columns {
		if _, ok := index[c]; !ok {
			return fmt.Errorf("missing column %q", c)
		}
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if blank(record) {
			continue
		}

		row := make(map[string]string, len(columns))
		for _, c := range columns {
			if i := index[c]; i < len(record) {
				row[c] = strings.TrimSpace(record[i])
			}
		}
		if err := fn(line, row); err != nil {
			return err
		}
	}
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
