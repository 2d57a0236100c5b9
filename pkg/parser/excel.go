package parser

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Geniuskaa/kids_competition/pkg/sports/karate"
	"github.com/xuri/excelize/v2"
)

const (
	SHEET_NAME             = "Лист 1"
	COUNT_OF_METAINFO_ROWS = 1
	MAX_ROWS               = 1500

	// Constants for parser protection
	MAX_LEN_OF_ROW                         = 15 // Длина строки измеряется в кол-ве ячеек excel таблицы
	COUNTS_OF_LONG_ROWS_BEFORE_BLOCK_EXCEL = 10
)

// Порядок колонок в заявке
const (
	colFullName = iota
	colGender
	colAge
	colWeight
	colKyu
	colCoach
	colClub
	rosterColumns
)

var (
	ErrTooManyRows = errors.New("xlsx doc has more than 1500 rows")
	ErrSpam        = errors.New("too many long rows, it seems that it is spam")
	ErrNoSheet     = errors.New("roster sheet not found")
)

type Impl struct {
}

type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

type Response struct {
	Entries     []karate.RosterEntry
	Failed      []RowError
	PercentErrs int
}

// ParseXlsx reads a roster: one header row, then one competitor per row.
func (i Impl) ParseXlsx(r io.Reader) (*Response, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("excelize.OpenReader failed: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	idx, err := f.GetSheetIndex(SHEET_NAME)
	if err != nil {
		return nil, fmt.Errorf("f.GetSheetIndex failed: %w", err)
	}
	if idx < 0 {
		return nil, fmt.Errorf("ParseXlsx failed: %w: %q", ErrNoSheet, SHEET_NAME)
	}

	rows, err := f.GetRows(SHEET_NAME)
	if err != nil {
		return nil, fmt.Errorf("f.GetRows failed: %w", err)
	}

	if len(rows) > MAX_ROWS {
		return nil, ErrTooManyRows
	}

	return rosterParser(rows)
}

func rosterParser(arr [][]string) (*Response, error) {
	resp := &Response{Entries: make([]karate.RosterEntry, 0, len(arr))}
	countOfEmptyRows := 0
	countOfVeryLongRows := 0

	for i, row := range arr {
		if i < COUNT_OF_METAINFO_ROWS {
			continue
		}

		if len(row) == 0 || strings.TrimSpace(row[colFullName]) == "" {
			countOfEmptyRows++
			continue
		}

		// Если часто попадаются длинные строки, система сочтёт это за спам
		if len(row) > MAX_LEN_OF_ROW {
			countOfVeryLongRows++
			if countOfVeryLongRows > COUNTS_OF_LONG_ROWS_BEFORE_BLOCK_EXCEL {
				return nil, ErrSpam
			}
		}

		entry, err := rowConverter(row)
		if err != nil {
			resp.Failed = append(resp.Failed, RowError{Row: i + 1, Err: err})
			continue
		}
		resp.Entries = append(resp.Entries, entry)
	}

	total := len(arr) - COUNT_OF_METAINFO_ROWS - countOfEmptyRows
	if total > 0 {
		resp.PercentErrs = len(resp.Failed) * 100 / total
	}

	return resp, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func rowConverter(row []string) (karate.RosterEntry, error) {
	if len(row) < rosterColumns {
		return karate.RosterEntry{}, fmt.Errorf("expected %d columns, got %d", rosterColumns, len(row))
	}

	gender, err := normalizeGender(cell(row, colGender))
	if err != nil {
		return karate.RosterEntry{}, err
	}

	age, err := strconv.Atoi(cell(row, colAge))
	if err != nil || age <= 0 {
		return karate.RosterEntry{}, fmt.Errorf("bad age %q", cell(row, colAge))
	}

	weight, err := parseWeight(cell(row, colWeight))
	if err != nil {
		return karate.RosterEntry{}, err
	}

	entry := karate.RosterEntry{
		FullName:  cell(row, colFullName),
		Gender:    gender,
		Age:       age,
		Weight:    weight,
		Kyu:       cell(row, colKyu),
		CoachName: cell(row, colCoach),
		ClubName:  cell(row, colClub),
	}
	if entry.CoachName == "" || entry.ClubName == "" {
		return karate.RosterEntry{}, errors.New("coach and club are required")
	}

	return entry, nil
}

func normalizeGender(s string) (string, error) {
	switch strings.ToLower(s) {
	case "м", "муж", "мужской":
		return karate.Male, nil
	case "ж", "жен", "женский":
		return karate.Female, nil
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

// Weight is stored in whole kilograms; "31,6" is truncated to 31.
func parseWeight(s string) (int, error) {
	w, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 32)
	if err != nil || w <= 0 {
		return 0, fmt.Errorf("bad weight %q", s)
	}
	return int(w), nil
}
