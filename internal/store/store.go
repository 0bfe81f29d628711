// File: internal/store/store.go
// Description: The xlsx-backed account store. Accounts are read once at batch
// start and flushed back to disk after every successful login, so an aborted
// run loses at most the in-flight account.

package store

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/dvmarkelov/onboard-cli/internal/config"
)

// Account is one row of the spreadsheet. Cookies is empty until the login
// flow for this account has succeeded.
type Account struct {
	// Index is the zero-based position of the account within the batch.
	// Failure screenshots are named after it.
	Index         int
	Phone         string
	Email         string
	EmailPassword string
	Cookies       string
}

// Done reports whether this account already carries a persisted cookie set
// and must therefore be skipped on a rerun.
func (a Account) Done() bool {
	return strings.TrimSpace(a.Cookies) != ""
}

// Store wraps the spreadsheet that holds the account batch.
type Store struct {
	cfg    config.StoreConfig
	logger *zap.Logger

	file  *excelize.File
	sheet string

	// 1-based column numbers resolved from the header row.
	phoneCol    int
	emailCol    int
	passwordCol int
	cookiesCol  int

	accounts []Account
}

// Open loads the account spreadsheet. If the updated copy already exists it
// is used (preserving results of earlier runs); otherwise the source file is
// copied to the target path first. A load failure here is batch-fatal.
func Open(cfg config.StoreConfig, logger *zap.Logger) (*Store, error) {
	log := logger.Named("store")

	path := cfg.TargetPath
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		log.Info("Updated store not found, starting from source file",
			zap.String("source", cfg.SourcePath), zap.String("target", cfg.TargetPath))
		src, err := excelize.OpenFile(cfg.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open source store %s: %w", cfg.SourcePath, err)
		}
		if err := src.SaveAs(cfg.TargetPath); err != nil {
			src.Close()
			return nil, fmt.Errorf("failed to create updated store %s: %w", cfg.TargetPath, err)
		}
		src.Close()
	} else {
		log.Info("Resuming from existing updated store", zap.String("target", path))
	}

	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	s := &Store{cfg: cfg, logger: log, file: file}
	if err := s.load(); err != nil {
		file.Close()
		return nil, err
	}

	log.Info("Account store loaded",
		zap.Int("accounts", len(s.accounts)), zap.String("sheet", s.sheet))
	return s, nil
}

// load resolves the header columns and reads every account row.
func (s *Store) load() error {
	sheets := s.file.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("store has no sheets")
	}
	s.sheet = sheets[0]

	rows, err := s.file.GetRows(s.sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", s.sheet, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("store sheet %s is empty", s.sheet)
	}

	header := rows[0]
	s.phoneCol = findColumn(header, s.cfg.PhoneColumn)
	s.emailCol = findColumn(header, s.cfg.EmailColumn)
	s.passwordCol = findColumn(header, s.cfg.PasswordColumn)
	s.cookiesCol = findColumn(header, s.cfg.CookiesColumn)

	if s.phoneCol == 0 || s.emailCol == 0 || s.passwordCol == 0 {
		return fmt.Errorf("store header is missing required columns (%q, %q, %q), got %v",
			s.cfg.PhoneColumn, s.cfg.EmailColumn, s.cfg.PasswordColumn, header)
	}

	// Append the result column when the sheet does not carry one yet.
	if s.cookiesCol == 0 {
		s.cookiesCol = len(header) + 1
		cell, err := excelize.CoordinatesToCellName(s.cookiesCol, 1)
		if err != nil {
			return err
		}
		if err := s.file.SetCellValue(s.sheet, cell, s.cfg.CookiesColumn); err != nil {
			return fmt.Errorf("failed to add cookies column: %w", err)
		}
		if err := s.Save(); err != nil {
			return err
		}
		s.logger.Info("Added cookies column to store", zap.String("column", s.cfg.CookiesColumn))
	}

	s.accounts = s.accounts[:0]
	for i, row := range rows[1:] {
		acc := Account{
			Index:         i,
			Phone:         cellAt(row, s.phoneCol),
			Email:         cellAt(row, s.emailCol),
			EmailPassword: cellAt(row, s.passwordCol),
			Cookies:       cellAt(row, s.cookiesCol),
		}
		s.accounts = append(s.accounts, acc)
	}
	return nil
}

// Accounts returns the batch in store order.
func (s *Store) Accounts() []Account {
	return s.accounts
}

// SetCookies records a successful login result for the account at the given
// batch index and flushes the store to disk immediately.
func (s *Store) SetCookies(index int, cookies string) error {
	if index < 0 || index >= len(s.accounts) {
		return fmt.Errorf("account index %d out of range (%d accounts)", index, len(s.accounts))
	}

	// Row 1 is the header; account rows start at row 2.
	cell, err := excelize.CoordinatesToCellName(s.cookiesCol, index+2)
	if err != nil {
		return err
	}
	if err := s.file.SetCellValue(s.sheet, cell, cookies); err != nil {
		return fmt.Errorf("failed to write cookies for account %d: %w", index, err)
	}
	s.accounts[index].Cookies = cookies

	if err := s.Save(); err != nil {
		return fmt.Errorf("failed to persist store after account %d: %w", index, err)
	}
	return nil
}

// Save writes the workbook back to the target path.
func (s *Store) Save() error {
	return s.file.SaveAs(s.cfg.TargetPath)
}

// Close releases the underlying workbook.
func (s *Store) Close() error {
	return s.file.Close()
}

// findColumn returns the 1-based column number whose header matches name,
// or 0 when no column matches. Real-world sheets embed line breaks and stray
// spaces inside header cells, so the comparison collapses all whitespace and
// ignores case.
func findColumn(header []string, name string) int {
	want := normalizeHeader(name)
	for i, h := range header {
		if normalizeHeader(h) == want {
			return i + 1
		}
	}
	return 0
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// cellAt returns the trimmed value of the 1-based column, tolerating short rows.
func cellAt(row []string, col int) string {
	if col <= 0 || col > len(row) {
		return ""
	}
	return strings.TrimSpace(row[col-1])
}
