// Package repository maps the Document model onto the relational schema.
// Reference entities (user, institution) are upserted by natural key with
// a uniqueness constraint plus conflict-tolerant re-select; documents and
// their data rows are an append-only ledger written in one transaction.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/entity"
)

// StoredDocument is a persisted document hydrated with its institution
// association and entry rows.
type StoredDocument struct {
	ID              int64
	UserID          int64
	InstitutionName string
	Document        entity.Document
}

type Repository interface {
	UpsertUser(ctx context.Context, telegramID int64, username string) (int64, error)
	UpsertInstitution(ctx context.Context, name string) (int64, error)
	AppendDocument(ctx context.Context, userID, institutionID int64, doc *entity.Document) (int64, error)
	LatestDocument(ctx context.Context, userID int64, documentType *string) (*StoredDocument, error)
	DocumentsInRange(ctx context.Context, userID int64, format entity.Format, documentType string, start, end time.Time) ([]StoredDocument, error)
}

type repository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRepository(db *sql.DB, logger *slog.Logger) Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &repository{db: db, logger: logger}
}

// UpsertUser gets-or-creates a user by telegram identity. The insert is
// conflict-tolerant so concurrent first contacts from multiple processes
// converge on one row.
func (r *repository) UpsertUser(ctx context.Context, telegramID int64, username string) (int64, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username) VALUES ($1, $2) ON CONFLICT (telegram_id) DO NOTHING`,
		telegramID, username)
	if err != nil {
		return 0, r.fail("upsert user", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`SELECT user_id FROM users WHERE telegram_id = $1`, telegramID).Scan(&id)
	if err != nil {
		return 0, r.fail("select user after upsert", err)
	}
	return id, nil
}

// UpsertInstitution gets-or-creates an institution by exact name. Two
// spellings of the same institution are two rows by design.
func (r *repository) UpsertInstitution(ctx context.Context, name string) (int64, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO medical_institutions (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return 0, r.fail("upsert institution", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`SELECT institution_id FROM medical_institutions WHERE name = $1`, name).Scan(&id)
	if err != nil {
		return 0, r.fail("select institution after upsert", err)
	}
	return id, nil
}

// AppendDocument inserts the document row and all of its entry rows in one
// transaction: either all rows exist afterwards or none do.
func (r *repository) AppendDocument(ctx context.Context, userID, institutionID int64, doc *entity.Document) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, r.fail("begin append", err)
	}
	defer func() { _ = tx.Rollback() }()

	var docID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO medical_documents (user_id, institution_id, data_format, document_type, document_date)
		 VALUES ($1, $2, $3, $4, $5) RETURNING document_id`,
		userID, institutionID, string(doc.Format), doc.DocumentType, doc.DocumentDate).Scan(&docID)
	if err != nil {
		return 0, r.fail("insert document", err)
	}

	switch doc.Format {
	case entity.FormatTest:
		for _, e := range doc.TestEntries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO test_data (document_id, name, value, unit, reference_range, commentary, is_normal)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				docID, e.Name, e.Value, e.Unit, e.Range, e.Commentary, nullBool(e.IsNormal))
			if err != nil {
				return 0, r.fail("insert test entry", err)
			}
		}
	case entity.FormatStudy:
		for _, e := range doc.StudyEntries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO study_data (document_id, device, result, report, recommendation)
				 VALUES ($1, $2, $3, $4, $5)`,
				docID, e.Device, e.Result, e.Report, e.Recommendation)
			if err != nil {
				return 0, r.fail("insert study entry", err)
			}
		}
	default:
		return 0, r.fail("append document", fmt.Errorf("unknown format %q", doc.Format))
	}

	if err := tx.Commit(); err != nil {
		return 0, r.fail("commit append", err)
	}

	r.logger.Info("appended document",
		"document_id", docID, "user_id", userID,
		"format", string(doc.Format), "entries", doc.EntryCount())
	return docID, nil
}

const documentColumns = `d.document_id, d.user_id, d.data_format, d.document_type, d.document_date, i.name
		 FROM medical_documents d
		 JOIN medical_institutions i ON i.institution_id = d.institution_id`

// LatestDocument returns the newest document for the user, optionally
// restricted to one document type. Ties on the date are broken by
// insertion order, newest first. Returns nil when the user has no history.
func (r *repository) LatestDocument(ctx context.Context, userID int64, documentType *string) (*StoredDocument, error) {
	var row *sql.Row
	if documentType != nil {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+documentColumns+`
			 WHERE d.user_id = $1 AND d.document_type = $2
			 ORDER BY d.document_date DESC, d.document_id DESC LIMIT 1`,
			userID, *documentType)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+documentColumns+`
			 WHERE d.user_id = $1
			 ORDER BY d.document_date DESC, d.document_id DESC LIMIT 1`,
			userID)
	}

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.fail("select latest document", err)
	}
	if err := r.loadEntries(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DocumentsInRange returns the user's documents of one format and type
// within [start, end], ascending by date.
func (r *repository) DocumentsInRange(ctx context.Context, userID int64, format entity.Format, documentType string, start, end time.Time) ([]StoredDocument, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+`
		 WHERE d.user_id = $1 AND d.data_format = $2 AND d.document_type = $3
		   AND d.document_date >= $4 AND d.document_date <= $5
		 ORDER BY d.document_date ASC, d.document_id ASC`,
		userID, string(format), documentType, start, end)
	if err != nil {
		return nil, r.fail("select documents in range", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []StoredDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, r.fail("scan document", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail("iterate documents", err)
	}

	for i := range docs {
		if err := r.loadEntries(ctx, &docs[i]); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*StoredDocument, error) {
	var doc StoredDocument
	var format string
	if err := row.Scan(&doc.ID, &doc.UserID, &format, &doc.Document.DocumentType, &doc.Document.DocumentDate, &doc.InstitutionName); err != nil {
		return nil, err
	}
	f, ok := entity.ParseFormat(format)
	if !ok {
		return nil, fmt.Errorf("stored document %d has unknown format %q", doc.ID, format)
	}
	doc.Document.Format = f
	doc.Document.InstitutionName = doc.InstitutionName
	return &doc, nil
}

func (r *repository) loadEntries(ctx context.Context, doc *StoredDocument) error {
	switch doc.Document.Format {
	case entity.FormatTest:
		rows, err := r.db.QueryContext(ctx,
			`SELECT name, value, unit, reference_range, commentary, is_normal
			 FROM test_data WHERE document_id = $1 ORDER BY data_id`, doc.ID)
		if err != nil {
			return r.fail("select test entries", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var e entity.TestEntry
			var normal sql.NullBool
			if err := rows.Scan(&e.Name, &e.Value, &e.Unit, &e.Range, &e.Commentary, &normal); err != nil {
				return r.fail("scan test entry", err)
			}
			if normal.Valid {
				v := normal.Bool
				e.IsNormal = &v
			}
			doc.Document.TestEntries = append(doc.Document.TestEntries, e)
		}
		return rows.Err()
	case entity.FormatStudy:
		rows, err := r.db.QueryContext(ctx,
			`SELECT device, result, report, recommendation
			 FROM study_data WHERE document_id = $1 ORDER BY data_id`, doc.ID)
		if err != nil {
			return r.fail("select study entries", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var e entity.StudyEntry
			if err := rows.Scan(&e.Device, &e.Result, &e.Report, &e.Recommendation); err != nil {
				return r.fail("scan study entry", err)
			}
			doc.Document.StudyEntries = append(doc.Document.StudyEntries, e)
		}
		return rows.Err()
	default:
		return r.fail("load entries", fmt.Errorf("unknown format %q", doc.Document.Format))
	}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// fail logs the full cause and surfaces the single persistence error the
// orchestrator reports to the user.
func (r *repository) fail(op string, err error) error {
	r.logger.Error("repository operation failed", "op", op, "error", err)
	return common.NewAppError("DB_ERROR", op, fmt.Errorf("%w: %w", common.ErrPersistenceFailed, err))
}
