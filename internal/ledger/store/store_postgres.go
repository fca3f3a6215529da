package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"consent-ledger/internal/identity"
	"consent-ledger/internal/ledger/models"
	id "consent-ledger/pkg/domain"
	"consent-ledger/pkg/platform/sentinel"
)

// PostgresStore persists the ledger in PostgreSQL. Ids come from BIGSERIAL
// sequences, which start at 1.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

const studyColumns = `id, owner, metadata_ref, title, description, created_at, active`

func (s *PostgresStore) CreateStudy(ctx context.Context, study *models.Study) error {
	query := `
		INSERT INTO studies (owner, metadata_ref, title, description, created_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var studyID int64
	err := s.execer().QueryRowContext(ctx, query,
		study.Owner.String(),
		study.MetadataRef,
		study.Title,
		study.Description,
		study.CreatedAt,
		study.Active,
	).Scan(&studyID)
	if err != nil {
		return fmt.Errorf("insert study: %w", err)
	}
	study.ID = id.StudyID(studyID) //nolint:gosec // BIGSERIAL is positive
	return nil
}

func (s *PostgresStore) GetStudy(ctx context.Context, studyID id.StudyID) (*models.Study, error) {
	query := `SELECT ` + studyColumns + ` FROM studies WHERE id = $1`
	study, err := scanStudy(s.execer().QueryRowContext(ctx, query, int64(studyID))) //nolint:gosec // ids fit BIGINT
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find study: %w", err)
	}
	return study, nil
}

func (s *PostgresStore) ListStudies(ctx context.Context) ([]*models.Study, error) {
	rows, err := s.execer().QueryContext(ctx, `SELECT `+studyColumns+` FROM studies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	defer rows.Close()

	var studies []*models.Study
	for rows.Next() {
		study, err := scanStudy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan study: %w", err)
		}
		studies = append(studies, study)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate studies: %w", err)
	}
	return studies, nil
}

func (s *PostgresStore) UpdateStudy(ctx context.Context, study *models.Study) error {
	query := `
		UPDATE studies
		SET metadata_ref = $2, title = $3, description = $4, active = $5
		WHERE id = $1
	`
	res, err := s.execer().ExecContext(ctx, query,
		int64(study.ID), //nolint:gosec // ids fit BIGINT
		study.MetadataRef,
		study.Title,
		study.Description,
		study.Active,
	)
	if err != nil {
		return fmt.Errorf("update study: %w", err)
	}
	return requireAffected(res, "update study")
}

const consentColumns = `id, participant, study_id, document_ref, credential_ref, status,
	requested_at, responded_at, expires_at, supersedes`

// CreateConsent inserts the consent and moves the (study, participant) index
// to it in the same statement batch.
func (s *PostgresStore) CreateConsent(ctx context.Context, consent *models.Consent) error {
	query := `
		INSERT INTO consents (participant, study_id, document_ref, credential_ref, status,
			requested_at, responded_at, expires_at, supersedes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var consentID int64
	err := s.execer().QueryRowContext(ctx, query,
		consent.Participant.String(),
		int64(consent.StudyID), //nolint:gosec // ids fit BIGINT
		consent.DocumentRef,
		nullString(consent.CredentialRef),
		string(consent.Status),
		consent.RequestedAt,
		consent.RespondedAt,
		consent.ExpiresAt,
		int64(consent.Supersedes), //nolint:gosec // ids fit BIGINT
	).Scan(&consentID)
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	consent.ID = id.ConsentID(consentID) //nolint:gosec // BIGSERIAL is positive

	pairQuery := `
		INSERT INTO consent_pairs (study_id, participant, consent_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (study_id, participant) DO UPDATE SET consent_id = EXCLUDED.consent_id
	`
	if _, err := s.execer().ExecContext(ctx, pairQuery,
		int64(consent.StudyID), //nolint:gosec // ids fit BIGINT
		consent.Participant.String(),
		consentID,
	); err != nil {
		return fmt.Errorf("index consent pair: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConsent(ctx context.Context, consentID id.ConsentID) (*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE id = $1`
	consent, err := scanConsent(s.execer().QueryRowContext(ctx, query, int64(consentID))) //nolint:gosec // ids fit BIGINT
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return consent, nil
}

func (s *PostgresStore) UpdateConsent(ctx context.Context, consent *models.Consent) error {
	query := `
		UPDATE consents
		SET credential_ref = $2, status = $3, responded_at = $4
		WHERE id = $1
	`
	res, err := s.execer().ExecContext(ctx, query,
		int64(consent.ID), //nolint:gosec // ids fit BIGINT
		nullString(consent.CredentialRef),
		string(consent.Status),
		consent.RespondedAt,
	)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	return requireAffected(res, "update consent")
}

func (s *PostgresStore) FindConsentIDByPair(ctx context.Context, studyID id.StudyID, participant identity.Address) (id.ConsentID, error) {
	query := `SELECT consent_id FROM consent_pairs WHERE study_id = $1 AND participant = $2`
	var consentID int64
	err := s.execer().QueryRowContext(ctx, query, int64(studyID), participant.String()).Scan(&consentID) //nolint:gosec // ids fit BIGINT
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("find consent pair: %w", err)
	}
	return id.ConsentID(consentID), nil //nolint:gosec // BIGSERIAL is positive
}

func (s *PostgresStore) ListConsentsByStudy(ctx context.Context, studyID id.StudyID) ([]*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE study_id = $1 ORDER BY id`
	return s.listConsents(ctx, query, int64(studyID)) //nolint:gosec // ids fit BIGINT
}

func (s *PostgresStore) ListConsentsByParticipant(ctx context.Context, participant identity.Address) ([]*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE participant = $1 ORDER BY id`
	return s.listConsents(ctx, query, participant.String())
}

func (s *PostgresStore) listConsents(ctx context.Context, query string, arg any) ([]*models.Consent, error) {
	rows, err := s.execer().QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var consents []*models.Consent
	for rows.Next() {
		consent, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		consents = append(consents, consent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return consents, nil
}

// SetPermission upserts a permission. A new key takes the next position for
// its consent; an existing key keeps its position.
func (s *PostgresStore) SetPermission(ctx context.Context, consentID id.ConsentID, key string, granted bool, now time.Time) error {
	query := `
		INSERT INTO consent_permissions (consent_id, key, granted, position, updated_at)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM consent_permissions WHERE consent_id = $1),
			$4)
		ON CONFLICT (consent_id, key) DO UPDATE
		SET granted = EXCLUDED.granted, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.execer().ExecContext(ctx, query, int64(consentID), key, granted, now); err != nil { //nolint:gosec // ids fit BIGINT
		return fmt.Errorf("upsert permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPermission(ctx context.Context, consentID id.ConsentID, key string) (*models.Permission, error) {
	query := `
		SELECT consent_id, key, granted, position, updated_at
		FROM consent_permissions
		WHERE consent_id = $1 AND key = $2
	`
	perm, err := scanPermission(s.execer().QueryRowContext(ctx, query, int64(consentID), key)) //nolint:gosec // ids fit BIGINT
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find permission: %w", err)
	}
	return perm, nil
}

func (s *PostgresStore) ListPermissions(ctx context.Context, consentID id.ConsentID) ([]models.Permission, error) {
	query := `
		SELECT consent_id, key, granted, position, updated_at
		FROM consent_permissions
		WHERE consent_id = $1
		ORDER BY position
	`
	rows, err := s.execer().QueryContext(ctx, query, int64(consentID)) //nolint:gosec // ids fit BIGINT
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, *perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return perms, nil
}

func scanStudy(row rowScanner) (*models.Study, error) {
	var (
		study   models.Study
		studyID int64
		owner   string
	)
	if err := row.Scan(&studyID, &owner, &study.MetadataRef, &study.Title, &study.Description, &study.CreatedAt, &study.Active); err != nil {
		return nil, err
	}
	addr, err := identity.Parse(owner)
	if err != nil {
		return nil, fmt.Errorf("stored study owner: %w", err)
	}
	study.ID = id.StudyID(studyID) //nolint:gosec // BIGSERIAL is positive
	study.Owner = addr
	study.CreatedAt = study.CreatedAt.UTC()
	return &study, nil
}

func scanConsent(row rowScanner) (*models.Consent, error) {
	var (
		consent       models.Consent
		consentID     int64
		studyID       int64
		supersedes    int64
		participant   string
		status        string
		credentialRef sql.NullString
		respondedAt   sql.NullTime
		expiresAt     sql.NullTime
	)
	err := row.Scan(
		&consentID,
		&participant,
		&studyID,
		&consent.DocumentRef,
		&credentialRef,
		&status,
		&consent.RequestedAt,
		&respondedAt,
		&expiresAt,
		&supersedes,
	)
	if err != nil {
		return nil, err
	}
	addr, err := identity.Parse(participant)
	if err != nil {
		return nil, fmt.Errorf("stored consent participant: %w", err)
	}
	consent.ID = id.ConsentID(consentID)          //nolint:gosec // BIGSERIAL is positive
	consent.StudyID = id.StudyID(studyID)         //nolint:gosec // BIGSERIAL is positive
	consent.Supersedes = id.ConsentID(supersedes) //nolint:gosec // ids are non-negative
	consent.Participant = addr
	consent.Status = models.Status(status)
	consent.CredentialRef = credentialRef.String
	consent.RequestedAt = consent.RequestedAt.UTC()
	if respondedAt.Valid {
		t := respondedAt.Time.UTC()
		consent.RespondedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		consent.ExpiresAt = &t
	}
	return &consent, nil
}

func scanPermission(row rowScanner) (*models.Permission, error) {
	var (
		perm      models.Permission
		consentID int64
	)
	if err := row.Scan(&consentID, &perm.Key, &perm.Granted, &perm.Position, &perm.UpdatedAt); err != nil {
		return nil, err
	}
	perm.ConsentID = id.ConsentID(consentID) //nolint:gosec // BIGSERIAL is positive
	perm.UpdatedAt = perm.UpdatedAt.UTC()
	return &perm, nil
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
