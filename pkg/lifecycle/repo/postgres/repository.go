package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

//go:embed schema.sql
var schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements lifecycle.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Migrate creates the tables the repository needs if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return r.handlePostgresError("migrate", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s (%s)", lifecycle.ErrAlreadyExists, operation, pgErr.ConstraintName)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", lifecycle.ErrInvalidArgument, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// notFound maps pgx.ErrNoRows to sentinel and leaves other errors to handlePostgresError.
func (r *Repository) notFound(operation string, err error, sentinel error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return r.handlePostgresError(operation, err)
}

func (r *Repository) execOne(ctx context.Context, operation string, sentinel error, id string, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return r.handlePostgresError(operation, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return nil
}

// Content operations

type contentColumns struct {
	seriesID string
	latest   bool
	major    bool
	pwc      bool
}

func columnsOf(c *lifecycle.Content) contentColumns {
	if c.Document == nil {
		return contentColumns{}
	}
	return contentColumns{
		seriesID: c.Document.VersionSeriesID,
		latest:   c.Document.IsLatestVersion,
		major:    c.Document.IsLatestMajorVersion,
		pwc:      c.Document.IsPrivateWorkingCopy,
	}
}

func (r *Repository) CreateContent(ctx context.Context, repositoryID string, content *lifecycle.Content) error {
	if err := content.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode content %s: %w", content.ID, err)
	}
	cols := columnsOf(content)
	query := `
		INSERT INTO lifecycle_content (
			repository_id, id, name, parent_id, base_type, version_series_id,
			is_latest_version, is_latest_major, is_pwc, created, data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		repositoryID, content.ID, content.Name, content.ParentID, string(content.BaseType), cols.seriesID,
		cols.latest, cols.major, cols.pwc, content.Created, data)
	if err != nil {
		return r.handlePostgresError("create content", err)
	}
	return nil
}

func (r *Repository) GetContent(ctx context.Context, repositoryID, id string) (*lifecycle.Content, error) {
	query := `SELECT data FROM lifecycle_content WHERE repository_id = $1 AND id = $2`

	var data []byte
	if err := r.db.QueryRow(ctx, query, repositoryID, id).Scan(&data); err != nil {
		return nil, r.notFound("get content", err, lifecycle.ErrContentNotFound, id)
	}
	return decodeContent(data)
}

func (r *Repository) UpdateContent(ctx context.Context, repositoryID string, content *lifecycle.Content) error {
	if err := content.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode content %s: %w", content.ID, err)
	}
	cols := columnsOf(content)
	query := `
		UPDATE lifecycle_content SET
			name = $3, parent_id = $4, version_series_id = $5, is_latest_version = $6,
			is_latest_major = $7, is_pwc = $8, data = $9
		WHERE repository_id = $1 AND id = $2`

	return r.execOne(ctx, "update content", lifecycle.ErrContentNotFound, content.ID, query,
		repositoryID, content.ID, content.Name, content.ParentID, cols.seriesID,
		cols.latest, cols.major, cols.pwc, data)
}

func (r *Repository) DeleteContent(ctx context.Context, repositoryID, id string) error {
	query := `DELETE FROM lifecycle_content WHERE repository_id = $1 AND id = $2`
	return r.execOne(ctx, "delete content", lifecycle.ErrContentNotFound, id, query, repositoryID, id)
}

const latestIndex = `(base_type <> 'cmis:document' OR (is_latest_version AND NOT is_pwc))`

func (r *Repository) GetChildren(ctx context.Context, repositoryID, folderID string) ([]*lifecycle.Content, error) {
	query := `
		SELECT data FROM lifecycle_content
		WHERE repository_id = $1 AND parent_id = $2 AND ` + latestIndex + `
		ORDER BY name, seq`
	return r.queryContents(ctx, "get children", query, repositoryID, folderID)
}

func (r *Repository) GetChildByName(ctx context.Context, repositoryID, folderID, name string) (*lifecycle.Content, error) {
	query := `
		SELECT data FROM lifecycle_content
		WHERE repository_id = $1 AND parent_id = $2 AND name = $3 AND ` + latestIndex + `
		ORDER BY seq LIMIT 1`

	var data []byte
	if err := r.db.QueryRow(ctx, query, repositoryID, folderID, name).Scan(&data); err != nil {
		return nil, r.notFound("get child by name", err, lifecycle.ErrContentNotFound, name)
	}
	return decodeContent(data)
}

func (r *Repository) GetAppliedPolicies(ctx context.Context, repositoryID, objectID string) ([]*lifecycle.Content, error) {
	query := `
		SELECT data FROM lifecycle_content
		WHERE repository_id = $1 AND base_type = 'cmis:policy'
		  AND data->'policy'->'applied_ids' ? $2
		ORDER BY created, seq`
	return r.queryContents(ctx, "get applied policies", query, repositoryID, objectID)
}

// Version operations

func (r *Repository) CreateVersionSeries(ctx context.Context, repositoryID string, vs *lifecycle.VersionSeries) error {
	data, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("encode version series %s: %w", vs.ID, err)
	}
	query := `INSERT INTO lifecycle_version_series (repository_id, id, data) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, repositoryID, vs.ID, data); err != nil {
		return r.handlePostgresError("create version series", err)
	}
	return nil
}

func (r *Repository) GetVersionSeries(ctx context.Context, repositoryID, id string) (*lifecycle.VersionSeries, error) {
	query := `SELECT data FROM lifecycle_version_series WHERE repository_id = $1 AND id = $2`

	var data []byte
	if err := r.db.QueryRow(ctx, query, repositoryID, id).Scan(&data); err != nil {
		return nil, r.notFound("get version series", err, lifecycle.ErrVersionSeriesNotFound, id)
	}
	var vs lifecycle.VersionSeries
	if err := json.Unmarshal(data, &vs); err != nil {
		return nil, fmt.Errorf("decode version series %s: %w", id, err)
	}
	return &vs, nil
}

func (r *Repository) UpdateVersionSeries(ctx context.Context, repositoryID string, vs *lifecycle.VersionSeries) error {
	data, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("encode version series %s: %w", vs.ID, err)
	}
	query := `UPDATE lifecycle_version_series SET data = $3 WHERE repository_id = $1 AND id = $2`
	return r.execOne(ctx, "update version series", lifecycle.ErrVersionSeriesNotFound, vs.ID, query, repositoryID, vs.ID, data)
}

func (r *Repository) DeleteVersionSeries(ctx context.Context, repositoryID, id string) error {
	query := `DELETE FROM lifecycle_version_series WHERE repository_id = $1 AND id = $2`
	return r.execOne(ctx, "delete version series", lifecycle.ErrVersionSeriesNotFound, id, query, repositoryID, id)
}

func (r *Repository) GetAllVersions(ctx context.Context, repositoryID, versionSeriesID string) ([]*lifecycle.Content, error) {
	query := `
		SELECT data FROM lifecycle_content
		WHERE repository_id = $1 AND version_series_id = $2 AND base_type = 'cmis:document'
		ORDER BY created, seq`
	return r.queryContents(ctx, "get all versions", query, repositoryID, versionSeriesID)
}

func (r *Repository) GetLatestVersion(ctx context.Context, repositoryID, versionSeriesID string) (*lifecycle.Content, error) {
	return r.latest(ctx, "get latest version", "is_latest_version", repositoryID, versionSeriesID)
}

func (r *Repository) GetLatestMajorVersion(ctx context.Context, repositoryID, versionSeriesID string) (*lifecycle.Content, error) {
	return r.latest(ctx, "get latest major version", "is_latest_major", repositoryID, versionSeriesID)
}

func (r *Repository) latest(ctx context.Context, operation, flag, repositoryID, versionSeriesID string) (*lifecycle.Content, error) {
	query := `
		SELECT data FROM lifecycle_content
		WHERE repository_id = $1 AND version_series_id = $2 AND ` + flag + ` AND NOT is_pwc
		ORDER BY created DESC, seq DESC LIMIT 1`

	var data []byte
	if err := r.db.QueryRow(ctx, query, repositoryID, versionSeriesID).Scan(&data); err != nil {
		return nil, r.notFound(operation, err, lifecycle.ErrContentNotFound, versionSeriesID)
	}
	return decodeContent(data)
}

func (r *Repository) GetCheckedOutDocuments(ctx context.Context, repositoryID, folderID string) ([]*lifecycle.Content, error) {
	query := `
		SELECT data FROM lifecycle_content
		WHERE repository_id = $1 AND is_pwc AND ($2 = '' OR parent_id = $2)
		ORDER BY name, seq`
	return r.queryContents(ctx, "get checked out documents", query, repositoryID, folderID)
}

// Attachment operations

func (r *Repository) CreateAttachment(ctx context.Context, repositoryID string, attachment *lifecycle.Attachment) error {
	data, err := json.Marshal(attachment)
	if err != nil {
		return fmt.Errorf("encode attachment %s: %w", attachment.ID, err)
	}
	query := `INSERT INTO lifecycle_attachment (repository_id, id, data) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, repositoryID, attachment.ID, data); err != nil {
		return r.handlePostgresError("create attachment", err)
	}
	return nil
}

func (r *Repository) GetAttachment(ctx context.Context, repositoryID, id string) (*lifecycle.Attachment, error) {
	query := `SELECT data FROM lifecycle_attachment WHERE repository_id = $1 AND id = $2`

	var data []byte
	if err := r.db.QueryRow(ctx, query, repositoryID, id).Scan(&data); err != nil {
		return nil, r.notFound("get attachment", err, lifecycle.ErrAttachmentNotFound, id)
	}
	var att lifecycle.Attachment
	if err := json.Unmarshal(data, &att); err != nil {
		return nil, fmt.Errorf("decode attachment %s: %w", id, err)
	}
	return &att, nil
}

func (r *Repository) DeleteAttachment(ctx context.Context, repositoryID, id string) error {
	query := `DELETE FROM lifecycle_attachment WHERE repository_id = $1 AND id = $2`
	return r.execOne(ctx, "delete attachment", lifecycle.ErrAttachmentNotFound, id, query, repositoryID, id)
}

// Change log operations

func (r *Repository) CreateChange(ctx context.Context, repositoryID string, change *lifecycle.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change %s: %w", change.Token, err)
	}
	query := `INSERT INTO lifecycle_change (repository_id, token, data) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, repositoryID, change.Token, data); err != nil {
		return r.handlePostgresError("create change", err)
	}
	return nil
}

func (r *Repository) GetLatestChange(ctx context.Context, repositoryID string) (*lifecycle.Change, error) {
	query := `SELECT data FROM lifecycle_change WHERE repository_id = $1 ORDER BY seq DESC LIMIT 1`
	return r.queryChange(ctx, "get latest change", query, "latest", repositoryID)
}

func (r *Repository) GetChange(ctx context.Context, repositoryID, token string) (*lifecycle.Change, error) {
	query := `SELECT data FROM lifecycle_change WHERE repository_id = $1 AND token = $2`
	return r.queryChange(ctx, "get change", query, token, repositoryID, token)
}

func (r *Repository) queryChange(ctx context.Context, operation, query, token string, args ...interface{}) (*lifecycle.Change, error) {
	var data []byte
	if err := r.db.QueryRow(ctx, query, args...).Scan(&data); err != nil {
		return nil, r.notFound(operation, err, lifecycle.ErrChangeNotFound, token)
	}
	var change lifecycle.Change
	if err := json.Unmarshal(data, &change); err != nil {
		return nil, fmt.Errorf("decode change %s: %w", token, err)
	}
	return &change, nil
}

func (r *Repository) GetChangesSince(ctx context.Context, repositoryID, sinceToken string, limit int) ([]*lifecycle.Change, error) {
	var since uint64
	if sinceToken != "" {
		n, err := strconv.ParseUint(sinceToken, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: change token %q", lifecycle.ErrInvalidArgument, sinceToken)
		}
		since = n
	}
	query := `
		SELECT data FROM lifecycle_change
		WHERE repository_id = $1 AND token ~ '^[0-9]+$' AND token::numeric > $2::numeric
		ORDER BY seq`
	args := []interface{}{repositoryID, strconv.FormatUint(since, 10)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("get changes since", err)
	}
	defer rows.Close()

	var changes []*lifecycle.Change
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, r.handlePostgresError("scan change", err)
		}
		var change lifecycle.Change
		if err := json.Unmarshal(data, &change); err != nil {
			return nil, fmt.Errorf("decode change: %w", err)
		}
		changes = append(changes, &change)
	}
	return changes, rows.Err()
}

// Archive operations

func (r *Repository) CreateArchive(ctx context.Context, repositoryID string, archive *lifecycle.Archive) error {
	data, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("encode archive %s: %w", archive.ID, err)
	}
	query := `
		INSERT INTO lifecycle_archive (
			repository_id, id, original_id, type, parent_id, version_series_id, created, data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Exec(ctx, query,
		repositoryID, archive.ID, archive.OriginalID, archive.Type, archive.ParentID,
		archive.VersionSeriesID, archive.Created, data)
	if err != nil {
		return r.handlePostgresError("create archive", err)
	}
	return nil
}

func (r *Repository) GetArchive(ctx context.Context, repositoryID, id string) (*lifecycle.Archive, error) {
	query := `SELECT data FROM lifecycle_archive WHERE repository_id = $1 AND id = $2`
	return r.queryArchive(ctx, "get archive", query, id, repositoryID, id)
}

func (r *Repository) GetArchiveByOriginalID(ctx context.Context, repositoryID, originalID string) (*lifecycle.Archive, error) {
	query := `
		SELECT data FROM lifecycle_archive
		WHERE repository_id = $1 AND original_id = $2 AND type <> 'attachment'
		ORDER BY created DESC, seq DESC LIMIT 1`
	return r.queryArchive(ctx, "get archive by original id", query, originalID, repositoryID, originalID)
}

func (r *Repository) ListArchives(ctx context.Context, repositoryID string, skip, limit int, desc bool) ([]*lifecycle.Archive, error) {
	order := "created, seq"
	if desc {
		order = "created DESC, seq DESC"
	}
	query := `
		SELECT data FROM lifecycle_archive
		WHERE repository_id = $1 AND type <> 'attachment'
		ORDER BY ` + order + ` OFFSET $2`
	args := []interface{}{repositoryID, skip}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	archives, err := r.queryArchives(ctx, "list archives", query, args...)
	if err != nil {
		return nil, err
	}
	if archives == nil {
		archives = []*lifecycle.Archive{}
	}
	return archives, nil
}

func (r *Repository) GetArchivesOfVersionSeries(ctx context.Context, repositoryID, versionSeriesID string) ([]*lifecycle.Archive, error) {
	query := `
		SELECT data FROM lifecycle_archive
		WHERE repository_id = $1 AND version_series_id = $2 AND type = 'cmis:document'
		ORDER BY created, seq`
	return r.queryArchives(ctx, "get archives of version series", query, repositoryID, versionSeriesID)
}

func (r *Repository) GetChildArchives(ctx context.Context, repositoryID, parentOriginalID string) ([]*lifecycle.Archive, error) {
	query := `
		SELECT data FROM lifecycle_archive
		WHERE repository_id = $1 AND parent_id = $2 AND type <> 'attachment'
		ORDER BY created, seq`
	return r.queryArchives(ctx, "get child archives", query, repositoryID, parentOriginalID)
}

func (r *Repository) GetAttachmentArchive(ctx context.Context, repositoryID, attachmentID string) (*lifecycle.Archive, error) {
	query := `
		SELECT data FROM lifecycle_archive
		WHERE repository_id = $1 AND original_id = $2 AND type = 'attachment'
		ORDER BY created, seq LIMIT 1`
	return r.queryArchive(ctx, "get attachment archive", query, attachmentID, repositoryID, attachmentID)
}

func (r *Repository) DeleteArchive(ctx context.Context, repositoryID, id string) error {
	query := `DELETE FROM lifecycle_archive WHERE repository_id = $1 AND id = $2`
	return r.execOne(ctx, "delete archive", lifecycle.ErrArchiveNotFound, id, query, repositoryID, id)
}

// Row helpers

func decodeContent(data []byte) (*lifecycle.Content, error) {
	var content lifecycle.Content
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return &content, nil
}

func (r *Repository) queryContents(ctx context.Context, operation, query string, args ...interface{}) ([]*lifecycle.Content, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	defer rows.Close()

	var result []*lifecycle.Content
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, r.handlePostgresError(operation, err)
		}
		content, err := decodeContent(data)
		if err != nil {
			return nil, err
		}
		result = append(result, content)
	}
	return result, rows.Err()
}

func (r *Repository) queryArchive(ctx context.Context, operation, query, id string, args ...interface{}) (*lifecycle.Archive, error) {
	var data []byte
	if err := r.db.QueryRow(ctx, query, args...).Scan(&data); err != nil {
		return nil, r.notFound(operation, err, lifecycle.ErrArchiveNotFound, id)
	}
	var archive lifecycle.Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", id, err)
	}
	return &archive, nil
}

func (r *Repository) queryArchives(ctx context.Context, operation, query string, args ...interface{}) ([]*lifecycle.Archive, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	defer rows.Close()

	var result []*lifecycle.Archive
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, r.handlePostgresError(operation, err)
		}
		var archive lifecycle.Archive
		if err := json.Unmarshal(data, &archive); err != nil {
			return nil, fmt.Errorf("decode archive: %w", err)
		}
		result = append(result, &archive)
	}
	return result, rows.Err()
}

var _ lifecycle.Repository = (*Repository)(nil)
