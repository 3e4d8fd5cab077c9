package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/videoflix/backend/internal/db"
	"github.com/videoflix/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, user.ID, user.Email, user.Password, user.IsActive, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, `
        SELECT id, email, password_hash, is_active, created_at, updated_at
        FROM users
        WHERE id = $1
    `, id)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, `
        SELECT id, email, password_hash, is_active, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)
}

// SetActive marks the user as activated. Activating an already-active user is
// a no-op that still succeeds.
func (r *PostgresUserRepository) SetActive(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET is_active = TRUE, updated_at = $2
        WHERE id = $1
    `, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdatePassword replaces the stored password hash. Any single-use tokens
// derived from the previous hash stop verifying from this point on.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET password_hash = $2, updated_at = $3
        WHERE id = $1
    `, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query, arg string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, query, arg)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, title, description, category, thumbnail, source_file, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, video.ID, video.Title, video.Description, video.Category, video.Thumbnail, video.SourceFile, video.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByID fetches a single video by primary key.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, title, description, category, thumbnail, source_file, created_at
        FROM videos
        WHERE id = $1
    `, id)

	var video models.Video
	if err := row.Scan(&video.ID, &video.Title, &video.Description, &video.Category, &video.Thumbnail, &video.SourceFile, &video.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}

	return video, nil
}

// List returns all videos, newest first.
func (r *PostgresVideoRepository) List(ctx context.Context) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, title, description, category, thumbnail, source_file, created_at
        FROM videos
        ORDER BY created_at DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var video models.Video
		if err := rows.Scan(&video.ID, &video.Title, &video.Description, &video.Category, &video.Thumbnail, &video.SourceFile, &video.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

// Delete removes a video row and returns the deleted record so callers can
// clean up derived files afterwards.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        DELETE FROM videos
        WHERE id = $1
        RETURNING id, title, description, category, thumbnail, source_file, created_at
    `, id)

	var video models.Video
	if err := row.Scan(&video.ID, &video.Title, &video.Description, &video.Category, &video.Thumbnail, &video.SourceFile, &video.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("delete video: %w", err)
	}

	return video, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
