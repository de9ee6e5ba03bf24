package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/palmastro/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при временных ошибках БД с паузами из retryDelays.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(retryDelays) {
			return err
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr) || pgconn.SafeToRetry(err)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.User, passwordHash []byte) error {
	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, username, first_name, last_name, plan, is_premium, member_since)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			u.ID, u.Email, passwordHash, u.Username, u.FirstName, u.LastName, u.Plan, u.IsPremium, u.MemberSince,
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const selectUser = `SELECT id, email, password_hash, username, first_name, last_name, plan, is_premium, member_since FROM users`

func scanUser(row pgx.Row) (*StoredUser, error) {
	var su StoredUser
	u := &su.User
	err := row.Scan(&u.ID, &u.Email, &su.PasswordHash, &u.Username, &u.FirstName, &u.LastName, &u.Plan, &u.IsPremium, &u.MemberSince)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &su, nil
}

// GetUserByEmail возвращает пользователя по адресу.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*StoredUser, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE email = $1`, email))
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*StoredUser, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
}

// UpdatePlan меняет тарифный план пользователя.
func (r *PostgresRepository) UpdatePlan(ctx context.Context, userID, plan string, premium bool) error {
	var affected int64
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users SET plan = $2, is_premium = $3 WHERE id = $1`,
			userID, plan, premium,
		)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SaveReading сохраняет чтение пользователя.
func (r *PostgresRepository) SaveReading(ctx context.Context, reading model.Reading) error {
	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO saved_readings (id, user_id, reading_type, status, accuracy, result, source_id, palm_reference_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			reading.ID, reading.UserID, string(reading.Kind), string(reading.Status), reading.Accuracy,
			[]byte(reading.Result), reading.SourceID, reading.PalmReferenceID, reading.CreatedAt,
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return fmt.Errorf("%w: %s", ErrReadingExists, reading.SourceID)
			case pgerrcode.ForeignKeyViolation:
				return ErrUserNotFound
			}
		}
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ListReadings возвращает страницу чтений пользователя от новых к старым и их общее число.
func (r *PostgresRepository) ListReadings(ctx context.Context, userID string, limit, offset int) ([]model.Reading, int, error) {
	total, err := r.CountReadings(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, reading_type, status, accuracy, result, source_id, palm_reference_id, created_at
		 FROM saved_readings
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		userID, lim, max(offset, 0),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select readings: %w", err)
	}
	defer rows.Close()

	res := []model.Reading{}
	for rows.Next() {
		var (
			reading model.Reading
			kind    string
			status  string
			result  []byte
		)
		if err := rows.Scan(&reading.ID, &reading.UserID, &kind, &status, &reading.Accuracy, &result,
			&reading.SourceID, &reading.PalmReferenceID, &reading.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan reading: %w", err)
		}
		reading.Kind = model.ReadingKind(kind)
		reading.Status = model.ReadingStatus(status)
		reading.Result = result
		reading.UpdatedAt = reading.CreatedAt
		res = append(res, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return res, total, nil
}

// CountReadings возвращает число сохранённых чтений пользователя.
func (r *PostgresRepository) CountReadings(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM saved_readings WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}
