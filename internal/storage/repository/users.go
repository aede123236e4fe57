package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/identity-service/internal/models"
)

const userColumns = `id, username, first_name, last_name, photo_url, role,
			      license_end_date, balance, ref_code, referred_by_id,
			      or_api_key, or_api_hash, or_model`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var username, firstName, lastName, photoURL, refCode sql.NullString
	var apiKey, apiHash, model sql.NullString
	var licenseEndDate sql.NullTime
	var referredByID sql.NullInt64

	if err := row.Scan(&u.ID, &username, &firstName, &lastName, &photoURL,
		&u.Role, &licenseEndDate, &u.Balance, &refCode, &referredByID,
		&apiKey, &apiHash, &model); err != nil {
		return nil, err
	}

	u.Username = nullStr(username)
	u.FirstName = nullStr(firstName)
	u.LastName = nullStr(lastName)
	u.PhotoURL = nullStr(photoURL)
	u.RefCode = nullStr(refCode)
	u.ORApiKey = nullStr(apiKey)
	u.ORApiHash = nullStr(apiHash)
	u.ORModel = nullStr(model)
	if licenseEndDate.Valid {
		u.LicenseEndDate = &licenseEndDate.Time
	}
	if referredByID.Valid {
		u.ReferredByID = &referredByID.Int64
	}
	return u, nil
}

func nullStr(v sql.NullString) *string {
	if v.Valid {
		return &v.String
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// GetUserByID возвращает пользователя по его телеграм-ID.
func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.GetUserByID"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByUsername возвращает пользователя по его username.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE username = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByRefCode возвращает пользователя по его реферальному коду.
func (s *Storage) GetUserByRefCode(ctx context.Context, refCode string) (*models.User, error) {
	const op = "storage.GetUserByRefCode"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE ref_code = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, refCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// RefCodeExists проверяет занятость реферального кода.
func (s *Storage) RefCodeExists(ctx context.Context, code string) (bool, error) {
	const op = "storage.RefCodeExists"

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE ref_code = $1)`
	if err := s.DB.QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// CreateUser сохраняет нового пользователя. ID приходит извне и не
// генерируется базой. Возвращает ErrRefCodeTaken, если реферальный код
// успел занять другой пользователь.
func (s *Storage) CreateUser(ctx context.Context, u models.User) error {
	const op = "storage.CreateUser"

	query := `INSERT INTO users (id, username, first_name, last_name, photo_url,
			      role, balance, ref_code, referred_by_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.DB.ExecContext(ctx, query,
		u.ID, u.Username, u.FirstName, u.LastName, u.PhotoURL,
		u.Role, u.Balance, u.RefCode, u.ReferredByID)
	if isUniqueViolation(err) {
		return ErrRefCodeTaken
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateProfile перезаписывает изменяемые поля профиля значениями из
// свежих данных входа. Вызывается на каждом логине.
func (s *Storage) UpdateProfile(ctx context.Context, id int64, username, firstName, lastName, photoURL *string) error {
	const op = "storage.UpdateProfile"

	query := `UPDATE users
			  SET username = $2, first_name = $3, last_name = $4, photo_url = $5
			  WHERE id = $1`
	_, err := s.DB.ExecContext(ctx, query, id, username, firstName, lastName, photoURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetRefCodeIfAbsent присваивает реферальный код только если он еще не
// присвоен. Условие в базе, а не в приложении: код после присвоения
// неизменяем даже при конкурентных логинах.
func (s *Storage) SetRefCodeIfAbsent(ctx context.Context, id int64, code string) (bool, error) {
	const op = "storage.SetRefCodeIfAbsent"

	query := `UPDATE users
			  SET ref_code = $2
			  WHERE id = $1 AND ref_code IS NULL`
	res, err := s.DB.ExecContext(ctx, query, id, code)
	if isUniqueViolation(err) {
		return false, ErrRefCodeTaken
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// SetReferrerIfAbsent выставляет пригласившего, только если он еще не
// выставлен и не указывает на самого пользователя.
func (s *Storage) SetReferrerIfAbsent(ctx context.Context, id, referrerID int64) (bool, error) {
	const op = "storage.SetReferrerIfAbsent"

	query := `UPDATE users
			  SET referred_by_id = $2
			  WHERE id = $1 AND referred_by_id IS NULL AND id <> $2`
	res, err := s.DB.ExecContext(ctx, query, id, referrerID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// UpsertUserParams параметры частичного upsert из внутренней границы
// синхронизации. Nil-поля никогда не затирают существующие значения.
type UpsertUserParams struct {
	ID             int64
	Username       *string
	FirstName      *string
	LastName       *string
	PhotoURL       *string
	Role           *int
	LicenseEndDate *time.Time
	Balance        *int64
	RefCode        *string
	ORApiKey       *string
	ORApiHash      *string
	ORModel        *string
}

// UpsertUser создает или частично обновляет пользователя по ID.
// Возвращает true, если пользователь был создан.
func (s *Storage) UpsertUser(ctx context.Context, p UpsertUserParams) (bool, error) {
	const op = "storage.UpsertUser"

	// xmax = 0 отличает вставленную строку от обновленной.
	query := `INSERT INTO users (id, username, first_name, last_name, photo_url,
			      role, license_end_date, balance, ref_code,
			      or_api_key, or_api_hash, or_model)
			  VALUES ($1, $2, $3, $4, $5, COALESCE($6, 0), $7, COALESCE($8, 0), $9, $10, $11, $12)
			  ON CONFLICT (id) DO UPDATE SET
			      username = COALESCE($2, users.username),
			      first_name = COALESCE($3, users.first_name),
			      last_name = COALESCE($4, users.last_name),
			      photo_url = COALESCE($5, users.photo_url),
			      role = COALESCE($6, users.role),
			      license_end_date = COALESCE($7, users.license_end_date),
			      balance = COALESCE($8, users.balance),
			      ref_code = COALESCE($9, users.ref_code),
			      or_api_key = COALESCE($10, users.or_api_key),
			      or_api_hash = COALESCE($11, users.or_api_hash),
			      or_model = COALESCE($12, users.or_model)
			  RETURNING (xmax = 0)`
	var created bool
	err := s.DB.QueryRowContext(ctx, query,
		p.ID, p.Username, p.FirstName, p.LastName, p.PhotoURL,
		p.Role, p.LicenseEndDate, p.Balance, p.RefCode,
		p.ORApiKey, p.ORApiHash, p.ORModel).Scan(&created)
	if isUniqueViolation(err) {
		return false, ErrRefCodeTaken
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// SetOpenRouterSettings обновляет учетные данные OpenRouter. Каждое поле
// выставляется независимо: nil-аргументы не трогают остальные.
func (s *Storage) SetOpenRouterSettings(ctx context.Context, id int64, apiKey, apiHash, model *string) error {
	const op = "storage.SetOpenRouterSettings"

	query := `UPDATE users
			  SET or_api_key = COALESCE($2, or_api_key),
			      or_api_hash = COALESCE($3, or_api_hash),
			      or_model = COALESCE($4, or_model)
			  WHERE id = $1`
	res, err := s.DB.ExecContext(ctx, query, id, apiKey, apiHash, model)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ExtendLicense продлевает лицензию на days дней: от текущего момента,
// если лицензии нет или она истекла, иначе от текущей даты окончания.
func (s *Storage) ExtendLicense(ctx context.Context, id int64, days int) (time.Time, error) {
	const op = "storage.ExtendLicense"

	query := `UPDATE users
			  SET license_end_date = CASE
			      WHEN license_end_date IS NULL OR license_end_date < now()
			          THEN now() + $2 * INTERVAL '1 day'
			      ELSE license_end_date + $2 * INTERVAL '1 day'
			  END
			  WHERE id = $1
			  RETURNING license_end_date`
	var endDate time.Time
	err := s.DB.QueryRowContext(ctx, query, id, days).Scan(&endDate)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrUserNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return endDate, nil
}

// AddBalance пополняет баланс на сумму в копейках и возвращает новый баланс.
func (s *Storage) AddBalance(ctx context.Context, id, kopecks int64) (int64, error) {
	const op = "storage.AddBalance"

	query := `UPDATE users
			  SET balance = balance + $2
			  WHERE id = $1
			  RETURNING balance`
	var balance int64
	err := s.DB.QueryRowContext(ctx, query, id, kopecks).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return balance, nil
}

// DebitBalance атомарно списывает сумму, только если баланса хватает.
// Условие и декремент выполняются одним запросом, поэтому при
// конкурентных списаниях баланс не уходит в минус. При отказе возвращает
// текущий баланс вместе с ErrInsufficientFunds.
func (s *Storage) DebitBalance(ctx context.Context, id, amount int64) (int64, error) {
	const op = "storage.DebitBalance"

	query := `UPDATE users
			  SET balance = balance - $2
			  WHERE id = $1 AND balance >= $2
			  RETURNING balance`
	var balance int64
	err := s.DB.QueryRowContext(ctx, query, id, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	err = s.DB.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return balance, ErrInsufficientFunds
}

// ListReferrals возвращает пользователей, пришедших по коду данного пользователя.
func (s *Storage) ListReferrals(ctx context.Context, id int64) ([]*models.User, error) {
	const op = "storage.ListReferrals"

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE referred_by_id = $1
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
