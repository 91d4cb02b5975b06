package sqlite

import (
	"database/sql"
	"time"

	"github.com/italolelis/restricted_saver/internal/storage"
)

// UserRepository implements storage.CredentialStore on SQLite.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(dbConn *sql.DB) *UserRepository {
	return &UserRepository{db: dbConn}
}

// AddUser registers a user on first contact. Re-adding an existing id is a no-op.
func (r *UserRepository) AddUser(id int64, name string) error {
	now := time.Now().Format(time.RFC3339)

	_, err := r.db.Exec(`
		INSERT INTO users (id, name, session, api_id, api_hash, created_at, last_active)
		VALUES (?, ?, NULL, NULL, NULL, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name, now, now)

	return err
}

func (r *UserRepository) Exists(id int64) (bool, error) {
	var one int

	err := r.db.QueryRow(`SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *UserRepository) GetSession(id int64) (string, bool, error) {
	var session sql.NullString

	err := r.db.QueryRow(`SELECT session FROM users WHERE id = ?`, id).Scan(&session)
	if err == sql.ErrNoRows {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return session.String, session.Valid && session.String != "", nil
}

// SetSession stores the credential; an empty string clears it (logout).
func (r *UserRepository) SetSession(id int64, session string) error {
	var value any
	if session != "" {
		value = session
	}

	_, err := r.db.Exec(`UPDATE users SET session = ? WHERE id = ?`, value, id)

	return err
}

func (r *UserRepository) GetKeyPair(id int64) (int, string, bool, error) {
	var (
		apiID   sql.NullInt64
		apiHash sql.NullString
	)

	err := r.db.QueryRow(`SELECT api_id, api_hash FROM users WHERE id = ?`, id).Scan(&apiID, &apiHash)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}

	if err != nil {
		return 0, "", false, err
	}

	if !apiID.Valid || !apiHash.Valid {
		return 0, "", false, nil
	}

	return int(apiID.Int64), apiHash.String, true, nil
}

func (r *UserRepository) SetKeyPair(id int64, apiID int, apiHash string) error {
	_, err := r.db.Exec(`UPDATE users SET api_id = ?, api_hash = ? WHERE id = ?`, apiID, apiHash, id)

	return err
}

func (r *UserRepository) ListAll() ([]storage.UserRecord, error) {
	rows, err := r.db.Query(`SELECT id, name, session, api_id, api_hash, created_at, last_active FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []storage.UserRecord

	for rows.Next() {
		record, err := scanUser(rows)
		if err != nil {
			return nil, err
		}

		users = append(users, record)
	}

	return users, rows.Err()
}

func (r *UserRepository) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM users WHERE id = ?`, id)

	return err
}

func (r *UserRepository) TouchActivity(id int64) error {
	_, err := r.db.Exec(`UPDATE users SET last_active = ? WHERE id = ?`, time.Now().Format(time.RFC3339), id)

	return err
}

func (r *UserRepository) CountUsers() (int64, error) {
	var count int64

	err := r.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)

	return count, err
}

func scanUser(rows *sql.Rows) (storage.UserRecord, error) {
	var (
		record     storage.UserRecord
		session    sql.NullString
		apiID      sql.NullInt64
		apiHash    sql.NullString
		createdAt  sql.NullString
		lastActive sql.NullString
	)

	if err := rows.Scan(&record.ID, &record.Name, &session, &apiID, &apiHash, &createdAt, &lastActive); err != nil {
		return record, err
	}

	record.Session = session.String
	record.APIID = int(apiID.Int64)
	record.APIHash = apiHash.String

	if createdAt.Valid {
		record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}

	if lastActive.Valid {
		record.LastActive, _ = time.Parse(time.RFC3339, lastActive.String)
	}

	return record, nil
}
