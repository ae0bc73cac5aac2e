package postgres

// SQL query constants for credential operations

const (
	// _SQL_GET_PLATFORMS_BY_CODE retrieves every platform registered under an auth code
	_SQL_GET_PLATFORMS_BY_CODE = `
		SELECT id, name, platform, code, check_code, description, metadata, created_at
		FROM platforms
		WHERE code = $1
		ORDER BY id ASC`

	// _SQL_CREATE_PLATFORM registers a platform
	_SQL_CREATE_PLATFORM = `
		INSERT INTO platforms
		(name, platform, code, check_code, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	// _SQL_GET_USER_BY_USERNAME retrieves a user by username
	_SQL_GET_USER_BY_USERNAME = `
		SELECT id, username, email, name, admin, active, created_at
		FROM users
		WHERE username = $1`

	// _SQL_CREATE_USER registers a user
	_SQL_CREATE_USER = `
		INSERT INTO users
		(username, email, name, admin, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
)
