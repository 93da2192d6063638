package snowflake

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/json"
	"encoding/pem"
	"fmt"

	sf "github.com/snowflakedb/gosnowflake"
)

// Secret is the warehouse credential payload, as stored in the secrets
// manager. The private key is PEM-encoded PKCS#8.
type Secret struct {
	Account    string `json:"account"`
	User       string `json:"user"`
	Role       string `json:"role"`
	Warehouse  string `json:"warehouse"`
	PrivateKey string `json:"private_key"`
}

// ParseSecret decodes the secret payload.
func ParseSecret(payload []byte) (Secret, error) {
	var secret Secret
	if err := json.Unmarshal(payload, &secret); err != nil {
		return Secret{}, fmt.Errorf("decoding warehouse secret: %w", err)
	}
	return secret, nil
}

// Open connects to the warehouse with key-pair authentication, scoped to
// the given database.
func Open(secret Secret, database string) (*sql.DB, error) {
	var key, err = parsePrivateKey(secret.PrivateKey)
	if err != nil {
		return nil, err
	}
	var cfg = sf.Config{
		Account:       secret.Account,
		User:          secret.User,
		Role:          secret.Role,
		Warehouse:     secret.Warehouse,
		Database:      database,
		Authenticator: sf.AuthTypeJwt,
		PrivateKey:    key,
	}
	dsn, err := sf.DSN(&cfg)
	if err != nil {
		return nil, fmt.Errorf("building warehouse DSN: %w", err)
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening warehouse connection: %w", err)
	}
	return db, nil
}

func parsePrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	var block, _ = pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("warehouse secret private key is not PEM")
	}
	var parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing warehouse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("warehouse private key is %T, want RSA", parsed)
	}
	return key, nil
}

// DBCursor adapts a database handle to the Cursor interface, fetching each
// statement's full result.
type DBCursor struct {
	DB *sql.DB
}

func (c *DBCursor) Execute(ctx context.Context, stmt string) (*Rows, error) {
	var rows, err = c.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var result = &Rows{Columns: columns}
	for rows.Next() {
		var values = make([]interface{}, len(columns))
		var scans = make([]interface{}, len(columns))
		for i := range values {
			scans[i] = &values[i]
		}
		if err = rows.Scan(scans...); err != nil {
			return nil, err
		}
		result.Data = append(result.Data, values)
	}
	return result, rows.Err()
}
