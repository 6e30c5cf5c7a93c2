package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openmdip/keymaster/pkg/did"
)

// Cache is a non-authoritative local cache of resolved documents and a
// journal of operations this process has submitted. It exists to make
// prev-chaining and historical-key lookups cheap without hammering the
// gatekeeper on every call; the registry remains the source of truth.
type Cache struct {
	db *sql.DB
}

// NewCache opens (creating if necessary) the SQLite cache at path. An
// empty path opens an in-memory cache, useful for tests and for clients
// that don't want a persistent journal.
func NewCache(path string) (*Cache, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	cache := &Cache{db: db}
	if err := cache.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run cache migrations: %w", err)
	}
	return cache, nil
}

// Close closes the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolutions (
		did TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		last_operation_hash TEXT,
		deactivated INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		did TEXT NOT NULL,
		operation_type TEXT NOT NULL,
		operation_hash TEXT NOT NULL,
		operation_data TEXT NOT NULL,
		submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_operations_did ON operations(did);
	`
	_, err := c.db.Exec(schema)
	return err
}

// RecordResolution caches a resolved document so a later LastOperationHash
// call can avoid a round trip.
func (c *Cache) RecordResolution(target string, doc *ResolvedDocument) {
	encoded, err := json.Marshal(doc.DidDocument)
	if err != nil {
		return
	}
	deactivated := 0
	if doc.DidDocumentMetadata.Deactivated {
		deactivated = 1
	}
	c.db.Exec(
		`INSERT INTO resolutions (did, document, last_operation_hash, deactivated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(did) DO UPDATE SET
		   document = excluded.document,
		   last_operation_hash = excluded.last_operation_hash,
		   deactivated = excluded.deactivated,
		   updated_at = CURRENT_TIMESTAMP`,
		target, string(encoded), doc.DidDocumentMetadata.LastOperationHash, deactivated,
	)
}

// RecordOperation journals an operation this client submitted, keyed by
// the DID it targets (or, for a create operation, the DID it produced).
func (c *Cache) RecordOperation(target string, op did.Operation) {
	if target == "" || op.Signature == nil {
		return
	}
	encoded, err := json.Marshal(op)
	if err != nil {
		return
	}
	c.db.Exec(
		`INSERT INTO operations (did, operation_type, operation_hash, operation_data)
		 VALUES (?, ?, ?, ?)`,
		target, op.Op, op.Signature.Hash, string(encoded),
	)
}

// LastOperationHash returns the most recently journaled operation hash
// for target or, failing that, the hash recorded by its last cached
// resolution, if this client has seen either.
func (c *Cache) LastOperationHash(target string) (string, bool) {
	var hash string
	err := c.db.QueryRow(
		`SELECT operation_hash FROM operations WHERE did = ? ORDER BY id DESC LIMIT 1`,
		target,
	).Scan(&hash)
	if err == nil {
		return hash, true
	}
	err = c.db.QueryRow(
		`SELECT last_operation_hash FROM resolutions WHERE did = ? AND last_operation_hash != ''`,
		target,
	).Scan(&hash)
	if err != nil {
		return "", false
	}
	return hash, true
}

// HistoricalPublicKeys returns the public keys carried by every prior
// operation for target, newest first, decoded as generic JWK maps that
// credential.Engine.candidatePublicKeys decodes into a keys.JWK and
// converts with keys.JWKToPublicKey. A create-agent or update operation may
// carry its key directly (publicJwk) or embedded in a full document (doc);
// both shapes are checked.
func (c *Cache) HistoricalPublicKeys(target string) []interface{} {
	rows, err := c.db.Query(
		`SELECT operation_data FROM operations WHERE did = ? ORDER BY id DESC`,
		target,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var keys []interface{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		var op did.Operation
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			continue
		}

		jwk := op.PublicJwk
		if jwk == nil && op.Doc != nil {
			for _, pk := range op.Doc.PublicKeys {
				if pk.PublicKeyJwk != nil && pk.PublicKeyJwk.Kty == "EC" {
					jwk = pk.PublicKeyJwk
					break
				}
			}
		}
		if jwk == nil {
			continue
		}

		var jwkMap map[string]interface{}
		encoded, err := json.Marshal(jwk)
		if err != nil {
			continue
		}
		if err := json.Unmarshal(encoded, &jwkMap); err != nil {
			continue
		}
		keys = append(keys, jwkMap)
	}
	return keys
}
