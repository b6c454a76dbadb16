package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/deemkeen/mammut/domain"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the sqlite-backed entity store. Activities and objects are kept as
// JSON documents in the wire representation; the hidden meta block lives in
// the entity_meta table so membership changes are atomic row operations,
// never whole-document overwrites.
type DB struct {
	db *sql.DB
}

const (
	sqlInsertActivity = `INSERT OR IGNORE INTO activities(iri, activity_type, actor_iri, object_iri, doc, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectActivity = `SELECT doc FROM activities WHERE iri = ?`
	sqlSelectActivitiesByObject = `SELECT iri, doc FROM activities WHERE object_iri = ?`
	sqlUpdateActivityDoc        = `UPDATE activities SET doc = ? WHERE iri = ?`

	sqlUpsertObject = `INSERT INTO objects(iri, object_type, doc, private_key, fetched_at, created_at) VALUES (?, ?, ?, ?, ?, ?)
                        ON CONFLICT(iri) DO UPDATE SET object_type = excluded.object_type, doc = excluded.doc,
                        private_key = CASE WHEN excluded.private_key != '' THEN excluded.private_key ELSE objects.private_key END,
                        fetched_at = excluded.fetched_at`
	sqlSelectObject        = `SELECT doc, private_key FROM objects WHERE iri = ?`
	sqlUpdateObjectDoc     = `UPDATE objects SET doc = ? WHERE iri = ?`

	// The atomic set primitives of the membership metadata.
	sqlInsertMeta = `INSERT OR IGNORE INTO entity_meta(entity_iri, key, value) VALUES (?, ?, ?)`
	sqlDeleteMeta = `DELETE FROM entity_meta WHERE entity_iri = ? AND key = ? AND value = ?`
	sqlDeleteMetaKey = `DELETE FROM entity_meta WHERE entity_iri = ? AND key = ?`
	sqlSelectMeta    = `SELECT key, value FROM entity_meta WHERE entity_iri = ? ORDER BY rowid`
	// members may be activities or plain objects (Add can file either)
	sqlSelectMembers = `SELECT doc FROM (
                            SELECT a.doc AS doc, m.rowid AS ord FROM entity_meta m
                            INNER JOIN activities a ON a.iri = m.entity_iri WHERE m.key = ? AND m.value = ?%[1]s
                            UNION ALL
                            SELECT o.doc AS doc, m.rowid AS ord FROM entity_meta m
                            INNER JOIN objects o ON o.iri = m.entity_iri WHERE m.key = ? AND m.value = ?%[1]s
                        ) ORDER BY ord`
	sqlMemberFilter = ` AND EXISTS (SELECT 1 FROM entity_meta f WHERE f.entity_iri = m.entity_iri AND f.key = ?)`
)

// New opens (or creates) the store at the given path. Use ":memory:" for
// tests.
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// every pool connection would otherwise get its own empty in-memory
	// database
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}

	var journalMode string
	if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		log.Printf("Warning: Failed to enable WAL mode: %v", err)
	} else {
		log.Printf("Database journal mode: %s", journalMode)
	}

	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")
	sqlDB.Exec("PRAGMA foreign_keys = ON")

	db := &DB{db: sqlDB}
	if err := db.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.db.Close()
}

// SaveActivity persists an activity keyed by IRI. Saving an identical
// activity a second time is a no-op: the existing canonical record is
// returned with isNew = false and the caller decides whether the delivery
// still carries a new collection membership.
func (db *DB) SaveActivity(ctx context.Context, a *domain.Entity) (*domain.Entity, bool, error) {
	doc, err := json.Marshal(a)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal activity: %w", err)
	}

	var actorIRI string
	if len(a.Actor) > 0 {
		actorIRI = a.Actor[0]
	}

	var inserted bool
	err = db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlInsertActivity, a.ID, a.Type, actorIRI, a.ObjectID(), string(doc), time.Now())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		if !inserted {
			return nil
		}
		for key, values := range a.Meta {
			for _, v := range values {
				if _, err := tx.ExecContext(ctx, sqlInsertMeta, a.ID, key, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if inserted {
		return a, true, nil
	}
	existing, err := db.GetActivity(ctx, a.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetActivity loads an activity and its meta block by IRI.
func (db *DB) GetActivity(ctx context.Context, iri string) (*domain.Entity, error) {
	row := db.db.QueryRowContext(ctx, sqlSelectActivity, iri)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	a, err := unmarshalEntity(doc)
	if err != nil {
		return nil, err
	}
	a.Meta, err = db.readMeta(ctx, iri)
	return a, err
}

// SaveObject upserts an object document. An empty private key never
// clobbers a stored one, so cached remote actor refreshes keep local keys
// intact.
func (db *DB) SaveObject(ctx context.Context, o *domain.Entity) error {
	privateKey := ""
	if keys := o.Meta.Get(domain.MetaPrivateKey); len(keys) > 0 {
		privateKey = keys[0]
	}
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal object: %w", err)
	}
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlUpsertObject, o.ID, o.Type, string(doc), privateKey, time.Now(), time.Now())
		return err
	})
}

// GetObject loads an object by IRI. The private key is only attached when
// explicitly requested.
func (db *DB) GetObject(ctx context.Context, iri string, includePrivate bool) (*domain.Entity, error) {
	row := db.db.QueryRowContext(ctx, sqlSelectObject, iri)
	var doc, privateKey string
	if err := row.Scan(&doc, &privateKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	o, err := unmarshalEntity(doc)
	if err != nil {
		return nil, err
	}
	o.Meta, err = db.readMeta(ctx, iri)
	if err != nil {
		return nil, err
	}
	if includePrivate && privateKey != "" {
		o.Meta.Add(domain.MetaPrivateKey, privateKey)
	}
	return o, nil
}

// UpdateObject applies patch to the canonical stored object and to every
// activity holding a denormalized embedded copy, in one transaction. With
// fullReplace the stored document is overwritten (identity preserved);
// otherwise only the supplied top-level fields are merged. Returns the
// merged object.
func (db *DB) UpdateObject(ctx context.Context, patch *domain.Entity, actorIRI string, fullReplace bool) (*domain.Entity, error) {
	var merged *domain.Entity
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, sqlSelectObject, patch.ID)
		var doc, privateKey string
		if err := row.Scan(&doc, &privateKey); err != nil {
			if err == sql.ErrNoRows {
				return domain.ErrNotFound
			}
			return err
		}
		if fullReplace {
			merged = patch.Clone()
		} else {
			stored, err := unmarshalEntity(doc)
			if err != nil {
				return err
			}
			stored.Merge(patch)
			merged = stored
		}
		mergedDoc, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlUpdateObjectDoc, string(mergedDoc), patch.ID); err != nil {
			return err
		}
		return db.patchEmbeddedCopies(ctx, tx, merged)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// patchEmbeddedCopies rewrites the embedded object inside every activity
// that denormalizes it.
func (db *DB) patchEmbeddedCopies(ctx context.Context, tx *sql.Tx, merged *domain.Entity) error {
	rows, err := tx.QueryContext(ctx, sqlSelectActivitiesByObject, merged.ID)
	if err != nil {
		return err
	}
	type update struct{ iri, doc string }
	var updates []update
	for rows.Next() {
		var iri, doc string
		if err := rows.Scan(&iri, &doc); err != nil {
			rows.Close()
			return err
		}
		a, err := unmarshalEntity(doc)
		if err != nil {
			rows.Close()
			return err
		}
		changed := false
		for i, o := range a.Object {
			if o != nil && o.ID == merged.ID && o.Type != "" {
				a.Object[i] = merged
				changed = true
			}
		}
		if !changed {
			continue
		}
		newDoc, err := json.Marshal(a)
		if err != nil {
			rows.Close()
			return err
		}
		updates = append(updates, update{iri, string(newDoc)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, sqlUpdateActivityDoc, u.doc, u.iri); err != nil {
			return err
		}
	}
	return nil
}

// UpdateActivityMeta atomically adds or removes one value in one named meta
// set on the canonical stored record and returns that record freshly
// loaded. Concurrent requests appending different memberships to the same
// entity therefore never clobber each other.
func (db *DB) UpdateActivityMeta(ctx context.Context, e *domain.Entity, key, value string, remove bool) (*domain.Entity, error) {
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if remove {
			_, err := tx.ExecContext(ctx, sqlDeleteMeta, e.ID, key, value)
			return err
		}
		_, err := tx.ExecContext(ctx, sqlInsertMeta, e.ID, key, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	updated, err := db.GetActivity(ctx, e.ID)
	if err == domain.ErrNotFound {
		// meta also attaches to plain objects (e.g. rejections of follows
		// we only know as objects)
		updated, err = db.GetObject(ctx, e.ID, false)
	}
	return updated, err
}

// RemoveActivity strips the entity from every collection it belongs to in
// a single keyed removal. The record itself is kept.
func (db *DB) RemoveActivity(ctx context.Context, e *domain.Entity, actorIRI string) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlDeleteMetaKey, e.ID, domain.MetaCollection)
		return err
	})
}

// GetCollection builds the ordered snapshot of a named collection from the
// membership metadata. Optional filter keys restrict the result to members
// also flagged with every given meta key, e.g. accepted follows only.
func (db *DB) GetCollection(ctx context.Context, iri string, filters ...string) (*domain.Entity, error) {
	query := fmt.Sprintf(sqlSelectMembers, strings.Repeat(sqlMemberFilter, len(filters)))
	args := make([]any, 0, 2*(2+len(filters)))
	for i := 0; i < 2; i++ {
		args = append(args, domain.MetaCollection, iri)
		for _, f := range filters {
			args = append(args, f)
		}
	}
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items domain.EntityList
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		item, err := unmarshalEntity(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	total := len(items)
	return &domain.Entity{
		ID:           iri,
		Type:         "OrderedCollection",
		TotalItems:   &total,
		OrderedItems: items,
	}, nil
}

func (db *DB) readMeta(ctx context.Context, iri string) (domain.Meta, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectMeta, iri)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meta domain.Meta
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, err
		}
		meta.Add(key, value)
	}
	return meta, rows.Err()
}

func unmarshalEntity(doc string) (*domain.Entity, error) {
	var e domain.Entity
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored entity: %w", err)
	}
	return &e, nil
}

// wrapTransaction runs the given function within a transaction, retrying
// on SQLITE_BUSY.
func (db *DB) wrapTransaction(ctx context.Context, f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}
