package db

import (
	"context"
	"database/sql"
	"log"
)

const (
	// Activities: one row per activity IRI, JSON document in wire form.
	// object_iri is denormalized for the update/delete fan-out.
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
		iri TEXT NOT NULL PRIMARY KEY,
		activity_type TEXT NOT NULL,
		actor_iri TEXT,
		object_iri TEXT,
		doc TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_actor ON activities(actor_iri);
		CREATE INDEX IF NOT EXISTS idx_activities_object ON activities(object_iri);
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
	`

	// Objects and actors, local and cached remote. private_key only for
	// local actors.
	sqlCreateObjectsTable = `CREATE TABLE IF NOT EXISTS objects (
		iri TEXT NOT NULL PRIMARY KEY,
		object_type TEXT NOT NULL,
		doc TEXT NOT NULL,
		private_key TEXT DEFAULT '',
		fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateObjectsIndices = `
		CREATE INDEX IF NOT EXISTS idx_objects_type ON objects(object_type);
	`

	// Hidden per-entity meta sets. The UNIQUE triple is what makes
	// membership add/remove an atomic row operation.
	sqlCreateEntityMetaTable = `CREATE TABLE IF NOT EXISTS entity_meta (
		entity_iri TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		UNIQUE(entity_iri, key, value)
	)`

	sqlCreateEntityMetaIndices = `
		CREATE INDEX IF NOT EXISTS idx_entity_meta_entity ON entity_meta(entity_iri);
		CREATE INDEX IF NOT EXISTS idx_entity_meta_value ON entity_meta(key, value);
	`

	// Delivery queue table
	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		actor_iri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(context.Background(), func(tx *sql.Tx) error {
		if err := db.createTableIfNotExists(tx, sqlCreateActivitiesTable, "activities"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateObjectsTable, "objects"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateEntityMetaTable, "entity_meta"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateDeliveryQueueTable, "delivery_queue"); err != nil {
			return err
		}

		if _, err := tx.Exec(sqlCreateActivitiesIndices); err != nil {
			log.Printf("Warning: Failed to create activities indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateObjectsIndices); err != nil {
			log.Printf("Warning: Failed to create objects indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateEntityMetaIndices); err != nil {
			log.Printf("Warning: Failed to create entity_meta indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateDeliveryQueueIndices); err != nil {
			log.Printf("Warning: Failed to create delivery_queue indices: %v", err)
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	return nil
}
