package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/libracore/libracore/internal/codec"
	"github.com/libracore/libracore/pkg/index"
)

// SQLiteAdapter persists libraries, documents, and chunks in a single
// SQLite file, with foreign keys enforcing the cascades the in-process
// store performs logically (spec §4.7).
type SQLiteAdapter struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and
// ensures its schema exists.
//
// _journal_mode=WAL: readers don't block the writer.
// _synchronous=NORMAL: durable enough, avoids an fsync per statement.
// _busy_timeout=5000: wait on a busy writer instead of failing immediately.
// _pragma=foreign_keys(1): foreign_keys is per-connection, not pool-wide,
// so it has to ride in the DSN itself rather than a one-off Exec — the
// pool opens more than one connection under concurrent load and a pragma
// run through ExecContext only ever lands on whichever connection served
// that call.
func OpenSQLite(ctx context.Context, path string) (*SQLiteAdapter, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	a := &SQLiteAdapter{db: db}
	if err := a.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteAdapter) createTables(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS libraries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		dims INTEGER NOT NULL,
		index_kind TEXT NOT NULL,
		index_params TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		library_id TEXT NOT NULL,
		title TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (library_id) REFERENCES libraries(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		library_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		text TEXT NOT NULL,
		vector BLOB NOT NULL,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (library_id) REFERENCES libraries(id) ON DELETE CASCADE,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_library_id ON documents(library_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_library_id ON chunks(library_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	`
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (a *SQLiteAdapter) SaveLibrary(ctx context.Context, rec LibraryRecord) error {
	params, err := encodeIndexParams(rec.IndexParams)
	if err != nil {
		return err
	}
	metadata, err := codec.EncodeMetadata(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode library metadata: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO libraries (id, name, dims, index_kind, index_params, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			dims = excluded.dims,
			index_kind = excluded.index_kind,
			index_params = excluded.index_params,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Name, rec.Dims, string(rec.IndexKind), params, metadata, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save library %s: %w", rec.ID, err)
	}
	return nil
}

func (a *SQLiteAdapter) SaveDocument(ctx context.Context, rec DocumentRecord) error {
	metadata, err := codec.EncodeMetadata(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode document metadata: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO documents (id, library_id, title, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, rec.ID, rec.LibraryID, rec.Title, metadata, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save document %s: %w", rec.ID, err)
	}
	return nil
}

func (a *SQLiteAdapter) SaveChunk(ctx context.Context, rec ChunkRecord) error {
	vector, err := codec.EncodeVector(rec.Embedding)
	if err != nil {
		return fmt.Errorf("encode chunk vector: %w", err)
	}
	metadata, err := codec.EncodeMetadata(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode chunk metadata: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO chunks (id, library_id, document_id, text, vector, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			vector = excluded.vector,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, rec.ID, rec.LibraryID, rec.DocumentID, rec.Text, vector, metadata, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save chunk %s: %w", rec.ID, err)
	}
	return nil
}

func (a *SQLiteAdapter) DeleteLibrary(ctx context.Context, id string) error {
	if _, err := a.db.ExecContext(ctx, "DELETE FROM libraries WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete library %s: %w", id, err)
	}
	return nil
}

func (a *SQLiteAdapter) DeleteDocument(ctx context.Context, libraryID, id string) error {
	if _, err := a.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ? AND library_id = ?", id, libraryID); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (a *SQLiteAdapter) DeleteChunk(ctx context.Context, libraryID, id string) error {
	if _, err := a.db.ExecContext(ctx, "DELETE FROM chunks WHERE id = ? AND library_id = ?", id, libraryID); err != nil {
		return fmt.Errorf("delete chunk %s: %w", id, err)
	}
	return nil
}

func (a *SQLiteAdapter) LoadAll(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Documents: make(map[string][]DocumentRecord),
		Chunks:    make(map[string][]ChunkRecord),
	}

	libRows, err := a.db.QueryContext(ctx, `
		SELECT id, name, dims, index_kind, index_params, metadata, created_at, updated_at FROM libraries
	`)
	if err != nil {
		return snap, fmt.Errorf("load libraries: %w", err)
	}
	defer libRows.Close()

	for libRows.Next() {
		var rec LibraryRecord
		var indexKind, indexParams, metadata string
		if err := libRows.Scan(&rec.ID, &rec.Name, &rec.Dims, &indexKind, &indexParams, &metadata, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return snap, fmt.Errorf("scan library: %w", err)
		}
		rec.Schema = SchemaVersion
		rec.IndexKind = index.Kind(indexKind)
		rec.IndexParams, err = decodeIndexParams(indexParams)
		if err != nil {
			return snap, err
		}
		rec.Metadata, err = codec.DecodeMetadata(metadata)
		if err != nil {
			return snap, fmt.Errorf("decode library metadata: %w", err)
		}
		snap.Libraries = append(snap.Libraries, rec)
	}
	if err := libRows.Err(); err != nil {
		return snap, fmt.Errorf("iterate libraries: %w", err)
	}

	docRows, err := a.db.QueryContext(ctx, `
		SELECT id, library_id, title, metadata, created_at, updated_at FROM documents
	`)
	if err != nil {
		return snap, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	for docRows.Next() {
		var rec DocumentRecord
		var metadata string
		if err := docRows.Scan(&rec.ID, &rec.LibraryID, &rec.Title, &metadata, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return snap, fmt.Errorf("scan document: %w", err)
		}
		rec.Schema = SchemaVersion
		rec.Metadata, err = codec.DecodeMetadata(metadata)
		if err != nil {
			return snap, fmt.Errorf("decode document metadata: %w", err)
		}
		snap.Documents[rec.LibraryID] = append(snap.Documents[rec.LibraryID], rec)
	}
	if err := docRows.Err(); err != nil {
		return snap, fmt.Errorf("iterate documents: %w", err)
	}

	chunkRows, err := a.db.QueryContext(ctx, `
		SELECT id, library_id, document_id, text, vector, metadata, created_at, updated_at FROM chunks
	`)
	if err != nil {
		return snap, fmt.Errorf("load chunks: %w", err)
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var rec ChunkRecord
		var vector []byte
		var metadata string
		if err := chunkRows.Scan(&rec.ID, &rec.LibraryID, &rec.DocumentID, &rec.Text, &vector, &metadata, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return snap, fmt.Errorf("scan chunk: %w", err)
		}
		rec.Schema = SchemaVersion
		rec.Embedding, err = codec.DecodeVector(vector)
		if err != nil {
			return snap, fmt.Errorf("decode chunk vector: %w", err)
		}
		rec.Metadata, err = codec.DecodeMetadata(metadata)
		if err != nil {
			return snap, fmt.Errorf("decode chunk metadata: %w", err)
		}
		snap.Chunks[rec.LibraryID] = append(snap.Chunks[rec.LibraryID], rec)
	}
	if err := chunkRows.Err(); err != nil {
		return snap, fmt.Errorf("iterate chunks: %w", err)
	}

	return snap, nil
}

func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}
