package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/lodestone-ai/lodestone/pkg/types"
)

// Mirror persists graph snapshots to a local SQLite database so the graph
// survives restarts without a re-extraction pass.
type Mirror struct {
	db *sql.DB
}

const mirrorSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	node_type TEXT NOT NULL,
	name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	language TEXT NOT NULL,
	start_line INTEGER NOT NULL DEFAULT 0,
	end_line INTEGER NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS edges (
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	relationship TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 1,
	confidence REAL NOT NULL DEFAULT 1,
	PRIMARY KEY (source_id, target_id, relationship),
	FOREIGN KEY (source_id) REFERENCES nodes(id) ON DELETE CASCADE,
	FOREIGN KEY (target_id) REFERENCES nodes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_nodes_file_path ON nodes(file_path);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
`

// OpenMirror opens or creates the SQLite database at path.
func OpenMirror(path string) (*Mirror, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mirror: %w", err)
	}
	if _, err := db.Exec(mirrorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init mirror schema: %w", err)
	}
	return &Mirror{db: db}, nil
}

// Save replaces the stored snapshot with the graph's current contents.
func (m *Mirror) Save(ctx context.Context, g *Graph) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM edges"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
		return err
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, node_type, name, file_path, language, start_line, end_line, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer nodeStmt.Close()

	for _, node := range g.Nodes() {
		metadata, err := json.Marshal(node.Metadata)
		if err != nil {
			return fmt.Errorf("marshal node %s metadata: %w", node.ID, err)
		}
		if _, err := nodeStmt.ExecContext(ctx,
			node.ID, string(node.NodeType), node.Name, node.FilePath,
			node.Language, node.StartLine, node.EndLine, string(metadata),
		); err != nil {
			return fmt.Errorf("save node %s: %w", node.ID, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (source_id, target_id, relationship, weight, confidence)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer edgeStmt.Close()

	for _, edge := range g.Edges() {
		if _, err := edgeStmt.ExecContext(ctx,
			edge.SourceID, edge.TargetID, string(edge.Relationship),
			edge.Weight, edge.Confidence,
		); err != nil {
			return fmt.Errorf("save edge %s->%s: %w", edge.SourceID, edge.TargetID, err)
		}
	}

	return tx.Commit()
}

// Load restores the stored snapshot into g.
func (m *Mirror) Load(ctx context.Context, g *Graph) error {
	rows, err := m.db.QueryContext(ctx,
		"SELECT id, node_type, name, file_path, language, start_line, end_line, metadata FROM nodes")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var node types.GraphNode
		var nodeType, metadata string
		if err := rows.Scan(&node.ID, &nodeType, &node.Name, &node.FilePath,
			&node.Language, &node.StartLine, &node.EndLine, &metadata); err != nil {
			return err
		}
		node.NodeType = types.NodeType(nodeType)
		if metadata != "{}" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &node.Metadata); err != nil {
				return fmt.Errorf("node %s metadata: %w", node.ID, err)
			}
		}
		if err := g.UpsertNode(node); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	edgeRows, err := m.db.QueryContext(ctx,
		"SELECT source_id, target_id, relationship, weight, confidence FROM edges")
	if err != nil {
		return err
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var edge types.GraphEdge
		var relationship string
		if err := edgeRows.Scan(&edge.SourceID, &edge.TargetID, &relationship,
			&edge.Weight, &edge.Confidence); err != nil {
			return err
		}
		edge.Relationship = types.RelationshipType(relationship)
		if err := g.AddEdge(edge); err != nil {
			return err
		}
	}
	return edgeRows.Err()
}

// Close closes the database.
func (m *Mirror) Close() error {
	return m.db.Close()
}
