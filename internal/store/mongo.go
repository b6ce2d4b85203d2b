package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"collab-docs/pkg/delta"
)

// Mongo is a Store over two collections: documents keyed by _id, and
// operations under a unique (docId, version) compound index. The version
// gate is a conditional UpdateOne filtering on both _id and version.
type Mongo struct {
	docs *mongo.Collection
	ops  *mongo.Collection
}

// NewMongo returns a Store over db's "documents" and "operations"
// collections.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		docs: db.Collection("documents"),
		ops:  db.Collection("operations"),
	}
}

// EnsureIndexes creates the unique (docId, version) index the log's
// duplicate rejection and range replay depend on. Call once at startup.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.ops.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "docId", Value: 1}, {Key: "version", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "creating operations index")
}

func (m *Mongo) Create(ctx context.Context, doc *Document) error {
	now := time.Now()
	cp := *doc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	if cp.Collaborators == nil {
		cp.Collaborators = []string{}
	}
	_, err := m.docs.InsertOne(ctx, &cp)
	if mongo.IsDuplicateKeyError(err) {
		return ErrExists
	}
	return errors.Wrap(err, "inserting document")
}

func (m *Mongo) Load(ctx context.Context, docID string) (*Document, error) {
	var doc Document
	err := m.docs.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading document")
	}
	return &doc, nil
}

func (m *Mongo) OpsSince(ctx context.Context, docID string, fromVersion int) ([]OpLogEntry, error) {
	cur, err := m.ops.Find(ctx,
		bson.M{"docId": docID, "version": bson.M{"$gt": fromVersion}},
		options.Find().SetSort(bson.D{{Key: "version", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying operations")
	}
	defer cur.Close(ctx)
	var out []OpLogEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decoding operations")
	}
	return out, nil
}

func (m *Mongo) Commit(ctx context.Context, docID string, expectedVersion int, newContent delta.Delta, newVersion int) error {
	if err := checkVersions(expectedVersion, newVersion); err != nil {
		return err
	}
	res, err := m.docs.UpdateOne(ctx,
		bson.M{"_id": docID, "version": expectedVersion},
		bson.M{"$set": bson.M{
			"content":   newContent,
			"version":   newVersion,
			"updatedAt": time.Now(),
		}},
	)
	if err != nil {
		return errors.Wrap(err, "committing document")
	}
	if res.MatchedCount == 0 {
		// Either the document is gone or another writer advanced it.
		n, err := m.docs.CountDocuments(ctx, bson.M{"_id": docID})
		if err != nil {
			return errors.Wrap(err, "checking document existence")
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (m *Mongo) AppendLog(ctx context.Context, entry OpLogEntry) error {
	_, err := m.ops.InsertOne(ctx, &entry)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "appending log entry")
}
