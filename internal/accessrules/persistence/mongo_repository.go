/*******************************************************************************
* Copyright (C) 2026 the Eclipse BaSyx Authors and Fraunhofer IESE
*
* Permission is hereby granted, free of charge, to any person obtaining
* a copy of this software and associated documentation files (the
* "Software"), to deal in the Software without restriction, including
* without limitation the rights to use, copy, modify, merge, publish,
* distribute, sublicense, and/or sell copies of the Software, and to
* permit persons to whom the Software is furnished to do so, subject to
* the following conditions:
*
* The above copyright notice and this permission notice shall be
* included in all copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
* EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
* MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
* NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE
* LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION
* OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION
* WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*
* SPDX-License-Identifier: MIT
******************************************************************************/

package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ruleDocument is the stored form of a rule. The rule is kept as a JSON
// string because Access Rule Model keys start with '$', which MongoDB does
// not accept as field names.
type ruleDocument struct {
	ID        string    `bson:"_id"`
	Seq       int64     `bson:"seq"`
	Rule      string    `bson:"rule"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type counterDocument struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// MongoRepository keeps rules in a MongoDB collection. Insertion order is
// tracked by a counter document in a sibling collection.
type MongoRepository struct {
	client   *mongo.Client
	rules    *mongo.Collection
	counters *mongo.Collection
	name     string
}

// NewMongoRepository connects to cfg.URI and uses collection in cfg.Database.
func NewMongoRepository(ctx context.Context, cfg common.MongoConfig, collection string) (*MongoRepository, error) {
	if collection == "" {
		return nil, fmt.Errorf("rules collection name is empty")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := client.Database(cfg.Database)
	return &MongoRepository{
		client:   client,
		rules:    db.Collection(collection),
		counters: db.Collection(collection + "_counters"),
		name:     collection,
	}, nil
}

// EnsureSchema creates the insertion-order index.
func (r *MongoRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.rules.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "seq", Value: 1}},
	})
	return err
}

// Ping checks the connection to the primary.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (r *MongoRepository) nextSeq(ctx context.Context) (int64, error) {
	var counter counterDocument
	err := r.counters.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: r.name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Value, err
}

// List returns all rules ordered by insertion.
func (r *MongoRepository) List(ctx context.Context) ([]Record, error) {
	cur, err := r.rules.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()

	var out []Record
	for cur.Next(ctx) {
		var doc ruleDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rec, err := doc.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the rule stored under id.
func (r *MongoRepository) Get(ctx context.Context, id grammar.RuleID) (Record, error) {
	var doc ruleDocument
	err := r.rules.FindOne(ctx, bson.D{{Key: "_id", Value: string(id)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, common.NewErrNotFound(string(id))
	}
	if err != nil {
		return Record{}, err
	}
	return doc.record()
}

// Insert stores rule. A rule without ID gets a UUID.
func (r *MongoRepository) Insert(ctx context.Context, rule grammar.Rule) (Record, error) {
	doc, err := newRuleDocument(rule)
	if err != nil {
		return Record{}, err
	}
	if doc.Seq, err = r.nextSeq(ctx); err != nil {
		return Record{}, err
	}
	if _, err := r.rules.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Record{}, common.NewErrConflict(fmt.Sprintf("rule id %q already exists", doc.ID))
		}
		return Record{}, err
	}
	return doc.record()
}

// Replace overwrites the rule stored under id, keeping its position.
func (r *MongoRepository) Replace(ctx context.Context, id grammar.RuleID, rule grammar.Rule) (Record, error) {
	rule.ID = id
	doc, err := newRuleDocument(rule)
	if err != nil {
		return Record{}, err
	}
	var updated ruleDocument
	err = r.rules.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: string(id)}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "rule", Value: doc.Rule},
			{Key: "updatedAt", Value: doc.UpdatedAt},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, common.NewErrNotFound(string(id))
	}
	if err != nil {
		return Record{}, err
	}
	return updated.record()
}

// Delete removes the rule stored under id.
func (r *MongoRepository) Delete(ctx context.Context, id grammar.RuleID) error {
	res, err := r.rules.DeleteOne(ctx, bson.D{{Key: "_id", Value: string(id)}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return common.NewErrNotFound(string(id))
	}
	return nil
}

// ReplaceAll swaps the whole rule set. Standalone MongoDB servers have no
// multi-document transactions, so a failure between the delete and the
// insert leaves the collection empty; callers reload from the model file.
func (r *MongoRepository) ReplaceAll(ctx context.Context, rules []grammar.Rule) error {
	docs := make([]any, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		doc, err := newRuleDocument(rule)
		if err != nil {
			return err
		}
		if _, dup := seen[doc.ID]; dup {
			return common.NewErrConflict(fmt.Sprintf("rule id %q occurs twice", doc.ID))
		}
		seen[doc.ID] = struct{}{}
		doc.Seq = int64(i + 1)
		docs = append(docs, doc)
	}

	if _, err := r.rules.DeleteMany(ctx, bson.D{}); err != nil {
		return err
	}
	if len(docs) > 0 {
		if _, err := r.rules.InsertMany(ctx, docs); err != nil {
			return err
		}
	}
	_, err := r.counters.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: r.name}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "value", Value: int64(len(docs))}}}},
		options.Update().SetUpsert(true),
	)
	return err
}

func newRuleDocument(rule grammar.Rule) (ruleDocument, error) {
	id, raw, err := encodeRule(rule)
	if err != nil {
		return ruleDocument{}, err
	}
	return ruleDocument{
		ID:        string(id),
		Rule:      string(raw),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}, nil
}

func (d ruleDocument) record() (Record, error) {
	rule, err := decodeRule(d.ID, []byte(d.Rule))
	if err != nil {
		return Record{}, fmt.Errorf("decode rule %s: %w", d.ID, err)
	}
	return Record{ID: rule.ID, Rule: rule, UpdatedAt: d.UpdatedAt}, nil
}
