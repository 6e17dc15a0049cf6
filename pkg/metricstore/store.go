/*
 * Copyright 2026 Ornatel S.r.l.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metricstore queries the device telemetry document store. The
// store has no direct network path from the operator machine: every
// connection goes through an SSH tunnel over the bridge host, so Open
// takes the tunnel's local address rather than dialing the store hosts.
package metricstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ornatel/fieldscan/pkg/logger"
)

const (
	defaultDatabase        = "ibm_iot"
	defaultCollection      = "event"
	defaultDiagsCollection = "diagnostics"

	serverSelectionTimeout = 10 * time.Second

	recencyWindow = 24 * time.Hour

	fieldClientID  = "clientId"
	fieldTimestamp = "payload.metrics.TIMESTAMP.value"
)

// Config locates the store behind the tunnel.
type Config struct {
	// URI is the original replica-set connection string; its credentials
	// and options are kept, its hosts are replaced by the tunnel address.
	URI             string
	Database        string
	Collection      string
	DiagsCollection string
}

func (c *Config) withDefaults() Config {
	cfg := *c

	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}

	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}

	if cfg.DiagsCollection == "" {
		cfg.DiagsCollection = defaultDiagsCollection
	}

	return cfg
}

// Store runs telemetry queries for single devices. One Store serves a
// whole batch; it is safe for concurrent use.
type Store struct {
	client *mongo.Client
	events *mongo.Collection
	diags  *mongo.Collection
	logger zerolog.Logger

	now func() time.Time
}

// CheckResult is the outcome of a 24h recency check.
type CheckResult struct {
	HasData  bool
	LastSeen *time.Time
}

// Open connects to the store through the tunnel's local endpoint and
// verifies the session with a ping.
func Open(ctx context.Context, cfg *Config, tunnelAddr string, log logger.Logger) (*Store, error) {
	full := cfg.withDefaults()

	uri, err := LocalURI(full.URI, tunnelAddr)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(serverSelectionTimeout))
	if err != nil {
		return nil, fmt.Errorf("connecting to metric store: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)

		return nil, fmt.Errorf("pinging metric store: %w", err)
	}

	db := client.Database(full.Database)

	return &Store{
		client: client,
		events: db.Collection(full.Collection),
		diags:  db.Collection(full.DiagsCollection),
		logger: log.WithComponent("metricstore"),
		now:    time.Now,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// RecentData reports whether the device pushed any event in the last
// 24 hours, with the freshest device-side timestamp when it did.
func (s *Store) RecentData(ctx context.Context, deviceID string) (CheckResult, error) {
	startMs, endMs := s.window(recencyWindow)

	cursor, err := s.events.Aggregate(ctx, recencyPipeline(deviceID, startMs, endMs))
	if err != nil {
		return CheckResult{}, fmt.Errorf("recency query for %s: %w", deviceID, err)
	}

	var docs []bson.M

	if err := cursor.All(ctx, &docs); err != nil {
		return CheckResult{}, fmt.Errorf("reading recency result for %s: %w", deviceID, err)
	}

	if len(docs) == 0 {
		return CheckResult{HasData: false}, nil
	}

	result := CheckResult{HasData: true}

	if ms, ok := asInt64(docs[0]["timestamp"]); ok {
		t := time.UnixMilli(ms).UTC()
		result.LastSeen = &t
	}

	return result, nil
}

// window returns the [now-d, now] interval in epoch milliseconds, the
// unit device timestamps are stored in.
func (s *Store) window(d time.Duration) (startMs, endMs int64) {
	end := s.now()

	return end.Add(-d).UnixMilli(), end.UnixMilli()
}

// recencyPipeline finds the single freshest event for a device inside
// the window.
func recencyPipeline(deviceID string, startMs, endMs int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: fieldClientID, Value: deviceID},
			{Key: fieldTimestamp, Value: bson.D{
				{Key: "$gte", Value: startMs},
				{Key: "$lte", Value: endMs},
			}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "receivedOn", Value: -1}}}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: fieldClientID, Value: 1},
			{Key: "timestamp", Value: "$" + fieldTimestamp},
		}}},
	}
}
