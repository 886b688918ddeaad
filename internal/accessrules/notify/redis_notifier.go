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

// Package notify propagates rule changes between service replicas sharing a
// rule repository. A replica that changes the repository publishes an Event;
// its peers reload their in-memory rule sets when they receive it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/logger"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventKind names the change that happened.
type EventKind string

// Rule change kinds.
const (
	RuleAdded    EventKind = "RULE_ADDED"
	RuleUpdated  EventKind = "RULE_UPDATED"
	RuleRemoved  EventKind = "RULE_REMOVED"
	RulesReplace EventKind = "RULES_REPLACED"
)

// Event is the message published on the change channel.
type Event struct {
	Origin string    `json:"origin"`
	Kind   EventKind `json:"kind"`
	RuleID string    `json:"ruleId,omitempty"`
	At     time.Time `json:"at"`
}

// Notifier publishes rule changes and delivers the changes of peers.
type Notifier interface {
	Publish(ctx context.Context, kind EventKind, ruleID string) error
	Subscribe(ctx context.Context) (Subscription, error)
	Close() error
}

// Subscription delivers peer events until its context ends.
type Subscription interface {
	Run(ctx context.Context, handle func(context.Context, Event)) error
}

// Nop is the notifier of a single replica.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, EventKind, string) error { return nil }

// Subscribe returns a subscription that waits for its context to end.
func (Nop) Subscribe(context.Context) (Subscription, error) { return nopSubscription{}, nil }

// Close does nothing.
func (Nop) Close() error { return nil }

type nopSubscription struct{}

func (nopSubscription) Run(ctx context.Context, _ func(context.Context, Event)) error {
	<-ctx.Done()
	return nil
}

// RedisNotifier uses a Redis pub/sub channel. Each instance tags its events
// with a random origin and ignores events carrying its own origin.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	origin  string
	log     *logger.Logger
}

// NewRedisNotifier returns a notifier for cfg. cfg.Addr must be set.
func NewRedisNotifier(cfg common.RedisConfig) (*RedisNotifier, error) {
	if cfg.Addr == "" {
		return nil, errors.New("NOTIFY-NEW: redis address is empty")
	}
	if cfg.Channel == "" {
		return nil, errors.New("NOTIFY-NEW: redis channel is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisNotifier{
		client:  client,
		channel: cfg.Channel,
		origin:  uuid.NewString(),
		log:     logger.New("NOTIFY"),
	}, nil
}

// Origin returns the tag this instance puts on its events.
func (n *RedisNotifier) Origin() string {
	return n.origin
}

// Ping checks the connection.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Publish announces a change.
func (n *RedisNotifier) Publish(ctx context.Context, kind EventKind, ruleID string) error {
	payload, err := json.Marshal(Event{Origin: n.origin, Kind: kind, RuleID: ruleID, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("NOTIFY-PUBLISH: %w", err)
	}
	return nil
}

// Subscribe joins the channel. It returns once Redis confirmed the
// subscription, so events published afterwards are delivered.
func (n *RedisNotifier) Subscribe(ctx context.Context) (Subscription, error) {
	ps := n.client.Subscribe(ctx, n.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("NOTIFY-SUBSCRIBE: %w", err)
	}
	return &redisSubscription{ps: ps, origin: n.origin, log: n.log}, nil
}

// Close closes the client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

type redisSubscription struct {
	ps     *redis.PubSub
	origin string
	log    *logger.Logger
}

// Run calls handle for every peer event. Malformed messages are logged and
// dropped.
func (s *redisSubscription) Run(ctx context.Context, handle func(context.Context, Event)) error {
	defer func() {
		_ = s.ps.Close()
	}()
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("NOTIFY-RUN: subscription closed")
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.LogWarning("dropping malformed event: %v", err)
				continue
			}
			if ev.Origin == s.origin {
				continue
			}
			handle(ctx, ev)
		}
	}
}
