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

// Package accessrules wires the in-memory rule store of the decision engine
// to its persistent repository and to the change notifications exchanged
// with peer replicas.
package accessrules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/eclipse-basyx/basyx-go-abac/internal/accessrules/notify"
	"github.com/eclipse-basyx/basyx-go-abac/internal/accessrules/persistence"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/logger"
	"github.com/eclipse-basyx/basyx-go-abac/internal/common/model/grammar"
	auth "github.com/eclipse-basyx/basyx-go-abac/internal/common/security"
)

// Options configures a Runtime.
type Options struct {
	// Store receives the rules. Required.
	Store *auth.MemoryRuleStore
	// Repository persists rules. Nil keeps rules in memory only and loads
	// them from ModelPath.
	Repository persistence.Repository
	// Notifier exchanges change events with peers. Nil means notify.Nop.
	Notifier notify.Notifier
	// ModelPath is the access rule model file (JSON or YAML).
	ModelPath string
	// SyncModelToStore replaces the repository content with ModelPath on
	// start-up.
	SyncModelToStore bool
}

// Runtime is the rule store served by the API. Writes go to the in-memory
// store and then to the repository; a failed repository write restores the
// previous in-memory state. It implements auth.RuleStore and auth.RuleSource.
type Runtime struct {
	mu        sync.Mutex
	store     *auth.MemoryRuleStore
	repo      persistence.Repository
	notifier  notify.Notifier
	modelPath string
	log       *logger.Logger
}

var (
	_ auth.RuleStore  = (*Runtime)(nil)
	_ auth.RuleSource = (*Runtime)(nil)
)

// NewRuntime prepares the repository and loads the initial rule set.
func NewRuntime(ctx context.Context, opts Options) (*Runtime, error) {
	if opts.Store == nil {
		return nil, errors.New("SEC-RULES-NEW: rule store is nil")
	}
	r := &Runtime{
		store:     opts.Store,
		repo:      opts.Repository,
		notifier:  opts.Notifier,
		modelPath: opts.ModelPath,
		log:       logger.New("RULES"),
	}
	if r.notifier == nil {
		r.notifier = notify.Nop{}
	}

	if r.repo == nil {
		if err := r.Reload(ctx); err != nil {
			return nil, fmt.Errorf("SEC-RULES-LOADMODEL: %w", err)
		}
		return r, nil
	}

	if err := r.repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("SEC-RULES-ENSURETABLE: %w", err)
	}
	if opts.SyncModelToStore {
		rules, err := ReadModelFile(r.modelPath)
		if err != nil {
			return nil, fmt.Errorf("SEC-RULES-SYNC-READMODELFILE: %w", err)
		}
		if err := r.repo.ReplaceAll(ctx, rules); err != nil {
			return nil, fmt.Errorf("SEC-RULES-SYNCJSONTODB: %w", err)
		}
		r.log.LogInfo("📥 synchronized %d rules from %s", len(rules), r.modelPath)
	}
	if err := r.Reload(ctx); err != nil {
		return nil, fmt.Errorf("SEC-RULES-RELOADMODEL: %w", err)
	}
	return r, nil
}

// ReadModelFile parses and materializes the access rule model at path.
func ReadModelFile(path string) ([]grammar.Rule, error) {
	if path == "" {
		return nil, errors.New("abac.modelPath is empty")
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from service configuration
	if err != nil {
		return nil, err
	}
	model, err := grammar.ParseAccessRuleModel(data)
	if err != nil {
		return nil, err
	}
	return model.Materialize()
}

// Snapshot returns the current rule set.
func (r *Runtime) Snapshot() *auth.RuleSet {
	return r.store.Snapshot()
}

// Reload replaces the in-memory rules with the repository content, or with
// the model file when there is no repository.
func (r *Runtime) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloadLocked(ctx)
}

func (r *Runtime) reloadLocked(ctx context.Context) error {
	var rules []grammar.Rule
	if r.repo == nil {
		var err error
		if rules, err = ReadModelFile(r.modelPath); err != nil {
			return err
		}
	} else {
		records, err := r.repo.List(ctx)
		if err != nil {
			return err
		}
		rules = make([]grammar.Rule, 0, len(records))
		for _, rec := range records {
			rules = append(rules, rec.Rule)
		}
	}
	if err := r.store.LoadRules(ctx, rules); err != nil {
		return err
	}
	r.log.LogInfo("🔄 loaded %d access rules", len(rules))
	return nil
}

// LoadRules replaces all rules.
func (r *Runtime) LoadRules(ctx context.Context, rules []grammar.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.store.Snapshot().Rules()
	if err := r.store.LoadRules(ctx, rules); err != nil {
		return err
	}
	if r.repo != nil {
		if err := r.repo.ReplaceAll(ctx, r.store.Snapshot().Rules()); err != nil {
			r.restore(previous)
			return err
		}
	}
	r.publish(ctx, notify.RulesReplace, "")
	return nil
}

// AddRule stores rule and returns its ID.
func (r *Runtime) AddRule(ctx context.Context, rule grammar.Rule) (grammar.RuleID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.store.AddRule(ctx, rule)
	if err != nil {
		return "", err
	}
	if r.repo != nil {
		rule.ID = id
		if _, err := r.repo.Insert(ctx, rule); err != nil {
			_ = r.store.RemoveRule(context.WithoutCancel(ctx), id)
			return "", err
		}
	}
	r.publish(ctx, notify.RuleAdded, string(id))
	return id, nil
}

// UpdateRule replaces the rule stored under id.
func (r *Runtime) UpdateRule(ctx context.Context, id grammar.RuleID, rule grammar.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, err := r.store.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.UpdateRule(ctx, id, rule); err != nil {
		return err
	}
	if r.repo != nil {
		if _, err := r.repo.Replace(ctx, id, rule); err != nil {
			_ = r.store.UpdateRule(context.WithoutCancel(ctx), id, previous)
			return err
		}
	}
	r.publish(ctx, notify.RuleUpdated, string(id))
	return nil
}

// RemoveRule deletes the rule stored under id. The repository is written
// first so a failure leaves both sides unchanged.
func (r *Runtime) RemoveRule(ctx context.Context, id grammar.RuleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.GetRule(ctx, id); err != nil {
		return err
	}
	if r.repo != nil {
		if err := r.repo.Delete(ctx, id); err != nil && !common.IsErrNotFound(err) {
			return err
		}
	}
	if err := r.store.RemoveRule(ctx, id); err != nil {
		return err
	}
	r.publish(ctx, notify.RuleRemoved, string(id))
	return nil
}

// GetRule returns the rule stored under id.
func (r *Runtime) GetRule(ctx context.Context, id grammar.RuleID) (grammar.Rule, error) {
	return r.store.GetRule(ctx, id)
}

// ListRules returns all rules in order.
func (r *Runtime) ListRules(ctx context.Context) ([]grammar.Rule, error) {
	return r.store.ListRules(ctx)
}

// ExportModel returns the current rules as an access rule model document.
func (r *Runtime) ExportModel(ctx context.Context) (*grammar.AccessRuleModel, error) {
	rules, err := r.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	return grammar.Dematerialize(rules), nil
}

// ImportModel replaces all rules with the rules of a model document.
// It returns the number of rules loaded.
func (r *Runtime) ImportModel(ctx context.Context, data []byte) (int, error) {
	model, err := grammar.ParseAccessRuleModel(data)
	if err != nil {
		return 0, common.NewErrBadRequest(fmt.Sprintf("SEC-RULES-IMPORT-PARSE %v", err))
	}
	rules, err := model.Materialize()
	if err != nil {
		return 0, common.NewErrBadRequest(fmt.Sprintf("SEC-RULES-IMPORT-MATERIALIZE %v", err))
	}
	if err := r.LoadRules(ctx, rules); err != nil {
		return 0, err
	}
	return len(rules), nil
}

// Ping reports whether the repository is reachable.
func (r *Runtime) Ping(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	return r.repo.Ping(ctx)
}

// Watch reloads the rules whenever a peer announces a change. It blocks until
// ctx ends.
func (r *Runtime) Watch(ctx context.Context) error {
	sub, err := r.notifier.Subscribe(ctx)
	if err != nil {
		return err
	}
	return sub.Run(ctx, func(ctx context.Context, ev notify.Event) {
		r.log.LogInfo("📣 %s from peer %s", ev.Kind, ev.Origin)
		if err := r.Reload(ctx); err != nil {
			r.log.LogError("reload after peer change", err)
		}
	})
}

// Close releases the repository and the notifier.
func (r *Runtime) Close() error {
	var errs []error
	if r.repo != nil {
		errs = append(errs, r.repo.Close())
	}
	errs = append(errs, r.notifier.Close())
	return errors.Join(errs...)
}

func (r *Runtime) restore(rules []grammar.Rule) {
	if err := r.store.LoadRules(context.Background(), rules); err != nil {
		r.log.LogError("restore previous rules", err)
	}
}

func (r *Runtime) publish(ctx context.Context, kind notify.EventKind, id string) {
	if err := r.notifier.Publish(ctx, kind, id); err != nil {
		r.log.LogWarning("peers not notified of %s: %v", kind, err)
	}
}
