// Package labels maps the provider's flat label namespace onto triage state.
package labels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joshsymonds/chronotriage/internal/gmail"
)

// ErrUnknownLabel is returned when a name or id is not in the registry.
var ErrUnknownLabel = errors.New("unknown label")

const migratePageSize = 100

// Provider is the label and thread surface the registry needs.
type Provider interface {
	ListLabels(ctx context.Context) ([]gmail.Label, error)
	CreateLabel(ctx context.Context, spec gmail.LabelSpec) (gmail.Label, error)
	UpdateLabel(ctx context.Context, id gmail.LabelID, spec gmail.LabelSpec) (gmail.Label, error)
	DeleteLabel(ctx context.Context, id gmail.LabelID) error
	ListThreads(ctx context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ThreadPage, error)
	ModifyThread(ctx context.Context, id gmail.ThreadID, ops gmail.ModifyOps) error
}

// Registry is a bidirectional id/name cache with derived subsets.
type Registry struct {
	provider Provider
	names    Names
	log      *slog.Logger

	mu  sync.RWMutex
	idx *index
}

// NewRegistry returns an empty registry; call Fetch before use.
func NewRegistry(provider Provider, names Names, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Registry{provider: provider, names: names, log: logger, idx: newIndex(names)}
}

// Names returns the naming convention the registry was built with.
func (r *Registry) Names() Names { return r.names }

// Fetch replaces every map from a full listing. Readers never see a partial index.
func (r *Registry) Fetch(ctx context.Context) error {
	list, err := r.provider.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	next := newIndex(r.names)
	for _, l := range list {
		next.add(l.ID, l.Name)
	}
	r.mu.Lock()
	r.idx = next
	r.mu.Unlock()
	return nil
}

// GetID returns the cached id for name. Built-in labels also match their all-caps form.
func (r *Registry) GetID(name string) (gmail.LabelID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.idx.byName[name]; ok {
		return id, nil
	}
	if id, ok := r.idx.byName[strings.ToUpper(name)]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%q: %w", name, ErrUnknownLabel)
}

// GetName returns the name for id, re-fetching once on a miss.
func (r *Registry) GetName(ctx context.Context, id gmail.LabelID) (string, error) {
	if name, ok := r.lookupName(id); ok {
		return name, nil
	}
	if err := r.Fetch(ctx); err != nil {
		return "", err
	}
	if name, ok := r.lookupName(id); ok {
		return name, nil
	}
	return "", fmt.Errorf("id %s: %w", id, ErrUnknownLabel)
}

// NamesFor resolves ids to names. Unknown ids are logged and omitted after a single re-fetch.
func (r *Registry) NamesFor(ctx context.Context, ids []gmail.LabelID) []string {
	out := make([]string, 0, len(ids))
	var missing []gmail.LabelID
	for _, id := range ids {
		if name, ok := r.lookupName(id); ok {
			out = append(out, name)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}
	if err := r.Fetch(ctx); err != nil {
		r.log.Warn("refresh labels", "error", err)
	}
	for _, id := range missing {
		if name, ok := r.lookupName(id); ok {
			out = append(out, name)
			continue
		}
		r.log.Warn("label not found", "id", id)
	}
	return out
}

// ResolveOrCreate returns the id for name, creating it and every missing ancestor.
func (r *Registry) ResolveOrCreate(ctx context.Context, name string) (gmail.LabelID, error) {
	if id, err := r.GetID(name); err == nil {
		return id, nil
	}
	if err := r.Fetch(ctx); err != nil {
		return "", err
	}
	if id, err := r.GetID(name); err == nil {
		return id, nil
	}
	parts := strings.Split(name, "/")
	var id gmail.LabelID
	for i := range parts {
		path := strings.Join(parts[:i+1], "/")
		existing, err := r.GetID(path)
		if err == nil {
			id = existing
			continue
		}
		id, err = r.create(ctx, path)
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

func (r *Registry) create(ctx context.Context, name string) (gmail.LabelID, error) {
	spec := gmail.LabelSpec{Name: name, HideInMessageList: r.names.HiddenInMessageList(name)}
	created, err := r.provider.CreateLabel(ctx, spec)
	if err == nil {
		r.add(created.ID, created.Name)
		r.log.Debug("created label", "name", name, "id", created.ID)
		return created.ID, nil
	}
	if !errors.Is(err, gmail.ErrLabelExists) {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	// another writer won the race
	if err := r.Fetch(ctx); err != nil {
		return "", err
	}
	id, gerr := r.GetID(name)
	if gerr != nil {
		return "", fmt.Errorf("label %q exists but is not listed: %w", name, gerr)
	}
	return id, nil
}

// Rename renames old and every label nested under it. Children are attempted even
// when the parent fails, so a repeated call repairs a partial earlier run.
func (r *Registry) Rename(ctx context.Context, oldName, newName string) error {
	if err := r.Fetch(ctx); err != nil {
		return err
	}
	// Children are listed before the parent moves: a target inside the old
	// subtree would otherwise match the child prefix and be renamed again.
	children := r.withPrefix(oldName + "/")
	var errs []error
	if err := r.renameOne(ctx, oldName, newName); err != nil {
		errs = append(errs, err)
	}
	for _, child := range children {
		if child == newName || strings.HasPrefix(child, newName+"/") {
			continue
		}
		target := newName + strings.TrimPrefix(child, oldName)
		if err := r.renameOne(ctx, child, target); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) renameOne(ctx context.Context, oldName, newName string) error {
	oldID, err := r.GetID(oldName)
	if err != nil {
		if _, done := r.GetID(newName); done == nil {
			return nil
		}
		return fmt.Errorf("rename %q: %w", oldName, err)
	}
	if newID, err := r.GetID(newName); err == nil {
		return r.mergeInto(ctx, oldID, newID, oldName)
	}
	spec := gmail.LabelSpec{Name: newName, HideInMessageList: r.names.HiddenInMessageList(newName)}
	updated, err := r.provider.UpdateLabel(ctx, oldID, spec)
	if err != nil {
		return fmt.Errorf("rename %q to %q: %w", oldName, newName, err)
	}
	r.remove(oldID)
	r.add(updated.ID, updated.Name)
	r.log.Info("renamed label", "from", oldName, "to", newName)
	return nil
}

// mergeInto moves every thread from one label to another and deletes the source.
func (r *Registry) mergeInto(ctx context.Context, from, to gmail.LabelID, fromName string) error {
	token := ""
	moved := 0
	for {
		page, err := r.provider.ListThreads(ctx, gmail.Query{LabelIDs: []gmail.LabelID{from}}, token, migratePageSize)
		if err != nil {
			return fmt.Errorf("list threads on %q: %w", fromName, err)
		}
		for _, tid := range page.IDs {
			ops := gmail.ModifyOps{AddLabels: []gmail.LabelID{to}, RemoveLabels: []gmail.LabelID{from}}
			if err := r.provider.ModifyThread(ctx, tid, ops); err != nil {
				return fmt.Errorf("migrate thread %s: %w", tid, err)
			}
			moved++
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	if err := r.deleteID(ctx, from); err != nil {
		return fmt.Errorf("delete merged label %q: %w", fromName, err)
	}
	r.log.Info("merged label", "from", fromName, "threads", moved)
	return nil
}

// Delete removes name and, when includeNested is set, every label under it.
func (r *Registry) Delete(ctx context.Context, name string, includeNested bool) error {
	if err := r.Fetch(ctx); err != nil {
		return err
	}
	var errs []error
	if id, err := r.GetID(name); err == nil {
		if err := r.deleteID(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete %q: %w", name, err))
		}
	}
	if includeNested {
		for _, child := range r.withPrefix(name + "/") {
			id, err := r.GetID(child)
			if err != nil {
				continue
			}
			if err := r.deleteID(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("delete %q: %w", child, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) deleteID(ctx context.Context, id gmail.LabelID) error {
	if err := r.provider.DeleteLabel(ctx, id); err != nil && !errors.Is(err, gmail.ErrNotFound) {
		return err
	}
	r.remove(id)
	return nil
}

// PriorityLabelNames returns a sorted snapshot of priority label names.
func (r *Registry) PriorityLabelNames() []string {
	return r.snapshot(func(i *index) map[string]struct{} { return i.priority })
}

// NeedsTriageLabelNames returns a sorted snapshot of needs-triage label names.
func (r *Registry) NeedsTriageLabelNames() []string {
	return r.snapshot(func(i *index) map[string]struct{} { return i.needsTriage })
}

// QueuedLabelNames returns a sorted snapshot of queued label names.
func (r *Registry) QueuedLabelNames() []string {
	return r.snapshot(func(i *index) map[string]struct{} { return i.queued })
}

// AppLabelIDs returns the ids of every label under the application prefix.
func (r *Registry) AppLabelIDs() []gmail.LabelID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]gmail.LabelID, 0, len(r.idx.app))
	for id := range r.idx.app {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) snapshot(pick func(*index) map[string]struct{}) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := pick(r.idx)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) withPrefix(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name := range r.idx.byName {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	// parents sort before their children
	sort.Strings(out)
	return out
}

func (r *Registry) lookupName(id gmail.LabelID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.idx.byID[id]
	return name, ok
}

func (r *Registry) add(id gmail.LabelID, name string) {
	r.mu.Lock()
	r.idx.add(id, name)
	r.mu.Unlock()
}

func (r *Registry) remove(id gmail.LabelID) {
	r.mu.Lock()
	r.idx.remove(id)
	r.mu.Unlock()
}

type index struct {
	names       Names
	byName      map[string]gmail.LabelID
	byID        map[gmail.LabelID]string
	app         map[gmail.LabelID]struct{}
	priority    map[string]struct{}
	needsTriage map[string]struct{}
	queued      map[string]struct{}
}

func newIndex(names Names) *index {
	return &index{
		names:       names,
		byName:      make(map[string]gmail.LabelID),
		byID:        make(map[gmail.LabelID]string),
		app:         make(map[gmail.LabelID]struct{}),
		priority:    make(map[string]struct{}),
		needsTriage: make(map[string]struct{}),
		queued:      make(map[string]struct{}),
	}
}

func (i *index) add(id gmail.LabelID, name string) {
	i.byName[name] = id
	i.byID[id] = name
	if i.names.IsApp(name) {
		i.app[id] = struct{}{}
	}
	switch {
	case i.names.IsPriority(name):
		i.priority[name] = struct{}{}
	case i.names.IsNeedsTriage(name):
		i.needsTriage[name] = struct{}{}
	case i.names.IsQueued(name):
		i.queued[name] = struct{}{}
	}
}

func (i *index) remove(id gmail.LabelID) {
	name, ok := i.byID[id]
	if !ok {
		return
	}
	delete(i.byID, id)
	if i.byName[name] == id {
		delete(i.byName, name)
	}
	delete(i.app, id)
	delete(i.priority, name)
	delete(i.needsTriage, name)
	delete(i.queued, name)
}
