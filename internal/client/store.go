package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"booking/internal/models"
)

// State is a snapshot of an entity store
type State[T any] struct {
	Loading       bool
	Updating      bool
	UpdateSuccess bool
	ErrorMessage  string
	Entities      []T
	Entity        T
	TotalItems    int64
}

// EntityStore performs CRUD calls on one REST collection and records their
// progress. It is safe for concurrent use.
type EntityStore[T any] struct {
	client *Client
	path   string

	mu    sync.RWMutex
	state State[T]
}

func newEntityStore[T any](c *Client, path string) *EntityStore[T] {
	return &EntityStore[T]{client: c, path: path}
}

// State returns a copy of the current state
func (s *EntityStore[T]) State() State[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Entities = append([]T(nil), s.state.Entities...)
	return st
}

// Reset returns the store to its initial state
func (s *EntityStore[T]) Reset() {
	s.mu.Lock()
	s.state = State[T]{}
	s.mu.Unlock()
}

func (s *EntityStore[T]) update(fn func(st *State[T])) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

func (s *EntityStore[T]) startLoading() {
	s.update(func(st *State[T]) {
		st.Loading = true
		st.ErrorMessage = ""
		st.UpdateSuccess = false
	})
}

func (s *EntityStore[T]) startUpdating() {
	s.update(func(st *State[T]) {
		st.Updating = true
		st.ErrorMessage = ""
		st.UpdateSuccess = false
	})
}

func (s *EntityStore[T]) failed(err error) {
	s.update(func(st *State[T]) {
		st.Loading = false
		st.Updating = false
		st.UpdateSuccess = false
		st.ErrorMessage = err.Error()
	})
}

func (s *EntityStore[T]) updated(entity T) {
	s.update(func(st *State[T]) {
		st.Updating = false
		st.UpdateSuccess = true
		st.Entity = entity
	})
}

// FetchAll loads one page of the collection
func (s *EntityStore[T]) FetchAll(ctx context.Context, page models.PageRequest) ([]T, error) {
	return s.FetchAllMatching(ctx, page, nil)
}

// FetchAllMatching loads one page with extra query parameters
func (s *EntityStore[T]) FetchAllMatching(ctx context.Context, page models.PageRequest, params url.Values) ([]T, error) {
	s.startLoading()

	var entities []T
	header, err := s.client.do(ctx, http.MethodGet, s.path, pageParams(page, params), nil, &entities)
	if err != nil {
		s.failed(err)
		return nil, err
	}

	total := totalCount(header, len(entities))
	s.update(func(st *State[T]) {
		st.Loading = false
		st.Entities = entities
		st.TotalItems = total
	})
	return entities, nil
}

// Fetch loads one entity
func (s *EntityStore[T]) Fetch(ctx context.Context, id int64) (T, error) {
	s.startLoading()

	var entity T
	if _, err := s.client.do(ctx, http.MethodGet, s.entityPath(id), nil, nil, &entity); err != nil {
		s.failed(err)
		return entity, err
	}

	s.update(func(st *State[T]) {
		st.Loading = false
		st.Entity = entity
	})
	return entity, nil
}

// Create posts a new entity and returns it as stored by the server
func (s *EntityStore[T]) Create(ctx context.Context, entity T) (T, error) {
	return s.write(ctx, http.MethodPost, s.path, entity)
}

// Update replaces the entity with the given id
func (s *EntityStore[T]) Update(ctx context.Context, id int64, entity T) (T, error) {
	return s.write(ctx, http.MethodPut, s.entityPath(id), entity)
}

// PartialUpdate sends only the fields present in patch
func (s *EntityStore[T]) PartialUpdate(ctx context.Context, id int64, patch any) (T, error) {
	return s.write(ctx, http.MethodPatch, s.entityPath(id), patch)
}

// Delete removes the entity with the given id
func (s *EntityStore[T]) Delete(ctx context.Context, id int64) error {
	s.startUpdating()
	if _, err := s.client.do(ctx, http.MethodDelete, s.entityPath(id), nil, nil, nil); err != nil {
		s.failed(err)
		return err
	}
	var zero T
	s.updated(zero)
	return nil
}

func (s *EntityStore[T]) write(ctx context.Context, method, path string, body any) (T, error) {
	s.startUpdating()

	var out T
	if _, err := s.client.do(ctx, method, path, nil, body, &out); err != nil {
		s.failed(err)
		return out, err
	}
	s.updated(out)
	return out, nil
}

func (s *EntityStore[T]) entityPath(id int64) string {
	return fmt.Sprintf("%s/%d", s.path, id)
}
