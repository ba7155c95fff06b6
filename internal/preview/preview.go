// Package preview keeps short-lived news preview sessions in Redis. A session holds the
// news source query, the items fetched for it and the user's selection until an analyzer
// job is submitted against it.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/newsanalyzer/internal/cache"
	"github.com/kiranshivaraju/newsanalyzer/pkg/models"
)

var (
	// ErrExpired is returned when a session is missing, lapsed, or owned by someone else.
	ErrExpired          = errors.New("preview session expired")
	ErrInvalidSelection = errors.New("invalid preview selection")
	ErrInvalidSession   = errors.New("invalid preview session")
	// ErrUnavailable wraps failures of the session store itself. Callers may retry.
	ErrUnavailable      = errors.New("preview store unavailable")
)

const (
	DefaultTTL      = 30 * time.Minute
	DefaultPageSize = 20
)

// Item is one news article in a preview.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	Category    string    `json:"category,omitempty"`
	PubDate     time.Time `json:"pub_date"`
}

// Session is the cached state of one preview.
type Session struct {
	ID        string        `json:"id"`
	Owner     uuid.UUID     `json:"owner"`
	Source    models.Source `json:"source"`
	Items     []Item        `json:"items"`
	Delivered int           `json:"delivered"`
	SelectAll bool          `json:"select_all"`
	Selected  []string      `json:"selected,omitempty"`
	JobIDs    []int32       `json:"job_ids,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Submitted reports whether any job has been created from the session.
func (s *Session) Submitted() bool { return len(s.JobIDs) > 0 }

// SelectedItems returns the ids of the items the analyzer should run on, sorted. It is
// empty until a selection has been made.
func (s *Session) SelectedItems() []string {
	if !s.SelectAll {
		return append([]string(nil), s.Selected...)
	}
	ids := make([]string, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.ID
	}
	sort.Strings(ids)
	return ids
}

// Service manages preview sessions.
type Service struct {
	cache    cache.Cache
	ttl      time.Duration
	pageSize int
	now      func() time.Time
}

// NewService creates a preview Service. Non-positive ttl or pageSize select the defaults.
func NewService(c cache.Cache, ttl time.Duration, pageSize int) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{cache: c, ttl: ttl, pageSize: pageSize, now: time.Now}
}

// Create stores a new session for owner and returns it.
func (s *Service) Create(ctx context.Context, owner uuid.UUID, src models.Source, items []Item) (*Session, error) {
	if owner == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidSession)
	}
	if src.APIID <= 0 {
		return nil, fmt.Errorf("%w: source api id is required", ErrInvalidSession)
	}
	if strings.TrimSpace(src.Query) == "" {
		return nil, fmt.Errorf("%w: source query is required", ErrInvalidSession)
	}

	seen := make(map[string]bool, len(items))
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if seen[items[i].ID] {
			return nil, fmt.Errorf("%w: duplicate item id %q", ErrInvalidSession, items[i].ID)
		}
		seen[items[i].ID] = true
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Source:    src,
		Items:     items,
		CreatedAt: s.now().UTC(),
	}
	sess.Source.PreviewID = sess.ID

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads owner's session and extends its lifetime.
func (s *Service) Get(ctx context.Context, owner uuid.UUID, id string) (*Session, error) {
	b, found, err := s.cache.Get(ctx, cache.PreviewKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: get preview: %w", ErrUnavailable, err)
	}
	if !found {
		return nil, ErrExpired
	}

	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decode preview: %w", err)
	}
	if sess.Owner != owner {
		return nil, ErrExpired
	}

	if _, err := s.cache.Expire(ctx, cache.PreviewKey(id), s.ttl); err != nil {
		return nil, fmt.Errorf("%w: touch preview: %w", ErrUnavailable, err)
	}
	return &sess, nil
}

// FetchNextPage hands out the next page of items. With first set it replays everything
// already delivered, or the first page when nothing was delivered yet. Item content is
// stripped from the result.
func (s *Service) FetchNextPage(ctx context.Context, owner uuid.UUID, id string, first bool) ([]Item, bool, error) {
	sess, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, false, err
	}

	var page []Item
	if first && sess.Delivered > 0 {
		page = sess.Items[:sess.Delivered]
	} else {
		end := min(sess.Delivered+s.pageSize, len(sess.Items))
		page = sess.Items[sess.Delivered:end]
		if end != sess.Delivered {
			sess.Delivered = end
			if err := s.save(ctx, sess); err != nil {
				return nil, false, err
			}
		}
	}

	out := make([]Item, len(page))
	for i, it := range page {
		it.Content = ""
		out[i] = it
	}
	return out, sess.Delivered < len(sess.Items), nil
}

// Select records which items the analyzer should run on.
func (s *Service) Select(ctx context.Context, owner uuid.UUID, id string, selectAll bool, itemIDs []string) (*Session, error) {
	sess, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	if selectAll {
		sess.SelectAll = true
		sess.Selected = nil
	} else {
		if len(itemIDs) == 0 {
			return nil, fmt.Errorf("%w: no items selected", ErrInvalidSelection)
		}
		known := make(map[string]bool, len(sess.Items))
		for _, it := range sess.Items {
			known[it.ID] = true
		}
		selected := make([]string, 0, len(itemIDs))
		dedup := make(map[string]bool, len(itemIDs))
		for _, iid := range itemIDs {
			if !known[iid] {
				return nil, fmt.Errorf("%w: unknown item %q", ErrInvalidSelection, iid)
			}
			if !dedup[iid] {
				dedup[iid] = true
				selected = append(selected, iid)
			}
		}
		sort.Strings(selected)
		sess.SelectAll = false
		sess.Selected = selected
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// MarkSubmitted records that jobID was created from the session.
func (s *Service) MarkSubmitted(ctx context.Context, owner uuid.UUID, id string, jobID int32) error {
	sess, err := s.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	for _, j := range sess.JobIDs {
		if j == jobID {
			return nil
		}
	}
	sess.JobIDs = append(sess.JobIDs, jobID)
	return s.save(ctx, sess)
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	if err := s.cache.Set(ctx, cache.PreviewKey(sess.ID), b, s.ttl); err != nil {
		return fmt.Errorf("%w: save preview: %w", ErrUnavailable, err)
	}
	return nil
}
