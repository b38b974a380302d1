package tags

import (
	"context"
	"sort"
	"sync"

	"github.com/fedanode/result-service/internal/server/models"
)

// InMemoryRepository mirrors the Postgres tag semantics for tests.
type InMemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	tags   []*models.Tag
	links  []*models.TaggedResult
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{nextID: 1}
}

func (r *InMemoryRepository) GetOrCreateTag(ctx context.Context, name, projectID string) (*models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tags {
		if t.Name == name && t.ProjectID == projectID {
			c := *t
			return &c, nil
		}
	}

	t := &models.Tag{ID: r.nextID, Name: name, ProjectID: projectID}
	r.nextID++
	r.tags = append(r.tags, t)
	c := *t
	return &c, nil
}

func (r *InMemoryRepository) LinkResult(ctx context.Context, tagID int64, resultID, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.links {
		if l.TagID == tagID && l.ResultID == resultID {
			return nil
		}
	}
	r.links = append(r.links, &models.TaggedResult{TagID: tagID, ResultID: resultID, Filename: filename})
	return nil
}

func (r *InMemoryRepository) TagResult(ctx context.Context, name, projectID, resultID, filename string) (*models.Tag, error) {
	tag, err := r.GetOrCreateTag(ctx, name, projectID)
	if err != nil {
		return nil, err
	}
	if err := r.LinkResult(ctx, tag.ID, resultID, filename); err != nil {
		return nil, err
	}
	return tag, nil
}

func (r *InMemoryRepository) ListTags(ctx context.Context, projectID string) ([]*models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Tag
	for _, t := range r.tags {
		if t.ProjectID == projectID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryRepository) ListTaggedResults(ctx context.Context, projectID, tagName string) ([]*models.TaggedResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tagID int64 = -1
	for _, t := range r.tags {
		if t.Name == tagName && t.ProjectID == projectID {
			tagID = t.ID
			break
		}
	}

	var out []*models.TaggedResult
	for _, l := range r.links {
		if l.TagID == tagID {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}
