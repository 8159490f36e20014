// Package githubmeta resolves repository ids to display metadata. The engine
// never needs this data; it exists for the presentation layer.
package githubmeta

import (
	"context"
	"errors"
	"net/http"

	"github.com/repo-radar/radar-service/src/internal/model"

	"github.com/google/go-github/v68/github"
	"go.uber.org/zap"
)

type RepoMeta struct {
	RepoID      int64  `json:"repo_id"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
	Stars       int    `json:"stars"`
}

type Client struct {
	gh  *github.Client
	log *zap.Logger
}

// NewClient builds a GitHub metadata client. An empty token means
// unauthenticated access with the lower rate limit.
func NewClient(token string, logger *zap.Logger) *Client {
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh, log: logger}
}

func (c *Client) GetByID(ctx context.Context, repoID int64) (RepoMeta, error) {
	c.log.Debug("GetByID: start", zap.Int64("repo", repoID))

	repo, _, err := c.gh.Repositories.GetByID(ctx, repoID)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			c.log.Debug("GetByID: not found", zap.Int64("repo", repoID))
			return RepoMeta{}, model.ErrNotFound
		}
		c.log.Error("GetByID: request failed", zap.Int64("repo", repoID), zap.Error(err))
		return RepoMeta{}, err
	}

	meta := RepoMeta{
		RepoID:      repoID,
		Owner:       repo.GetOwner().GetLogin(),
		Name:        repo.GetName(),
		FullName:    repo.GetFullName(),
		Description: repo.GetDescription(),
		Stars:       repo.GetStargazersCount(),
	}

	c.log.Debug("GetByID: success", zap.Int64("repo", repoID), zap.String("full_name", meta.FullName))
	return meta, nil
}
