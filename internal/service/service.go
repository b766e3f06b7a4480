// Package service contains the business logic layer of the application.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (business) → validates input, enforces permissions, orchestrates
//	Repository (data)  → reads/writes the database
//
// Services take primitives and return model types plus apperror values; they
// never see an *http.Request. Permission checks always re-read the caller's
// stored account, so a role change takes effect immediately even for tokens
// issued before it.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// Validation limits. Title and content limits count characters, not bytes.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MaxTitleLength    = 300
	MaxContentLength  = 50000
	MaxTags           = 5
	MaxTagLength      = 35
)

// USER TEXT IS STORED AS WRITTEN:
// Titles and bodies are plain text that routinely contains code, so
// "vector<int>" or "a && b" must come back byte for byte. Escaping is the
// renderer's job; the API only trims and enforces lengths.
//
// Tags are different: they are identifiers that end up in URLs and filters,
// so anything bluemonday would have to strip or escape is rejected instead
// of rewritten.
var plainText = bluemonday.StrictPolicy()

// hasMarkup reports whether s contains anything the strict policy would
// strip or escape (tags, "<", ">", "&", quotes).
func hasMarkup(s string) bool {
	return plainText.Sanitize(s) != s
}

// checkText trims s and enforces the required and length rules for field.
func checkText(field, s string, limit int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(s) > limit {
		return "", apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", field, limit))
	}
	return s, nil
}

// cleanTags trims, lower-cases and de-duplicates tags, preserving first-seen
// order. Empty entries are dropped; entries containing markup are rejected.
func cleanTags(raw []string) ([]string, error) {
	tags := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if hasMarkup(t) {
			return nil, apperror.ValidationFailed("tags", fmt.Sprintf("tag %q contains markup characters", t))
		}
		if utf8.RuneCountInString(t) > MaxTagLength {
			return nil, apperror.ValidationFailed("tags",
				fmt.Sprintf("each tag must be %d characters or less", MaxTagLength))
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	if len(tags) > MaxTags {
		return nil, apperror.ValidationFailed("tags", fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}
	return tags, nil
}

// loadActor returns the caller's stored account. A token whose user no longer
// exists is treated as unauthenticated.
func loadActor(ctx context.Context, users repository.UserRepository, callerID string) (*model.User, error) {
	if callerID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	u, err := users.GetUserByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("account no longer exists")
		}
		return nil, fmt.Errorf("loading caller %s: %w", callerID, err)
	}
	return u, nil
}

// canModerate reports whether actor may delete content owned by authorID.
func canModerate(actor *model.User, authorID string) bool {
	return actor.ID == authorID || actor.Role.IsAdmin()
}

// isDomainError reports whether err is an expected outcome (not found,
// validation, ...) that should not be logged as a failure.
func isDomainError(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr)
}
