package domain

import (
	"slices"
	"strings"
)

// User is the authenticated account.
type User struct {
	ID       int64
	Username string
	FullName string
	Email    string
}

// DisplayName prefers the full name.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Username
}

// Digest controls how often notification emails are batched.
type Digest string

const (
	DigestInstant Digest = "instant"
	DigestDaily   Digest = "daily"
	DigestNone    Digest = "none"
)

var validDigests = []Digest{DigestInstant, DigestDaily, DigestNone}

// Next cycles to the following digest option.
func (d Digest) Next() Digest {
	idx := slices.Index(validDigests, d)
	return validDigests[(idx+1)%len(validDigests)]
}

// NotificationPrefs holds email-notification preferences.
type NotificationPrefs struct {
	EmailOnAssigned     bool
	EmailOnMentioned    bool
	EmailOnStatusChange bool
	Digest              Digest
}

// UserSettings represents account settings.
type UserSettings struct {
	User          User
	Language      string
	Theme         string
	Bio           string
	Notifications NotificationPrefs
}

// DefaultUserSettings returns the settings assigned to new accounts.
func DefaultUserSettings(user User) UserSettings {
	return UserSettings{
		User:     user,
		Language: "en",
		Theme:    "dark",
		Notifications: NotificationPrefs{
			EmailOnAssigned:  true,
			EmailOnMentioned: true,
			Digest:           DigestInstant,
		},
	}
}

// Normalize trims text fields and validates email and digest.
func (s UserSettings) Normalize() (UserSettings, error) {
	s.User.FullName = strings.TrimSpace(s.User.FullName)
	s.User.Email = strings.TrimSpace(s.User.Email)
	s.Language = strings.TrimSpace(s.Language)
	s.Theme = strings.TrimSpace(s.Theme)
	s.Bio = strings.TrimSpace(s.Bio)
	if s.User.Email != "" && !strings.Contains(s.User.Email, "@") {
		return UserSettings{}, ErrInvalidEmail
	}
	if s.Notifications.Digest == "" {
		s.Notifications.Digest = DigestInstant
	}
	if !slices.Contains(validDigests, s.Notifications.Digest) {
		return UserSettings{}, ErrInvalidDigest
	}
	return s, nil
}

// SprintProgress summarizes task completion for one sprint.
type SprintProgress struct {
	Percentage     float64
	TotalTasks     int
	CompletedTasks int
}

// ComputeSprintProgress derives the percentage from task counts.
func ComputeSprintProgress(total, completed int) SprintProgress {
	if total <= 0 {
		return SprintProgress{}
	}
	completed = max(0, min(completed, total))
	return SprintProgress{
		Percentage:     float64(completed) * 100 / float64(total),
		TotalTasks:     total,
		CompletedTasks: completed,
	}
}
