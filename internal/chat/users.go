package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/types"
)

// Profile holds the display attributes supplied by the identity provider.
type Profile struct {
	Name      string
	Email     string
	AvatarUrl string
}

func (p Profile) normalize() Profile {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = DefaultUserName
	}
	p.Email = strings.TrimSpace(p.Email)
	p.AvatarUrl = strings.TrimSpace(p.AvatarUrl)
	return p
}

// UpsertUser creates the user for principal on first login and patches its
// display attributes on later logins when they changed.
func (s *Service) UpsertUser(ctx context.Context, principal string, profile Profile) (int, error) {
	if principal == "" {
		return 0, ErrNotAuthenticated
	}
	profile = profile.normalize()

	var (
		userId  int
		changed bool
	)
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		u, err := q.GetUserByPrincipal(ctx, principal)
		if errors.Is(err, sql.ErrNoRows) {
			u, err = q.CreateUser(ctx, database.CreateUserParams{
				Principal: principal,
				Name:      profile.Name,
				Email:     profile.Email,
				AvatarUrl: profile.AvatarUrl,
				CreatedAt: s.now(),
			})
			if err == nil {
				userId, changed = u.Id, true
				return nil
			}
			if !errors.Is(err, database.ErrUserExists) {
				return fmt.Errorf("create user: %w", err)
			}
			// a concurrent login created the user first
			u, err = q.GetUserByPrincipal(ctx, principal)
		}
		if err != nil {
			return fmt.Errorf("get user by principal: %w", err)
		}

		userId = u.Id
		if u.Name == profile.Name && u.Email == profile.Email && u.AvatarUrl == profile.AvatarUrl {
			return nil
		}

		if err := q.UpdateUser(ctx, database.UpdateUserParams{
			UserId:    u.Id,
			Name:      profile.Name,
			Email:     profile.Email,
			AvatarUrl: profile.AvatarUrl,
		}); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return 0, err
	}

	if changed {
		s.log.Debug().Int("user_id", userId).Msg("upserted user")
		s.notify(ctx, Change{Topic: TopicUsers})
	}

	return userId, nil
}

// Heartbeat records activity for principal. Unknown principals are ignored.
func (s *Service) Heartbeat(ctx context.Context, principal string) error {
	if principal == "" {
		return nil
	}
	now := s.now()

	var cameOnline bool
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		u, ok, err := lookupUser(ctx, q, principal)
		if err != nil || !ok {
			return err
		}

		cameOnline = !isOnline(u.LastSeenAt, now)
		if err := q.UpdateUserLastSeen(ctx, u.Id, now); err != nil {
			return fmt.Errorf("update last seen: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if cameOnline {
		s.notify(ctx, Change{Topic: TopicUsers})
	}

	return nil
}

// ListUsersExcluding returns every user other than principal with a derived
// online flag. An unresolved principal yields an empty list.
func (s *Service) ListUsersExcluding(ctx context.Context, principal string) ([]types.User, error) {
	me, ok, err := lookupUser(ctx, s.repo, principal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []types.User{}, nil
	}

	users, err := s.repo.ListUsersExcluding(ctx, me.Id)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	now := s.now()
	out := make([]types.User, len(users))
	for i, u := range users {
		out[i] = userView(u, now)
	}

	return out, nil
}

// GetCurrentUser returns the stored profile for principal, or nil when there
// is none.
func (s *Service) GetCurrentUser(ctx context.Context, principal string) (*types.User, error) {
	u, ok, err := lookupUser(ctx, s.repo, principal)
	if err != nil || !ok {
		return nil, err
	}

	view := userView(u, s.now())
	return &view, nil
}

func userView(u database.User, now int64) types.User {
	return types.User{
		Id:        u.Id,
		Name:      u.Name,
		Email:     u.Email,
		AvatarUrl: u.AvatarUrl,
		LastSeen:  nullMillisToTime(u.LastSeenAt),
		IsOnline:  isOnline(u.LastSeenAt, now),
		CreatedAt: millisToTime(u.CreatedAt),
	}
}
