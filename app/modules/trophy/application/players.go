package trophyservice

import (
	"context"
	"errors"
	"strings"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	trophyevents "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/events"
	trophydb "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/repositories"
	"github.com/uptrace/bun"
)

// LinkPlayer polls the tag before storing anything, so an unknown tag is
// never tracked. A tag belongs to a single owner; the same owner linking
// again refreshes and rebases the record but keeps its counters.
func (s *TrophyService) LinkPlayer(ctx context.Context, owner trophydomain.OwnerID, rawTag string) (*LinkResult, error) {
	return withTelemetry(s, ctx, "LinkPlayer", rawTag, func(ctx context.Context) (*LinkResult, error) {
		tag, err := trophydomain.NormalizeTag(rawTag)
		if err != nil {
			return nil, err
		}

		obs, err := s.source.GetScore(ctx, tag)
		if err != nil {
			return nil, err
		}

		result, err := runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (*LinkResult, error) {
			return s.linkLogic(ctx, db, owner, tag, obs)
		})
		if err != nil {
			return nil, err
		}

		s.publish(ctx, trophyevents.PlayerLinkedV1, trophyevents.PlayerLinkedPayloadV1{
			OwnerID:     string(owner),
			Tag:         string(tag),
			DisplayName: result.Player.DisplayName,
			Score:       result.Player.CurrentScore,
			Relinked:    result.Relinked,
		})
		return result, nil
	})
}

func (s *TrophyService) linkLogic(ctx context.Context, db bun.IDB, owner trophydomain.OwnerID, tag trophydomain.Tag, obs trophydomain.Observation) (*LinkResult, error) {
	existing, err := s.repo.GetPlayer(ctx, db, tag)
	switch {
	case errors.Is(err, trophydb.ErrNotFound):
		p := trophydomain.NewPlayer(owner, tag, obs, s.today())
		if err := s.repo.UpsertPlayer(ctx, db, p); err != nil {
			return nil, storeErr("UpsertPlayer", err)
		}
		return &LinkResult{Player: p}, nil
	case err != nil:
		return nil, storeErr("GetPlayer", err)
	case existing.OwnerID != owner:
		return nil, trophydomain.ErrTagOwnedByOther
	}

	updated, err := s.repo.UpdatePlayer(ctx, db, tag, func(p *trophydomain.Player) error {
		*p = trophydomain.Rebase(*p, obs)
		return nil
	})
	if err != nil {
		return nil, storeErr("UpdatePlayer", err)
	}
	return &LinkResult{Player: *updated, Relinked: true}, nil
}

// UnlinkPlayer deletes one tag owned by owner, or every tag owned by owner
// when rawTag is empty.
func (s *TrophyService) UnlinkPlayer(ctx context.Context, owner trophydomain.OwnerID, rawTag string) (int64, error) {
	return withTelemetry(s, ctx, "UnlinkPlayer", string(owner), func(ctx context.Context) (int64, error) {
		var (
			removed int64
			tag     trophydomain.Tag
			err     error
		)
		if strings.TrimSpace(rawTag) == "" {
			removed, err = s.repo.DeleteOwnerPlayers(ctx, nil, owner)
		} else {
			tag, err = trophydomain.NormalizeTag(rawTag)
			if err != nil {
				return 0, err
			}
			removed, err = s.repo.DeleteOwnedPlayer(ctx, nil, owner, tag)
		}
		if err != nil {
			return 0, storeErr("Delete", err)
		}
		if removed == 0 {
			return 0, trophydomain.ErrPlayerNotFound
		}

		s.publish(ctx, trophyevents.PlayerUnlinkedV1, trophyevents.PlayerUnlinkedPayloadV1{
			OwnerID: string(owner),
			Tag:     string(tag),
			Removed: removed,
		})
		return removed, nil
	})
}

// RemovePlayer deletes tag whoever owns it.
func (s *TrophyService) RemovePlayer(ctx context.Context, rawTag string) error {
	_, err := withTelemetry(s, ctx, "RemovePlayer", rawTag, func(ctx context.Context) (int64, error) {
		tag, err := trophydomain.NormalizeTag(rawTag)
		if err != nil {
			return 0, err
		}
		removed, err := s.repo.DeletePlayer(ctx, nil, tag)
		if err != nil {
			return 0, storeErr("DeletePlayer", err)
		}
		if removed == 0 {
			return 0, trophydomain.ErrPlayerNotFound
		}

		s.publish(ctx, trophyevents.PlayerUnlinkedV1, trophyevents.PlayerUnlinkedPayloadV1{
			Tag:     string(tag),
			Removed: removed,
			Admin:   true,
		})
		return removed, nil
	})
	return err
}

// ListPlayers returns the store's ordering unmodified.
func (s *TrophyService) ListPlayers(ctx context.Context) ([]trophydomain.Player, error) {
	return withTelemetry(s, ctx, "ListPlayers", "all", func(ctx context.Context) ([]trophydomain.Player, error) {
		players, err := s.repo.ListPlayers(ctx, nil)
		if err != nil {
			return nil, storeErr("ListPlayers", err)
		}
		return players, nil
	})
}

// GetLeaderboard filters the ordered roster and cuts one page. Out of range
// pages clamp to the nearest valid page.
func (s *TrophyService) GetLeaderboard(ctx context.Context, q LeaderboardQuery) (*LeaderboardPage, error) {
	return withTelemetry(s, ctx, "GetLeaderboard", q.NameContains, func(ctx context.Context) (*LeaderboardPage, error) {
		players, err := s.repo.ListPlayers(ctx, nil)
		if err != nil {
			return nil, storeErr("ListPlayers", err)
		}
		return projectLeaderboard(players, q, s.opts.PageSize, s.now()), nil
	})
}
