package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/repository"
)

// testRepository runs the behavior every Repository implementation shares
func testRepository(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	t.Run("create table is idempotent", func(t *testing.T) {
		gt.NoError(t, repo.CreateTable(ctx))
		gt.NoError(t, repo.CreateTable(ctx))
	})

	t.Run("add and get entry", func(t *testing.T) {
		added, err := repo.AddEntry(ctx, &model.Entry{
			Time:        "2024-01-01T10:00:00",
			Location:    "New York",
			Description: "Visited Central Park",
		})
		gt.NoError(t, err)
		gt.S(t, added.ID.String()).Contains("entry_")
		gt.False(t, added.CreatedAt.IsZero())

		got, err := repo.GetEntry(ctx, added.ID)
		gt.NoError(t, err)
		gt.V(t, got).NotNil()
		gt.Equal(t, got.ID, added.ID)
		gt.Equal(t, got.Location, "New York")
		gt.Equal(t, got.Description, "Visited Central Park")
	})

	t.Run("add rejects empty description", func(t *testing.T) {
		_, err := repo.AddEntry(ctx, &model.Entry{Time: "2024-01-01T10:00:00"})
		gt.Error(t, err)
	})

	t.Run("get unknown entry returns nil", func(t *testing.T) {
		got, err := repo.GetEntry(ctx, model.EntryID("entry_does_not_exist"))
		gt.NoError(t, err)
		gt.Nil(t, got)
	})

	t.Run("update merges fields", func(t *testing.T) {
		added, err := repo.AddEntry(ctx, &model.Entry{
			Time:        "2024-01-02T10:00:00",
			Location:    "Boston",
			Description: "Walked the Freedom Trail",
		})
		gt.NoError(t, err)

		location := "Cambridge"
		gt.NoError(t, repo.UpdateEntry(ctx, added.ID, &model.EntryUpdate{Location: &location}))

		got, err := repo.GetEntry(ctx, added.ID)
		gt.NoError(t, err)
		gt.Equal(t, got.Location, "Cambridge")
		gt.Equal(t, got.Description, "Walked the Freedom Trail")
		gt.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("update unknown entry fails with not found", func(t *testing.T) {
		desc := "nothing"
		err := repo.UpdateEntry(ctx, model.EntryID("entry_missing"), &model.EntryUpdate{Description: &desc})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrEntryNotFound))
		gt.True(t, goerr.HasTag(err, model.ErrTagNotFound))
	})

	t.Run("delete entry", func(t *testing.T) {
		added, err := repo.AddEntry(ctx, &model.Entry{
			Time:        "2024-01-03T10:00:00",
			Location:    "Paris",
			Description: "Climbed the Eiffel Tower",
		})
		gt.NoError(t, err)

		gt.NoError(t, repo.DeleteEntry(ctx, added.ID))
		got, err := repo.GetEntry(ctx, added.ID)
		gt.NoError(t, err)
		gt.Nil(t, got)

		// deleting again is not an error
		gt.NoError(t, repo.DeleteEntry(ctx, added.ID))
	})

	t.Run("scan by location and time range", func(t *testing.T) {
		for _, e := range []*model.Entry{
			{Time: "2023-05-01T09:00:00", Location: "Tokyo", Description: "Ate sushi"},
			{Time: "2023-05-02T09:00:00", Location: "Tokyo", Description: "Visited Shibuya"},
			{Time: "2023-06-01T09:00:00", Location: "Osaka", Description: "Saw the castle"},
		} {
			_, err := repo.AddEntry(ctx, e)
			gt.NoError(t, err)
		}

		tokyo, err := repository.GetEntriesByLocation(ctx, repo, "Tokyo")
		gt.NoError(t, err)
		gt.A(t, tokyo).Length(2)

		may, err := repository.GetEntriesByTimeRange(ctx, repo, "2023-05-01T00:00:00", "2023-05-31T23:59:59")
		gt.NoError(t, err)
		gt.A(t, may).Length(2)

		both, err := repo.ListEntries(ctx,
			repository.ByLocation("Tokyo"),
			repository.ByTimeRange("2023-05-02T00:00:00", "2023-05-02T23:59:59"))
		gt.NoError(t, err)
		gt.A(t, both).Length(1)
		gt.Equal(t, both[0].Description, "Visited Shibuya")

		none, err := repository.GetEntriesByLocation(ctx, repo, "Atlantis")
		gt.NoError(t, err)
		gt.A(t, none).Length(0)
	})

	t.Run("list all entries respects limit", func(t *testing.T) {
		all, err := repo.ListAllEntries(ctx, 0)
		gt.NoError(t, err)
		gt.A(t, all).Longer(3)

		for i := 1; i < len(all); i++ {
			gt.True(t, all[i-1].ID < all[i].ID)
		}

		limited, err := repo.ListAllEntries(ctx, 2)
		gt.NoError(t, err)
		gt.A(t, limited).Length(2)
	})
}
