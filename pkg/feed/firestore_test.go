package feed_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/omoide/pkg/feed"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/repository"
)

func TestFirestoreFeed(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	ctx := context.Background()
	collection := fmt.Sprintf("test_feed_%d", time.Now().UnixNano())
	repo, err := repository.NewFirestore(ctx, projectID, databaseID, repository.WithCollection(collection))
	gt.NoError(t, err)
	defer repo.Close()

	added, err := repo.AddEntry(ctx, &model.Entry{
		Time:        "2024-01-01T10:00:00",
		Location:    "New York",
		Description: "Met with client about project",
	})
	gt.NoError(t, err)

	listenCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var got *model.EntryChange
	f := feed.NewFirestore(repo.Client(), repo.Collection())
	gt.NoError(t, f.Listen(listenCtx, func(ctx context.Context, changes []*model.EntryChange) error {
		for _, c := range changes {
			if c.Entry.ID == added.ID {
				got = c
				cancel()
			}
		}
		return nil
	}))

	gt.V(t, got).NotNil()
	gt.Equal(t, got.Kind, model.ChangeInsert)
	gt.Equal(t, got.Entry.Description, "Met with client about project")
}
