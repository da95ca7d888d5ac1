package memory

import (
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout read by Seed
//
//	entries:
//	  - time: "2025-01-15T10:30:00"
//	    location: "New York, NY"
//	    description: "Meeting with client at downtown office"
type SeedFile struct {
	Entries []*model.Entry `yaml:"entries"`
}

// Seed stores every entry of a YAML seed file and returns how many were stored. Entries
// with an id overwrite the stored entry of the same id.
func (u *UseCase) Seed(ctx context.Context, r io.Reader) (int, error) {
	var file SeedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return 0, goerr.Wrap(err, "failed to decode seed file")
	}

	for i, e := range file.Entries {
		if e == nil {
			return 0, goerr.New("empty seed entry", goerr.V("index", i))
		}
		if err := e.Validate(); err != nil {
			return 0, goerr.Wrap(err, "invalid seed entry", goerr.V("index", i))
		}
	}

	stored := 0
	for _, e := range file.Entries {
		added, err := u.repo.AddEntry(ctx, e)
		if err != nil {
			return stored, goerr.Wrap(err, "failed to store seed entry", goerr.V("stored", stored))
		}
		logging.From(ctx).Debug("seeded entry", "id", added.ID)
		stored++
	}

	return stored, nil
}
