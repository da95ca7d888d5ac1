package policy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

const ingestQuery = "data.ingest"

// loadModules reads every .rego file in policyDir. No files means no policy.
func loadModules(policyDir string) ([]func(*rego.Rego), error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir), goerr.T(model.ErrTagConfig))
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file), goerr.T(model.ErrTagConfig))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}

	return modules, nil
}

// prepareQuery compiles query against all loaded modules
func prepareQuery(ctx context.Context, modules []func(*rego.Rego), query string, extra ...func(*rego.Rego)) (*rego.PreparedEvalQuery, error) {
	options := make([]func(*rego.Rego), 0, len(modules)+len(extra)+1)
	options = append(options, rego.Query(query))
	options = append(options, modules...)
	options = append(options, extra...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare query", goerr.V("query", query), goerr.T(model.ErrTagConfig))
	}

	return &prepared, nil
}
