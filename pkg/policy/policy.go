// Package policy evaluates the optional Rego ingest policy that decides whether a change
// record reaches the search index.
//
// Policies live in package ingest and may set:
//
//	drop   boolean  skip indexing the record
//	reason string   logged when the record is dropped
//
// The input is {"event": "INSERT|MODIFY", "entry": {...}} with the entry's JSON fields.
package policy

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/omoide/pkg/model"
	"github.com/m-mizutani/omoide/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// Decision is the outcome of the ingest policy for one record
type Decision struct {
	Drop   bool
	Reason string
}

// Gate holds the prepared ingest query. A Gate without policy files accepts everything.
type Gate struct {
	query *rego.PreparedEvalQuery
}

// printHook sends Rego print() output to the logger in the context
type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(pctx print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message, "location", pctx.Location)
	return nil
}

// New loads the ingest policy from policyDir. An empty policyDir disables the gate.
func New(ctx context.Context, policyDir string) (*Gate, error) {
	if policyDir == "" {
		return &Gate{}, nil
	}

	modules, err := loadModules(policyDir)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		logging.From(ctx).Warn("no policy files found, accepting all records", "dir", policyDir)
		return &Gate{}, nil
	}

	query, err := prepareQuery(ctx, modules, ingestQuery, rego.EnablePrintStatements(true))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare ingest policy", goerr.V("dir", policyDir))
	}

	return &Gate{query: query}, nil
}

// NewFromSource compiles a single policy module. Useful for embedding a fixed policy.
func NewFromSource(ctx context.Context, name, source string) (*Gate, error) {
	query, err := prepareQuery(ctx, []func(*rego.Rego){rego.Module(name, source)}, ingestQuery, rego.EnablePrintStatements(true))
	if err != nil {
		return nil, err
	}
	return &Gate{query: query}, nil
}

// Enabled reports whether a policy is loaded
func (g *Gate) Enabled() bool {
	return g != nil && g.query != nil
}

// Evaluate runs the ingest policy for change
func (g *Gate) Evaluate(ctx context.Context, change *model.EntryChange) (*Decision, error) {
	if !g.Enabled() {
		return &Decision{}, nil
	}

	input := map[string]any{
		"event": change.Kind,
		"entry": change.Entry,
	}

	rs, err := g.query.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&printHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate ingest policy", goerr.V("entry_id", change.Entry.ID))
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &Decision{}, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("invalid ingest policy result", goerr.V("entry_id", change.Entry.ID))
	}

	decision := &Decision{}
	if drop, ok := data["drop"].(bool); ok {
		decision.Drop = drop
	}
	if reason, ok := data["reason"].(string); ok {
		decision.Reason = reason
	}

	return decision, nil
}
