// Package github submits batches as GitHub Actions workflow_dispatch runs.
package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ghapi "github.com/JakeFAU/kgr-crawler/internal/github"
	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/partition"
)

// DefaultRef is the branch a workflow runs on when none is configured.
const DefaultRef = "main"

// Config names the workflow to trigger.
type Config struct {
	// Workflow is the workflow file name or numeric id, e.g. "scrape.yml".
	Workflow string `mapstructure:"workflow"`
	// Ref is the git ref used when a request carries none.
	Ref string `mapstructure:"ref"`
}

type doer interface {
	Do(ctx context.Context, method, path string, body, out any) error
	RepoPath(suffix string) string
}

// Dispatcher implements keyword.DispatchAPI over workflow_dispatch.
type Dispatcher struct {
	client doer
	cfg    Config
}

var _ keyword.DispatchAPI = (*Dispatcher)(nil)

// New wires a Dispatcher to an authenticated GitHub client.
func New(client *ghapi.Client, cfg Config) (*Dispatcher, error) {
	if client == nil {
		return nil, errors.New("github client is required")
	}
	return newDispatcher(client, cfg)
}

func newDispatcher(client doer, cfg Config) (*Dispatcher, error) {
	if strings.TrimSpace(cfg.Workflow) == "" {
		return nil, errors.New("dispatch.github.workflow is required")
	}
	if cfg.Ref == "" {
		cfg.Ref = DefaultRef
	}
	return &Dispatcher{client: client, cfg: cfg}, nil
}

type dispatchBody struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs"`
}

// Submit triggers one workflow run for req. GitHub answers 204 with no run id,
// so the ack reference is the workflow and batch id.
func (d *Dispatcher) Submit(ctx context.Context, req keyword.BatchRequest) (keyword.Ack, error) {
	inputs, err := Inputs(req)
	if err != nil {
		return keyword.Ack{}, err
	}
	ref := req.Ref
	if ref == "" {
		ref = d.cfg.Ref
	}
	path := d.client.RepoPath("actions/workflows/" + url.PathEscape(d.cfg.Workflow) + "/dispatches")
	if err := d.client.Do(ctx, http.MethodPost, path, dispatchBody{Ref: ref, Inputs: inputs}, nil); err != nil {
		return keyword.Ack{}, fmt.Errorf("workflow dispatch %s: %w", req.BatchID, err)
	}
	return keyword.Ack{Reference: d.cfg.Workflow + "@" + ref + ":" + req.BatchID}, nil
}

// Inputs builds the workflow inputs. Keywords travel comma-joined unless one
// contains a comma, in which case they are sent as a base64 csvFile.
func Inputs(req keyword.BatchRequest) (map[string]string, error) {
	if req.BatchID == "" || len(req.Keywords) == 0 {
		return nil, &keyword.ValidationError{Field: "batch", Reason: "batch id and keywords are required"}
	}
	inputs := map[string]string{"id": req.BatchID}
	for _, kw := range req.Keywords {
		if strings.Contains(kw, ",") {
			data, err := partition.EncodeKeywords(req.Keywords)
			if err != nil {
				return nil, fmt.Errorf("encode csv input: %w", err)
			}
			inputs["csvFile"] = base64.StdEncoding.EncodeToString(data)
			return inputs, nil
		}
	}
	inputs["keywords"] = strings.Join(req.Keywords, ",")
	return inputs, nil
}
