// Package actions reports deploy progress and results to the CI host through
// workflow commands.
package actions

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"paneldeploy/internal/deploy"
	"paneldeploy/internal/panel"
	"strconv"

	"github.com/sethvargo/go-githubactions"
)

// Output names set by Publish.
const (
	OutputDeleted  = "deleted"
	OutputUploaded = "uploaded"
	OutputPattern  = "pattern"
)

// Reporter writes workflow commands for one run.
type Reporter struct {
	action *githubactions.Action
}

// NewReporter creates a reporter writing to w. getenv resolves the runner's
// file command paths (GITHUB_OUTPUT); nil uses os.Getenv.
func NewReporter(w io.Writer, getenv func(string) string) *Reporter {
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Reporter{
		action: githubactions.New(
			githubactions.WithWriter(w),
			githubactions.WithGetenv(getenv),
		),
	}
}

// Mask hides secret in all later log output.
func (r *Reporter) Mask(secret string) {
	if secret != "" {
		r.action.AddMask(secret)
	}
}

// Group opens a collapsible log section. Call the returned func to close it.
func (r *Reporter) Group(title string) func() {
	r.action.Group(title)
	return r.action.EndGroup
}

// Fail marks the step as failed. Panel errors with several details get one
// annotation per detail.
func (r *Reporter) Fail(err error) {
	if err == nil {
		return
	}

	var apiErr *panel.APIError
	if errors.As(err, &apiErr) && len(apiErr.Details) > 1 {
		for _, d := range apiErr.Details {
			r.action.Errorf("%s", d.String())
		}
		return
	}
	r.action.Errorf("%s", err.Error())
}

// Publish sets the step outputs for a successful run.
func (r *Reporter) Publish(res *deploy.Result) error {
	deleted := res.Deleted
	if deleted == nil {
		deleted = []string{}
	}
	data, err := json.Marshal(deleted)
	if err != nil {
		return err
	}

	r.action.SetOutput(OutputDeleted, string(data))
	r.action.SetOutput(OutputUploaded, strconv.Itoa(len(res.Artifacts)))
	r.action.SetOutput(OutputPattern, res.Pattern)
	return nil
}
