package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Status indicates whether a single diagnostic passed.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Item is one diagnostic result with an optional hint.
type Item struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Report aggregates every diagnostic run by the doctor command.
type Report struct {
	GeneratedAt time.Time `json:"generatedAt"`
	HasFailures bool      `json:"hasFailures"`
	Items       []Item    `json:"items"`
}

// Target names what Report inspects besides the engine itself.
type Target struct {
	DockerBin string
	Image     string
	Dirs      []string
}

// lookPath and createTemp are swapped in tests.
var (
	lookPath   = exec.LookPath
	createTemp = os.CreateTemp
)

// Report runs every check regardless of earlier failures. The GPU probe is
// skipped when the daemon is unreachable.
func (c *Checker) Report(ctx context.Context, t Target) Report {
	items := []Item{c.checkCLI(t.DockerBin)}

	daemon := c.itemFor("daemon", "Container daemon", c.checkDaemon(ctx), "Docker daemon reachable",
		"Start the Docker service and make sure your user can access the Docker socket.")
	items = append(items, daemon)
	if daemon.Status == StatusPass {
		items = append(items, c.itemFor("gpu", "GPU runtime", c.checkGPU(ctx),
			fmt.Sprintf("%s sees a GPU", c.refImage),
			"Install the NVIDIA driver and the NVIDIA Container Toolkit, then restart Docker."))
		items = append(items, c.checkImage(ctx, t.Image))
	}
	for _, d := range t.Dirs {
		items = append(items, checkWritable(d))
	}

	rep := Report{GeneratedAt: time.Now().UTC(), Items: items}
	for _, it := range items {
		if it.Status == StatusFail {
			rep.HasFailures = true
			break
		}
	}
	return rep
}

func (c *Checker) itemFor(id, name string, err error, okMsg, hint string) Item {
	if err != nil {
		return Item{ID: id, Name: name, Status: StatusFail, Message: err.Error(), Hint: hint}
	}
	return Item{ID: id, Name: name, Status: StatusPass, Message: okMsg}
}

func (c *Checker) checkCLI(bin string) Item {
	if bin == "" {
		bin = "docker"
	}
	path, err := lookPath(bin)
	if err != nil {
		return Item{
			ID: "tool_" + bin, Name: bin, Status: StatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", bin),
			Hint:    "Install Docker and ensure the binary is available on PATH; builds and shells use it.",
		}
	}
	return Item{ID: "tool_" + bin, Name: bin, Status: StatusPass, Message: fmt.Sprintf("Found at %s", path)}
}

// A missing image is reported as a failure with a hint; `run` would fail
// without it.
func (c *Checker) checkImage(ctx context.Context, tag string) Item {
	item := Item{ID: "image", Name: "Job image " + tag}
	ok, err := c.rt.ImageExists(ctx, tag)
	switch {
	case err != nil:
		item.Status = StatusFail
		item.Message = err.Error()
	case !ok:
		item.Status = StatusFail
		item.Message = "image not built"
		item.Hint = "Run `musectl build`."
	default:
		item.Status = StatusPass
		item.Message = "present"
	}
	return item
}

func checkWritable(dir string) Item {
	item := Item{ID: "dir_" + dir, Name: dir}
	f, err := createTemp(dir, ".musectl-write-test-*")
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %v", err)
		item.Hint = "Check permissions, or point the directory elsewhere in the config file."
		return item
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	item.Status = StatusPass
	item.Message = "writable"
	return item
}

// Render writes the report as a table.
func (r Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Check", "Status", "Detail", "Hint"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	for _, it := range r.Items {
		table.Append([]string{it.Name, string(it.Status), it.Message, it.Hint})
	}
	table.Render()
}
