package service_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/CZERTAINLY/Brewer/internal/model"
)

// fakeBrew emulates the package manager contract over an in-memory list.
type fakeBrew struct {
	mx        sync.Mutex
	installed []string
	versions  map[string]string
	updates   int
}

func newFakeBrew() *fakeBrew {
	return &fakeBrew{
		installed: []string{"wget", "jq"},
		versions: map[string]string{
			"wget": "1.12",
			"jq":   "1.7.1",
			"git":  "2.44.0",
		},
	}
}

func (f *fakeBrew) Run(_ context.Context, cmd model.Command, _ model.StreamFunc) (model.Result, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	res := model.Result{Path: cmd.Path, Args: cmd.Args, Reason: "exit"}
	fail := func(format string, args ...any) (model.Result, error) {
		res.Status = 1
		res.Stderr = fmt.Sprintf(format, args...)
		return res, nil
	}

	op, name := cmd.Args[0], ""
	if len(cmd.Args) > 1 {
		name = cmd.Args[1]
	}
	switch op {
	case "list":
		res.Stdout = strings.Join(f.installed, "\n") + "\n"
	case "info":
		v, ok := f.versions[name]
		if !ok {
			return fail("Error: No available formula with the name %q\n", name)
		}
		res.Stdout = name + " " + v + "\n"
	case "install":
		if _, ok := f.versions[name]; !ok {
			return fail("Error: No available formula with the name %q\n", name)
		}
		if !slices.Contains(f.installed, name) {
			f.installed = append(f.installed, name)
		}
		res.Stdout = "==> Pouring " + name + "\n"
	case "remove":
		idx := slices.Index(f.installed, name)
		if idx < 0 {
			return fail("Error: No such keg: %s\n", name)
		}
		f.installed = slices.Delete(f.installed, idx, idx+1)
		res.Stdout = "Uninstalling " + name + "\n"
	case "update":
		f.updates++
		f.versions["jq"] = "1.8.0"
		res.Stdout = "Updated 1 formula.\n"
	default:
		return model.Result{}, fmt.Errorf("unknown command %s", op)
	}
	return res, nil
}

func (f *fakeBrew) updateCount() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.updates
}
