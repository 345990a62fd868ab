package routing

import (
	"fmt"

	"github.com/andywolf/milestonesync/internal/ref"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// RouteSpec is the configuration form of a route, as read from the config file.
type RouteSpec struct {
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	Repo   string `json:"repo" yaml:"repo" mapstructure:"repo"`
}

// Route sends issues whose title starts with Prefix to Target.
type Route struct {
	Prefix string
	Target tracker.RepoRef
}

// Table is an ordered route list. Order is significant: the first matching
// prefix wins.
type Table []Route

// Reason explains how a Decision was reached.
type Reason string

const (
	ReasonRoute      Reason = "route"
	ReasonFallback   Reason = "fallback"
	ReasonUnresolved Reason = "unresolved"
)

// Decision is the outcome of routing one issue title.
type Decision struct {
	Targets []tracker.RepoRef
	Reason  Reason
	// Prefix is the matched route prefix when Reason is ReasonRoute.
	Prefix string
}

// Resolved reports whether at least one target repository was chosen.
func (d Decision) Resolved() bool {
	return len(d.Targets) > 0
}

// ParseRoutes builds a Table from "PREFIX=owner/repo" arguments, keeping
// argument order.
func ParseRoutes(args []string) (Table, error) {
	table := make(Table, 0, len(args))
	for _, arg := range args {
		prefix, repo, err := ref.ParseRoute(arg)
		if err != nil {
			return nil, err
		}
		table = append(table, Route{Prefix: prefix, Target: repo})
	}
	return table, nil
}

// FromSpecs builds a Table from configuration entries.
func FromSpecs(specs []RouteSpec) (Table, error) {
	table := make(Table, 0, len(specs))
	for _, s := range specs {
		if s.Prefix == "" {
			return nil, &ref.InvalidReferenceError{Kind: "route", Input: fmt.Sprintf("%s=%s", s.Prefix, s.Repo), Reason: "prefix is empty"}
		}
		repo, err := ref.ParseRepo(s.Repo)
		if err != nil {
			return nil, err
		}
		table = append(table, Route{Prefix: s.Prefix, Target: repo})
	}
	return table, nil
}

// ParseTargets parses the fallback owner/repo list.
func ParseTargets(args []string) ([]tracker.RepoRef, error) {
	out := make([]tracker.RepoRef, 0, len(args))
	for _, arg := range args {
		repo, err := ref.ParseRepo(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, nil
}
