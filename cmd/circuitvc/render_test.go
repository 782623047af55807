package main

import (
	"bytes"
	"strings"
	"testing"

	"circuitvc/internal/diff"
	"circuitvc/internal/errors"
	"circuitvc/internal/history"
	"circuitvc/internal/triple"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestRenderLog(t *testing.T) {
	master := history.Lane{Branch: "urn:b:master", Column: 0, Color: 0}
	module := history.Lane{Branch: "urn:b:module", Column: 1, Color: 1}

	view := history.View{
		Width: 2,
		Rows: []history.Row{
			{Ref: "urn:revision/merge", Kind: history.KindRevision, Lane: master, PassingLanes: []history.Lane{module},
				Message: "merge", Author: "ada", Branches: []string{"master"}, Tags: []string{"v1"}},
			{Ref: "urn:revision/c", Kind: history.KindRevision, Lane: module, PassingLanes: []history.Lane{master}, Message: "commitC"},
			{Ref: "urn:branch/module", Kind: history.KindBranch, BranchName: "module", Lane: module, PassingLanes: []history.Lane{master}},
			{Ref: "urn:revision/1", Kind: history.KindRevision, Lane: master, Message: "rev1"},
		},
		Problems: []*errors.Error{errors.CorruptHistory("urn:revision/x", "missing parent")},
	}

	var buf bytes.Buffer
	renderLog(&buf, view)

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"* |  merge (master, tag: v1) merge <ada>",
		"| *  c commitC",
		"| o  branch module",
		"*   1 rev1",
		"warning: corrupt history at urn:revision/x: missing parent",
	}, lines)
}

func TestRenderDiff(t *testing.T) {
	d := diff.New(
		[]triple.Statement{{Subject: "<urn:a>", Predicate: "<urn:p>", Object: `"new"`}},
		[]triple.Statement{{Subject: "<urn:a>", Predicate: "<urn:p>", Object: `"old"`}},
	)

	var buf bytes.Buffer
	renderDiff(&buf, d)
	assert.Equal(t, "- <urn:a> <urn:p> \"old\" .\n+ <urn:a> <urn:p> \"new\" .\n", buf.String())

	buf.Reset()
	renderDiff(&buf, diff.New(nil, nil))
	assert.Empty(t, buf.String())
}
