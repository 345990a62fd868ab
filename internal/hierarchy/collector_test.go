package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andywolf/milestonesync/internal/tracker"
	"github.com/andywolf/milestonesync/internal/tracker/trackertest"
)

func depths(f *Forest) map[tracker.IssueRef]int {
	out := make(map[tracker.IssueRef]int)
	for _, n := range f.Flatten() {
		out[n.Issue.Ref] = n.Depth
	}
	return out
}

func TestCollectFlattensTree(t *testing.T) {
	fake := trackertest.New()
	root, a, b, c := trackertest.Ref("org/app", 1), trackertest.Ref("org/app", 2), trackertest.Ref("org/lib", 3), trackertest.Ref("org/app", 4)
	for _, ref := range []tracker.IssueRef{root, a, b, c} {
		fake.AddIssue(ref, ref.String(), "")
	}
	fake.Link(root, a)
	fake.Link(root, b)
	fake.Link(a, c)

	f, err := NewCollector(fake, 0, 1, nil).Collect(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, map[tracker.IssueRef]int{a: 0, b: 0, c: 1}, depths(f))
	assert.True(t, f.Complete())
	assert.Len(t, f.Direct(), 2)
	assert.Equal(t, []tracker.RepoRef{trackertest.Repo("org/app"), trackertest.Repo("org/lib")}, f.Repositories())

	n, ok := f.Get(c)
	require.True(t, ok)
	assert.Equal(t, a, n.Parent)
	assert.Len(t, f.Edges, 3)
}

func TestCollectLeafRoot(t *testing.T) {
	fake := trackertest.New()
	root := trackertest.Ref("org/app", 1)
	fake.AddIssue(root, "leaf", "")

	f, err := NewCollector(fake, 0, 1, nil).Collect(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.Empty(t, f.Repositories())
}

func TestCollectDetectsCycles(t *testing.T) {
	fake := trackertest.New()
	root, a, b := trackertest.Ref("org/app", 1), trackertest.Ref("org/app", 2), trackertest.Ref("org/app", 3)
	fake.Link(root, a)
	fake.Link(a, b)
	fake.Link(b, root)
	fake.Link(b, a)

	f, err := NewCollector(fake, 0, 1, nil).Collect(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, map[tracker.IssueRef]int{a: 0, b: 1}, depths(f))
	require.Len(t, f.Anomalies, 2)
	for _, an := range f.Anomalies {
		assert.Equal(t, AnomalyCycle, an.Kind)
		assert.Equal(t, b, an.Parent)
	}
	assert.False(t, f.Complete())
	assert.Equal(t, 3, fake.CallCount("sub-issues"), "each node is fetched once")
}

func TestCollectSelfReference(t *testing.T) {
	fake := trackertest.New()
	root, a := trackertest.Ref("org/app", 1), trackertest.Ref("org/app", 2)
	fake.Link(root, a)
	fake.Link(a, a)

	f, err := NewCollector(fake, 0, 1, nil).Collect(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, f.Anomalies, 1)
	assert.Equal(t, AnomalyCycle, f.Anomalies[0].Kind)
	assert.Equal(t, 1, f.Len())
}

func TestCollectDuplicateParent(t *testing.T) {
	fake := trackertest.New()
	root, a, b, shared := trackertest.Ref("org/app", 1), trackertest.Ref("org/app", 2), trackertest.Ref("org/app", 3), trackertest.Ref("org/app", 4)
	fake.Link(root, a)
	fake.Link(root, b)
	fake.Link(a, shared)
	fake.Link(b, shared)

	f, err := NewCollector(fake, 0, 1, nil).Collect(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Len())
	require.Len(t, f.Anomalies, 1)
	assert.Equal(t, AnomalyDuplicate, f.Anomalies[0].Kind)
}

func TestCollectDepthBound(t *testing.T) {
	fake := trackertest.New()
	chain := make([]tracker.IssueRef, 6)
	for i := range chain {
		chain[i] = trackertest.Ref("org/app", i+1)
		if i > 0 {
			fake.Link(chain[i-1], chain[i])
		}
	}

	f, err := NewCollector(fake, 2, 1, nil).Collect(context.Background(), chain[0])
	require.NoError(t, err)

	assert.Equal(t, map[tracker.IssueRef]int{chain[1]: 0, chain[2]: 1}, depths(f))
	require.Len(t, f.Anomalies, 1)
	assert.Equal(t, AnomalyDepth, f.Anomalies[0].Kind)
	assert.Equal(t, chain[2], f.Anomalies[0].Parent)
}

func TestCollectPartialFailure(t *testing.T) {
	fake := trackertest.New()
	root, a, b, c := trackertest.Ref("org/app", 1), trackertest.Ref("org/app", 2), trackertest.Ref("org/app", 3), trackertest.Ref("org/app", 4)
	fake.Link(root, a)
	fake.Link(root, b)
	fake.Link(b, c)
	fake.FailOn("sub-issues", a.String(), errors.New("timeout"))

	f, err := NewCollector(fake, 0, 1, nil).Collect(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, map[tracker.IssueRef]int{a: 0, b: 0, c: 1}, depths(f))
	require.Len(t, f.Errors, 1)
	assert.Equal(t, a, f.Errors[0].Issue)
	assert.True(t, tracker.IsRemote(f.Errors[0].Err))
}

func TestCollectRootFailure(t *testing.T) {
	fake := trackertest.New()
	root := trackertest.Ref("org/app", 1)
	fake.FailOn("sub-issues", root.String(), errors.New("boom"))

	f, err := NewCollector(fake, 0, 1, nil).Collect(context.Background(), root)
	require.Error(t, err)
	assert.Nil(t, f)
	assert.True(t, tracker.IsRemote(err))
}

func TestCollectCancelled(t *testing.T) {
	fake := trackertest.New()
	root, a := trackertest.Ref("org/app", 1), trackertest.Ref("org/app", 2)
	fake.Link(root, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewCollector(fake, 0, 4, nil).CollectAll(ctx, []tracker.IssueRef{root})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Equal(t, 0, fake.CallCount("sub-issues"))
}

func TestCollectAll(t *testing.T) {
	fake := trackertest.New()
	var roots []tracker.IssueRef
	for i := 1; i <= 8; i++ {
		root := trackertest.Ref("org/app", i)
		roots = append(roots, root)
		fake.Link(root, trackertest.Ref("org/app", 100+i))
	}
	fake.FailOn("sub-issues", roots[3].String(), errors.New("rate limited"))

	results := NewCollector(fake, 0, 3, nil).CollectAll(context.Background(), roots)
	require.Len(t, results, len(roots))
	for i, r := range results {
		assert.Equal(t, roots[i], r.Root)
		if i == 3 {
			assert.Error(t, r.Err)
			continue
		}
		require.NoError(t, r.Err)
		assert.Equal(t, 1, r.Forest.Len())
	}
}

func TestCollectDirectOnly(t *testing.T) {
	fake := trackertest.New()
	root := trackertest.Ref("org/app", 1)
	a, b, c := trackertest.Ref("org/app", 2), trackertest.Ref("org/lib", 3), trackertest.Ref("org/app", 4)
	fake.Link(root, a)
	fake.Link(root, b)
	fake.Link(a, c)

	f, err := NewCollector(fake, 0, 1, nil).DirectOnly().Collect(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, map[tracker.IssueRef]int{a: 0, b: 0}, depths(f))
	assert.Equal(t, 1, fake.CallCount("sub-issues"))
	assert.Empty(t, f.Anomalies)
	assert.Len(t, f.Repositories(), 2)
}
