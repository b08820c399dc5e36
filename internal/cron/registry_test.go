package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string                       { return string(n) }
func (n namedJob) Run(context.Context) (int64, error) { return 0, nil }

func TestRegistryKeepsOrderAndReplacesByName(t *testing.T) {
	reg := NewRegistry(namedJob("outbox-retention"), nil, namedJob("dlq-retention"))
	replacement := &countingJob{name: "outbox-retention"}
	reg.Register(replacement)
	reg.Register(namedJob("link-prune"))

	jobs := reg.Jobs()
	require.Len(t, jobs, 3)
	assert.Same(t, replacement, jobs[0])
	assert.Equal(t, "dlq-retention", jobs[1].Name())
	assert.Equal(t, "link-prune", jobs[2].Name())

	jobs[0] = nil
	assert.NotNil(t, reg.Jobs()[0], "Jobs must return a copy")
}
