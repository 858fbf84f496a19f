package docker

import (
	"errors"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	c := summarize(container.Summary{
		ID:      "0123456789abcdef0123",
		Names:   []string{"/pihole"},
		Image:   "pihole/pihole:latest",
		Status:  "Up 3 hours",
		State:   "running",
		Created: 1_700_000_000,
		Ports: []container.Port{
			{PrivatePort: 53, PublicPort: 53, Type: "udp"},
			{PrivatePort: 80, Type: "tcp"},
		},
	})

	assert.Equal(t, Container{
		ID:      "0123456789ab",
		Name:    "pihole",
		Image:   "pihole/pihole:latest",
		Status:  "Up 3 hours",
		State:   "running",
		Created: 1_700_000_000,
		Ports:   []string{"53:53/udp", "80/tcp"},
	}, c)
}

func TestSummarizeUnnamed(t *testing.T) {
	c := summarize(container.Summary{ID: "abc"})
	assert.Equal(t, "unknown", c.Name)
	assert.Equal(t, "abc", c.ID)
	assert.Empty(t, c.Ports)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, wrap(nil, "x"))

	err := wrap(errors.New("boom"), "web")
	assert.EqualError(t, err, "container web: boom")
	assert.NotErrorIs(t, err, ErrNotFound)
}
