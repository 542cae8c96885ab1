package natsbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "guessify.rooms.r-42.changes", Subject("r-42"))
}
