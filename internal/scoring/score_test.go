package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketOf(t *testing.T) {
	cases := map[float64]int{
		0:    0,
		19.9: 0,
		20:   1,
		59.9: 2,
		60:   3,
		79.9: 3,
		80:   4,
		100:  4,
		-5:   0,
		120:  4,
	}
	for p, want := range cases {
		assert.Equal(t, want, bucketOf(p), "percentage %v", p)
	}
}

func TestPercentRoundsToOneDecimal(t *testing.T) {
	assert.Equal(t, 33.3, percent(1, 3))
	assert.Equal(t, 0.0, percent(0, 0))
	assert.Equal(t, 100.0, percent(4, 4))
}
