package verification

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhoneLimiterBurstAndRefill(t *testing.T) {
	l := newPhoneLimiter(3, 3*time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow(testPhone, now), "attempt %d", i)
	}
	assert.False(t, l.allow(testPhone, now))
	assert.True(t, l.allow("+972521111111", now), "other phones have their own bucket")

	assert.True(t, l.allow(testPhone, now.Add(time.Minute)))
	assert.False(t, l.allow(testPhone, now.Add(time.Minute)))
}

func TestPhoneLimiterEvictsIdlePhones(t *testing.T) {
	l := newPhoneLimiter(3, 5*time.Minute)
	start := time.Now()

	for i := 0; i < 100; i++ {
		l.allow(fmt.Sprintf("+97250%07d", i), start)
	}
	assert.Equal(t, 100, l.size())

	later := start.Add(6 * time.Minute)
	assert.True(t, l.allow(testPhone, later))
	assert.Equal(t, 1, l.size())
}

func TestPhoneLimiterKeepsActivePhones(t *testing.T) {
	l := newPhoneLimiter(2, 5*time.Minute)
	start := time.Now()

	assert.True(t, l.allow(testPhone, start))
	assert.True(t, l.allow(testPhone, start.Add(4*time.Minute)))
	assert.True(t, l.allow("+972521111111", start.Add(6*time.Minute)))
	assert.Equal(t, 2, l.size())
}

func TestNilPhoneLimiterAllowsAll(t *testing.T) {
	l := newPhoneLimiter(0, time.Minute)
	for i := 0; i < 10; i++ {
		assert.True(t, l.allow(testPhone, time.Now()))
	}
}
