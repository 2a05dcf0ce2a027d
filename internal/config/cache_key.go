package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a registered student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// AttemptContentKey returns the cache key for the resolved test content of an attempt
func (r *CacheKeyStruct) AttemptContentKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:content", attemptID)
}

// TestMonitorChannel returns the Redis PubSub channel name for a test's live monitor
func (r *CacheKeyStruct) TestMonitorChannel(testID string) string {
	return fmt.Sprintf("test:%s:monitor", testID)
}

var CacheKey = NewCacheKeyStruct()
