package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SubmitLockKey guards a learner's submission of one assessment across
// gateway replicas while the backend call is in flight.
func (r *CacheKeyStruct) SubmitLockKey(learnerID int, assessmentID string) string {
	return fmt.Sprintf("learner:%d:assessment:%s:submit_lock", learnerID, assessmentID)
}

// AssessmentMonitorChannel returns the Redis PubSub channel name for an assessment monitor
func (r *CacheKeyStruct) AssessmentMonitorChannel(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:monitor", assessmentID)
}

var CacheKey = NewCacheKeyStruct()
