package github

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(minute int) time.Time {
	return time.Date(2024, 3, 1, 10, minute, 0, 0, time.UTC)
}

func TestMergeReviewsKeepsLastState(t *testing.T) {
	raw := []RawReview{
		{Author: "alice", State: "APPROVED", Body: "ok", SubmittedAt: ts(1)},
		{Author: "alice", State: "CHANGES_REQUESTED", Body: "fix x", SubmittedAt: ts(2)},
	}

	merged := MergeReviews("bob", raw)
	require.Len(t, merged, 1)
	assert.Equal(t, "CHANGES_REQUESTED", merged[0].State)
	assert.Contains(t, merged[0].Body, "ok")
	assert.Contains(t, merged[0].Body, "fix x")
}

func TestMergeReviewsChronologicalRegardlessOfInput(t *testing.T) {
	// Same passes, reversed input order: the terminal state must not change.
	raw := []RawReview{
		{Author: "alice", State: "CHANGES_REQUESTED", Body: "fix x", SubmittedAt: ts(2)},
		{Author: "alice", State: "APPROVED", Body: "ok", SubmittedAt: ts(1)},
	}

	merged := MergeReviews("bob", raw)
	require.Len(t, merged, 1)
	assert.Equal(t, "CHANGES_REQUESTED", merged[0].State)
}

func TestMergeReviewsExcludesSelfReviews(t *testing.T) {
	raw := []RawReview{
		{Author: "Bob", State: "COMMENTED", Body: "note to self", SubmittedAt: ts(1)},
		{Author: "alice", State: "APPROVED", Body: "lgtm", SubmittedAt: ts(2)},
	}

	merged := MergeReviews("bob", raw)
	require.Len(t, merged, 1)
	assert.Equal(t, "alice", merged[0].Author)
}

func TestMergeReviewsOneEntryPerReviewer(t *testing.T) {
	raw := []RawReview{
		{Author: "alice", State: "COMMENTED", Body: "a", SubmittedAt: ts(1)},
		{Author: "carol", State: "APPROVED", Body: "c", SubmittedAt: ts(2)},
		{Author: "alice", State: "APPROVED", Body: "b", SubmittedAt: ts(3)},
	}

	merged := MergeReviews("bob", raw)
	require.Len(t, merged, 2)
	assert.Equal(t, "alice", merged[0].Author)
	assert.Equal(t, "APPROVED", merged[0].State)
	assert.Equal(t, "a\n\nb", merged[0].Body)
	assert.Equal(t, "carol", merged[1].Author)
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, isTransientError(errors.New("non-200 OK status code: 502 Bad Gateway")))
	assert.True(t, isTransientError(errors.New("Post \"https://api.github.com/graphql\": context deadline exceeded (Client.Timeout exceeded)")))
	assert.False(t, isTransientError(errors.New("Could not resolve to a Repository")))
	assert.False(t, isTransientError(nil))
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, isAuthError(errors.New("non-200 OK status code: 401 Unauthorized")))
	assert.True(t, isAuthError(errors.New("Bad credentials")))
	assert.False(t, isAuthError(errors.New("non-200 OK status code: 502 Bad Gateway")))
}
