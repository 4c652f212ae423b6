package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teamxray/xray/internal/models"
)

func TestMessageReferencesPR(t *testing.T) {
	tests := []struct {
		msg  string
		ref  string
		want bool
	}{
		{"Merge pull request #12 from fork/branch", "#12", true},
		{"Fixes #123", "#12", false},
		{"Fixes #123 and closes #12", "#12", true},
		{"no reference", "#12", false},
		{"trailing #12", "#12", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, messageReferencesPR(tt.msg, tt.ref), "%q / %s", tt.msg, tt.ref)
	}
}

func TestResolveCommitForPR(t *testing.T) {
	commits := []models.CommitRecord{
		{Hash: "c3", AuthorName: "Carol", AuthorEmail: "carol@example.com", Message: "tweak styles"},
		{Hash: "c2", AuthorName: "alice", AuthorEmail: "alice@example.com", Message: "Merge pull request #42 from alice/fix"},
		{Hash: "c1", AuthorName: "Alice Smith", AuthorEmail: "alice@example.com", Message: "initial work"},
	}

	t.Run("message reference wins", func(t *testing.T) {
		pr := models.PRData{Number: 42, Author: "someoneelse"}
		assert.Equal(t, "c2", resolveCommitForPR(pr, commits))
	})

	t.Run("author name match, newest first", func(t *testing.T) {
		pr := models.PRData{Number: 7, Author: "Alice"}
		assert.Equal(t, "c2", resolveCommitForPR(pr, commits))
	})

	t.Run("email prefix match", func(t *testing.T) {
		pr := models.PRData{Number: 7, Author: "carol"}
		assert.Equal(t, "c3", resolveCommitForPR(pr, commits))
	})

	t.Run("no match", func(t *testing.T) {
		pr := models.PRData{Number: 7, Author: "stranger"}
		assert.Equal(t, "", resolveCommitForPR(pr, commits))
	})

	t.Run("empty login", func(t *testing.T) {
		pr := models.PRData{Number: 7}
		assert.Equal(t, "", resolveCommitForPR(pr, commits))
	})
}
